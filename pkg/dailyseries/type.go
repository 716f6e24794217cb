package dailyseries

import (
	"context"
	"errors"
	"time"

	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/types"
)

const DateLayout = "2006-01-02"

var (
	// ErrInsufficient marks an inverter-day that is not a complete
	// sunrise to sunset record. It is excluded from analysis.
	ErrInsufficient  = errors.New("insufficient data")
	ErrTooFewSamples = errors.New("too few samples")
	ErrStartPower    = errors.New("startup power too high")
	ErrEndPower      = errors.New("shutdown power too high")

	// ErrOutOfOrder is a data integrity failure: samples must be time ordered.
	ErrOutOfOrder = errors.New("samples out of order")
)

// Sample is one stored reading as seconds past local midnight.
type Sample struct {
	Seconds int    `json:"seconds"`
	Watts   uint16 `json:"watts"`
}

// Series holds the stored readings of one inverter on one calendar day.
// No samples are interpolated or synthesized.
type Series struct {
	Serial  uint64    `json:"serial_number"`
	Date    time.Time `json:"date"`
	Samples []Sample  `json:"samples"`
}

func (s *Series) Day() string {
	return s.Date.Format(DateLayout)
}

type ScreenConfig struct {
	MinDataPoints int
	MaxStartPower uint16
	MaxEndPower   uint16
}

func DefaultScreenConfig() ScreenConfig {
	return ScreenConfig{MinDataPoints: 50, MaxStartPower: 20, MaxEndPower: 0}
}

// GapStats describes the spacing of consecutive samples in seconds.
type GapStats struct {
	Min  int
	Mean int
	Max  int
}

// Irregular reports spacing the device does not normally produce: a gap
// over 1.5 times the mean or under half of it.
func (g GapStats) Irregular() bool {
	return g.Max*2 > g.Mean*3 || g.Min*2 < g.Mean
}

// RowSource streams stored readings in (report time, serial) order.
type RowSource interface {
	ReadingsBetween(ctx context.Context, from, to time.Time, fn func(types.StoredReading) error) error
}
