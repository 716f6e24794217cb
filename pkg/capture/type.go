package capture

import (
	"context"
	"errors"
	"time"

	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/config"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/types"
)

var (
	// ErrStoreUnavailable means the backend connection itself is gone.
	// The capture process cannot continue.
	ErrStoreUnavailable = errors.New("reading store unavailable")
	ErrFetchFailed      = errors.New("snapshot fetch failed")
	ErrCyclePanicked    = errors.New("poll cycle panicked")
)

type Classification uint8

const (
	Store Classification = iota
	Resend
	Unchanged
)

func (c Classification) String() string {
	switch c {
	case Store:
		return "store"
	case Resend:
		return "resend"
	case Unchanged:
		return "unchanged"
	}
	return "unknown"
}

// SnapshotSource yields the current report of every known inverter.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context) (types.Snapshot, error)
}

// Authenticator is implemented by sources that can renew their session.
type Authenticator interface {
	Login(ctx context.Context) error
}

type ReadingStore interface {
	InsertReading(ctx context.Context, reading types.StoredReading) (bool, error)
	LatestReadings(ctx context.Context) ([]types.StoredReading, error)
	Checkpoint(ctx context.Context) error
	Ping(ctx context.Context) error
}

// ReadingSink receives every newly stored reading.
type ReadingSink interface {
	PublishReading(ctx context.Context, reading types.StoredReading) error
}

// SummarySink receives the periodic capture summary.
type SummarySink interface {
	PublishSummary(ctx context.Context, summary Summary) error
}

type Counters struct {
	Cycles        uint64 `json:"cycles"`
	Messages      uint64 `json:"messages"`
	StaleCycles   uint64 `json:"stale_cycles"`
	Stored        uint64 `json:"stored"`
	Resends       uint64 `json:"resends"`
	Unchanged     uint64 `json:"unchanged"`
	FailedCycles  uint64 `json:"failed_cycles"`
	DroppedWrites uint64 `json:"dropped_writes"`
	Duplicates    uint64 `json:"duplicates"`
}

// Sub returns the counts accumulated since mark.
func (c Counters) Sub(mark Counters) Counters {
	return Counters{
		Cycles:        c.Cycles - mark.Cycles,
		Messages:      c.Messages - mark.Messages,
		StaleCycles:   c.StaleCycles - mark.StaleCycles,
		Stored:        c.Stored - mark.Stored,
		Resends:       c.Resends - mark.Resends,
		Unchanged:     c.Unchanged - mark.Unchanged,
		FailedCycles:  c.FailedCycles - mark.FailedCycles,
		DroppedWrites: c.DroppedWrites - mark.DroppedWrites,
		Duplicates:    c.Duplicates - mark.Duplicates,
	}
}

type Summary struct {
	Time     time.Time     `json:"time"`
	Period   time.Duration `json:"period"`
	Interval Counters      `json:"interval"`
	Total    Counters      `json:"total"`
	// Sum of the last seen watts of every known inverter
	TotalWatts uint64 `json:"total_watts"`
	// Mean of TotalWatts over the interval's successful cycles
	MeanWatts float64 `json:"mean_watts"`
	Inverters int     `json:"inverters"`
}

// Status is a copy of the engine state safe to hand to other goroutines.
type Status struct {
	Time       time.Time             `json:"time"`
	Inverters  []types.StoredReading `json:"inverters"`
	Counters   Counters              `json:"counters"`
	TotalWatts uint64                `json:"total_watts"`
}

type Options struct {
	PollInterval         time.Duration
	SummaryInterval      time.Duration
	CycleTimeout         time.Duration
	FetchRetryBase       time.Duration
	FetchRetryMax        time.Duration
	ReloginAfterFailures int
	StoreWriteAttempts   int
	WriteRetryDelay      time.Duration
	// Bounds each sink call; sinks never share the cycle deadline
	SinkTimeout time.Duration
	// Bounds the health check after exhausted writes
	StorePingTimeout time.Duration
}

func OptionsFromConfig(cfg *config.CaptureConfig) Options {
	return Options{
		PollInterval:         cfg.PollInterval(),
		SummaryInterval:      cfg.SummaryInterval(),
		CycleTimeout:         cfg.CycleTimeout(),
		FetchRetryBase:       cfg.FetchRetryBase(),
		FetchRetryMax:        cfg.FetchRetryMax(),
		ReloginAfterFailures: cfg.ReloginAfterFailures,
		StoreWriteAttempts:   cfg.StoreWriteAttempts,
		WriteRetryDelay:      2 * time.Second,
		SinkTimeout:          5 * time.Second,
		StorePingTimeout:     10 * time.Second,
	}
}
