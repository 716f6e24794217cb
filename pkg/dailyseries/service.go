// Package dailyseries groups stored readings into per inverter, per day
// sample series and screens out incomplete days.
package dailyseries

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/types"
)

// Extract reads every stored reading from the first day to the last day
// (inclusive, calendar days in loc) and calls fn once per inverter-day in
// (date, serial) order. An error from fn stops the extraction.
func Extract(ctx context.Context, src RowSource, from, to time.Time, loc *time.Location, fn func(Series) error) error {
	start := DayStart(from, loc)
	end := DayEnd(DayStart(to, loc))

	var day time.Time
	current := map[uint64]*Series{}

	flush := func() error {
		serials := make([]uint64, 0, len(current))
		for serial := range current {
			serials = append(serials, serial)
		}
		sort.Slice(serials, func(i, j int) bool { return serials[i] < serials[j] })
		for _, serial := range serials {
			if err := fn(*current[serial]); err != nil {
				return err
			}
		}
		current = map[uint64]*Series{}
		return nil
	}

	err := src.ReadingsBetween(ctx, start, end, func(r types.StoredReading) error {
		t := r.ReportTime.In(loc)
		readingDay := DayStart(t, loc)
		if !readingDay.Equal(day) {
			if err := flush(); err != nil {
				return err
			}
			day = readingDay
		}

		series, ok := current[r.Serial]
		if !ok {
			series = &Series{Serial: r.Serial, Date: day}
			current[r.Serial] = series
		}
		series.Samples = append(series.Samples, Sample{Seconds: SecondsPastMidnight(t), Watts: r.Watts})
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}

// Screen returns nil when the series is a complete day: enough samples,
// starting near zero and ending at zero. Otherwise the error wraps
// ErrInsufficient and the failing check.
func Screen(s Series, cfg ScreenConfig) error {
	n := len(s.Samples)
	if n < cfg.MinDataPoints || n == 0 {
		return fmt.Errorf("%w: %w: %d samples, need %d", ErrInsufficient, ErrTooFewSamples, n, cfg.MinDataPoints)
	}
	if first := s.Samples[0].Watts; first >= cfg.MaxStartPower {
		return fmt.Errorf("%w: %w: %dW", ErrInsufficient, ErrStartPower, first)
	}
	if last := s.Samples[n-1].Watts; last > cfg.MaxEndPower {
		return fmt.Errorf("%w: %w: %dW", ErrInsufficient, ErrEndPower, last)
	}
	return nil
}

// CheckOrder verifies the samples are non-decreasing in time.
func (s *Series) CheckOrder() error {
	for i := 1; i < len(s.Samples); i++ {
		if s.Samples[i].Seconds < s.Samples[i-1].Seconds {
			return fmt.Errorf("%w: %s SN%d sample %d at %ds follows %ds",
				ErrOutOfOrder, s.Day(), s.Serial, i, s.Samples[i].Seconds, s.Samples[i-1].Seconds)
		}
	}
	return nil
}

// Gaps returns the sample spacing. Series with fewer than two samples
// report zero spacing.
func (s *Series) Gaps() GapStats {
	n := len(s.Samples)
	if n < 2 {
		return GapStats{}
	}
	stats := GapStats{Min: s.Samples[1].Seconds - s.Samples[0].Seconds}
	for i := 1; i < n; i++ {
		delta := s.Samples[i].Seconds - s.Samples[i-1].Seconds
		stats.Min = min(stats.Min, delta)
		stats.Max = max(stats.Max, delta)
	}
	span := s.Samples[n-1].Seconds - s.Samples[0].Seconds
	stats.Mean = (span + (n-1)/2) / (n - 1)
	return stats
}
