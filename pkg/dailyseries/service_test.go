package dailyseries

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/readingdb"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var loc = time.FixedZone("PST", -8*3600)

type sliceSource struct {
	readings []types.StoredReading
	from, to time.Time
}

func (s *sliceSource) ReadingsBetween(_ context.Context, from, to time.Time, fn func(types.StoredReading) error) error {
	s.from, s.to = from, to
	for _, r := range s.readings {
		if r.ReportTime.Before(from) || r.ReportTime.After(to) {
			continue
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func at(day, hour, minute int) time.Time {
	return time.Date(2024, 6, day, hour, minute, 0, 0, loc)
}

func collect(t *testing.T, src RowSource, from, to time.Time) []Series {
	t.Helper()
	var out []Series
	require.NoError(t, Extract(context.Background(), src, from, to, loc, func(s Series) error {
		out = append(out, s)
		return nil
	}))
	return out
}

func TestExtractGroupsPerInverterDay(t *testing.T) {
	src := &sliceSource{readings: []types.StoredReading{
		{ReportTime: at(20, 6, 0), Serial: 2, Watts: 3},
		{ReportTime: at(20, 6, 0), Serial: 1, Watts: 4},
		{ReportTime: at(20, 6, 5), Serial: 1, Watts: 30},
		{ReportTime: at(20, 20, 0), Serial: 2, Watts: 0},
		{ReportTime: at(21, 5, 55), Serial: 1, Watts: 2},
		{ReportTime: at(21, 23, 59), Serial: 1, Watts: 0},
	}}

	series := collect(t, src, at(20, 12, 0), at(21, 12, 0))
	require.Len(t, series, 3)

	assert.Equal(t, "2024-06-20", series[0].Day())
	assert.Equal(t, uint64(1), series[0].Serial)
	assert.Equal(t, []Sample{{Seconds: 6 * 3600, Watts: 4}, {Seconds: 6*3600 + 300, Watts: 30}}, series[0].Samples)

	assert.Equal(t, uint64(2), series[1].Serial)
	assert.Equal(t, []Sample{{Seconds: 6 * 3600, Watts: 3}, {Seconds: 20 * 3600, Watts: 0}}, series[1].Samples)

	assert.Equal(t, "2024-06-21", series[2].Day())
	assert.Len(t, series[2].Samples, 2)

	// Whole calendar days are queried regardless of the time of day passed in
	assert.Equal(t, at(20, 0, 0), src.from)
	assert.Equal(t, at(21, 23, 59).Add(59*time.Second), src.to)
}

func TestExtractStopsOnCallbackError(t *testing.T) {
	src := &sliceSource{readings: []types.StoredReading{
		{ReportTime: at(20, 6, 0), Serial: 1, Watts: 4},
		{ReportTime: at(21, 6, 0), Serial: 1, Watts: 4},
	}}
	stop := errors.New("stop")
	calls := 0
	err := Extract(context.Background(), src, at(20, 0, 0), at(21, 0, 0), loc, func(Series) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestExtractFromSQLiteStore(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	store, err := readingdb.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "inverters.db"), loc, log)
	require.NoError(t, err)
	defer store.Close()

	for i, w := range []uint16{1, 80, 200, 90, 0} {
		_, err := store.InsertReading(context.Background(), types.StoredReading{ReportTime: at(20, 6+3*i, 0), Serial: 9, Watts: w})
		require.NoError(t, err)
	}
	_, err = store.InsertReading(context.Background(), types.StoredReading{ReportTime: at(22, 8, 0), Serial: 9, Watts: 50})
	require.NoError(t, err)

	series := collect(t, store, at(20, 0, 0), at(20, 0, 0))
	require.Len(t, series, 1)
	require.Len(t, series[0].Samples, 5)
	assert.Equal(t, 6*3600, series[0].Samples[0].Seconds)
	assert.Equal(t, uint16(0), series[0].Samples[4].Watts)
}

func daySeries(n int, first, last uint16) Series {
	s := Series{Serial: 1, Date: at(20, 0, 0)}
	for i := 0; i < n; i++ {
		s.Samples = append(s.Samples, Sample{Seconds: 6*3600 + i*331, Watts: 150})
	}
	if n > 0 {
		s.Samples[0].Watts = first
		s.Samples[n-1].Watts = last
	}
	return s
}

func TestScreen(t *testing.T) {
	cfg := DefaultScreenConfig()
	tests := []struct {
		name   string
		series Series
		want   error
	}{
		{"complete day", daySeries(50, 19, 0), nil},
		{"start power at limit", daySeries(60, 20, 0), ErrStartPower},
		{"still producing at dusk", daySeries(60, 0, 1), ErrEndPower},
		{"too few samples", daySeries(49, 0, 0), ErrTooFewSamples},
		{"five samples", daySeries(5, 0, 0), ErrTooFewSamples},
		{"five samples with bad ends", daySeries(5, 100, 100), ErrTooFewSamples},
		{"empty", Series{}, ErrTooFewSamples},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Screen(tt.series, cfg)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInsufficient)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCheckOrder(t *testing.T) {
	s := daySeries(5, 0, 0)
	assert.NoError(t, s.CheckOrder())

	s.Samples[3].Seconds = s.Samples[1].Seconds - 1
	assert.ErrorIs(t, s.CheckOrder(), ErrOutOfOrder)
}

func TestGaps(t *testing.T) {
	s := Series{Samples: []Sample{{Seconds: 0}, {Seconds: 331}, {Seconds: 662}, {Seconds: 993}}}
	g := s.Gaps()
	assert.Equal(t, GapStats{Min: 331, Mean: 331, Max: 331}, g)
	assert.False(t, g.Irregular())

	s.Samples = append(s.Samples, Sample{Seconds: 993 + 5*331})
	g = s.Gaps()
	assert.Equal(t, 331, g.Min)
	assert.Equal(t, 5*331, g.Max)
	assert.True(t, g.Irregular())

	assert.Equal(t, GapStats{}, (&Series{Samples: []Sample{{Seconds: 5}}}).Gaps())
}
