package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/config"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource []types.StoredReading

func (s sliceSource) ReadingsBetween(_ context.Context, from, to time.Time, fn func(types.StoredReading) error) error {
	for _, r := range s {
		if r.ReportTime.Before(from) || r.ReportTime.After(to) {
			continue
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// 60 samples 720s apart from 06:00 on a clean parabola peaking at 300W.
var clearWatts = []uint16{
	0, 20, 39, 57, 75, 92, 108, 124, 139, 153, 167, 180, 192, 204, 215, 225, 235, 244, 252, 260,
	267, 273, 279, 284, 288, 292, 295, 297, 299, 300, 300, 300, 299, 297, 295, 292, 288, 284, 279, 273,
	267, 260, 252, 244, 235, 225, 215, 204, 192, 180, 167, 153, 139, 124, 108, 92, 75, 57, 39, 0,
}

func cloudyWatts() []uint16 {
	watts := append([]uint16(nil), clearWatts...)
	for i := 24; i <= 29; i++ {
		watts[i] -= 120
	}
	watts[15] -= 10
	return watts
}

func overcastWatts() []uint16 {
	watts := make([]uint16, 60)
	for i := 1; i < 59; i++ {
		watts[i] = uint16(10 + i%40)
	}
	watts[30], watts[31] = 80, 90
	return watts
}

func day(d int, serial uint64, watts []uint16) []types.StoredReading {
	start := time.Date(2024, 6, d, 6, 0, 0, 0, time.UTC)
	var out []types.StoredReading
	for i, w := range watts {
		out = append(out, types.StoredReading{ReportTime: start.Add(time.Duration(i*720) * time.Second), Serial: serial, Watts: w})
	}
	return out
}

// fixture interleaves readings in (time, serial) order like the store does.
func fixture() sliceSource {
	var all []types.StoredReading
	all = append(all, day(20, 1, clearWatts)...)
	all = append(all, day(20, 2, cloudyWatts())...)
	all = append(all, day(20, 3, []uint16{0, 50, 100, 50, 0})...)
	all = append(all, day(21, 1, overcastWatts())...)
	for i := 1; i < len(all); i++ {
		for j := i; j > 0; j-- {
			a, b := all[j-1], all[j]
			if a.ReportTime.Before(b.ReportTime) || (a.ReportTime.Equal(b.ReportTime) && a.Serial < b.Serial) {
				break
			}
			all[j-1], all[j] = b, a
		}
	}
	return all
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testOptions(workers int) Options {
	cfg := config.DefaultAnalyzerConfig()
	cfg.Workers = workers
	return OptionsFromConfig(cfg,
		time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC),
		time.UTC)
}

func TestRun(t *testing.T) {
	report, err := Run(context.Background(), fixture(), testOptions(4), quietLogger())
	require.NoError(t, err)

	assert.Equal(t, "2024-06-20", report.From)
	assert.Equal(t, "2024-06-21", report.To)

	require.Len(t, report.Days, 3)
	assert.Equal(t, "2024-06-20", report.Days[0].Date)
	assert.Equal(t, uint64(1), report.Days[0].Serial)
	assert.Equal(t, uint64(2), report.Days[1].Serial)
	assert.Equal(t, "2024-06-21", report.Days[2].Date)

	clearDay := report.Days[0]
	assert.True(t, clearDay.Fitted())
	assert.InDelta(t, 2398, clearDay.GeneratedWh, 1e-6)
	assert.Zero(t, clearDay.ExceedanceWh)
	assert.Less(t, clearDay.ShavedWh, 1.0)
	assert.Equal(t, 60, clearDay.SampleCount)
	peak, err := time.Parse(time.TimeOnly, clearDay.PeakTime)
	require.NoError(t, err)
	assert.InDelta(t, 12*3600, peak.Hour()*3600+peak.Minute()*60+peak.Second(), 120)
	assert.InDelta(t, 300, clearDay.PeakWatts, 1)

	cloudy := report.Days[1]
	assert.True(t, cloudy.Fitted())
	assert.Equal(t, 7, cloudy.CloudCounts[1])
	assert.Equal(t, 7, cloudy.CloudCounts[2])
	assert.Greater(t, cloudy.CloudCounts[0], cloudy.CloudCounts[1])

	overcast := report.Days[2]
	assert.False(t, overcast.Fitted())
	assert.NotEmpty(t, overcast.FitError)
	assert.Greater(t, overcast.GeneratedWh, 0.0)

	s := report.Summary
	assert.Equal(t, 3, s.DaysProcessed)
	assert.Equal(t, 1, s.ScreenedOut, "the 5 sample day is screened out before fitting")
	assert.Equal(t, 1, s.FitFailures)
	assert.Equal(t, 2, s.Inverters)
	assert.Equal(t, 2, s.CalendarDays)
	assert.Equal(t, 2, s.Totals.InverterDays)
	assert.InDelta(t, clearDay.GeneratedWh+cloudy.GeneratedWh, s.Totals.GeneratedWh, 1e-9)
	assert.Equal(t, uint64(1), s.Totals.MaxGenerated.Serial)
	assert.InDelta(t, s.Totals.ShavedWh/s.Totals.GeneratedWh*100, s.ShaveRatio, 1e-9)
}

func TestRunIsDeterministicAcrossWorkerCounts(t *testing.T) {
	one, err := Run(context.Background(), fixture(), testOptions(1), quietLogger())
	require.NoError(t, err)
	many, err := Run(context.Background(), fixture(), testOptions(16), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, one, many)
}

func TestRunFiveSampleDayOnly(t *testing.T) {
	report, err := Run(context.Background(), sliceSource(day(20, 3, []uint16{0, 50, 100, 50, 0})), testOptions(2), quietLogger())
	require.NoError(t, err)
	assert.Empty(t, report.Days)
	assert.Equal(t, 1, report.Summary.ScreenedOut)
	assert.Zero(t, report.Summary.DaysProcessed)
	assert.Zero(t, report.Summary.FitFailures)

	var out bytes.Buffer
	require.NoError(t, WriteText(&out, report, true))
	assert.Contains(t, out.String(), "No fitted inverter-days.")
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, fixture(), testOptions(2), quietLogger())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSolarNoon(t *testing.T) {
	opts := testOptions(1)
	opts.HasSite = true
	opts.Latitude, opts.Longitude = 37.77, -122.42

	report, err := Run(context.Background(), sliceSource(day(20, 1, clearWatts)), opts, quietLogger())
	require.NoError(t, err)
	require.Len(t, report.Days, 1)
	// 13:1x PDT, 20:1x UTC
	assert.Equal(t, "20:1", report.Days[0].SolarNoon[:4])
}

func TestWriteText(t *testing.T) {
	report, err := Run(context.Background(), fixture(), testOptions(2), quietLogger())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, WriteText(&out, report, true))
	text := out.String()

	assert.Contains(t, text, "2024-06-20 SN1 2398.00Whr generated, 0.00Whr exceedance, ")
	assert.Contains(t, text, "2024-06-21 SN1 ")
	assert.Contains(t, text, "(not fitted: ")
	assert.Contains(t, text, "Processed 3 inverter-days (1 screened out, 1 not fitted) over 2 days for 2 inverters.")
	assert.Contains(t, text, "Maximum inverter power: 2,398Whr (by SN1 on 2024-06-20)")
	assert.Contains(t, text, "Shave ratio: ")

	out.Reset()
	require.NoError(t, WriteText(&out, report, false))
	assert.NotContains(t, out.String(), "SN1 2398.00Whr generated")
}

func TestWriteJSON(t *testing.T) {
	report, err := Run(context.Background(), fixture(), testOptions(2), quietLogger())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, WriteJSON(&out, report))

	var decoded Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Len(t, decoded.Days, 3)
	assert.Equal(t, 1, decoded.Summary.ScreenedOut)
}
