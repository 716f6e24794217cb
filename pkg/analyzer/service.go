// Package analyzer runs the screening, fit and energy pipeline over a date
// range of stored readings.
package analyzer

import (
	"context"
	"time"

	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/curvefit"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/dailyseries"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/energy"
	"github.com/sirupsen/logrus"
	"github.com/sixdouglas/suncalc"
	"golang.org/x/sync/errgroup"
)

// Run analyzes every inverter-day between opts.From and opts.To. Days are
// analyzed concurrently; the report keeps (date, serial) order.
func Run(ctx context.Context, src dailyseries.RowSource, opts Options, log logrus.FieldLogger) (Report, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	report := Report{
		From: dailyseries.DayStart(opts.From, opts.Location).Format(dailyseries.DateLayout),
		To:   dailyseries.DayStart(opts.To, opts.Location).Format(dailyseries.DateLayout),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Workers, 1))

	var slots []*DayRecord
	screenedOut := 0
	err := dailyseries.Extract(gctx, src, opts.From, opts.To, opts.Location, func(s dailyseries.Series) error {
		if err := dailyseries.Screen(s, opts.Screen); err != nil {
			screenedOut++
			log.WithFields(logrus.Fields{"date": s.Day(), "serial": s.Serial}).Debugf("Screened out: %v", err)
			return nil
		}

		slot := &DayRecord{}
		slots = append(slots, slot)
		g.Go(func() error {
			*slot = analyzeDay(s, opts, log)
			return gctx.Err()
		})
		return nil
	})
	if waitErr := g.Wait(); err == nil {
		err = waitErr
	}
	if err != nil {
		return report, err
	}

	records := make([]energy.Record, 0, len(slots))
	inverters := map[uint64]bool{}
	dates := map[string]bool{}
	for _, slot := range slots {
		day := *slot
		report.Days = append(report.Days, day)
		inverters[day.Serial] = true
		dates[day.Date] = true
		if !day.Fitted() {
			report.Summary.FitFailures++
			continue
		}
		records = append(records, energy.Record{
			Location: energy.Location{Serial: day.Serial, Date: day.Date},
			Energy: energy.DayEnergy{
				GeneratedWh:  day.GeneratedWh,
				ExceedanceWh: day.ExceedanceWh,
				ShavedWh:     day.ShavedWh,
			},
			PeakWatts: day.PeakWatts,
		})
	}

	report.Summary.DaysProcessed = len(slots)
	report.Summary.ScreenedOut = screenedOut
	report.Summary.Inverters = len(inverters)
	report.Summary.CalendarDays = len(dates)
	report.Summary.Totals = energy.Aggregate(records)
	report.Summary.ShaveRatio = report.Summary.Totals.ShaveRatio()
	return report, nil
}

func analyzeDay(s dailyseries.Series, opts Options, log logrus.FieldLogger) DayRecord {
	dayLog := log.WithFields(logrus.Fields{"date": s.Day(), "serial": s.Serial})
	record := DayRecord{
		Date:        s.Day(),
		Serial:      s.Serial,
		SampleCount: len(s.Samples),
	}
	if opts.HasSite {
		record.SolarNoon = solarNoon(s.Date, opts.Latitude, opts.Longitude, opts.Location)
	}

	if err := s.CheckOrder(); err != nil {
		dayLog.WithError(err).Error("Data integrity failure")
		record.FitError = err.Error()
		return record
	}
	if gaps := s.Gaps(); gaps.Irregular() {
		dayLog.Debugf("Irregular sample spacing: min %ds, max %ds, mean %ds", gaps.Min, gaps.Max, gaps.Mean)
	}

	energyConfig := energy.Config{
		MaxContinuousWatts: opts.Fit.MaxContinuousWatts,
		MinFitWatts:        opts.Fit.MinFitWatts,
	}
	fit, err := curvefit.FitDay(s, opts.Fit)
	record.CloudCounts = fit.CloudCounts()
	if err != nil {
		dayLog.WithError(err).Warn("Fit failed, day excluded from energy totals")
		record.FitError = err.Error()
		// Still report what was generated
		if e, err := energy.Integrate(s, nil, energyConfig); err == nil {
			record.GeneratedWh = e.GeneratedWh
		}
		return record
	}

	e, err := energy.Integrate(s, &fit, energyConfig)
	if err != nil {
		dayLog.WithError(err).Error("Integration failed")
		record.FitError = err.Error()
		return record
	}

	record.GeneratedWh = e.GeneratedWh
	record.ExceedanceWh = e.ExceedanceWh
	record.ShavedWh = e.ShavedWh
	record.PeakWatts = fit.PeakWatts
	record.PeakTime = secondsToClock(fit.PeakSeconds)
	return record
}

func solarNoon(date time.Time, lat, lon float64, loc *time.Location) string {
	midday := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, loc)
	noon := suncalc.GetTimes(midday, lat, lon)["solarNoon"].Value
	if noon.IsZero() {
		return ""
	}
	return noon.In(loc).Format(time.TimeOnly)
}

// secondsToClock formats seconds past midnight as HH:MM:SS.
func secondsToClock(secs float64) string {
	if secs < 0 || secs >= 86400 {
		return ""
	}
	s := int(secs)
	return time.Date(0, 1, 1, s/3600, s/60%60, s%60, 0, time.UTC).Format(time.TimeOnly)
}
