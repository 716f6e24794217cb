package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/types"
	"github.com/sirupsen/logrus"
)

// Engine turns polled snapshots into change-only stored readings.
// RunCycle and Run must be called from a single goroutine; Status may be
// called from any goroutine.
type Engine struct {
	source SnapshotSource
	store  ReadingStore
	opts   Options
	log    logrus.FieldLogger

	readingSinks []ReadingSink
	summarySinks []SummarySink

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	lastSeen            LastSeen
	total               Counters
	mark                Counters
	lastSummary         time.Time
	wattSum             float64
	wattSamples         int
	consecutiveFailures int

	statusMu sync.RWMutex
	status   Status
}

func NewEngine(source SnapshotSource, store ReadingStore, opts Options, log logrus.FieldLogger) *Engine {
	if opts.StoreWriteAttempts < 1 {
		opts.StoreWriteAttempts = 1
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = 5 * time.Second
	}
	if opts.StorePingTimeout <= 0 {
		opts.StorePingTimeout = 10 * time.Second
	}
	return &Engine{
		source:   source,
		store:    store,
		opts:     opts,
		log:      log,
		now:      time.Now,
		sleep:    sleepContext,
		lastSeen: NewLastSeen(),
	}
}

func (e *Engine) AddReadingSink(sink ReadingSink) {
	e.readingSinks = append(e.readingSinks, sink)
}

func (e *Engine) AddSummarySink(sink SummarySink) {
	e.summarySinks = append(e.summarySinks, sink)
}

// Seed rebuilds the last seen state from the newest stored row per inverter
// so a restart neither loses nor duplicates readings.
func (e *Engine) Seed(ctx context.Context) error {
	readings, err := e.store.LatestReadings(ctx)
	if err != nil {
		return fmt.Errorf("%w: seed last seen state: %v", ErrStoreUnavailable, err)
	}
	e.lastSeen = NewLastSeen()
	e.lastSeen.Seed(readings)
	e.log.Infof("Seeded last seen state for %d inverters, %dW total", len(e.lastSeen), e.lastSeen.TotalWatts())
	e.publishStatus()
	return nil
}

// Run polls until ctx is cancelled. It only returns an error when the
// reading store is gone.
func (e *Engine) Run(ctx context.Context) error {
	e.lastSummary = e.now()
	for {
		if ctx.Err() != nil {
			e.log.Info("Shutdown requested, capture stopped")
			return nil
		}

		// Let a started cycle finish even if shutdown arrives meanwhile
		cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.CycleTimeout)
		err := e.runCycleSafely(cycleCtx)
		cancel()
		delay := e.opts.PollInterval
		if err != nil {
			if errors.Is(err, ErrStoreUnavailable) {
				return err
			}
			delay = e.backoff()
			e.log.WithError(err).Warnf("Poll cycle failed, retrying in %v", delay)
		}

		if e.now().Sub(e.lastSummary) >= e.opts.SummaryInterval {
			summaryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.CycleTimeout)
			e.EmitSummary(summaryCtx)
			cancel()
		}

		select {
		case <-ctx.Done():
			e.log.Info("Shutdown requested, capture stopped")
			return nil
		case <-time.After(delay):
		}
	}
}

func (e *Engine) runCycleSafely(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCyclePanicked, r)
		}
	}()
	return e.RunCycle(ctx)
}

// RunCycle fetches one snapshot, classifies every inverter's report and
// stores the changed ones.
func (e *Engine) RunCycle(ctx context.Context) error {
	e.total.Cycles++
	defer e.publishStatus()

	snapshot, err := e.source.FetchSnapshot(ctx)
	if err != nil {
		e.total.FailedCycles++
		e.consecutiveFailures++
		e.maybeRelogin(ctx)
		return fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	e.consecutiveFailures = 0

	resends := 0
	var pending []types.StoredReading
	for _, serial := range snapshot.Serials() {
		report := snapshot[serial]
		e.total.Messages++

		switch e.lastSeen.Classify(report) {
		case Resend:
			resends++
			e.total.Resends++
			if e.lastSeen.Conflicts(report) {
				e.log.WithField("serial", serial).Warnf("Resend of %s reports %dW, %dW already stored; ignored",
					report.ReportTime.Format(time.DateTime), report.Watts, e.lastSeen[serial].Watts)
			}
		case Unchanged:
			e.total.Unchanged++
			e.lastSeen.Touch(serial, report.ReportTime)
		case Store:
			pending = append(pending, types.StoredReading{
				ReportTime: report.ReportTime,
				Serial:     serial,
				Watts:      report.Watts,
			})
		}
	}
	if resends == len(snapshot) {
		e.total.StaleCycles++
		e.log.Debugf("Stale cycle, all %d inverters resent", resends)
	}

	err = e.storeReadings(ctx, pending)

	e.wattSum += float64(e.lastSeen.TotalWatts())
	e.wattSamples++
	return err
}

// storeReadings writes pending readings in order, then hands the stored ones
// to the sinks. When a write keeps failing the rest of the cycle is dropped;
// the store is then checked and a dead connection is reported as
// ErrStoreUnavailable.
func (e *Engine) storeReadings(ctx context.Context, pending []types.StoredReading) error {
	var stored []types.StoredReading
	defer func() { e.publishReadings(ctx, stored) }()

	for i, reading := range pending {
		inserted, err := e.insertWithRetry(ctx, reading)
		if err != nil {
			dropped := len(pending) - i
			e.total.DroppedWrites += uint64(dropped)
			e.log.WithError(err).WithField("serial", reading.Serial).
				Errorf("Dropping %d readings after %d failed write attempts", dropped, e.opts.StoreWriteAttempts)
			// The cycle deadline may be what failed the writes
			pingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.StorePingTimeout)
			defer cancel()
			if pingErr := e.store.Ping(pingCtx); pingErr != nil {
				return fmt.Errorf("%w: %w", ErrStoreUnavailable, errors.Join(err, pingErr))
			}
			return nil
		}

		e.lastSeen.Record(reading)
		if !inserted {
			e.total.Duplicates++
			continue
		}
		e.total.Stored++
		stored = append(stored, reading)
	}
	return nil
}

// publishReadings gives every sink call its own deadline, so a slow sink
// cannot hold up the cycle or the store writes.
func (e *Engine) publishReadings(ctx context.Context, readings []types.StoredReading) {
	for _, reading := range readings {
		for _, sink := range e.readingSinks {
			sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.SinkTimeout)
			if err := sink.PublishReading(sinkCtx, reading); err != nil {
				e.log.WithError(err).WithField("serial", reading.Serial).Warn("Reading sink failed")
			}
			cancel()
		}
	}
}

func (e *Engine) insertWithRetry(ctx context.Context, reading types.StoredReading) (bool, error) {
	var errs []error
	for attempt := 1; attempt <= e.opts.StoreWriteAttempts; attempt++ {
		if attempt > 1 {
			if err := e.sleep(ctx, time.Duration(attempt-1)*e.opts.WriteRetryDelay); err != nil {
				errs = append(errs, err)
				break
			}
		}
		inserted, err := e.store.InsertReading(ctx, reading)
		if err == nil {
			return inserted, nil
		}
		e.log.WithError(err).WithFields(logrus.Fields{"serial": reading.Serial, "attempt": attempt}).
			Warn("Write failed")
		errs = append(errs, err)
	}
	return false, errors.Join(errs...)
}

func (e *Engine) maybeRelogin(ctx context.Context) {
	auth, ok := e.source.(Authenticator)
	if !ok || e.opts.ReloginAfterFailures <= 0 || e.consecutiveFailures%e.opts.ReloginAfterFailures != 0 {
		return
	}
	e.log.Warnf("%d consecutive fetch failures, logging in again", e.consecutiveFailures)
	if err := auth.Login(ctx); err != nil {
		e.log.WithError(err).Warn("Login failed")
	}
}

// backoff doubles from FetchRetryBase per consecutive failure up to FetchRetryMax.
func (e *Engine) backoff() time.Duration {
	if e.consecutiveFailures < 1 {
		return e.opts.PollInterval
	}
	delay := e.opts.FetchRetryBase
	for i := 1; i < e.consecutiveFailures && delay < e.opts.FetchRetryMax; i++ {
		delay *= 2
	}
	if delay > e.opts.FetchRetryMax {
		delay = e.opts.FetchRetryMax
	}
	return delay
}

// EmitSummary logs the counters accumulated since the previous summary and
// hands them to the summary sinks.
func (e *Engine) EmitSummary(ctx context.Context) Summary {
	now := e.now()
	summary := Summary{
		Time:       now,
		Period:     now.Sub(e.lastSummary),
		Interval:   e.total.Sub(e.mark),
		Total:      e.total,
		TotalWatts: e.lastSeen.TotalWatts(),
		Inverters:  len(e.lastSeen),
	}
	if e.wattSamples > 0 {
		summary.MeanWatts = e.wattSum / float64(e.wattSamples)
	}

	in := summary.Interval
	e.log.WithFields(logrus.Fields{
		"total_cycles": summary.Total.Cycles,
		"total_stored": summary.Total.Stored,
	}).Infof("%d cycles (%d stale, %d failed), %d messages: %d stored, %d resends, %d unchanged; %d inverters at %dW, %.0fW average",
		in.Cycles, in.StaleCycles, in.FailedCycles, in.Messages, in.Stored, in.Resends, in.Unchanged,
		summary.Inverters, summary.TotalWatts, summary.MeanWatts)

	if in.Stored == 0 {
		if err := e.store.Checkpoint(ctx); err != nil {
			e.log.WithError(err).Warn("Checkpoint failed")
		}
	}

	for _, sink := range e.summarySinks {
		if err := sink.PublishSummary(ctx, summary); err != nil {
			e.log.WithError(err).Warn("Summary sink failed")
		}
	}

	e.mark = e.total
	e.lastSummary = now
	e.wattSum = 0
	e.wattSamples = 0
	return summary
}

func (e *Engine) publishStatus() {
	status := Status{
		Time:       e.now(),
		Inverters:  e.lastSeen.Readings(),
		Counters:   e.total,
		TotalWatts: e.lastSeen.TotalWatts(),
	}
	e.statusMu.Lock()
	e.status = status
	e.statusMu.Unlock()
}

// Status returns the state as of the end of the last cycle.
func (e *Engine) Status() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
