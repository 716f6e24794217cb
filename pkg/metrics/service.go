// Package metrics exposes the capture engine state to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/capture"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/types"
)

const namespace = "inverter_capture"

// Metrics owns a private registry so tests and multiple engines never clash
// on the default one.
type Metrics struct {
	registry      *prometheus.Registry
	inverterWatts *prometheus.GaugeVec
	lastReport    *prometheus.GaugeVec
	sinkReadings  prometheus.Counter
}

// New registers counters that read the engine status on every scrape.
func New(status func() capture.Status) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inverterWatts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inverter_watts",
			Help:      "Last stored watts per inverter.",
		}, []string{"serial"}),
		lastReport: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inverter_last_report_timestamp_seconds",
			Help:      "Report time of the last stored reading per inverter.",
		}, []string{"serial"}),
		sinkReadings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_readings_total",
			Help:      "Stored readings handed to the metrics sink.",
		}),
	}

	counter := func(name, help string, value func(capture.Counters) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(status().Counters)) })
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.inverterWatts,
		m.lastReport,
		m.sinkReadings,
		counter("cycles_total", "Poll cycles run.", func(c capture.Counters) uint64 { return c.Cycles }),
		counter("messages_total", "Inverter reports examined.", func(c capture.Counters) uint64 { return c.Messages }),
		counter("stale_cycles_total", "Cycles in which every inverter resent its previous report.", func(c capture.Counters) uint64 { return c.StaleCycles }),
		counter("stored_total", "Readings written to the store.", func(c capture.Counters) uint64 { return c.Stored }),
		counter("resends_total", "Reports with an already evaluated report time.", func(c capture.Counters) uint64 { return c.Resends }),
		counter("unchanged_total", "New reports with unchanged watts.", func(c capture.Counters) uint64 { return c.Unchanged }),
		counter("failed_cycles_total", "Cycles whose snapshot fetch failed.", func(c capture.Counters) uint64 { return c.FailedCycles }),
		counter("dropped_writes_total", "Readings dropped after exhausting write retries.", func(c capture.Counters) uint64 { return c.DroppedWrites }),
		counter("duplicate_writes_total", "Writes ignored because the row already existed.", func(c capture.Counters) uint64 { return c.Duplicates }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_watts",
			Help:      "Sum of the last seen watts of every inverter.",
		}, func() float64 { return float64(status().TotalWatts) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inverters",
			Help:      "Inverters in the last seen state.",
		}, func() float64 { return float64(len(status().Inverters)) }),
	)
	return m
}

// Seed sets the per inverter gauges from already known readings.
func (m *Metrics) Seed(readings []types.StoredReading) {
	for _, r := range readings {
		m.set(r)
	}
}

func (m *Metrics) PublishReading(_ context.Context, reading types.StoredReading) error {
	m.set(reading)
	m.sinkReadings.Inc()
	return nil
}

func (m *Metrics) set(r types.StoredReading) {
	serial := strconv.FormatUint(r.Serial, 10)
	m.inverterWatts.WithLabelValues(serial).Set(float64(r.Watts))
	m.lastReport.WithLabelValues(serial).Set(float64(r.ReportTime.Unix()))
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
