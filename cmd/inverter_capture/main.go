// Inverter capture polls the gateway and stores every changed inverter
// report. It also serves the live feed, status and metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/capture"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/config"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/feed"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/gateway"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/hapublish"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/kafkasink"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/logging"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/metrics"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/modbussource"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/pathing"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/readingdb"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/statusapi"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/types"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to inverter_capture.toml")
	flag.Parse()

	if err := pathing.EnsureDirectories(); err != nil {
		logrus.Fatalf("Failed to create directories: %v", err)
	}
	cfg, err := config.LoadCaptureConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load capture config: %v", err)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Warn("Falling back to info logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Deferred cleanups in run finish before the exit
	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("Capture stopped")
		stop()
		os.Exit(1)
	}
}

// run captures until ctx is cancelled. It returns an error when startup
// fails or the reading store is lost.
func run(ctx context.Context, cfg *config.CaptureConfig, log logrus.FieldLogger) error {
	store, err := readingdb.Open(ctx, cfg.Store, log)
	if err != nil {
		return fmt.Errorf("open reading store: %w", err)
	}
	defer store.Close()

	source, err := newSource(cfg, log)
	if err != nil {
		return fmt.Errorf("set up %s source: %w", cfg.Source, err)
	}

	engine := capture.NewEngine(source, store, capture.OptionsFromConfig(cfg), log)
	if err := engine.Seed(ctx); err != nil {
		return err
	}

	hub := feed.NewHub(log, func() []types.StoredReading { return engine.Status().Inverters })
	defer hub.Close()
	engine.AddReadingSink(hub)

	m := metrics.New(engine.Status)
	m.Seed(engine.Status().Inverters)
	engine.AddReadingSink(m)

	if len(cfg.Kafka.Brokers) > 0 {
		sink := kafkasink.New(cfg.Kafka, log)
		defer sink.Close()
		engine.AddReadingSink(sink)
		log.Infof("Forwarding readings to kafka topic %s", cfg.Kafka.Topic)
	}

	if cfg.MQTT.Host != "" {
		publisher, err := hapublish.Connect(ctx, cfg.MQTT, cfg.SummaryInterval(), log)
		if err != nil {
			return fmt.Errorf("set up MQTT publisher: %w", err)
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			publisher.Close(closeCtx)
		}()
		engine.AddSummarySink(publisher)
	}

	if cfg.HTTP.ListenPort != 0 {
		router := statusapi.NewRouter(statusapi.Handlers{
			Status:  engine.Status,
			Feed:    hub.ServeWS,
			Metrics: m.Handler(),
			Source:  cfg.Source,
			Started: time.Now(),
			Log:     log,
		})
		server := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.ListenAddress, cfg.HTTP.ListenPort),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Infof("Serving status and live feed on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("HTTP server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	log.Infof("Capturing from %s every %v", cfg.Source, cfg.PollInterval())
	return engine.Run(ctx)
}

func newSource(cfg *config.CaptureConfig, log logrus.FieldLogger) (capture.SnapshotSource, error) {
	switch cfg.Source {
	case "modbus":
		return modbussource.New(cfg.Modbus, log)
	default:
		return gateway.NewClient(cfg.Gateway, log)
	}
}
