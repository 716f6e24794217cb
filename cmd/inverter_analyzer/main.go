// Inverter analyzer reports generated, exceedance and shaved energy per
// inverter-day from the captured readings.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/analyzer"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/config"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/dailyseries"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/logging"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/pathing"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/readingdb"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to inverter_analyzer.toml")
	fromFlag := flag.String("from", "2006-01-01", "first day of the report (YYYY-MM-DD)")
	toFlag := flag.String("to", "9999-12-31", "last day of the report (YYYY-MM-DD)")
	detail := flag.Bool("detail", false, "print one line per inverter-day")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	flag.Parse()

	if err := pathing.EnsureDirectories(); err != nil {
		logrus.Fatalf("Failed to create directories: %v", err)
	}
	cfg, err := config.LoadAnalyzerConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load analyzer config: %v", err)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Warn("Falling back to info logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := readingdb.Open(ctx, cfg.Store, log)
	if err != nil {
		log.Fatalf("Failed to open reading store: %v", err)
	}
	defer store.Close()

	from, err := dailyseries.ParseDate(*fromFlag, store.Location())
	if err != nil {
		log.Fatalf("Invalid -from date %q, use YYYY-MM-DD", *fromFlag)
	}
	to, err := dailyseries.ParseDate(*toFlag, store.Location())
	if err != nil {
		log.Fatalf("Invalid -to date %q, use YYYY-MM-DD", *toFlag)
	}
	if to.Before(from) {
		log.Fatalf("-to %s is before -from %s", *toFlag, *fromFlag)
	}

	report, err := analyzer.Run(ctx, store, analyzer.OptionsFromConfig(cfg, from, to, store.Location()), log)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	if *asJSON {
		err = analyzer.WriteJSON(os.Stdout, report)
	} else {
		err = analyzer.WriteText(os.Stdout, report, *detail)
	}
	if err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}
}
