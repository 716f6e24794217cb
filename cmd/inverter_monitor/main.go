// Inverter monitor follows a capture daemon's live feed and prints every
// stored reading as a JSON line.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/feed"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/logging"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/types"
)

func main() {
	// The host:port default comes from env var INVERTER_CAPTURE_HOST
	defaultHost := os.Getenv("INVERTER_CAPTURE_HOST")
	if defaultHost == "" {
		defaultHost = "raspberrypi.local:9040"
	}
	host := flag.String("host", defaultHost, "host:port of the capture daemon")
	retries := flag.Int("retries", feed.DefaultListenerOptions().MaxRetries, "reconnect attempts before giving up, 0 retries forever")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	log, err := logging.New(*level)
	if err != nil {
		log.WithError(err).Warn("Falling back to info logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := feed.DefaultListenerOptions()
	opts.MaxRetries = *retries
	if err := feed.Listen(ctx, feed.FeedURL(*host), opts, log, handleReading); err != nil {
		log.Fatalf("Feed listener stopped: %v", err)
	}
}

func handleReading(reading types.StoredReading) {
	fmt.Println(string(reading.ToJsonBytes()))
}
