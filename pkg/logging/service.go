// Package logging builds the logrus logger each binary hands to its packages.
package logging

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a text logger with full timestamps at the named level.
// An empty level means info.
func New(level string) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return log, fmt.Errorf("log_level: %w", err)
	}
	log.SetLevel(parsed)
	return log, nil
}
