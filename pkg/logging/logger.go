package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger = logrus.StandardLogger()

// New builds a logger writing to stdout. Debug and trace levels get the text
// formatter with full timestamps, everything else JSON unless format says
// otherwise.
func New(level, format string) (*logrus.Logger, error) {
	return newLogger(os.Stdout, level, format)
}

func newLogger(out io.Writer, level, format string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	logger := logrus.New()
	logger.Out = out
	logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "":
		if lvl >= logrus.DebugLevel {
			logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		} else {
			logger.SetFormatter(&logrus.JSONFormatter{})
		}
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return logger, nil
}

// InitLogger replaces Log.
func InitLogger(level, format string) error {
	logger, err := New(level, format)
	if err != nil {
		return err
	}
	Log = logger
	return nil
}
