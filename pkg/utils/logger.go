package utils

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

const logTimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// InitLogger initializes the global logger. Called once from main; later
// calls reconfigure the shared instance (the tests rely on that). On error
// the previous logger stays in place.
func InitLogger(level, format, output, file string) error {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: logTimestampFormat})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: logTimestampFormat})
	}

	out, err := logOutput(output, file)
	if err != nil {
		return err
	}
	logger.SetOutput(out)

	Logger = logger
	return nil
}

// logOutput resolves the configured log destination. An unwritable log file
// is an error, not a silent fallback to stdout.
func logOutput(output, file string) (io.Writer, error) {
	switch {
	case output == "stderr":
		return os.Stderr, nil
	case output == "file" && file != "":
		return os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	default:
		return os.Stdout, nil
	}
}

// GetLogger returns the global logger, initializing with defaults when
// nothing configured it yet
func GetLogger() *logrus.Logger {
	if Logger == nil {
		InitLogger("info", "json", "stdout", "")
	}
	return Logger
}
