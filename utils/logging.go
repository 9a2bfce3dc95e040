package utils

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	return l
}

// Logger returns the package-wide logger shared by all amrsync packages
func Logger() *logrus.Logger {
	return logger
}

// SetLogLevel parses a logrus level name ("debug", "info", ...) and applies it
func SetLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	logger.SetLevel(lvl)
	return nil
}
