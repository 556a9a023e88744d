// Package logging builds the process logger.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"

	"mongo2csv/internal/common"
)

// New returns a text logger writing to out at the named level.
// An empty level means info.
func New(out io.Writer, level string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	if level == "" {
		level = logrus.InfoLevel.String()
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, &common.ConfigError{Op: "parse log level", Reason: err.Error(), Err: err}
	}
	logger.SetLevel(lvl)
	return logger, nil
}
