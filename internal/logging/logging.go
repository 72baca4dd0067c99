package logging

import (
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Supported output formats
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Options controls how a logger renders entries
type Options struct {
	Level         string
	Format        string
	IncludeCaller bool
	Output        io.Writer
}

// Configure applies opts to logger. Unknown levels fall back to info and
// unknown formats to JSON.
func Configure(logger *logrus.Logger, opts Options) {
	if strings.EqualFold(opts.Format, FormatText) {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetReportCaller(opts.IncludeCaller)

	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	}
}

// Setup configures the standard logger, which the middleware and the
// package-level logrus calls write to, and returns it.
func Setup(opts Options) *logrus.Logger {
	logger := logrus.StandardLogger()
	Configure(logger, opts)
	return logger
}
