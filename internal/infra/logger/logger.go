// internal/infra/logger/logger.go
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"rre_filing_agent/internal/infra/config"
)

// Log is the global logger instance
var Log = logrus.New()

// Init configures the global logger from the application configuration and
// returns the base entry every component derives its logger from.
func Init(cfg *config.AppConfig, service string) *logrus.Entry {
	return InitTo(os.Stdout, cfg, service)
}

// InitTo is Init writing to out. CLI tools log to stderr to keep stdout for results.
func InitTo(out io.Writer, cfg *config.AppConfig, service string) *logrus.Entry {
	return configure(Log, out, cfg, service)
}

func configure(l *logrus.Logger, out io.Writer, cfg *config.AppConfig, service string) *logrus.Entry {
	l.SetOutput(out)

	level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		l.Warnf("Invalid log level '%s', defaulting to 'info'. Error: %v", cfg.LogLevel, err)
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	// Deployed environments ship logs to an aggregator; keep them machine readable.
	switch strings.ToLower(cfg.Environment) {
	case "production", "staging":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00", // ISO8601
		})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	entry := l.WithFields(logrus.Fields{
		"service":            service,
		"filing_environment": cfg.FilingEnvironment,
	})
	if cfg.DemoMode {
		entry = entry.WithField("demo_mode", true)
	}
	entry.Debugf("Logger initialized, level %s", l.GetLevel())
	return entry
}
