package core

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronLogger forwards scheduler diagnostics to slog.
type cronLogger struct {
	logger *slog.Logger
}

// NewCronLogger adapts an slog.Logger to the cron.Logger interface.
func NewCronLogger(logger *slog.Logger) cron.Logger {
	return cronLogger{logger: logger}
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	// cron reports every wake-up at info; keep those out of normal output.
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{"err", err}, keysAndValues...)
	l.logger.Error("cron: "+msg, args...)
}
