package logger

import (
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// ParseLogLevel maps a config string onto a log level, defaulting to info.
func ParseLogLevel(lvl string) log.Level {
	switch strings.ToUpper(lvl) {
	case "DEBUG", "VERBOSE":
		return log.DebugLevel
	case "ERROR":
		return log.ErrorLevel
	case "WARN", "WARNING":
		return log.WarnLevel
	default:
		return log.InfoLevel
	}
}

// New builds the console logger handed to every component. Verbose forces
// debug output regardless of the configured level.
func New(w io.Writer, level log.Level, verbose bool) *log.Logger {
	if verbose {
		level = log.DebugLevel
	}

	return log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})
}

// LogRateLimit records a 429 and the backoff the server asked for.
func LogRateLimit(l *log.Logger, retryAfter time.Duration, operation string) {
	l.Debug("rate limited", "operation", operation, "retry_in", retryAfter)
}

func LogRetryAttempt(l *log.Logger, attempt, maxAttempts int, operation string) {
	l.Debug("retrying", "attempt", attempt, "max_attempts", maxAttempts, "operation", operation)
}
