// Package log provides the category-aware logger used across downstage.
package log

import (
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus logger and tags every entry with a category,
// usually the "Type:method" of the caller.
type Logger struct {
	logrus.FieldLogger

	mu             sync.Mutex
	lastLogCall    int64
	debugOverride  bool
	categoryFilter *regexp.Regexp
}

// NewNullLogger returns a logger that discards all output.
func NewNullLogger() *Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(log, false, nil)
}

// New returns a Logger backed by logger.
// If debugOverride is true, debug entries are written even when the
// underlying level is lower, and only categories matching categoryFilter
// (when not nil) are logged.
func New(logger logrus.FieldLogger, debugOverride bool, categoryFilter *regexp.Regexp) *Logger {
	return &Logger{
		FieldLogger:    logger,
		debugOverride:  debugOverride,
		categoryFilter: categoryFilter,
	}
}

// NewDefault returns a text logger writing to out at the given level.
// An empty categoryFilter disables filtering.
func NewDefault(out io.Writer, debug bool, categoryFilter string) (*Logger, error) {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
	})
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}

	var re *regexp.Regexp
	if categoryFilter != "" {
		var err error
		if re, err = regexp.Compile(categoryFilter); err != nil {
			return nil, fmt.Errorf("compiling log category filter %q: %w", categoryFilter, err)
		}
	}

	return New(l, debug, re), nil
}

// Tracef logs a trace message.
func (l *Logger) Tracef(category string, msg string, args ...any) {
	l.Logf(logrus.TraceLevel, category, msg, args...)
}

// Debugf logs a debug message.
func (l *Logger) Debugf(category string, msg string, args ...any) {
	l.Logf(logrus.DebugLevel, category, msg, args...)
}

// Errorf logs an error message.
func (l *Logger) Errorf(category string, msg string, args ...any) {
	l.Logf(logrus.ErrorLevel, category, msg, args...)
}

// Infof logs an info message.
func (l *Logger) Infof(category string, msg string, args ...any) {
	l.Logf(logrus.InfoLevel, category, msg, args...)
}

// Warnf logs an warning message.
func (l *Logger) Warnf(category string, msg string, args ...any) {
	l.Logf(logrus.WarnLevel, category, msg, args...)
}

// Logf logs a message at level with the category and the time elapsed
// since the previous entry.
func (l *Logger) Logf(level logrus.Level, category string, msg string, args ...any) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// don't log if the current log level isn't in the required level.
	if l.level() < level && !l.debugOverride {
		return
	}
	if l.categoryFilter != nil && !l.categoryFilter.MatchString(category) {
		return
	}

	now := time.Now().UnixNano() / int64(time.Millisecond)
	elapsed := now - l.lastLogCall
	if now == elapsed {
		elapsed = 0
	}
	defer func() {
		l.lastLogCall = now
	}()

	entry := l.WithFields(logrus.Fields{
		"category": category,
		"elapsed":  fmt.Sprintf("%d ms", elapsed),
	})
	if l.level() < level && l.debugOverride {
		entry.Printf(msg, args...)
		return
	}
	entry.Logf(level, msg, args...)
}

// SetLevel sets the logger level from a level string.
// Accepted values are the logrus level names.
func (l *Logger) SetLevel(level string) error {
	pl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parsing log level %q: %w", level, err)
	}
	if ll, ok := l.FieldLogger.(*logrus.Logger); ok {
		ll.SetLevel(pl)
	}
	return nil
}

// DebugMode returns true if the logger level is set to Debug or higher.
func (l *Logger) DebugMode() bool {
	return l.level() >= logrus.DebugLevel
}

func (l *Logger) level() logrus.Level {
	switch ll := l.FieldLogger.(type) {
	case *logrus.Logger:
		return ll.GetLevel()
	case *logrus.Entry:
		return ll.Logger.GetLevel()
	default:
		return logrus.InfoLevel
	}
}
