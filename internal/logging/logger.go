package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	// LevelError only logs errors
	LevelError LogLevel = iota
	// LevelWarn logs warnings and errors
	LevelWarn
	// LevelInfo logs general information, warnings and errors
	LevelInfo
	// LevelDebug logs detailed debug information and all above
	LevelDebug
	// LevelTrace logs very detailed trace information and all above
	LevelTrace
)

var levelNames = map[LogLevel]string{
	LevelError: "ERROR",
	LevelWarn:  "WARN",
	LevelInfo:  "INFO",
	LevelDebug: "DEBUG",
	LevelTrace: "TRACE",
}

var logrusLevels = map[LogLevel]logrus.Level{
	LevelError: logrus.ErrorLevel,
	LevelWarn:  logrus.WarnLevel,
	LevelInfo:  logrus.InfoLevel,
	LevelDebug: logrus.DebugLevel,
	LevelTrace: logrus.TraceLevel,
}

// String returns the upper-case level name.
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel maps a level name (case-insensitive) to a LogLevel.
func ParseLevel(name string) (LogLevel, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for level, levelName := range levelNames {
		if levelName == upper {
			return level, nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// Logger is a prefixed, levelled logger. Loggers derived with WithPrefix
// share the level and output of their parent.
type Logger struct {
	base   *logrus.Logger
	prefix string
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// GetLogger returns the default logger instance
func GetLogger() *Logger {
	once.Do(func() {
		defaultLogger = NewLogger("UNDOFS")

		// Set initial log level from environment
		if name := os.Getenv("LOG_LEVEL"); name != "" {
			if level, err := ParseLevel(name); err == nil {
				defaultLogger.SetLevel(level)
			}
		}

		// Enable debug logging if FUSE_DEBUG is set
		if os.Getenv("FUSE_DEBUG") != "" {
			defaultLogger.SetLevel(LevelDebug)
		}
	})
	return defaultLogger
}

// NewLogger creates a new logger with the given prefix
func NewLogger(prefix string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetLevel(logrus.InfoLevel)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000000",
	})
	return &Logger{base: base, prefix: prefix}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	lv, ok := logrusLevels[level]
	if !ok {
		lv = logrus.InfoLevel
	}
	l.base.SetLevel(lv)
}

// Level reports the current logging level.
func (l *Logger) Level() LogLevel {
	for level, lv := range logrusLevels {
		if lv == l.base.GetLevel() {
			return level
		}
	}
	return LevelInfo
}

// SetOutput redirects log output.
func (l *Logger) SetOutput(w io.Writer) {
	l.base.SetOutput(w)
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	lv := logrusLevels[level]
	if !l.base.IsLevelEnabled(lv) {
		return
	}
	l.base.WithField("component", l.prefix).Logf(lv, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Trace logs a trace message
func (l *Logger) Trace(format string, args ...interface{}) {
	l.log(LevelTrace, format, args...)
}

// WithPrefix creates a new logger with an additional prefix
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{base: l.base, prefix: prefix}
}
