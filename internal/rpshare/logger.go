// Package rpshare holds the ambient infrastructure shared by the edge and
// client binaries: leveled logging, component lifecycle management, and
// the full-duplex splicer used by both the tunnel listener and the client
// worker loop.
package rpshare

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
)

// LogLevel specifies the level of spew that should go to the log.
type LogLevel int

const (
	// LogLevelUnknown is a default value for LogLevel. Its
	// behavior is undefined.
	LogLevelUnknown LogLevel = iota

	// LogLevelPanic causes output of an error message followed by a panic.
	LogLevelPanic

	// LogLevelFatal causes output of an error message followed by os.Exit(1).
	LogLevelFatal

	// LogLevelError is for unexpected error messages.
	LogLevelError

	// LogLevelWarning is for warning messages.
	LogLevelWarning

	// LogLevelInfo is for info messages.
	LogLevelInfo

	// LogLevelDebug is for debug messages.
	LogLevelDebug

	// LogLevelTrace is for trace messages.
	LogLevelTrace
)

var logLevelNames = [...]string{
	"unknown", "panic", "fatal", "error", "warning", "info", "debug", "trace",
}

var nameToLogLevel = func() map[string]LogLevel {
	result := make(map[string]LogLevel)
	for i, name := range logLevelNames {
		result[name] = LogLevel(i)
	}
	return result
}()

// StringToLogLevel converts a string to a LogLevel.
func StringToLogLevel(s string) LogLevel {
	result, ok := nameToLogLevel[strings.ToLower(s)]
	if !ok {
		result = LogLevelUnknown
	}
	return result
}

func (x *LogLevel) String() string {
	y := *x
	if y < LogLevelUnknown || y > LogLevelTrace {
		y = LogLevelUnknown
	}
	return logLevelNames[y]
}

// FromString initializes a LogLevel from a string.
func (x *LogLevel) FromString(s string) error {
	result := StringToLogLevel(s)
	if result == LogLevelUnknown {
		return fmt.Errorf("unknown log level: %q", s)
	}
	*x = result
	return nil
}

// MinLogger is a minimal logging interface for a logging component.
type MinLogger interface {
	Print(args ...interface{})
	Prefix() string
}

// Logger is an interface for a logging component that supports logging
// levels and prefix forking.
type Logger interface {
	MinLogger

	Fatalf(f string, args ...interface{})
	Fatal(args ...interface{})

	Log(logLevel LogLevel, args ...interface{})
	Logf(logLevel LogLevel, f string, args ...interface{})

	ELog(args ...interface{})
	ELogf(f string, args ...interface{})
	WLog(args ...interface{})
	WLogf(f string, args ...interface{})
	ILog(args ...interface{})
	ILogf(f string, args ...interface{})
	DLog(args ...interface{})
	DLogf(f string, args ...interface{})
	TLog(args ...interface{})
	TLogf(f string, args ...interface{})

	Error(args ...interface{}) error
	Errorf(f string, args ...interface{}) error
	Sprintf(f string, args ...interface{}) string
	Sprint(args ...interface{}) string

	// Fork creates a new Logger that has an additional formatted string
	// appended onto an existing logger's prefix (with ": " added between).
	Fork(prefix string, args ...interface{}) Logger

	GetLogLevel() LogLevel
	SetLogLevel(logLevel LogLevel)
}

// BasicLogger is a logical log output stream with a level filter and a
// prefix added to each output record.
type BasicLogger struct {
	prefix   string
	prefixC  string
	logger   MinLogger
	logLevel LogLevel
}

const defaultLogFlags = log.Ldate | log.Ltime

// NewLogger creates a new Logger with a given prefix, emitting output to
// os.Stderr.
func NewLogger(prefix string, logLevel LogLevel) Logger {
	prefixC := prefix
	if prefixC != "" {
		prefixC += ": "
	}
	return &BasicLogger{
		prefix:   prefix,
		prefixC:  prefixC,
		logger:   log.New(os.Stderr, "", defaultLogFlags),
		logLevel: logLevel,
	}
}

// Print outputs to a Logger.
func (l *BasicLogger) Print(args ...interface{}) {
	l.logger.Print(l.Sprint(args...))
}

func (l *BasicLogger) logNoPrefix(logLevel LogLevel, msg string) {
	if logLevel <= l.logLevel || logLevel <= LogLevelFatal {
		if logLevel >= LogLevelPanic {
			l.logger.Print(msg)
		}
		if logLevel == LogLevelFatal {
			os.Exit(1)
		}
		if logLevel == LogLevelPanic {
			panic(msg)
		}
	}
}

// Log outputs to a Logger if the given logLevel is enabled.
func (l *BasicLogger) Log(logLevel LogLevel, args ...interface{}) {
	if logLevel <= l.logLevel || logLevel <= LogLevelFatal {
		l.logNoPrefix(logLevel, l.Sprint(args...))
	}
}

// Logf outputs to a Logger if the given logLevel is enabled.
func (l *BasicLogger) Logf(logLevel LogLevel, f string, args ...interface{}) {
	if logLevel <= l.logLevel || logLevel <= LogLevelFatal {
		l.logNoPrefix(logLevel, l.Sprintf(f, args...))
	}
}

// Fatal outputs a log message and exits with error code 1.
func (l *BasicLogger) Fatal(args ...interface{}) { l.Log(LogLevelFatal, args...) }

// Fatalf outputs a formatted log message and exits with error code 1.
func (l *BasicLogger) Fatalf(f string, args ...interface{}) { l.Logf(LogLevelFatal, f, args...) }

// ELog outputs an error-level log message.
func (l *BasicLogger) ELog(args ...interface{}) { l.Log(LogLevelError, args...) }

// ELogf outputs a formatted error-level log message.
func (l *BasicLogger) ELogf(f string, args ...interface{}) { l.Logf(LogLevelError, f, args...) }

// WLog outputs a warning-level log message.
func (l *BasicLogger) WLog(args ...interface{}) { l.Log(LogLevelWarning, args...) }

// WLogf outputs a formatted warning-level log message.
func (l *BasicLogger) WLogf(f string, args ...interface{}) { l.Logf(LogLevelWarning, f, args...) }

// ILog outputs an info-level log message.
func (l *BasicLogger) ILog(args ...interface{}) { l.Log(LogLevelInfo, args...) }

// ILogf outputs a formatted info-level log message.
func (l *BasicLogger) ILogf(f string, args ...interface{}) { l.Logf(LogLevelInfo, f, args...) }

// DLog outputs a debug-level log message.
func (l *BasicLogger) DLog(args ...interface{}) { l.Log(LogLevelDebug, args...) }

// DLogf outputs a formatted debug-level log message.
func (l *BasicLogger) DLogf(f string, args ...interface{}) { l.Logf(LogLevelDebug, f, args...) }

// TLog outputs a trace-level log message.
func (l *BasicLogger) TLog(args ...interface{}) { l.Log(LogLevelTrace, args...) }

// TLogf outputs a formatted trace-level log message.
func (l *BasicLogger) TLogf(f string, args ...interface{}) { l.Logf(LogLevelTrace, f, args...) }

// Error generates an error object with this logger's prefix.
func (l *BasicLogger) Error(args ...interface{}) error {
	return errors.New(l.Sprint(args...))
}

// Errorf returns an error object with a description string that has the
// logger's prefix.
func (l *BasicLogger) Errorf(f string, args ...interface{}) error {
	return errors.New(l.Sprintf(f, args...))
}

// Sprintf returns a string that has the Logger's prefix.
func (l *BasicLogger) Sprintf(f string, args ...interface{}) string {
	return l.prefixC + fmt.Sprintf(f, args...)
}

// Sprint returns a string that has the Logger's prefix.
func (l *BasicLogger) Sprint(args ...interface{}) string {
	return l.prefixC + fmt.Sprint(args...)
}

// Fork creates a new Logger that has an additional formatted string
// appended onto this logger's prefix (with ": " added between).
func (l *BasicLogger) Fork(prefix string, args ...interface{}) Logger {
	args = append([]interface{}{l.prefix}, args...)
	newPrefix := fmt.Sprintf("%s: "+prefix, args...)
	return NewLogger(newPrefix, l.logLevel)
}

// Prefix returns the Logger's prefix string (without the ": " trailer).
func (l *BasicLogger) Prefix() string { return l.prefix }

// GetLogLevel returns the log level.
func (l *BasicLogger) GetLogLevel() LogLevel { return l.logLevel }

// SetLogLevel sets the log level.
func (l *BasicLogger) SetLogLevel(logLevel LogLevel) { l.logLevel = logLevel }
