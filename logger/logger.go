// logger/logger.go
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) hclog() hclog.Level {
	switch l {
	case DEBUG:
		return hclog.Debug
	case INFO:
		return hclog.Info
	case WARN:
		return hclog.Warn
	default:
		return hclog.Error
	}
}

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" onto a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return DEBUG, nil
	case "", "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

type Logger struct {
	root     hclog.InterceptLogger
	file     *os.File
	sinks    []hclog.SinkAdapter
	minLevel LogLevel
}

var (
	defaultLogger *Logger
	mu            sync.Mutex
)

func newRoot(console io.Writer, level LogLevel) hclog.InterceptLogger {
	out := console
	if out == nil {
		out = io.Discard
	}
	return hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Name:            "mediaconv",
		Level:           level.hclog(),
		Output:          out,
		Color:           hclog.AutoColor,
		IncludeLocation: true,
		// package-level helpers sit between the caller and hclog
		AdditionalLocationOffset: 2,
	})
}

// current returns the default logger, creating a console one if none exists
func current() *Logger {
	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = &Logger{root: newRoot(os.Stderr, INFO), minLevel: INFO}
	}
	return defaultLogger
}

// Init initializes the logger with optional file and console output
// If filename is empty, logs only to console
// If console is false, logs only to file
func Init(filename string, console bool) error {
	return InitWriter(filename, consoleWriter(console))
}

func consoleWriter(console bool) io.Writer {
	if console {
		return os.Stderr
	}
	return nil
}

// InitWriter is Init with an explicit console writer. A nil writer disables console output.
func InitWriter(filename string, console io.Writer) error {
	mu.Lock()
	defer mu.Unlock()

	level := INFO
	if defaultLogger != nil {
		level = defaultLogger.minLevel
		defaultLogger.closeFile()
	}

	l := &Logger{minLevel: level, root: newRoot(console, level)}

	if filename != "" {
		file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = file
		sink := hclog.NewSinkAdapter(&hclog.LoggerOptions{
			Level:           level.hclog(),
			Output:          file,
			Color:           hclog.ColorOff,
			IncludeLocation: true,
		})
		l.sinks = append(l.sinks, sink)
		l.root.RegisterSink(sink)
	}

	if l.file == nil && console == nil {
		return fmt.Errorf("no output destination specified")
	}

	defaultLogger = l
	return nil
}

// SetLevel sets the minimum log level (DEBUG, INFO, WARN, ERROR)
// Messages below this level will not be logged
func SetLevel(level LogLevel) {
	l := current()
	mu.Lock()
	defer mu.Unlock()
	l.minLevel = level
	l.root.SetLevel(level.hclog())
	for _, s := range l.sinks {
		if ls, ok := s.(interface{ SetLevel(hclog.Level) }); ok {
			ls.SetLevel(level.hclog())
		}
	}
}

// Level returns the current minimum level.
func Level() LogLevel {
	return current().minLevel
}

// Named returns a component logger sharing the default logger's outputs.
func Named(component string) hclog.Logger {
	return current().root.Named(component)
}

// Close closes the log file if one is open
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if defaultLogger != nil {
		defaultLogger.closeFile()
	}
}

func (l *Logger) closeFile() {
	for _, s := range l.sinks {
		l.root.DeregisterSink(s)
	}
	l.sinks = nil
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

func (l *Logger) output(level LogLevel, msg string) {
	if level < l.minLevel {
		return
	}
	switch level {
	case DEBUG:
		l.root.Debug(msg)
	case INFO:
		l.root.Info(msg)
	case WARN:
		l.root.Warn(msg)
	default:
		l.root.Error(msg)
	}
}

// Debug logs a debug message
func Debug(v ...interface{}) {
	current().output(DEBUG, fmt.Sprint(v...))
}

// Debugf logs a formatted debug message
func Debugf(format string, v ...interface{}) {
	current().output(DEBUG, fmt.Sprintf(format, v...))
}

// Info logs an info message
func Info(v ...interface{}) {
	current().output(INFO, fmt.Sprint(v...))
}

// Infof logs a formatted info message
func Infof(format string, v ...interface{}) {
	current().output(INFO, fmt.Sprintf(format, v...))
}

// Warn logs a warning message
func Warn(v ...interface{}) {
	current().output(WARN, fmt.Sprint(v...))
}

// Warnf logs a formatted warning message
func Warnf(format string, v ...interface{}) {
	current().output(WARN, fmt.Sprintf(format, v...))
}

// Error logs an error message
func Error(v ...interface{}) {
	current().output(ERROR, fmt.Sprint(v...))
}

// Errorf logs a formatted error message
func Errorf(format string, v ...interface{}) {
	current().output(ERROR, fmt.Sprintf(format, v...))
}

// Fatal logs an error message and exits the program
func Fatal(v ...interface{}) {
	current().output(ERROR, fmt.Sprint(v...))
	os.Exit(1)
}

// Fatalf logs a formatted error message and exits the program
func Fatalf(format string, v ...interface{}) {
	current().output(ERROR, fmt.Sprintf(format, v...))
	os.Exit(1)
}
