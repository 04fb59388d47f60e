package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Logger struct {
	zl zerolog.Logger
}

func New() *Logger {
	return NewWithWriter(os.Stdout, zerolog.InfoLevel)
}

func NewWithWriter(w io.Writer, level zerolog.Level) *Logger {
	return &Logger{
		zl: zerolog.New(w).Level(level).With().Timestamp().Caller().Logger(),
	}
}

// Configure replaces the global logger. Development gets a console writer,
// everything else gets JSON lines.
func Configure(env, level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = os.Stdout
	if env == "development" {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	GlobalLogger = NewWithWriter(w, lvl)
}

// Each exported entry point emits the event itself, so one skipped frame
// always lands on the caller.

func (l *Logger) Info(format string, v ...interface{}) {
	l.zl.Info().CallerSkipFrame(1).Msgf(format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.zl.Warn().CallerSkipFrame(1).Msgf(format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.zl.Error().CallerSkipFrame(1).Msgf(format, v...)
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.zl.Debug().CallerSkipFrame(1).Msgf(format, v...)
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.zl.Error().CallerSkipFrame(1).Msgf(format, v...)
	os.Exit(1)
}

// Zerolog exposes the underlying logger for structured fields.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// Global logger instance
var GlobalLogger = New()

// Convenience functions
func Info(format string, v ...interface{}) {
	GlobalLogger.zl.Info().CallerSkipFrame(1).Msgf(format, v...)
}

func Warn(format string, v ...interface{}) {
	GlobalLogger.zl.Warn().CallerSkipFrame(1).Msgf(format, v...)
}

func Error(format string, v ...interface{}) {
	GlobalLogger.zl.Error().CallerSkipFrame(1).Msgf(format, v...)
}

func Debug(format string, v ...interface{}) {
	GlobalLogger.zl.Debug().CallerSkipFrame(1).Msgf(format, v...)
}

func Fatal(format string, v ...interface{}) {
	GlobalLogger.zl.Error().CallerSkipFrame(1).Msgf(format, v...)
	os.Exit(1)
}

// With starts a structured child logger from the global one.
func With() zerolog.Context {
	return GlobalLogger.zl.With()
}
