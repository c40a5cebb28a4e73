package main

import (
	"io"
	"os"
	"strings"

	"github.com/phuslu/log"
)

// NewLogger builds a structured logger. Console output is colourised key=value
// text for interactive use; otherwise each event is written as one JSON line.
func NewLogger(level string, w io.Writer, console bool) *log.Logger {
	if w == nil {
		w = os.Stderr
	}

	var writer log.Writer = &log.IOWriter{Writer: w}
	if console {
		writer = &log.ConsoleWriter{
			Writer:      w,
			ColorOutput: w == os.Stderr || w == os.Stdout,
			QuoteString: true,
		}
	}

	return &log.Logger{
		Level:      parseLogLevel(level),
		TimeFormat: "2006-01-02T15:04:05Z07:00",
		Writer:     writer,
	}
}

// NewSilentLogger discards everything below error level
func NewSilentLogger() *log.Logger {
	return &log.Logger{
		Level:  log.ErrorLevel,
		Writer: &log.IOWriter{Writer: io.Discard},
	}
}

func parseLogLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
