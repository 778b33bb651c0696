// Package log configures the zerolog logger shared by the playback engine.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // optional log level ("debug", "info", etc.)
	Output  io.Writer // optional writer (defaults to os.Stderr)
	Console bool      // human-readable output instead of JSON
}

var (
	once sync.Once
	base zerolog.Logger
)

// Configure initialises the global logger exactly once. Later calls are
// ignored.
func Configure(cfg Config) {
	once.Do(func() {
		level := zerolog.InfoLevel
		lvl := cfg.Level
		if lvl == "" {
			lvl = os.Getenv("LOG_LEVEL")
		}
		if lvl != "" {
			if parsed, err := zerolog.ParseLevel(lvl); err == nil {
				level = parsed
			}
		}
		zerolog.SetGlobalLevel(level)
		zerolog.TimeFieldFormat = time.RFC3339Nano

		w := cfg.Output
		if w == nil {
			w = os.Stderr
		}
		if cfg.Console {
			w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
		}
		base = zerolog.New(w).With().Timestamp().Logger()
	})
}

// Base returns the configured base logger.
func Base() zerolog.Logger {
	Configure(Config{})
	return base
}

// WithComponent returns a child logger annotated with the component name.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str(FieldComponent, component).Logger()
}

// Sub derives a component logger from parent instead of the global base.
func Sub(parent zerolog.Logger, component string) zerolog.Logger {
	return parent.With().Str(FieldComponent, component).Logger()
}
