// Package log configures the process-wide structured logger. Output is JSON
// on stdout; components attach themselves via WithComponent.
package log

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	once   sync.Once
	logger *slog.Logger
)

// Setup initializes the global logger at the given level. An unknown level
// falls back to INFO. Only the first call takes effect.
func Setup(level string) {
	once.Do(func() {
		var l slog.Level
		if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			l = slog.LevelInfo
		}

		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
		slog.SetDefault(logger)
	})
}

// Get returns the configured logger, initializing at INFO if Setup was never
// called.
func Get() *slog.Logger {
	if logger == nil {
		Setup("INFO")
	}
	return logger
}

// WithComponent returns a logger tagged with the component name.
func WithComponent(name string) *slog.Logger {
	return Get().With(slog.String("component", name))
}
