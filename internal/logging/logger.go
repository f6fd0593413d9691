package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu     sync.Mutex
	logger *slog.Logger
)

// Init configures the process-wide logger. Verbose enables debug output.
func Init(verbose bool) {
	InitWithWriter(os.Stdout, verbose)
}

func InitWithWriter(w io.Writer, verbose bool) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if verbose {
		opts.Level = slog.LevelDebug
	}

	mu.Lock()
	defer mu.Unlock()

	logger = slog.New(slog.NewTextHandler(w, opts))
	slog.SetDefault(logger)
}

// Get returns the configured logger, initializing an info-level one on first use.
func Get() *slog.Logger {
	mu.Lock()
	l := logger
	mu.Unlock()

	if l == nil {
		Init(false)
		return Get()
	}
	return l
}
