package app

import (
	"context"
	"os/signal"
	"syscall"
)

// Main is the shared entrypoint: load config, build the app, run until a
// termination signal arrives. Returns a process exit code.
func Main() int {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := New(ctx, cfg, log)
	if err != nil {
		log.Error("app.init.failed", "err", err)
		return 1
	}

	if err := a.Run(ctx); err != nil {
		log.Error("app.run.failed", "err", err)
		return 1
	}

	return 0
}
