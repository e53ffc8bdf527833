// cmd/probed/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tamzrod/probe-runtime/internal/config"
)

// shutdownTimeout bounds how long queued probe work may delay exit.
const shutdownTimeout = 10 * time.Second

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: probed <config.yaml>")
		os.Exit(2)
	}

	cfgPath := os.Args[1]

	// --------------------
	// Load + validate + normalize config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatal("config load failed", err)
	}

	if err := config.Validate(cfg); err != nil {
		fatal("config validation failed", err)
	}

	config.Normalize(cfg)

	log := newLogger(cfg.Agent.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Build per-probe pipelines
	// --------------------

	a, err := start(cfg, log, nil)
	if err != nil {
		fatal("startup failed", err)
	}

	log.Info("probed: running", "probes", len(cfg.Probes))

	<-ctx.Done()

	log.Info("probed: shutting down")
	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		log.Error("probed: shutdown", "error", err)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func newLogger(level string) *slog.Logger {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}
