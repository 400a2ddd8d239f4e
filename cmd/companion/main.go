package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harunnryd/companion/pkg/companion"
	"github.com/harunnryd/companion/pkg/runner"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := companion.LoadConfig(*configPath)
	if err != nil {
		slog.Error("config load failed", "path", *configPath, "error", err)
		os.Exit(1)
	}

	engine, err := companion.NewEngine(cfg)
	if err != nil {
		slog.Error("engine setup failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	drainTimeout := time.Duration(cfg.Server.DrainTimeoutMS) * time.Millisecond
	run := runner.NewLifecycleRunner(engine, runner.Hooks{
		OnStart: func() error { return engine.Start(ctx) },
	}, drainTimeout, slog.Default())

	if err := run.Run(ctx); err != nil {
		slog.Error("shutdown incomplete", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
