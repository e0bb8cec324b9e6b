package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"repairdesk/internal/app"
	"repairdesk/internal/config"
	"repairdesk/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat, cfg.Environment))

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("init failed", "err", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	if err := application.Run(ctx); err != nil {
		log.Error("run failed", "err", err)
		os.Exit(1)
	}
}
