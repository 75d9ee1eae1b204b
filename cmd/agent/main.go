package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ksolodov/fieldreporter/internal/agent/app"
	"github.com/ksolodov/fieldreporter/internal/agent/config"
	"github.com/ksolodov/fieldreporter/internal/logging"
)

func main() {
	cfg := config.LoadConfig()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	a, err := app.NewApp(cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}
