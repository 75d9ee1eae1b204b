package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ksolodov/fieldreporter/internal/logging"
	"github.com/ksolodov/fieldreporter/internal/server"
	"github.com/ksolodov/fieldreporter/internal/server/config"
)

func main() {
	cfg := config.LoadConfig()
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := a.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}
