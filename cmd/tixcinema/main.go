package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/kirinyoku/tix-cinema/docs"
	"github.com/kirinyoku/tix-cinema/internal/app"
	"github.com/kirinyoku/tix-cinema/internal/config"
)

// @title TixCinema API
// @version 1.0
// @description Seat allocation service for cinema sessions: seat maps, holds and purchases.
// @host localhost:8080
// @BasePath /
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(context.Background()); err != nil {
		logger.Error("application finished with error", "error", err)
		os.Exit(1)
	}
}
