package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go-fetch-pipeline/internal/app"
	"go-fetch-pipeline/internal/config"
	"go-fetch-pipeline/internal/logger"
)

// @title Fetch Pipeline API
// @version 1.0
// @description Submit endpoint lists and download the parsed records as JSONL
// @BasePath /api/v1
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(
		config.WithEnvFile(".env"),
		config.WithConfigFile(os.Getenv(config.EnvPrefix+"_CONFIG")),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log)
	if err := app.Serve(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

