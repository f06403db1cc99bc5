package main

import (
	"flag"

	"github.com/zepwave/inferlb/internal/app"
	"github.com/zepwave/inferlb/internal/config"
	"github.com/zepwave/inferlb/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a config.toml file (optional; INFERLB_-prefixed env vars always apply)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration: %v", err)
	}

	application := app.NewApp(cfg)

	logger.Info("inferlb starting...")

	if err := application.Run(); err != nil {
		logger.Fatal("Server error: %v", err)
	}
}
