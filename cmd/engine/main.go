package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/coinforge/coinforge/internal/config"
	"github.com/coinforge/coinforge/internal/engine"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (defaults to ./configs/config.yaml)")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	if *validateOnly {
		fmt.Println("configuration OK")
		return
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log.Info().Str("version", config.Version).Msg("coinforge engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, cfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build engine")
	}

	if err := eng.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Engine exited with error")
	}
	log.Info().Msg("Engine stopped")
}
