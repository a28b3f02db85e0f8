package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/domino14/c4census/census"
	"github.com/domino14/c4census/config"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	log.Logger = logger
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg := &config.Config{}
	if err := cfg.Load(); err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e := census.NewEngine(cfg)
	if err := e.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("census-failed")
	}
}
