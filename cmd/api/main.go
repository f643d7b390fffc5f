package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	_ "github.com/joho/godotenv/autoload"

	"fitpass/internal/config"
	"fitpass/internal/logger"
	"fitpass/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	stores, err := server.OpenStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.StoreDriver).Msg("Could not open storage")
	}

	s, err := server.NewServer(ctx, cfg, stores)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not build server")
	}

	done := make(chan struct{})
	go s.GracefulShutdown(done)

	if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("HTTP server error")
	}

	<-done
	log.Info().Msg("Graceful shutdown complete.")
}
