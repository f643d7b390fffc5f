// Command fitctl runs account maintenance against the configured store.
package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	_ "github.com/joho/godotenv/autoload"

	"fitpass/internal/config"
	"fitpass/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := newApp(cfg).Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("fitctl failed")
	}
}
