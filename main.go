package main

import (
	"anibot/internal/anilistapi"
	"anibot/internal/bot"
	"anibot/internal/common"
	"anibot/internal/config"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("anibot stopped")
	}
	log.Info().Msg("Bye")
}

func run() error {

	// Configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	config.SetupLogging(cfg.LogLevel, cfg.LogJson)
	if err := cfg.ValidateBot(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log.Info().Msg("Hello from inside anibot")

	// Database shared by the AniList client and the bot
	database, err := common.OpenDatabase(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer database.Close()

	// Create AniList API
	anilist, err := anilistapi.NewAnilistApi(cfg.AnilistUrl, database, cfg.AnilistRequestsPerMinute, cfg.MediaCacheTtl)
	if err != nil {
		return fmt.Errorf("could not create AniList API: %w", err)
	}

	// Create bot
	anibot, err := bot.CreateBot(cfg, anilist, database)
	if err != nil {
		return fmt.Errorf("could not create discord bot: %w", err)
	}

	// Run bot until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return anibot.Run(ctx)
}
