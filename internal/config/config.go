package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

type Config struct {
	DiscordToken   string `env:"DISCORD_TOKEN"`
	DevelopGuildId string `env:"DISCORD_GUILD_ID"`

	DatabasePath string `env:"ANIBOT_DB_PATH" envDefault:"data/anibot.db"`

	AnilistUrl               string        `env:"ANILIST_URL" envDefault:"https://graphql.anilist.co"`
	AnilistRequestsPerMinute int           `env:"ANILIST_REQUESTS_PER_MINUTE" envDefault:"60"`
	MediaCacheTtl            time.Duration `env:"MEDIA_CACHE_TTL" envDefault:"30m"`
	StatsTtl                 time.Duration `env:"STATS_TTL" envDefault:"12h"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJson  bool   `env:"LOG_JSON" envDefault:"false"`

	Prefix               string        `env:"ANIBOT_PREFIX" envDefault:"ani"`
	MainCycle            time.Duration `env:"MAIN_CYCLE" envDefault:"10s"`
	FeedInterval         time.Duration `env:"FEED_INTERVAL" envDefault:"2m"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"6h"`
	PaginatorTtl         time.Duration `env:"PAGINATOR_TTL" envDefault:"10m"`

	TrendingSchedule  string `env:"TRENDING_SCHEDULE" envDefault:"0 18 * * *"`
	TrendingCount     int    `env:"TRENDING_COUNT" envDefault:"10"`
	FinishersSchedule string `env:"FINISHERS_SCHEDULE" envDefault:"0 20 * * 0"`

	CommandRate  float64 `env:"COMMAND_RATE" envDefault:"0.5"`
	CommandBurst int     `env:"COMMAND_BURST" envDefault:"3"`
}

// Load the configuration from the environment, after loading the
// provided .env files. Missing files are not an error
func Load(filenames ...string) (Config, error) {

	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, filename := range filenames {
		if err := godotenv.Load(filename); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", filename, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Check the values that the rest of the program relies on
func (cfg *Config) Validate() error {

	var errs []error
	durations := map[string]time.Duration{
		"MEDIA_CACHE_TTL":       cfg.MediaCacheTtl,
		"STATS_TTL":             cfg.StatsTtl,
		"MAIN_CYCLE":            cfg.MainCycle,
		"FEED_INTERVAL":         cfg.FeedInterval,
		"HOUSEKEEPING_INTERVAL": cfg.HousekeepingInterval,
		"PAGINATOR_TTL":         cfg.PaginatorTtl,
	}
	for name, duration := range durations {
		if duration <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, duration))
		}
	}
	if cfg.AnilistRequestsPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("ANILIST_REQUESTS_PER_MINUTE must be positive"))
	}
	if cfg.TrendingCount <= 0 {
		errs = append(errs, fmt.Errorf("TRENDING_COUNT must be positive"))
	}
	if cfg.CommandRate <= 0 || cfg.CommandBurst <= 0 {
		errs = append(errs, fmt.Errorf("COMMAND_RATE and COMMAND_BURST must be positive"))
	}
	if strings.TrimSpace(cfg.Prefix) == "" || strings.ContainsAny(cfg.Prefix, " \t\n") {
		errs = append(errs, fmt.Errorf("ANIBOT_PREFIX must be a single word"))
	}
	for name, spec := range map[string]string{"TRENDING_SCHEDULE": cfg.TrendingSchedule, "FINISHERS_SCHEDULE": cfg.FinishersSchedule} {
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s is not a valid cron spec: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// The bot itself also needs a token
func (cfg *Config) ValidateBot() error {
	if cfg.DiscordToken == "" {
		return errors.Join(errors.New("DISCORD_TOKEN is required"), cfg.Validate())
	}
	return cfg.Validate()
}
