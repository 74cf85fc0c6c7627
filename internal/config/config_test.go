package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "token", cfg.DiscordToken)
	assert.Equal(t, "https://graphql.anilist.co", cfg.AnilistUrl)
	assert.Equal(t, 2*time.Minute, cfg.FeedInterval)
	assert.Equal(t, "ani", cfg.Prefix)
	assert.NoError(t, cfg.ValidateBot(), "default config should be valid")
}

func TestLoadDotenv(t *testing.T) {
	filename := filepath.Join(t.TempDir(), ".env")
	content := "ANIBOT_PREFIX=anime\nFEED_INTERVAL=5m\n"
	require.NoError(t, os.WriteFile(filename, []byte(content), 0o600))
	// godotenv does not override variables that are already set
	t.Setenv("ANIBOT_PREFIX", "")
	os.Unsetenv("ANIBOT_PREFIX")
	t.Setenv("FEED_INTERVAL", "")
	os.Unsetenv("FEED_INTERVAL")

	cfg, err := Load(filename)
	require.NoError(t, err)
	assert.Equal(t, "anime", cfg.Prefix)
	assert.Equal(t, 5*time.Minute, cfg.FeedInterval)
}

func TestValidate(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("MAIN_CYCLE", "-1s")
	t.Setenv("TRENDING_SCHEDULE", "every tuesday")
	t.Setenv("ANIBOT_PREFIX", "two words")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	err = cfg.ValidateBot()
	require.Error(t, err)
	for _, expected := range []string{"DISCORD_TOKEN", "MAIN_CYCLE", "TRENDING_SCHEDULE", "ANIBOT_PREFIX"} {
		assert.ErrorContains(t, err, expected)
	}
}

func TestSetupLogging(t *testing.T) {
	SetupLogging("debug", true)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	SetupLogging("nonsense", false)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
