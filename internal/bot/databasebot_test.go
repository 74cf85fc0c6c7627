package bot

import (
	"anibot/internal/anilistapi"
	"anibot/internal/common"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T) DatabaseBot {
	t.Helper()
	database, err := common.OpenDatabase(common.InMemory)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	db, err := CreateDatabaseBot(database)
	require.NoError(t, err)
	return db
}

func TestDatabaseGuildsAndRegistrations(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	db.AddGuild(ctx, "g1", "c1")
	db.AddGuild(ctx, "g1", "other")
	db.AddGuild(ctx, "g2", "c2")
	db.SetChannel(ctx, "g2", "c3")
	db.AddRegistration(ctx, "g1", "u1", 7)
	db.AddRegistration(ctx, "g1", "u1", 8)
	db.AddRegistration(ctx, "g1", "u2", 7)
	db.AddRegistration(ctx, "g2", "u1", 9)

	guilds, err := db.GetGuilds(ctx)
	require.NoError(t, err)
	require.Len(t, guilds, 2)
	assert.Equal(t, "c1", guilds["g1"].channelId, "adding a guild twice keeps its channel")
	assert.Equal(t, "c3", guilds["g2"].channelId)
	assert.Equal(t, map[string]anilistapi.UserId{"u1": 8, "u2": 7}, guilds["g1"].members)
	assert.Equal(t, map[string]anilistapi.UserId{"u1": 9}, guilds["g2"].members)

	ids, err := db.GetRegisteredAnilistIds(ctx)
	require.NoError(t, err)
	assert.Equal(t, []anilistapi.UserId{7, 8, 9}, ids)

	removed, err := db.RemoveRegistration(ctx, "g1", "u2")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, _ = db.RemoveRegistration(ctx, "g1", "u2")
	assert.False(t, removed, "registration removed twice")

	db.SetFeedCheckpoint(ctx, 9, time.Unix(100, 0))
	n, err := db.RemoveAnilistUser(ctx, 9)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	followers, _ := db.GetFollowers(ctx)
	assert.NotContains(t, followers, anilistapi.UserId(9), "feed checkpoint kept for a removed user")
}

func TestDatabaseFeedCheckpoints(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	db.SetFeedCheckpoint(ctx, 7, time.Unix(100, 0))
	db.SetFeedCheckpoint(ctx, 7, time.Unix(200, 0))
	db.SetFeedCheckpoint(ctx, 8, time.Unix(50, 0))

	followers, err := db.GetFollowers(ctx)
	require.NoError(t, err)
	require.Len(t, followers, 2)
	assert.EqualValues(t, 200, followers[7].lastActivity.Unix())
	assert.EqualValues(t, 8, followers[8].id)

	db.RemoveFollower(ctx, 8)
	followers, _ = db.GetFollowers(ctx)
	assert.Len(t, followers, 1)
}

func TestDatabaseStats(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	_, _, ok, err := db.GetStats(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok, "unknown user has no stats")

	user := anilistapi.User{Id: 7, Name: "Yuki"}
	user.Statistics.Anime.MinutesWatched = 5000
	user.Statistics.TopGenres = []string{"Drama"}
	db.SetStats(ctx, user, time.Unix(1000, 0))

	cached, fetchedAt, ok, err := db.GetStats(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Yuki", cached.Name)
	assert.EqualValues(t, 5000, cached.Statistics.Anime.MinutesWatched)
	assert.Equal(t, []string{"Drama"}, cached.Statistics.TopGenres)
	assert.EqualValues(t, 1000, fetchedAt.Unix())
}

func TestDatabaseCheckpointsAndDigests(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	_, ok, err := db.GetCheckpoint(ctx, "u1", 30013)
	require.NoError(t, err)
	assert.False(t, ok)
	db.SetCheckpoint(ctx, Checkpoint{DiscordId: "u1", MediaId: 30013, Chapter: 10, Volume: 1, RecordedAt: time.Unix(100, 0)})
	db.SetCheckpoint(ctx, Checkpoint{DiscordId: "u1", MediaId: 30013, Chapter: 12, Volume: 2, RecordedAt: time.Unix(200, 0)})
	checkpoint, ok, err := db.GetCheckpoint(ctx, "u1", 30013)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 12, checkpoint.Chapter)
	assert.EqualValues(t, 2, checkpoint.Volume)
	assert.EqualValues(t, 200, checkpoint.RecordedAt.Unix())
	_, ok, _ = db.GetCheckpoint(ctx, "u2", 30013)
	assert.False(t, ok, "checkpoint shared between members")

	_, ok, err = db.GetDigestRun(ctx, DIGEST_FINISHERS)
	require.NoError(t, err)
	assert.False(t, ok, "no digest run yet")
	db.SetDigestRun(ctx, DIGEST_FINISHERS, time.Unix(300, 0))
	db.SetDigestRun(ctx, DIGEST_FINISHERS, time.Unix(400, 0))
	ranAt, ok, _ := db.GetDigestRun(ctx, DIGEST_FINISHERS)
	assert.True(t, ok)
	assert.EqualValues(t, 400, ranAt.Unix())

	counts, err := db.Counts(ctx, Tables...)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["manga_checkpoints"])
	assert.Equal(t, 1, counts["digest_runs"])
	assert.Zero(t, counts["guilds"])
}
