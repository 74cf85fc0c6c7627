package bot

import (
	"anibot/internal/anilistapi"
	"anibot/internal/common"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var Migrations = []common.Migration{
	{
		Name: "bot_0001_guilds",
		SQL: `
			CREATE TABLE IF NOT EXISTS guilds (
				guild_id   TEXT PRIMARY KEY,
				channel_id TEXT NOT NULL
			);
			CREATE TABLE IF NOT EXISTS registrations (
				guild_id   TEXT NOT NULL REFERENCES guilds (guild_id) ON DELETE CASCADE,
				discord_id TEXT NOT NULL,
				anilist_id INTEGER NOT NULL,
				created_at INTEGER NOT NULL,
				PRIMARY KEY (guild_id, discord_id)
			);
			CREATE INDEX IF NOT EXISTS registrations_anilist_id ON registrations (anilist_id);
		`,
	},
	{
		Name: "bot_0002_feed_state",
		SQL: `
			CREATE TABLE IF NOT EXISTS feed_state (
				anilist_id       INTEGER PRIMARY KEY,
				last_activity_at INTEGER NOT NULL
			);
		`,
	},
	{
		Name: "bot_0003_user_stats",
		SQL: `
			CREATE TABLE IF NOT EXISTS user_stats (
				anilist_id INTEGER PRIMARY KEY,
				payload    TEXT NOT NULL,
				fetched_at INTEGER NOT NULL
			);
		`,
	},
	{
		Name: "bot_0004_manga_checkpoints",
		SQL: `
			CREATE TABLE IF NOT EXISTS manga_checkpoints (
				discord_id  TEXT NOT NULL,
				media_id    INTEGER NOT NULL,
				chapter     INTEGER NOT NULL,
				volume      INTEGER NOT NULL DEFAULT 0,
				recorded_at INTEGER NOT NULL,
				PRIMARY KEY (discord_id, media_id)
			);
		`,
	},
	{
		Name: "bot_0005_digest_runs",
		SQL: `
			CREATE TABLE IF NOT EXISTS digest_runs (
				name   TEXT PRIMARY KEY,
				ran_at INTEGER NOT NULL
			);
		`,
	},
}

// Tables reported by the maintenance tool
var Tables = []string{"guilds", "registrations", "feed_state", "user_stats", "manga_checkpoints", "digest_runs"}

// The last chapter a user told us about for a manga
type Checkpoint struct {
	DiscordId  string
	MediaId    anilistapi.MediaId
	Chapter    int
	Volume     int
	RecordedAt time.Time
}

type DatabaseBot struct {
	common.Database
}

func CreateDatabaseBot(database common.Database) (DatabaseBot, error) {
	if err := database.Migrate(context.Background(), Migrations); err != nil {
		return DatabaseBot{}, err
	}
	return DatabaseBot{database}, nil
}

func (db *DatabaseBot) GetGuilds(ctx context.Context) (Guilds, error) {

	guilds := Guilds{}
	rows, err := db.QueryContext(ctx, `SELECT guild_id, channel_id FROM guilds`)
	if err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		guild := &Guild{members: map[string]anilistapi.UserId{}}
		if err := rows.Scan(&guild.id, &guild.channelId); err != nil {
			return nil, fmt.Errorf("scan guild: %w", err)
		}
		guilds[guild.id] = guild
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows guilds: %w", err)
	}

	registrations, err := db.QueryContext(ctx, `SELECT guild_id, discord_id, anilist_id FROM registrations`)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer registrations.Close()
	for registrations.Next() {
		var guildId, discordId string
		var anilistId anilistapi.UserId
		if err := registrations.Scan(&guildId, &discordId, &anilistId); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		if guild, ok := guilds[guildId]; ok {
			guild.members[discordId] = anilistId
		}
	}
	if err := registrations.Err(); err != nil {
		return nil, fmt.Errorf("rows registrations: %w", err)
	}

	return guilds, nil
}

func (db *DatabaseBot) GetFollowers(ctx context.Context) (Followers, error) {

	rows, err := db.QueryContext(ctx, `SELECT anilist_id, last_activity_at FROM feed_state`)
	if err != nil {
		return nil, fmt.Errorf("list feed state: %w", err)
	}
	defer rows.Close()

	followers := Followers{}
	for rows.Next() {
		var id anilistapi.UserId
		var lastActivity int64
		if err := rows.Scan(&id, &lastActivity); err != nil {
			return nil, fmt.Errorf("scan feed state: %w", err)
		}
		followers[id] = &Follower{id: id, lastActivity: time.Unix(lastActivity, 0)}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows feed state: %w", err)
	}
	return followers, nil
}

func (db *DatabaseBot) AddGuild(ctx context.Context, guildId string, channelId string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO guilds (guild_id, channel_id) VALUES (?, ?)
		ON CONFLICT(guild_id) DO NOTHING
	`, guildId, channelId)
	if err != nil {
		return fmt.Errorf("insert guild: %w", err)
	}
	return nil
}

func (db *DatabaseBot) SetChannel(ctx context.Context, guildId string, channelId string) error {
	_, err := db.ExecContext(ctx, `UPDATE guilds SET channel_id = ? WHERE guild_id = ?`, channelId, guildId)
	if err != nil {
		return fmt.Errorf("update guild channel: %w", err)
	}
	return nil
}

func (db *DatabaseBot) AddRegistration(ctx context.Context, guildId string, discordId string, anilistId anilistapi.UserId) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO registrations (guild_id, discord_id, anilist_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(guild_id, discord_id) DO UPDATE SET
			anilist_id = excluded.anilist_id,
			created_at = excluded.created_at
	`, guildId, discordId, anilistId, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert registration: %w", err)
	}
	return nil
}

func (db *DatabaseBot) RemoveRegistration(ctx context.Context, guildId string, discordId string) (bool, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM registrations WHERE guild_id = ? AND discord_id = ?`, guildId, discordId)
	if err != nil {
		return false, fmt.Errorf("delete registration: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Remove every registration of an AniList user, in all guilds
func (db *DatabaseBot) RemoveAnilistUser(ctx context.Context, anilistId anilistapi.UserId) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM registrations WHERE anilist_id = ?`, anilistId)
	if err != nil {
		return 0, fmt.Errorf("delete registrations of %d: %w", anilistId, err)
	}
	if err := db.RemoveFollower(ctx, anilistId); err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Distinct AniList users registered anywhere
func (db *DatabaseBot) GetRegisteredAnilistIds(ctx context.Context) ([]anilistapi.UserId, error) {

	rows, err := db.QueryContext(ctx, `SELECT DISTINCT anilist_id FROM registrations ORDER BY anilist_id`)
	if err != nil {
		return nil, fmt.Errorf("list registered users: %w", err)
	}
	defer rows.Close()

	ids := []anilistapi.UserId{}
	for rows.Next() {
		var id anilistapi.UserId
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan registered user: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows registered users: %w", err)
	}
	return ids, nil
}

func (db *DatabaseBot) SetFeedCheckpoint(ctx context.Context, anilistId anilistapi.UserId, lastActivity time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO feed_state (anilist_id, last_activity_at) VALUES (?, ?)
		ON CONFLICT(anilist_id) DO UPDATE SET last_activity_at = excluded.last_activity_at
	`, anilistId, lastActivity.Unix())
	if err != nil {
		return fmt.Errorf("upsert feed state: %w", err)
	}
	return nil
}

func (db *DatabaseBot) RemoveFollower(ctx context.Context, anilistId anilistapi.UserId) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM feed_state WHERE anilist_id = ?`, anilistId); err != nil {
		return fmt.Errorf("delete feed state: %w", err)
	}
	return nil
}

// Cached statistics of a user and when they were fetched
func (db *DatabaseBot) GetStats(ctx context.Context, anilistId anilistapi.UserId) (anilistapi.User, time.Time, bool, error) {

	var payload string
	var fetchedAt int64
	err := db.QueryRowContext(ctx, `SELECT payload, fetched_at FROM user_stats WHERE anilist_id = ?`, anilistId).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return anilistapi.User{}, time.Time{}, false, nil
	}
	if err != nil {
		return anilistapi.User{}, time.Time{}, false, fmt.Errorf("get user stats: %w", err)
	}

	var user anilistapi.User
	if err := json.Unmarshal([]byte(payload), &user); err != nil {
		return anilistapi.User{}, time.Time{}, false, fmt.Errorf("decode user stats: %w", err)
	}
	return user, time.Unix(fetchedAt, 0), true, nil
}

func (db *DatabaseBot) SetStats(ctx context.Context, user anilistapi.User, fetchedAt time.Time) error {

	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user stats: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO user_stats (anilist_id, payload, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(anilist_id) DO UPDATE SET
			payload = excluded.payload,
			fetched_at = excluded.fetched_at
	`, user.Id, string(payload), fetchedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert user stats: %w", err)
	}
	return nil
}

func (db *DatabaseBot) GetCheckpoint(ctx context.Context, discordId string, mediaId anilistapi.MediaId) (Checkpoint, bool, error) {

	checkpoint := Checkpoint{DiscordId: discordId, MediaId: mediaId}
	var recordedAt int64
	err := db.QueryRowContext(ctx, `
		SELECT chapter, volume, recorded_at FROM manga_checkpoints
		WHERE discord_id = ? AND media_id = ?
	`, discordId, mediaId).Scan(&checkpoint.Chapter, &checkpoint.Volume, &recordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("get checkpoint: %w", err)
	}
	checkpoint.RecordedAt = time.Unix(recordedAt, 0)
	return checkpoint, true, nil
}

func (db *DatabaseBot) SetCheckpoint(ctx context.Context, checkpoint Checkpoint) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO manga_checkpoints (discord_id, media_id, chapter, volume, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(discord_id, media_id) DO UPDATE SET
			chapter = excluded.chapter,
			volume = excluded.volume,
			recorded_at = excluded.recorded_at
	`, checkpoint.DiscordId, checkpoint.MediaId, checkpoint.Chapter, checkpoint.Volume, checkpoint.RecordedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

func (db *DatabaseBot) GetDigestRun(ctx context.Context, name string) (time.Time, bool, error) {
	var ranAt int64
	err := db.QueryRowContext(ctx, `SELECT ran_at FROM digest_runs WHERE name = ?`, name).Scan(&ranAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get digest run: %w", err)
	}
	return time.Unix(ranAt, 0), true, nil
}

func (db *DatabaseBot) SetDigestRun(ctx context.Context, name string, ranAt time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO digest_runs (name, ran_at) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET ran_at = excluded.ran_at
	`, name, ranAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert digest run: %w", err)
	}
	return nil
}
