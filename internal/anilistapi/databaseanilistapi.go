package anilistapi

import (
	"anibot/internal/common"
	"context"
	"fmt"
	"time"
)

var Migrations = []common.Migration{
	{
		Name: "anilistapi_0001_users",
		SQL: `
			CREATE TABLE IF NOT EXISTS anilist_users (
				anilist_id INTEGER PRIMARY KEY,
				name       TEXT NOT NULL,
				updated_at INTEGER NOT NULL
			);
			CREATE INDEX IF NOT EXISTS anilist_users_name ON anilist_users (name COLLATE NOCASE);
		`,
	},
}

type DatabaseAnilistApi struct {
	common.Database
}

func CreateDatabaseAnilistApi(database common.Database) (DatabaseAnilistApi, error) {
	if err := database.Migrate(context.Background(), Migrations); err != nil {
		return DatabaseAnilistApi{}, err
	}
	return DatabaseAnilistApi{database}, nil
}

func (db *DatabaseAnilistApi) GetUserNames(ctx context.Context) (map[UserId]string, error) {

	rows, err := db.QueryContext(ctx, `SELECT anilist_id, name FROM anilist_users`)
	if err != nil {
		return nil, fmt.Errorf("list anilist users: %w", err)
	}
	defer rows.Close()

	names := map[UserId]string{}
	for rows.Next() {
		var id UserId
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan anilist user: %w", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows anilist users: %w", err)
	}
	return names, nil
}

func (db *DatabaseAnilistApi) SetUserName(ctx context.Context, id UserId, name string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO anilist_users (anilist_id, name, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(anilist_id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at
	`, id, name, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert anilist user: %w", err)
	}
	return nil
}

func (db *DatabaseAnilistApi) DeleteUsersExcept(ctx context.Context, idsToKeep map[UserId]struct{}) error {

	names, err := db.GetUserNames(ctx)
	if err != nil {
		return err
	}
	for id := range names {
		if _, ok := idsToKeep[id]; ok {
			continue
		}
		if _, err := db.ExecContext(ctx, `DELETE FROM anilist_users WHERE anilist_id = ?`, id); err != nil {
			return fmt.Errorf("delete anilist user %d: %w", id, err)
		}
	}
	return nil
}
