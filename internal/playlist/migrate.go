package playlist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var migrations = []struct {
	name string
	sql  string
}{
	{"pgcrypto", `CREATE EXTENSION IF NOT EXISTS pgcrypto`},
	{"playlists", `
      CREATE TABLE IF NOT EXISTS playlists (
          id          uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          owner_id    TEXT NOT NULL,
          name        TEXT NOT NULL,
          description TEXT NOT NULL DEFAULT '',
          is_public   BOOLEAN NOT NULL DEFAULT FALSE,
          created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
          updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `},
	{"playlists owner index", `
      CREATE INDEX IF NOT EXISTS idx_playlists_owner ON playlists(owner_id)
    `},
	// Renumbering rewrites positions in one statement, so the position
	// uniqueness check waits for commit.
	{"playlist_songs", `
      CREATE TABLE IF NOT EXISTS playlist_songs (
          id          uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          playlist_id uuid NOT NULL REFERENCES playlists(id),
          song_id     TEXT NOT NULL,
          position    INT NOT NULL CHECK (position > 0),
          added_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
          CONSTRAINT playlist_songs_song_key UNIQUE (playlist_id, song_id),
          CONSTRAINT playlist_songs_position_key UNIQUE (playlist_id, position)
              DEFERRABLE INITIALLY DEFERRED
      )
    `},
	{"playlist_shares", `
      CREATE TABLE IF NOT EXISTS playlist_shares (
          id          uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          playlist_id uuid NOT NULL REFERENCES playlists(id),
          user_id     TEXT NOT NULL,
          permission  TEXT NOT NULL CHECK (permission IN ('VIEW', 'EDIT')),
          created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
          updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
          CONSTRAINT playlist_shares_user_key UNIQUE (playlist_id, user_id)
      )
    `},
	{"playlist_shares user index", `
      CREATE INDEX IF NOT EXISTS idx_playlist_shares_user ON playlist_shares(user_id)
    `},
}

// AutoMigrate creates the schema if it does not exist yet. It is safe to run
// on every start.
func AutoMigrate(ctx context.Context, db Execer) error {
	for _, m := range migrations {
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migrate %s: %w", m.name, err)
		}
	}
	return nil
}
