package playlist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store hands out transactions. Every read and write of playlists, songs and
// shares goes through one of them.
type Store interface {
	// ReadTx runs fn against a single read-only snapshot.
	ReadTx(ctx context.Context, fn func(Tx) error) error
	// WriteTx runs fn in a transaction that commits only if fn returns nil.
	WriteTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the query surface available inside a transaction. Lookups of a
// single absent row return an error matching ErrNotFound.
type Tx interface {
	GetPlaylist(ctx context.Context, id string, lock bool) (*Playlist, error)
	GetShare(ctx context.Context, playlistID, userID string) (*Share, error)
	ListOwnedPlaylists(ctx context.Context, ownerID string, publicOnly bool) ([]Playlist, error)
	ListSharedPlaylists(ctx context.Context, userID string) ([]Playlist, error)
	ListMemberships(ctx context.Context, playlistID string) ([]Membership, error)
	ListShares(ctx context.Context, playlistID string) ([]Share, error)

	InsertPlaylist(ctx context.Context, pl *Playlist) error
	UpdatePlaylist(ctx context.Context, pl *Playlist) error
	DeletePlaylist(ctx context.Context, id string) error

	// InsertMemberships adds songIDs in the given order starting at firstOrder.
	InsertMemberships(ctx context.Context, playlistID string, songIDs []string, firstOrder int) ([]Membership, error)
	DeleteMembership(ctx context.Context, playlistID, songID string) error
	DeleteMemberships(ctx context.Context, playlistID string) (int64, error)
	// Renumber assigns order i+1 to membershipIDs[i] in one statement.
	Renumber(ctx context.Context, playlistID string, membershipIDs []string) error

	UpsertShare(ctx context.Context, playlistID, userID string, perm Permission) (*Share, error)
	DeleteShare(ctx context.Context, playlistID, userID string) error
	DeleteShares(ctx context.Context, playlistID string) (int64, error)
}

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var (
	readTxOptions  = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	writeTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
)

func (s *PostgresStore) ReadTx(ctx context.Context, fn func(Tx) error) error {
	return s.withTx(ctx, readTxOptions, fn)
}

func (s *PostgresStore) WriteTx(ctx context.Context, fn func(Tx) error) error {
	return s.withTx(ctx, writeTxOptions, fn)
}

func (s *PostgresStore) withTx(ctx context.Context, opts pgx.TxOptions, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return translateErr(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

const playlistColumns = `p.id, p.owner_id, p.name, p.description, p.is_public, p.created_at, p.updated_at`

func scanPlaylist(row pgx.Row, pl *Playlist) error {
	return row.Scan(
		&pl.ID,
		&pl.OwnerID,
		&pl.Name,
		&pl.Description,
		&pl.IsPublic,
		&pl.CreatedAt,
		&pl.UpdatedAt,
	)
}

func (t *pgTx) GetPlaylist(ctx context.Context, id string, lock bool) (*Playlist, error) {
	q := `SELECT ` + playlistColumns + ` FROM playlists p WHERE p.id = $1`
	if lock {
		q += ` FOR UPDATE`
	}
	var pl Playlist
	if err := scanPlaylist(t.tx.QueryRow(ctx, q, id), &pl); err != nil {
		return nil, translateErr(fmt.Errorf("get playlist: %w", err))
	}
	return &pl, nil
}

func scanShare(row pgx.Row, sh *Share) error {
	var perm string
	if err := row.Scan(&sh.ID, &sh.PlaylistID, &sh.UserID, &perm, &sh.CreatedAt, &sh.UpdatedAt); err != nil {
		return err
	}
	sh.Permission = Permission(perm)
	return nil
}

func (t *pgTx) GetShare(ctx context.Context, playlistID, userID string) (*Share, error) {
	var sh Share
	err := scanShare(t.tx.QueryRow(ctx, `
		SELECT id, playlist_id, user_id, permission, created_at, updated_at
		FROM playlist_shares
		WHERE playlist_id = $1 AND user_id = $2
	`, playlistID, userID), &sh)
	if err != nil {
		return nil, translateErr(fmt.Errorf("get share: %w", err))
	}
	return &sh, nil
}

func (t *pgTx) ListOwnedPlaylists(ctx context.Context, ownerID string, publicOnly bool) ([]Playlist, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+playlistColumns+`
		FROM playlists p
		WHERE p.owner_id = $1 AND (NOT $2::bool OR p.is_public)
		ORDER BY p.created_at DESC
		LIMIT 200
	`, ownerID, publicOnly)
	if err != nil {
		return nil, fmt.Errorf("list owned playlists: %w", err)
	}
	return collectPlaylists(rows)
}

func (t *pgTx) ListSharedPlaylists(ctx context.Context, userID string) ([]Playlist, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+playlistColumns+`
		FROM playlists p
		JOIN playlist_shares s ON s.playlist_id = p.id
		WHERE s.user_id = $1
		ORDER BY p.created_at DESC
		LIMIT 200
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list shared playlists: %w", err)
	}
	return collectPlaylists(rows)
}

func collectPlaylists(rows pgx.Rows) ([]Playlist, error) {
	defer rows.Close()

	playlists := []Playlist{}
	for rows.Next() {
		var pl Playlist
		if err := scanPlaylist(rows, &pl); err != nil {
			return nil, fmt.Errorf("scan playlist: %w", err)
		}
		playlists = append(playlists, pl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("playlist rows: %w", err)
	}
	return playlists, nil
}

func (t *pgTx) ListMemberships(ctx context.Context, playlistID string) ([]Membership, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, playlist_id, song_id, position, added_at
		FROM playlist_songs
		WHERE playlist_id = $1
		ORDER BY position ASC
	`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return collectMemberships(rows)
}

func collectMemberships(rows pgx.Rows) ([]Membership, error) {
	defer rows.Close()

	memberships := []Membership{}
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.ID, &m.PlaylistID, &m.SongID, &m.Order, &m.AddedAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("membership rows: %w", err)
	}
	return memberships, nil
}

func (t *pgTx) ListShares(ctx context.Context, playlistID string) ([]Share, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, playlist_id, user_id, permission, created_at, updated_at
		FROM playlist_shares
		WHERE playlist_id = $1
		ORDER BY created_at ASC
	`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	shares := []Share{}
	for rows.Next() {
		var sh Share
		if err := scanShare(rows, &sh); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		shares = append(shares, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("share rows: %w", err)
	}
	return shares, nil
}

func (t *pgTx) InsertPlaylist(ctx context.Context, pl *Playlist) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO playlists (owner_id, name, description, is_public)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, pl.OwnerID, pl.Name, pl.Description, pl.IsPublic).Scan(&pl.ID, &pl.CreatedAt, &pl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert playlist: %w", err)
	}
	return nil
}

func (t *pgTx) UpdatePlaylist(ctx context.Context, pl *Playlist) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE playlists
		SET name = $2,
			description = $3,
			is_public = $4,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, pl.ID, pl.Name, pl.Description, pl.IsPublic).Scan(&pl.UpdatedAt)
	if err != nil {
		return translateErr(fmt.Errorf("update playlist: %w", err))
	}
	return nil
}

func (t *pgTx) DeletePlaylist(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM playlists WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete playlist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errPlaylistNotFound()
	}
	return nil
}

func (t *pgTx) InsertMemberships(ctx context.Context, playlistID string, songIDs []string, firstOrder int) ([]Membership, error) {
	positions := make([]int32, len(songIDs))
	for i := range songIDs {
		positions[i] = int32(firstOrder + i)
	}
	rows, err := t.tx.Query(ctx, `
		INSERT INTO playlist_songs (playlist_id, song_id, position)
		SELECT $1, v.song_id, v.position
		FROM unnest($2::text[], $3::int[]) AS v(song_id, position)
		RETURNING id, playlist_id, song_id, position, added_at
	`, playlistID, songIDs, positions)
	if err != nil {
		return nil, translateErr(fmt.Errorf("insert memberships: %w", err))
	}
	inserted, err := collectMemberships(rows)
	if err != nil {
		return nil, translateErr(err)
	}
	sortByOrder(inserted)
	return inserted, nil
}

func (t *pgTx) DeleteMembership(ctx context.Context, playlistID, songID string) error {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM playlist_songs
		WHERE playlist_id = $1 AND song_id = $2
	`, playlistID, songID)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("song not found in playlist")
	}
	return nil
}

func (t *pgTx) DeleteMemberships(ctx context.Context, playlistID string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM playlist_songs WHERE playlist_id = $1`, playlistID)
	if err != nil {
		return 0, fmt.Errorf("delete memberships: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) Renumber(ctx context.Context, playlistID string, membershipIDs []string) error {
	if len(membershipIDs) == 0 {
		return nil
	}
	positions := make([]int32, len(membershipIDs))
	for i := range membershipIDs {
		positions[i] = int32(i + 1)
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE playlist_songs AS ps
		SET position = v.position
		FROM unnest($2::text[], $3::int[]) AS v(id, position)
		WHERE ps.playlist_id = $1
		  AND ps.id = v.id::uuid
		  AND ps.position <> v.position
	`, playlistID, membershipIDs, positions)
	if err != nil {
		return translateErr(fmt.Errorf("renumber memberships: %w", err))
	}
	return nil
}

func (t *pgTx) UpsertShare(ctx context.Context, playlistID, userID string, perm Permission) (*Share, error) {
	var sh Share
	err := scanShare(t.tx.QueryRow(ctx, `
		INSERT INTO playlist_shares (playlist_id, user_id, permission)
		VALUES ($1, $2, $3)
		ON CONFLICT (playlist_id, user_id)
		DO UPDATE SET permission = EXCLUDED.permission, updated_at = now()
		RETURNING id, playlist_id, user_id, permission, created_at, updated_at
	`, playlistID, userID, string(perm)), &sh)
	if err != nil {
		return nil, translateErr(fmt.Errorf("upsert share: %w", err))
	}
	return &sh, nil
}

func (t *pgTx) DeleteShare(ctx context.Context, playlistID, userID string) error {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM playlist_shares
		WHERE playlist_id = $1 AND user_id = $2
	`, playlistID, userID)
	if err != nil {
		return fmt.Errorf("delete share: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("share not found")
	}
	return nil
}

func (t *pgTx) DeleteShares(ctx context.Context, playlistID string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM playlist_shares WHERE playlist_id = $1`, playlistID)
	if err != nil {
		return 0, fmt.Errorf("delete shares: %w", err)
	}
	return tag.RowsAffected(), nil
}

// translateErr maps driver errors onto the domain kinds.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &Error{Kind: ErrNotFound, Msg: "not found"}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return &Error{Kind: ErrConflict, Msg: "concurrent modification, retry"}
		case "40001", "40P01":
			return &Error{Kind: ErrConflict, Msg: "transaction aborted, retry"}
		}
	}
	return err
}
