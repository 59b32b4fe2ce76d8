package playlist

import (
	"cmp"
	"context"
	"slices"
	"strings"
)

// Sequencer keeps a playlist's song orders equal to 1..N. Every method
// expects to run inside a write transaction whose playlist row is already
// locked, so the membership list it reads cannot change underneath it.
type Sequencer struct {
	songs SongOracle
}

func NewSequencer(songs SongOracle) *Sequencer {
	return &Sequencer{songs: songs}
}

// Append adds songID at the end of the playlist.
func (s *Sequencer) Append(ctx context.Context, tx Tx, playlistID, songID string) (*Membership, error) {
	added, err := s.AppendMany(ctx, tx, playlistID, []string{songID})
	if err != nil {
		return nil, err
	}
	return &added[0], nil
}

// AppendMany adds songIDs at the end of the playlist in the given order. The
// whole batch is validated before anything is written.
func (s *Sequencer) AppendMany(ctx context.Context, tx Tx, playlistID string, songIDs []string) ([]Membership, error) {
	current, err := s.prepare(ctx, tx, playlistID, songIDs)
	if err != nil {
		return nil, err
	}
	return tx.InsertMemberships(ctx, playlistID, songIDs, len(current)+1)
}

// InsertAt adds songID so that it ends up with the given order, shifting the
// songs at and after that position down by one.
func (s *Sequencer) InsertAt(ctx context.Context, tx Tx, playlistID, songID string, order int) (*Membership, error) {
	current, err := s.prepare(ctx, tx, playlistID, []string{songID})
	if err != nil {
		return nil, err
	}
	if order < 1 || order > len(current)+1 {
		return nil, validationError("order must be between 1 and %d", len(current)+1)
	}

	added, err := tx.InsertMemberships(ctx, playlistID, []string{songID}, len(current)+1)
	if err != nil {
		return nil, err
	}
	m := added[0]
	if order == len(current)+1 {
		return &m, nil
	}

	ids := make([]string, 0, len(current)+1)
	for _, c := range current[:order-1] {
		ids = append(ids, c.ID)
	}
	ids = append(ids, m.ID)
	for _, c := range current[order-1:] {
		ids = append(ids, c.ID)
	}
	if err := tx.Renumber(ctx, playlistID, ids); err != nil {
		return nil, err
	}
	m.Order = order
	return &m, nil
}

// Remove deletes songID from the playlist and closes the gap it leaves.
func (s *Sequencer) Remove(ctx context.Context, tx Tx, playlistID, songID string) error {
	current, err := tx.ListMemberships(ctx, playlistID)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(current, func(m Membership) bool { return m.SongID == songID })
	if idx < 0 {
		return notFound("song not found in playlist")
	}

	if err := tx.DeleteMembership(ctx, playlistID, songID); err != nil {
		return err
	}

	remaining := make([]string, 0, len(current)-1)
	for i, m := range current {
		if i != idx {
			remaining = append(remaining, m.ID)
		}
	}
	return tx.Renumber(ctx, playlistID, remaining)
}

// prepare validates a batch against the playlist's current songs and the
// catalog, and returns the current songs in order.
func (s *Sequencer) prepare(ctx context.Context, tx Tx, playlistID string, songIDs []string) ([]Membership, error) {
	if len(songIDs) == 0 {
		return nil, validationError("songIds must not be empty")
	}
	seen := make(map[string]struct{}, len(songIDs))
	for _, id := range songIDs {
		if strings.TrimSpace(id) == "" {
			return nil, validationError("song id must not be empty")
		}
		if _, dup := seen[id]; dup {
			return nil, conflict("song %s appears more than once", id)
		}
		seen[id] = struct{}{}
	}

	current, err := tx.ListMemberships(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	for _, m := range current {
		if _, ok := seen[m.SongID]; ok {
			return nil, conflict("song %s is already in the playlist", m.SongID)
		}
	}

	for _, id := range songIDs {
		ok, err := s.songs.SongExists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, notFound("song %s not found", id)
		}
	}
	return current, nil
}

func sortByOrder(ms []Membership) {
	slices.SortFunc(ms, func(a, b Membership) int { return cmp.Compare(a.Order, b.Order) })
}
