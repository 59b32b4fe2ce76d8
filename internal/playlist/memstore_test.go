package playlist

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store. Transactions are serialized and work on a
// copy of the state that replaces the original only on commit, which is
// enough to model row locks and rollback.
type memStore struct {
	mu    sync.Mutex
	state memState
	clock time.Time

	// commitErr, when set, fails the next write commit.
	commitErr error
}

type memState struct {
	playlists map[string]Playlist
	songs     map[string][]Membership
	shares    map[string]map[string]Share
}

func newMemStore() *memStore {
	return &memStore{
		state: memState{
			playlists: map[string]Playlist{},
			songs:     map[string][]Membership{},
			shares:    map[string]map[string]Share{},
		},
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (st memState) clone() memState {
	out := memState{
		playlists: maps.Clone(st.playlists),
		songs:     make(map[string][]Membership, len(st.songs)),
		shares:    make(map[string]map[string]Share, len(st.shares)),
	}
	for k, v := range st.songs {
		out.songs[k] = slices.Clone(v)
	}
	for k, v := range st.shares {
		out.shares[k] = maps.Clone(v)
	}
	return out
}

func (s *memStore) ReadTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memTx{store: s, st: s.state.clone()})
}

func (s *memStore) WriteTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, st: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if s.commitErr != nil {
		err := s.commitErr
		s.commitErr = nil
		return err
	}
	if err := tx.st.checkPositions(); err != nil {
		return err
	}
	s.state = tx.st
	return nil
}

// checkPositions plays the part of the deferred UNIQUE(playlist_id, position).
func (st memState) checkPositions() error {
	for pid, ms := range st.songs {
		seen := map[int]bool{}
		for _, m := range ms {
			if seen[m.Order] {
				return fmt.Errorf("duplicate position %d in %s: %w", m.Order, pid, &Error{Kind: ErrConflict, Msg: "concurrent modification, retry"})
			}
			seen[m.Order] = true
		}
	}
	return nil
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

// songsOf returns committed memberships in order.
func (s *memStore) songsOf(playlistID string) []Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.state.songs[playlistID])
	sortByOrder(out)
	return out
}

func (s *memStore) sharesOf(playlistID string) map[string]Share {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.state.shares[playlistID])
}

func (s *memStore) hasPlaylist(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.state.playlists[id]
	return ok
}

type memTx struct {
	store *memStore
	st    memState
}

var errMemNoRows = &Error{Kind: ErrNotFound, Msg: "not found"}

func (t *memTx) GetPlaylist(ctx context.Context, id string, lock bool) (*Playlist, error) {
	pl, ok := t.st.playlists[id]
	if !ok {
		return nil, errMemNoRows
	}
	return &pl, nil
}

func (t *memTx) GetShare(ctx context.Context, playlistID, userID string) (*Share, error) {
	sh, ok := t.st.shares[playlistID][userID]
	if !ok {
		return nil, errMemNoRows
	}
	return &sh, nil
}

func (t *memTx) ListOwnedPlaylists(ctx context.Context, ownerID string, publicOnly bool) ([]Playlist, error) {
	out := []Playlist{}
	for _, pl := range t.st.playlists {
		if pl.OwnerID == ownerID && (!publicOnly || pl.IsPublic) {
			out = append(out, pl)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (t *memTx) ListSharedPlaylists(ctx context.Context, userID string) ([]Playlist, error) {
	out := []Playlist{}
	for pid, shares := range t.st.shares {
		if _, ok := shares[userID]; ok {
			out = append(out, t.st.playlists[pid])
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(pls []Playlist) {
	slices.SortFunc(pls, func(a, b Playlist) int { return b.CreatedAt.Compare(a.CreatedAt) })
}

func (t *memTx) ListMemberships(ctx context.Context, playlistID string) ([]Membership, error) {
	out := slices.Clone(t.st.songs[playlistID])
	if out == nil {
		out = []Membership{}
	}
	sortByOrder(out)
	return out, nil
}

func (t *memTx) ListShares(ctx context.Context, playlistID string) ([]Share, error) {
	out := []Share{}
	for _, sh := range t.st.shares[playlistID] {
		out = append(out, sh)
	}
	slices.SortFunc(out, func(a, b Share) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (t *memTx) InsertPlaylist(ctx context.Context, pl *Playlist) error {
	now := t.store.tick()
	pl.ID = uuid.NewString()
	pl.CreatedAt, pl.UpdatedAt = now, now
	t.st.playlists[pl.ID] = *pl
	return nil
}

func (t *memTx) UpdatePlaylist(ctx context.Context, pl *Playlist) error {
	if _, ok := t.st.playlists[pl.ID]; !ok {
		return errMemNoRows
	}
	pl.UpdatedAt = t.store.tick()
	t.st.playlists[pl.ID] = *pl
	return nil
}

func (t *memTx) DeletePlaylist(ctx context.Context, id string) error {
	if _, ok := t.st.playlists[id]; !ok {
		return errPlaylistNotFound()
	}
	if len(t.st.songs[id]) > 0 || len(t.st.shares[id]) > 0 {
		return fmt.Errorf("delete playlist %s: still referenced", id)
	}
	delete(t.st.playlists, id)
	return nil
}

func (t *memTx) InsertMemberships(ctx context.Context, playlistID string, songIDs []string, firstOrder int) ([]Membership, error) {
	out := make([]Membership, 0, len(songIDs))
	for i, songID := range songIDs {
		for _, m := range t.st.songs[playlistID] {
			if m.SongID == songID {
				return nil, &Error{Kind: ErrConflict, Msg: "concurrent modification, retry"}
			}
		}
		m := Membership{
			ID:         uuid.NewString(),
			PlaylistID: playlistID,
			SongID:     songID,
			Order:      firstOrder + i,
			AddedAt:    t.store.tick(),
		}
		t.st.songs[playlistID] = append(t.st.songs[playlistID], m)
		out = append(out, m)
	}
	return out, nil
}

func (t *memTx) DeleteMembership(ctx context.Context, playlistID, songID string) error {
	ms := t.st.songs[playlistID]
	idx := slices.IndexFunc(ms, func(m Membership) bool { return m.SongID == songID })
	if idx < 0 {
		return notFound("song not found in playlist")
	}
	t.st.songs[playlistID] = slices.Delete(ms, idx, idx+1)
	return nil
}

func (t *memTx) DeleteMemberships(ctx context.Context, playlistID string) (int64, error) {
	n := len(t.st.songs[playlistID])
	delete(t.st.songs, playlistID)
	return int64(n), nil
}

func (t *memTx) Renumber(ctx context.Context, playlistID string, membershipIDs []string) error {
	ms := t.st.songs[playlistID]
	for i, id := range membershipIDs {
		idx := slices.IndexFunc(ms, func(m Membership) bool { return m.ID == id })
		if idx >= 0 {
			ms[idx].Order = i + 1
		}
	}
	return nil
}

func (t *memTx) UpsertShare(ctx context.Context, playlistID, userID string, perm Permission) (*Share, error) {
	if t.st.shares[playlistID] == nil {
		t.st.shares[playlistID] = map[string]Share{}
	}
	now := t.store.tick()
	sh, ok := t.st.shares[playlistID][userID]
	if !ok {
		sh = Share{ID: uuid.NewString(), PlaylistID: playlistID, UserID: userID, CreatedAt: now}
	}
	sh.Permission = perm
	sh.UpdatedAt = now
	t.st.shares[playlistID][userID] = sh
	return &sh, nil
}

func (t *memTx) DeleteShare(ctx context.Context, playlistID, userID string) error {
	if _, ok := t.st.shares[playlistID][userID]; !ok {
		return notFound("share not found")
	}
	delete(t.st.shares[playlistID], userID)
	return nil
}

func (t *memTx) DeleteShares(ctx context.Context, playlistID string) (int64, error) {
	n := len(t.st.shares[playlistID])
	delete(t.st.shares, playlistID)
	return int64(n), nil
}

// fakeOracle knows a fixed set of songs and users.
type fakeOracle struct {
	mu    sync.Mutex
	songs map[string]bool
	users map[string]bool
	err   error
	calls int
}

func newFakeOracle(users []string, songs []string) *fakeOracle {
	o := &fakeOracle{songs: map[string]bool{}, users: map[string]bool{}}
	for _, u := range users {
		o.users[u] = true
	}
	for _, s := range songs {
		o.songs[s] = true
	}
	return o
}

func (o *fakeOracle) SongExists(ctx context.Context, songID string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	return o.songs[songID], o.err
}

func (o *fakeOracle) UserExists(ctx context.Context, userID string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	return o.users[userID], o.err
}

// recordingPublisher keeps the types of published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(ctx context.Context, eventType string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.events)
}

// requireDense fails unless the playlist's orders are exactly 1..n.
func requireDense(t *testing.T, ms []Membership) {
	t.Helper()
	sorted := slices.Clone(ms)
	sortByOrder(sorted)
	for i, m := range sorted {
		require.Equal(t, i+1, m.Order, "orders: %v", orders(sorted))
	}
}

func orders(ms []Membership) []int {
	out := make([]int, len(ms))
	for i, m := range ms {
		out[i] = m.Order
	}
	return out
}

func songIDs(ms []Membership) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.SongID
	}
	return out
}
