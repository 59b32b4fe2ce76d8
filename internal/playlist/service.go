package playlist

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Service is the playlist lifecycle manager. It is the only way the HTTP
// layer reads or changes playlists, songs and shares; every method takes the
// caller explicitly and authorizes before it writes.
type Service struct {
	store   Store
	users   UserOracle
	access  AccessController
	seq     *Sequencer
	sharing *SharingManager
	events  EventPublisher
}

func NewService(store Store, oracle Oracle, events EventPublisher) *Service {
	if events == nil {
		events = (*RedisPublisher)(nil)
	}
	return &Service{
		store:   store,
		users:   oracle,
		seq:     NewSequencer(oracle),
		sharing: NewSharingManager(oracle),
		events:  events,
	}
}

// Create makes a new private (unless requested otherwise) playlist owned by
// the caller.
func (s *Service) Create(ctx context.Context, caller Caller, in CreateInput) (*Playlist, error) {
	if caller.UserID == "" {
		return nil, validationError("missing user context")
	}
	name, err := cleanName(in.Name)
	if err != nil {
		return nil, err
	}
	desc, err := cleanDescription(in.Description)
	if err != nil {
		return nil, err
	}

	ok, err := s.users.UserExists(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("user not found")
	}

	pl := &Playlist{
		OwnerID:     caller.UserID,
		Name:        name,
		Description: desc,
		IsPublic:    in.IsPublic != nil && *in.IsPublic,
	}
	err = s.store.WriteTx(ctx, func(tx Tx) error {
		return tx.InsertPlaylist(ctx, pl)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, eventPlaylistCreated, map[string]any{"playlist": pl})
	return pl, nil
}

// Get returns the playlist with its songs and shares, read from one snapshot.
// Callers without view access get NotFound.
func (s *Service) Get(ctx context.Context, caller Caller, playlistID string) (*PlaylistDetail, error) {
	if !validID(playlistID) {
		return nil, errPlaylistNotFound()
	}

	var out PlaylistDetail
	err := s.store.ReadTx(ctx, func(tx Tx) error {
		pl, access, err := s.access.Resolve(ctx, tx, playlistID, caller.UserID, false)
		if err != nil {
			return err
		}
		if err := requireView(access); err != nil {
			return err
		}
		songs, err := tx.ListMemberships(ctx, playlistID)
		if err != nil {
			return err
		}
		shares, err := tx.ListShares(ctx, playlistID)
		if err != nil {
			return err
		}
		out = PlaylistDetail{Playlist: *pl, Songs: songs, Shares: shares, Access: access}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListOwned returns the caller's own playlists, newest first.
func (s *Service) ListOwned(ctx context.Context, caller Caller) ([]Playlist, error) {
	var out []Playlist
	err := s.store.ReadTx(ctx, func(tx Tx) (err error) {
		out, err = tx.ListOwnedPlaylists(ctx, caller.UserID, false)
		return err
	})
	return out, err
}

// ListShared returns the playlists other users have shared with the caller.
func (s *Service) ListShared(ctx context.Context, caller Caller) ([]Playlist, error) {
	var out []Playlist
	err := s.store.ReadTx(ctx, func(tx Tx) (err error) {
		out, err = tx.ListSharedPlaylists(ctx, caller.UserID)
		return err
	})
	return out, err
}

// ListPublicByOwner returns ownerID's public playlists. Callers asking about
// themselves get their private ones too.
func (s *Service) ListPublicByOwner(ctx context.Context, caller Caller, ownerID string) ([]Playlist, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, validationError("missing user id")
	}
	publicOnly := ownerID != caller.UserID

	var out []Playlist
	err := s.store.ReadTx(ctx, func(tx Tx) (err error) {
		out, err = tx.ListOwnedPlaylists(ctx, ownerID, publicOnly)
		return err
	})
	return out, err
}

// Update applies patch. Owner only.
func (s *Service) Update(ctx context.Context, caller Caller, playlistID string, patch Patch) (*Playlist, error) {
	if !validID(playlistID) {
		return nil, errPlaylistNotFound()
	}

	var updated *Playlist
	err := s.store.WriteTx(ctx, func(tx Tx) error {
		pl, access, err := s.access.Resolve(ctx, tx, playlistID, caller.UserID, true)
		if err != nil {
			return err
		}
		if err := requireOwner(access); err != nil {
			return err
		}

		if patch.Name != nil {
			name, err := cleanName(*patch.Name)
			if err != nil {
				return err
			}
			pl.Name = name
		}
		if patch.Description != nil {
			desc, err := cleanDescription(*patch.Description)
			if err != nil {
				return err
			}
			pl.Description = desc
		}
		if patch.IsPublic != nil {
			pl.IsPublic = *patch.IsPublic
		}

		if err := tx.UpdatePlaylist(ctx, pl); err != nil {
			return err
		}
		updated = pl
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, eventPlaylistUpdated, map[string]any{"playlist": updated})
	return updated, nil
}

// Delete removes the playlist with its songs and shares. Owner only.
func (s *Service) Delete(ctx context.Context, caller Caller, playlistID string) error {
	if !validID(playlistID) {
		return errPlaylistNotFound()
	}

	err := s.store.WriteTx(ctx, func(tx Tx) error {
		_, access, err := s.access.Resolve(ctx, tx, playlistID, caller.UserID, true)
		if err != nil {
			return err
		}
		if err := requireOwner(access); err != nil {
			return err
		}
		if _, err := tx.DeleteMemberships(ctx, playlistID); err != nil {
			return err
		}
		if _, err := tx.DeleteShares(ctx, playlistID); err != nil {
			return err
		}
		return tx.DeletePlaylist(ctx, playlistID)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, eventPlaylistDeleted, map[string]any{"playlistId": playlistID})
	return nil
}

// AddSong appends songID, or inserts it at order when one is given.
func (s *Service) AddSong(ctx context.Context, caller Caller, playlistID, songID string, order *int) (*Membership, error) {
	if !validID(playlistID) {
		return nil, errPlaylistNotFound()
	}

	var added *Membership
	err := s.store.WriteTx(ctx, func(tx Tx) error {
		if err := s.authorizeEdit(ctx, tx, playlistID, caller); err != nil {
			return err
		}
		var err error
		if order != nil {
			added, err = s.seq.InsertAt(ctx, tx, playlistID, songID, *order)
		} else {
			added, err = s.seq.Append(ctx, tx, playlistID, songID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, eventSongAdded, map[string]any{
		"playlistId": playlistID,
		"song":       added,
		"userId":     caller.UserID,
	})
	return added, nil
}

// AddSongs appends songIDs in order, all or nothing.
func (s *Service) AddSongs(ctx context.Context, caller Caller, playlistID string, songIDs []string) ([]Membership, error) {
	if !validID(playlistID) {
		return nil, errPlaylistNotFound()
	}

	var added []Membership
	err := s.store.WriteTx(ctx, func(tx Tx) error {
		if err := s.authorizeEdit(ctx, tx, playlistID, caller); err != nil {
			return err
		}
		var err error
		added, err = s.seq.AppendMany(ctx, tx, playlistID, songIDs)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, eventSongsAdded, map[string]any{
		"playlistId": playlistID,
		"songs":      added,
		"userId":     caller.UserID,
	})
	return added, nil
}

// RemoveSong deletes songID and renumbers what remains.
func (s *Service) RemoveSong(ctx context.Context, caller Caller, playlistID, songID string) error {
	if !validID(playlistID) {
		return errPlaylistNotFound()
	}

	err := s.store.WriteTx(ctx, func(tx Tx) error {
		if err := s.authorizeEdit(ctx, tx, playlistID, caller); err != nil {
			return err
		}
		return s.seq.Remove(ctx, tx, playlistID, songID)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, eventSongRemoved, map[string]any{
		"playlistId": playlistID,
		"songId":     songID,
		"userId":     caller.UserID,
	})
	return nil
}

// Share grants granteeID perm on the playlist, replacing any earlier grant.
func (s *Service) Share(ctx context.Context, caller Caller, playlistID, granteeID string, perm Permission) (*Share, error) {
	if !validID(playlistID) {
		return nil, errPlaylistNotFound()
	}

	var sh *Share
	err := s.store.WriteTx(ctx, func(tx Tx) (err error) {
		sh, err = s.sharing.Share(ctx, tx, playlistID, caller.UserID, granteeID, perm)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, eventShared, map[string]any{"playlistId": playlistID, "share": sh})
	return sh, nil
}

// RevokeShare removes granteeID's share.
func (s *Service) RevokeShare(ctx context.Context, caller Caller, playlistID, granteeID string) error {
	if !validID(playlistID) {
		return errPlaylistNotFound()
	}

	err := s.store.WriteTx(ctx, func(tx Tx) error {
		return s.sharing.Revoke(ctx, tx, playlistID, caller.UserID, granteeID)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, eventShareRevoked, map[string]any{"playlistId": playlistID, "userId": granteeID})
	return nil
}

func (s *Service) authorizeEdit(ctx context.Context, tx Tx, playlistID string, caller Caller) error {
	_, access, err := s.access.Resolve(ctx, tx, playlistID, caller.UserID, true)
	if err != nil {
		return err
	}
	return requireEdit(access)
}

// publish runs after commit, so it must not inherit the request's
// cancellation.
func (s *Service) publish(ctx context.Context, eventType string, payload any) {
	s.events.Publish(context.WithoutCancel(ctx), eventType, payload)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func cleanName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || utf8.RuneCountInString(name) > maxNameLen {
		return "", validationError("name must be between 1 and %d characters", maxNameLen)
	}
	return name, nil
}

func cleanDescription(raw string) (string, error) {
	desc := strings.TrimSpace(raw)
	if utf8.RuneCountInString(desc) > maxDescriptionLen {
		return "", validationError("description is too long")
	}
	return desc, nil
}
