package playlist

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Permission is the right recorded on a Share.
type Permission string

const (
	PermissionView Permission = "VIEW"
	PermissionEdit Permission = "EDIT"
)

// ParsePermission accepts VIEW or EDIT in any letter case.
func ParsePermission(raw string) (Permission, error) {
	switch p := Permission(strings.ToUpper(strings.TrimSpace(raw))); p {
	case PermissionView, PermissionEdit:
		return p, nil
	}
	return "", validationError(`invalid permission (must be "VIEW" or "EDIT")`)
}

// Access is a caller's effective right on one playlist.
type Access int

const (
	AccessNone Access = iota
	AccessViewer
	AccessEditor
	AccessOwner
)

func (a Access) String() string {
	switch a {
	case AccessOwner:
		return "OWNER"
	case AccessEditor:
		return "EDITOR"
	case AccessViewer:
		return "VIEWER"
	default:
		return "NONE"
	}
}

func (a Access) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a Access) CanView() bool { return a >= AccessViewer }
func (a Access) CanEdit() bool { return a >= AccessEditor }
func (a Access) IsOwner() bool { return a == AccessOwner }

// ResolvePermission computes the caller's access from the playlist record and
// the caller's share row, which may be nil.
func ResolvePermission(pl *Playlist, share *Share, callerID string) Access {
	if callerID != "" && pl.OwnerID == callerID {
		return AccessOwner
	}
	if share != nil && share.UserID == callerID {
		switch share.Permission {
		case PermissionEdit:
			return AccessEditor
		case PermissionView:
			return AccessViewer
		}
	}
	if pl.IsPublic {
		return AccessViewer
	}
	return AccessNone
}

// AccessController loads what ResolvePermission needs from a transaction.
type AccessController struct{}

// Resolve looks up the playlist and, for non-owners, the caller's share.
// With lock the playlist row stays locked until the transaction ends.
func (AccessController) Resolve(ctx context.Context, tx Tx, playlistID, callerID string, lock bool) (*Playlist, Access, error) {
	pl, err := tx.GetPlaylist(ctx, playlistID, lock)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, AccessNone, errPlaylistNotFound()
		}
		return nil, AccessNone, err
	}
	if callerID == "" || pl.OwnerID == callerID {
		return pl, ResolvePermission(pl, nil, callerID), nil
	}

	share, err := tx.GetShare(ctx, playlistID, callerID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, AccessNone, err
	}
	return pl, ResolvePermission(pl, share, callerID), nil
}

func requireView(a Access) error {
	if !a.CanView() {
		return errPlaylistNotFound()
	}
	return nil
}

func requireEdit(a Access) error {
	if !a.CanView() {
		return errPlaylistNotFound()
	}
	if !a.CanEdit() {
		return accessDenied("edit permission required")
	}
	return nil
}

func requireOwner(a Access) error {
	if !a.CanView() {
		return errPlaylistNotFound()
	}
	if !a.IsOwner() {
		return accessDenied("only the owner can do this")
	}
	return nil
}
