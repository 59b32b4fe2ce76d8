package playlist

import (
	"context"
	"strings"
)

// SharingManager grants and revokes per-user rights on a playlist.
type SharingManager struct {
	access AccessController
	users  UserOracle
}

func NewSharingManager(users UserOracle) *SharingManager {
	return &SharingManager{users: users}
}

// Share creates or replaces the grantee's share. Only the owner may share,
// and never with themselves.
func (m *SharingManager) Share(ctx context.Context, tx Tx, playlistID, callerID, granteeID string, perm Permission) (*Share, error) {
	pl, access, err := m.access.Resolve(ctx, tx, playlistID, callerID, true)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(access); err != nil {
		return nil, err
	}

	granteeID = strings.TrimSpace(granteeID)
	if granteeID == "" {
		return nil, validationError("userId is required")
	}
	if perm != PermissionView && perm != PermissionEdit {
		return nil, validationError(`invalid permission (must be "VIEW" or "EDIT")`)
	}
	if granteeID == pl.OwnerID {
		return nil, validationError("cannot share a playlist with its owner")
	}

	ok, err := m.users.UserExists(ctx, granteeID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("user not found")
	}

	return tx.UpsertShare(ctx, playlistID, granteeID, perm)
}

// Revoke removes the grantee's share.
func (m *SharingManager) Revoke(ctx context.Context, tx Tx, playlistID, callerID, granteeID string) error {
	_, access, err := m.access.Resolve(ctx, tx, playlistID, callerID, true)
	if err != nil {
		return err
	}
	if err := requireOwner(access); err != nil {
		return err
	}
	return tx.DeleteShare(ctx, playlistID, strings.TrimSpace(granteeID))
}
