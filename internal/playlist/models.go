package playlist

import (
	"time"
)

// Playlist is the metadata record of a playlist. Songs and shares are
// modelled separately.
type Playlist struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsPublic    bool      `json:"isPublic"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Membership places one song in a playlist. Orders are 1-based and dense.
type Membership struct {
	ID         string    `json:"id"`
	PlaylistID string    `json:"playlistId"`
	SongID     string    `json:"songId"`
	Order      int       `json:"order"`
	AddedAt    time.Time `json:"addedAt"`
}

// Share grants a non-owner user VIEW or EDIT rights on a playlist.
type Share struct {
	ID         string     `json:"id"`
	PlaylistID string     `json:"playlistId"`
	UserID     string     `json:"userId"`
	Permission Permission `json:"permission"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// PlaylistDetail is a playlist read together with its songs and shares.
type PlaylistDetail struct {
	Playlist Playlist     `json:"playlist"`
	Songs    []Membership `json:"songs"`
	Shares   []Share      `json:"shares"`
	Access   Access       `json:"access"`
}

// Caller is the identity a request acts on behalf of.
type Caller struct {
	UserID string
	Role   string
}

// CreateInput holds the fields accepted when creating a playlist.
type CreateInput struct {
	Name        string
	Description string
	IsPublic    *bool
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	Name        *string
	Description *string
	IsPublic    *bool
}

const (
	maxNameLen        = 200
	maxDescriptionLen = 1000
)
