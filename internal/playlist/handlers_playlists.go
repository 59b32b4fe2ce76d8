package playlist

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleCreatePlaylist creates a new playlist owned by the current user.
func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		IsPublic    *bool  `json:"isPublic"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	pl, err := s.svc.Create(r.Context(), callerFrom(r.Context()), CreateInput{
		Name:        body.Name,
		Description: body.Description,
		IsPublic:    body.IsPublic,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pl)
}

func (s *Server) handleListOwnPlaylists(w http.ResponseWriter, r *http.Request) {
	pls, err := s.svc.ListOwned(r.Context(), callerFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(pls))
}

func (s *Server) handleListSharedPlaylists(w http.ResponseWriter, r *http.Request) {
	pls, err := s.svc.ListShared(r.Context(), callerFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(pls))
}

// handleListUserPlaylists lists another user's public playlists.
func (s *Server) handleListUserPlaylists(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "userId")
	pls, err := s.svc.ListPublicByOwner(r.Context(), callerFrom(r.Context()), ownerID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(pls))
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	detail, err := s.svc.Get(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	detail.Songs = nonNil(detail.Songs)
	detail.Shares = nonNil(detail.Shares)
	writeJSON(w, http.StatusOK, detail)
}

// handlePatchPlaylist updates playlist metadata. Only the owner can update.
func (s *Server) handlePatchPlaylist(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		IsPublic    *bool   `json:"isPublic"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	pl, err := s.svc.Update(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"), Patch{
		Name:        body.Name,
		Description: body.Description,
		IsPublic:    body.IsPublic,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pl)
}

func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
