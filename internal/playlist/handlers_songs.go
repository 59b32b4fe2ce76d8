package playlist

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleAddSongs appends a batch of songs: {"songIds": [...]}.
func (s *Server) handleAddSongs(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SongIDs []string `json:"songIds"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	added, err := s.svc.AddSongs(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"), body.SongIDs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

// handleAddSong adds one song. The body is optional; {"order": n} inserts at
// position n instead of appending.
func (s *Server) handleAddSong(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Order *int `json:"order"`
	}
	if !decodeOptionalBody(w, r, &body) {
		return
	}

	m, err := s.svc.AddSong(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "songId"), body.Order)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleRemoveSong(w http.ResponseWriter, r *http.Request) {
	err := s.svc.RemoveSong(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "songId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
