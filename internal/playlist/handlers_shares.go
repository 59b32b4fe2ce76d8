package playlist

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleShare grants or replaces a user's access: {"userId", "permission"}.
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID     string `json:"userId"`
		Permission string `json:"permission"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	perm, err := ParsePermission(body.Permission)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	sh, err := s.svc.Share(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"), body.UserID, perm)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sh)
}

func (s *Server) handleRevokeShare(w http.ResponseWriter, r *http.Request) {
	err := s.svc.RevokeShare(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "userId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
