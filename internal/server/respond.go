package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"colorflow/internal/api"
	"colorflow/internal/lifecycle"
	"colorflow/internal/logging"
	"colorflow/internal/store"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeFile(w http.ResponseWriter, file *store.File) {
	s.writeJSON(w, http.StatusOK, api.FromFile(file))
}

// writeOperationError maps the lifecycle error taxonomy onto HTTP statuses:
// missing entities are 404, precondition conflicts are 409, bad input is 400.
func (s *Server) writeOperationError(w http.ResponseWriter, err error) {
	var (
		notFound *lifecycle.NotFoundError
		invalid  *lifecycle.InvalidTransitionError
		locked   *lifecycle.LockedDeleteError
		dup      *lifecycle.DuplicateContentError
		unknown  *lifecycle.UnknownUserError
	)
	switch {
	case errors.As(err, &notFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &invalid), errors.As(err, &locked), errors.As(err, &dup),
		errors.Is(err, lifecycle.ErrNoAssigneeAvailable):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &unknown):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("operation failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}
