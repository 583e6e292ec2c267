package server

import (
	"net/http"
	"strings"

	"colorflow/internal/api"
	"colorflow/internal/lifecycle"
)

// handleHeartbeat records a daemon check-in and answers with every task still
// pending for its site. Unknown sites are registered on first contact.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req api.HeartbeatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Site) == "" {
		s.writeError(w, http.StatusBadRequest, "site required")
		return
	}

	site, err := s.sites.Heartbeat(r.Context(), req.Site)
	if err != nil {
		s.writeOperationError(w, err)
		return
	}

	cleanup, retransfer, err := s.coord.PendingForSite(r.Context(), site.Name)
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.HeartbeatResponse{
		Site:            site.Name,
		CleanupTasks:    api.FromCleanupTasks(cleanup),
		RetransferTasks: api.FromRetransferTasks(retransfer),
	})
}

func (s *Server) handleRegisterFile(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterFileRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Site) == "" || strings.TrimSpace(req.SourcePath) == "" {
		s.writeError(w, http.StatusBadRequest, "site and source_path required")
		return
	}

	file, err := s.engine.Register(r.Context(), lifecycle.RegisterParams{
		Filename:   req.Filename,
		SourceSite: req.Site,
		SourcePath: req.SourcePath,
		FileSize:   req.FileSize,
		SHA256Hash: req.SHA256Hash,
	}, actorFrom(r))
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.FromFile(file))
}

func (s *Server) handleCheckFile(w http.ResponseWriter, r *http.Request) {
	var req api.CheckFileRequest
	if !s.decode(w, r, &req) {
		return
	}
	entry, err := s.store.HistoryByHash(r.Context(), req.SHA256Hash)
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	resp := api.CheckFileResponse{}
	if entry != nil {
		resp.Known = true
		resp.Filename = entry.Filename
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCompleteCleanup(w http.ResponseWriter, r *http.Request) {
	task, err := s.coord.CompleteCleanup(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromCleanupTask(task))
}

func (s *Server) handleCompleteRetransfer(w http.ResponseWriter, r *http.Request) {
	task, err := s.coord.CompleteRetransfer(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromRetransferTask(task))
}
