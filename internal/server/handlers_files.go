package server

import (
	"net/http"
	"strings"

	"colorflow/internal/api"
	"colorflow/internal/lifecycle"
	"colorflow/internal/store"
)

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.FileFilter{
		Site:   query.Get("site"),
		Search: query.Get("search"),
	}
	if raw := strings.TrimSpace(query.Get("state")); raw != "" {
		state, ok := store.ParseFileState(raw)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown state "+raw)
			return
		}
		filter.State = state
	}

	files, err := s.store.ListFiles(r.Context(), filter)
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FileListResponse{Files: api.FromFiles(files)})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	file, err := s.store.GetFile(r.Context(), id)
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	if file == nil {
		s.writeError(w, http.StatusNotFound, "file "+id+" not found")
		return
	}
	s.writeFile(w, file)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Delete(r.Context(), r.PathValue("id"), actorFrom(r)); err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleStartTransfer(w http.ResponseWriter, r *http.Request) {
	var req api.StartTransferRequest
	if r.ContentLength > 0 && !s.decode(w, r, &req) {
		return
	}
	file, err := s.engine.StartTransfer(r.Context(), r.PathValue("id"), req.ExternalJobID, actorFrom(r))
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeFile(w, file)
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req api.AssignRequest
	if r.ContentLength > 0 && !s.decode(w, r, &req) {
		return
	}
	file, err := s.engine.Assign(r.Context(), r.PathValue("id"), req.UserID, actorFrom(r))
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeFile(w, file)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req api.RejectRequest
	if r.ContentLength > 0 && !s.decode(w, r, &req) {
		return
	}
	file, err := s.engine.Reject(r.Context(), r.PathValue("id"), req.Reason, actorFrom(r))
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeFile(w, file)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	var req api.ProgressRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	if err := s.engine.SetTransferProgress(r.Context(), id, req.Percent); err != nil {
		s.writeOperationError(w, err)
		return
	}
	file, err := s.store.GetFile(r.Context(), id)
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeFile(w, file)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	task, err := s.coord.Cleanup(r.Context(), r.PathValue("id"), actorFrom(r))
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromCleanupTask(task))
}

func (s *Server) handleRetransfer(w http.ResponseWriter, r *http.Request) {
	task, err := s.coord.Retransfer(r.Context(), r.PathValue("id"), actorFrom(r))
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromRetransferTask(task))
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req api.BulkRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.FileIDs) == 0 {
		s.writeError(w, http.StatusBadRequest, "file_ids required")
		return
	}

	actor := actorFrom(r)
	ctx := r.Context()
	var result lifecycle.BulkResult
	switch op := r.PathValue("op"); op {
	case "validate":
		result = s.engine.BulkValidate(ctx, req.FileIDs, actor)
	case "assign":
		result = s.engine.BulkAssign(ctx, req.FileIDs, req.UserID, actor)
	case "start-work":
		result = s.engine.BulkStartWork(ctx, req.FileIDs, actor)
	case "deliver":
		result = s.engine.BulkDeliver(ctx, req.FileIDs, actor)
	case "reject":
		result = s.engine.BulkReject(ctx, req.FileIDs, req.Reason, actor)
	case "delete":
		result = s.engine.BulkDelete(ctx, req.FileIDs, actor)
	default:
		s.writeError(w, http.StatusBadRequest, "unknown bulk operation "+op)
		return
	}

	resp := api.BulkResponse{Succeeded: result.Succeeded, Failed: result.Failed}
	for _, failure := range result.Failures {
		resp.Failures = append(resp.Failures, api.BulkFailure{FileID: failure.FileID, Error: failure.Error})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFileAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.FileAudit(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.AuditListResponse{Entries: api.FromAuditEntries(entries)})
}

func (s *Server) handleFileTransfers(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.TransfersForFile(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	views := make([]api.TransferView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, api.FromTransfer(job))
	}
	s.writeJSON(w, http.StatusOK, api.TransferListResponse{Transfers: views})
}
