package server

import (
	"net/http"
	"strconv"
	"strings"

	"colorflow/internal/api"
	"colorflow/internal/registry"
	"colorflow/internal/store"
)

func (s *Server) handleRecentAudit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.store.RecentAudit(r.Context(), limit)
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.AuditListResponse{Entries: api.FromAuditEntries(entries)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.StatsByState(r.Context())
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	resp := api.StatsResponse{States: make(map[string]int, len(stats))}
	for state, count := range stats {
		resp.States[string(state)] = count
		resp.Total += count
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.sites.List(r.Context())
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	views := make([]api.SiteView, 0, len(statuses))
	for _, status := range statuses {
		views = append(views, api.FromSiteStatus(status))
	}
	s.writeJSON(w, http.StatusOK, api.SiteListResponse{Sites: views})
}

func (s *Server) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSiteRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.writeError(w, http.StatusBadRequest, "site name required")
		return
	}
	site, err := s.sites.Create(r.Context(), req.Name, req.ExportPath)
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.FromSiteStatus(registry.SiteStatus{Site: site}))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	views := make([]api.UserView, 0, len(users))
	for _, user := range users {
		views = append(views, api.FromUser(user))
	}
	s.writeJSON(w, http.StatusOK, api.UserListResponse{Users: views})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req api.CreateUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Username) == "" {
		s.writeError(w, http.StatusBadRequest, "username required")
		return
	}
	user, err := s.store.CreateUser(r.Context(), store.NewUserParams{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Role:        req.Role,
	})
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.FromUser(user))
}
