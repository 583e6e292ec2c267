package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"colorflow/internal/api"
)

// apiClient is the CLI's HTTP client for the orchestrator API.
type apiClient struct {
	baseURL string
	userID  string
	http    *http.Client
}

func newAPIClient(baseURL, userID string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError carries the orchestrator's error message and HTTP status.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("orchestrator returned status %d", e.Status)
	}
	return e.Message
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to orchestrator at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return &apiError{Status: resp.StatusCode, Message: payload.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) ListFiles(ctx context.Context, state, site, search string) ([]api.FileView, error) {
	query := url.Values{}
	if state != "" {
		query.Set("state", state)
	}
	if site != "" {
		query.Set("site", site)
	}
	if search != "" {
		query.Set("search", search)
	}
	path := "/api/files"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp api.FileListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

func (c *apiClient) RegisterFile(ctx context.Context, req api.RegisterFileRequest) (api.FileView, error) {
	var file api.FileView
	err := c.do(ctx, http.MethodPost, "/api/files", req, &file)
	return file, err
}

func (c *apiClient) GetFile(ctx context.Context, id string) (api.FileView, error) {
	var file api.FileView
	err := c.do(ctx, http.MethodGet, "/api/files/"+url.PathEscape(id), nil, &file)
	return file, err
}

// FileOp posts a lifecycle operation for a single file and returns the
// updated view.
func (c *apiClient) FileOp(ctx context.Context, id, op string, body any) (api.FileView, error) {
	var file api.FileView
	err := c.do(ctx, http.MethodPost, "/api/files/"+url.PathEscape(id)+"/"+op, body, &file)
	return file, err
}

func (c *apiClient) DeleteFile(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/files/"+url.PathEscape(id), nil, nil)
}

func (c *apiClient) Bulk(ctx context.Context, op string, req api.BulkRequest) (api.BulkResponse, error) {
	var resp api.BulkResponse
	err := c.do(ctx, http.MethodPost, "/api/files/bulk/"+op, req, &resp)
	return resp, err
}

func (c *apiClient) Cleanup(ctx context.Context, id string) (api.CleanupTaskView, error) {
	var task api.CleanupTaskView
	err := c.do(ctx, http.MethodPost, "/api/files/"+url.PathEscape(id)+"/cleanup", nil, &task)
	return task, err
}

func (c *apiClient) Retransfer(ctx context.Context, id string) (api.RetransferTaskView, error) {
	var task api.RetransferTaskView
	err := c.do(ctx, http.MethodPost, "/api/files/"+url.PathEscape(id)+"/retransfer", nil, &task)
	return task, err
}

func (c *apiClient) FileAudit(ctx context.Context, id string) ([]api.AuditView, error) {
	var resp api.AuditListResponse
	if err := c.do(ctx, http.MethodGet, "/api/files/"+url.PathEscape(id)+"/audit", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (c *apiClient) FileTransfers(ctx context.Context, id string) ([]api.TransferView, error) {
	var resp api.TransferListResponse
	if err := c.do(ctx, http.MethodGet, "/api/files/"+url.PathEscape(id)+"/transfers", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Transfers, nil
}

func (c *apiClient) RecentAudit(ctx context.Context, limit int) ([]api.AuditView, error) {
	path := "/api/audit"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp api.AuditListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (c *apiClient) Stats(ctx context.Context) (api.StatsResponse, error) {
	var resp api.StatsResponse
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, &resp)
	return resp, err
}

func (c *apiClient) Sites(ctx context.Context) ([]api.SiteView, error) {
	var resp api.SiteListResponse
	if err := c.do(ctx, http.MethodGet, "/api/sites", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sites, nil
}

func (c *apiClient) CreateSite(ctx context.Context, req api.CreateSiteRequest) (api.SiteView, error) {
	var site api.SiteView
	err := c.do(ctx, http.MethodPost, "/api/sites", req, &site)
	return site, err
}

func (c *apiClient) Users(ctx context.Context) ([]api.UserView, error) {
	var resp api.UserListResponse
	if err := c.do(ctx, http.MethodGet, "/api/users", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (c *apiClient) CreateUser(ctx context.Context, req api.CreateUserRequest) (api.UserView, error) {
	var user api.UserView
	err := c.do(ctx, http.MethodPost, "/api/users", req, &user)
	return user, err
}
