package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"colorflow/internal/api"
)

const clientUserAgent = "Colorflow-Agent/0.1.0"

// Client talks to the orchestrator's daemon endpoints.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a daemon API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Heartbeat reports liveness and fetches the tasks pending for the site.
func (c *Client) Heartbeat(ctx context.Context, site string) (*api.HeartbeatResponse, error) {
	var resp api.HeartbeatResponse
	if err := c.post(ctx, "/api/daemon/heartbeat", api.HeartbeatRequest{Site: site}, &resp); err != nil {
		return nil, fmt.Errorf("heartbeat: %w", err)
	}
	return &resp, nil
}

// RegisterFile reports a detected file. A DuplicateError means the content is
// already tracked and the caller should skip the file, not retry.
func (c *Client) RegisterFile(ctx context.Context, req api.RegisterFileRequest) (*api.FileView, error) {
	var file api.FileView
	if err := c.post(ctx, "/api/daemon/files", req, &file); err != nil {
		return nil, fmt.Errorf("register file: %w", err)
	}
	return &file, nil
}

// CheckFile asks whether the orchestrator already knows this content.
func (c *Client) CheckFile(ctx context.Context, hash string) (bool, error) {
	var resp api.CheckFileResponse
	if err := c.post(ctx, "/api/daemon/files/check", api.CheckFileRequest{SHA256Hash: hash}, &resp); err != nil {
		return false, fmt.Errorf("check file: %w", err)
	}
	return resp.Known, nil
}

// CompleteCleanup acknowledges a cleanup task.
func (c *Client) CompleteCleanup(ctx context.Context, taskID string) error {
	if err := c.post(ctx, "/api/daemon/tasks/cleanup/"+taskID+"/complete", nil, nil); err != nil {
		return fmt.Errorf("complete cleanup: %w", err)
	}
	return nil
}

// CompleteRetransfer acknowledges a retransfer task.
func (c *Client) CompleteRetransfer(ctx context.Context, taskID string) error {
	if err := c.post(ctx, "/api/daemon/tasks/retransfer/"+taskID+"/complete", nil, nil); err != nil {
		return fmt.Errorf("complete retransfer: %w", err)
	}
	return nil
}

// DuplicateError reports a registration refused by the dedup ledger.
type DuplicateError struct {
	Message string
}

func (e *DuplicateError) Error() string {
	return e.Message
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", clientUserAgent)
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		message := strings.TrimSpace(string(raw))
		var decoded struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &decoded) == nil && decoded.Error != "" {
			message = decoded.Error
		}
		if resp.StatusCode == http.StatusConflict {
			return &DuplicateError{Message: message}
		}
		return fmt.Errorf("orchestrator returned %d: %s", resp.StatusCode, message)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
