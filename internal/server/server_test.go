package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"colorflow/internal/api"
	"colorflow/internal/lifecycle"
	"colorflow/internal/registry"
	"colorflow/internal/server"
	"colorflow/internal/storagefs"
	"colorflow/internal/store"
	"colorflow/internal/tasks"
	"colorflow/internal/testsupport"
)

type env struct {
	store  *store.Store
	server *httptest.Server
	apiKey string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	engine := lifecycle.New(st, nil)
	coord := tasks.NewCoordinator(st, storagefs.New(cfg), nil, cfg, nil)
	reg := registry.New(st, cfg, nil)
	srv := server.New(cfg, st, engine, coord, reg, nil)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &env{store: st, server: ts, apiKey: cfg.Server.DaemonAPIKey}
}

func (e *env) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, out.Bytes()
}

func (e *env) daemonHeaders() map[string]string {
	return map[string]string{"X-API-Key": e.apiKey}
}

func (e *env) registerFile(t *testing.T, name string) api.FileView {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/daemon/files", api.RegisterFileRequest{
		Filename:   name,
		Site:       "tustin",
		SourcePath: "/watch/" + name,
		FileSize:   1024,
		SHA256Hash: fmt.Sprintf("%x", name),
	}, e.daemonHeaders())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register returned %d: %s", resp.StatusCode, body)
	}
	var file api.FileView
	if err := json.Unmarshal(body, &file); err != nil {
		t.Fatalf("decode file: %v", err)
	}
	return file
}

func TestDaemonEndpointsRequireAPIKey(t *testing.T) {
	e := newEnv(t)
	resp, _ := e.do(t, http.MethodPost, "/api/daemon/heartbeat", api.HeartbeatRequest{Site: "tustin"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodPost, "/api/daemon/heartbeat", api.HeartbeatRequest{Site: "tustin"}, e.daemonHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", resp.StatusCode)
	}
}

func TestOperationFlowOverHTTP(t *testing.T) {
	e := newEnv(t)
	file := e.registerFile(t, "spot.mov")

	resp, body := e.do(t, http.MethodPost, "/api/files/"+file.ID+"/validate", nil,
		map[string]string{"X-User-ID": "admin-1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("validate returned %d: %s", resp.StatusCode, body)
	}
	var validated api.FileView
	if err := json.Unmarshal(body, &validated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if validated.State != "validated" || !validated.Locked || validated.ValidatedAt == nil {
		t.Fatalf("unexpected validated view: %+v", validated)
	}

	// Repeating the operation maps InvalidTransition to 409.
	resp, body = e.do(t, http.MethodPost, "/api/files/"+file.ID+"/validate", nil, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", resp.StatusCode, body)
	}

	// Missing file maps to 404.
	resp, _ = e.do(t, http.MethodPost, "/api/files/no-such-id/validate", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAssignWithoutColoristsIsConflict(t *testing.T) {
	e := newEnv(t)
	file := e.registerFile(t, "lonely.mov")
	e.do(t, http.MethodPost, "/api/files/"+file.ID+"/validate", nil, nil)

	resp, body := e.do(t, http.MethodPost, "/api/files/"+file.ID+"/assign", api.AssignRequest{}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for no assignee, got %d: %s", resp.StatusCode, body)
	}

	resp, _ = e.do(t, http.MethodPost, "/api/files/"+file.ID+"/assign", api.AssignRequest{UserID: "ghost"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown user, got %d", resp.StatusCode)
	}
}

func TestHeartbeatDeliversPendingTasks(t *testing.T) {
	e := newEnv(t)
	testsupport.NewColorist(t, e.store, "ava")
	file := e.registerFile(t, "deliverable.mov")

	for _, op := range []string{"validate", "queue", "start-transfer", "complete-transfer", "assign", "start-work", "deliver", "cleanup"} {
		resp, body := e.do(t, http.MethodPost, "/api/files/"+file.ID+"/"+op, nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s returned %d: %s", op, resp.StatusCode, body)
		}
	}

	resp, body := e.do(t, http.MethodPost, "/api/daemon/heartbeat", api.HeartbeatRequest{Site: "tustin"}, e.daemonHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("heartbeat returned %d: %s", resp.StatusCode, body)
	}
	var hb api.HeartbeatResponse
	if err := json.Unmarshal(body, &hb); err != nil {
		t.Fatalf("decode heartbeat: %v", err)
	}
	if len(hb.CleanupTasks) != 1 {
		t.Fatalf("expected one pending cleanup task, got %+v", hb)
	}

	taskID := hb.CleanupTasks[0].ID
	resp, body = e.do(t, http.MethodPost, "/api/daemon/tasks/cleanup/"+taskID+"/complete", nil, e.daemonHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete returned %d: %s", resp.StatusCode, body)
	}
	var task api.CleanupTaskView
	if err := json.Unmarshal(body, &task); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if task.Status != "completed" {
		t.Fatalf("expected completed task, got %+v", task)
	}

	// Duplicate completion is a success no-op.
	resp, _ = e.do(t, http.MethodPost, "/api/daemon/tasks/cleanup/"+taskID+"/complete", nil, e.daemonHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("duplicate complete returned %d", resp.StatusCode)
	}
}

func TestBulkEndpointReportsPerItemResults(t *testing.T) {
	e := newEnv(t)
	good := e.registerFile(t, "bulk-a.mov")
	other := e.registerFile(t, "bulk-b.mov")
	e.do(t, http.MethodPost, "/api/files/"+other.ID+"/validate", nil, nil)

	resp, body := e.do(t, http.MethodPost, "/api/files/bulk/validate", api.BulkRequest{
		FileIDs: []string{good.ID, other.ID, "missing"},
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bulk returned %d: %s", resp.StatusCode, body)
	}
	var result api.BulkResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Succeeded != 1 || result.Failed != 2 || len(result.Failures) != 2 {
		t.Fatalf("unexpected bulk result: %+v", result)
	}
}

func TestStatsAndSiteListing(t *testing.T) {
	e := newEnv(t)
	e.registerFile(t, "stat-a.mov")
	e.registerFile(t, "stat-b.mov")
	e.do(t, http.MethodPost, "/api/daemon/heartbeat", api.HeartbeatRequest{Site: "tustin"}, e.daemonHeaders())

	resp, body := e.do(t, http.MethodGet, "/api/stats", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats returned %d", resp.StatusCode)
	}
	var stats api.StatsResponse
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 2 || stats.States["detected"] != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	resp, body = e.do(t, http.MethodGet, "/api/sites", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sites returned %d", resp.StatusCode)
	}
	var sites api.SiteListResponse
	if err := json.Unmarshal(body, &sites); err != nil {
		t.Fatalf("decode sites: %v", err)
	}
	if len(sites.Sites) != 1 || !sites.Sites[0].Online {
		t.Fatalf("expected one online site, got %+v", sites.Sites)
	}
}

func TestFileAuditEndpoint(t *testing.T) {
	e := newEnv(t)
	file := e.registerFile(t, "audited.mov")
	e.do(t, http.MethodPost, "/api/files/"+file.ID+"/validate", nil, nil)

	resp, body := e.do(t, http.MethodGet, "/api/files/"+file.ID+"/audit", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit returned %d", resp.StatusCode)
	}
	var audit api.AuditListResponse
	if err := json.Unmarshal(body, &audit); err != nil {
		t.Fatalf("decode audit: %v", err)
	}
	if len(audit.Entries) != 2 {
		t.Fatalf("expected detect+validate entries, got %+v", audit.Entries)
	}
	if audit.Entries[1].Action != "validate" || audit.Entries[1].NewState != "validated" {
		t.Fatalf("unexpected audit entry: %+v", audit.Entries[1])
	}
}
