package agent

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"colorflow/internal/config"
	"colorflow/internal/lifecycle"
	"colorflow/internal/registry"
	"colorflow/internal/server"
	"colorflow/internal/storagefs"
	"colorflow/internal/store"
	"colorflow/internal/tasks"
	"colorflow/internal/testsupport"
)

type orchestrator struct {
	cfg    *config.Config
	store  *store.Store
	engine *lifecycle.Engine
	coord  *tasks.Coordinator
	url    string
}

func newOrchestrator(t *testing.T) *orchestrator {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	engine := lifecycle.New(st, nil)
	coord := tasks.NewCoordinator(st, storagefs.New(cfg), nil, cfg, nil)
	srv := server.New(cfg, st, engine, coord, registry.New(st, cfg, nil), nil)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &orchestrator{cfg: cfg, store: st, engine: engine, coord: coord, url: ts.URL}
}

func newTestAgent(t *testing.T, orch *orchestrator, site, watchDir string) *Agent {
	t.Helper()
	cfg := orch.cfg
	cfg.Agent.Site = site
	cfg.Agent.WatchDir = watchDir
	cfg.Agent.OrchestratorURL = orch.url
	cfg.Agent.APIKey = cfg.Server.DaemonAPIKey
	cfg.Agent.StabilityChecks = 1
	cfg.Agent.Extensions = []string{".mov"}
	return New(cfg, nil)
}

func TestAgentReportsNewFiles(t *testing.T) {
	orch := newOrchestrator(t)
	watch := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(watch, "detected.mov"), 256)

	a := newTestAgent(t, orch, "tustin", watch)
	ctx := context.Background()
	a.scanOnce(ctx)

	files, err := orch.store.ListFiles(ctx, store.FileFilter{Site: "tustin"})
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if len(files) != 1 || files[0].Filename != "detected.mov" {
		t.Fatalf("expected one reported file, got %#v", files)
	}

	// A second scan reports nothing new.
	a.scanOnce(ctx)
	files, _ = orch.store.ListFiles(ctx, store.FileFilter{})
	if len(files) != 1 {
		t.Fatalf("re-scan must not duplicate files, got %d", len(files))
	}
}

func TestAgentExecutesCleanupTask(t *testing.T) {
	orch := newOrchestrator(t)
	watch := t.TempDir()
	local := filepath.Join(watch, "done.mov")
	testsupport.WriteFile(t, local, 128)

	a := newTestAgent(t, orch, "tustin", watch)
	ctx := context.Background()
	a.scanOnce(ctx)

	files, err := orch.store.ListFiles(ctx, store.FileFilter{})
	if err != nil || len(files) != 1 {
		t.Fatalf("expected one file, got %v %v", files, err)
	}
	file := files[0]

	actor := lifecycle.Actor{UserID: "admin-1"}
	testsupport.NewColorist(t, orch.store, "ava")
	for _, step := range []func() (*store.File, error){
		func() (*store.File, error) { return orch.engine.Validate(ctx, file.ID, actor) },
		func() (*store.File, error) { return orch.engine.Queue(ctx, file.ID, actor) },
		func() (*store.File, error) { return orch.engine.StartTransfer(ctx, file.ID, "rs-1", actor) },
		func() (*store.File, error) { return orch.engine.CompleteTransfer(ctx, file.ID, actor) },
		func() (*store.File, error) { return orch.engine.Assign(ctx, file.ID, "", actor) },
		func() (*store.File, error) { return orch.engine.StartWork(ctx, file.ID, actor) },
		func() (*store.File, error) { return orch.engine.Deliver(ctx, file.ID, actor) },
	} {
		if _, err := step(); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	task, err := orch.coord.Cleanup(ctx, file.ID, actor)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	// The next heartbeat delivers the task; the agent deletes the local copy
	// and acknowledges.
	a.heartbeatOnce(ctx)

	done, err := orch.store.GetCleanupTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetCleanupTask failed: %v", err)
	}
	if done.Status != store.TaskCompleted || !done.DaemonDeleted {
		t.Fatalf("expected completed task, got %#v", done)
	}
	if fileExists(local) {
		t.Fatal("expected local copy to be deleted")
	}
}

func TestAgentExecutesRetransferTask(t *testing.T) {
	orch := newOrchestrator(t)
	watch := t.TempDir()
	local := filepath.Join(watch, "again.mov")
	testsupport.WriteFile(t, local, 128)

	a := newTestAgent(t, orch, "tustin", watch)
	ctx := context.Background()
	a.scanOnce(ctx)

	files, _ := orch.store.ListFiles(ctx, store.FileFilter{})
	if len(files) != 1 {
		t.Fatalf("expected one file, got %d", len(files))
	}
	original := files[0]

	actor := lifecycle.Actor{UserID: "admin-1"}
	if _, err := orch.engine.Reject(ctx, original.ID, "bad colorimetry", actor); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	task, err := orch.coord.Retransfer(ctx, original.ID, actor)
	if err != nil {
		t.Fatalf("Retransfer failed: %v", err)
	}

	a.heartbeatOnce(ctx)

	done, err := orch.store.GetRetransferTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetRetransferTask failed: %v", err)
	}
	if done.Status != store.TaskCompleted || !done.DaemonAcknowledged {
		t.Fatalf("expected acknowledged task, got %#v", done)
	}

	// The file is tracked again as a brand-new detection.
	files, _ = orch.store.ListFiles(ctx, store.FileFilter{})
	if len(files) != 1 {
		t.Fatalf("expected the file to be re-registered, got %d rows", len(files))
	}
	if files[0].ID == original.ID {
		t.Fatal("re-registered file must be a new row")
	}
	if files[0].State != store.StateDetected {
		t.Fatalf("re-registered file must start in detected, got %s", files[0].State)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
