package store_test

import (
	"context"
	"testing"
	"time"

	"colorflow/internal/store"
	"colorflow/internal/testsupport"
)

func TestOpenCreatesSchemaAndInsertsFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	file, err := st.CreateFile(ctx, store.NewFileParams{
		Filename:   "spot_001.mov",
		SourceSite: "Tustin",
		SourcePath: "/watch/spot_001.mov",
		FileSize:   2048,
		SHA256Hash: "abc123",
	})
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if file.ID == "" {
		t.Fatal("expected file ID to be assigned")
	}
	if file.State != store.StateDetected {
		t.Fatalf("expected detected state, got %s", file.State)
	}
	if file.SourceSite != "tustin" {
		t.Fatalf("expected normalized site name, got %q", file.SourceSite)
	}
	if file.DetectedAt.IsZero() {
		t.Fatal("expected detected_at to be stamped")
	}

	fetched, err := st.GetFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	if fetched == nil || fetched.Filename != "spot_001.mov" {
		t.Fatalf("unexpected fetched file: %#v", fetched)
	}

	bySource, err := st.FindFileBySource(ctx, "TUSTIN", "/watch/spot_001.mov")
	if err != nil {
		t.Fatalf("FindFileBySource failed: %v", err)
	}
	if bySource == nil || bySource.ID != file.ID {
		t.Fatalf("expected to find inserted file, got %#v", bySource)
	}
}

func TestDuplicateSourceRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	params := store.NewFileParams{
		Filename:   "dup.mov",
		SourceSite: "dallas",
		SourcePath: "/watch/dup.mov",
		FileSize:   1,
		SHA256Hash: "dead",
	}
	if _, err := st.CreateFile(ctx, params); err != nil {
		t.Fatalf("first CreateFile failed: %v", err)
	}
	if _, err := st.CreateFile(ctx, params); err == nil {
		t.Fatal("expected unique constraint violation for duplicate site+path")
	}
}

func TestApplyFileChangeGuards(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	file := testsupport.NewFile(t, st, "tustin", "guarded.mov")

	locked := true
	err := st.Transact(ctx, func(tx *store.Tx) error {
		applied, err := tx.ApplyFileChange(ctx, store.FileChange{
			ID:         file.ID,
			FromStates: []store.FileState{store.StateDetected},
			To:         store.StateValidated,
			StampNow:   true,
			SetLocked:  &locked,
		}, time.Now())
		if err != nil {
			return err
		}
		if !applied {
			t.Fatal("expected change to apply from detected")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Transact failed: %v", err)
	}

	updated, err := st.GetFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	if updated.State != store.StateValidated {
		t.Fatalf("expected validated, got %s", updated.State)
	}
	if !updated.Locked {
		t.Fatal("expected file to be locked")
	}
	if updated.ValidatedAt == nil {
		t.Fatal("expected validated_at to be stamped")
	}

	// Same guard again must refuse: the row already left detected.
	err = st.Transact(ctx, func(tx *store.Tx) error {
		applied, err := tx.ApplyFileChange(ctx, store.FileChange{
			ID:         file.ID,
			FromStates: []store.FileState{store.StateDetected},
			To:         store.StateValidated,
		}, time.Now())
		if err != nil {
			return err
		}
		if applied {
			t.Fatal("expected guard to reject stale transition")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Transact failed: %v", err)
	}
}

func TestApplyFileChangeClearsStamp(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	file := testsupport.NewFile(t, st, "tustin", "revertable.mov")

	step := func(from, to store.FileState) {
		t.Helper()
		err := st.Transact(ctx, func(tx *store.Tx) error {
			applied, err := tx.ApplyFileChange(ctx, store.FileChange{
				ID:         file.ID,
				FromStates: []store.FileState{from},
				To:         to,
				StampNow:   true,
			}, time.Now())
			if err != nil {
				return err
			}
			if !applied {
				t.Fatalf("transition %s -> %s did not apply", from, to)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Transact failed: %v", err)
		}
	}
	step(store.StateDetected, store.StateValidated)

	err := st.Transact(ctx, func(tx *store.Tx) error {
		_, err := tx.ApplyFileChange(ctx, store.FileChange{
			ID:           file.ID,
			FromStates:   []store.FileState{store.StateValidated},
			To:           store.StateDetected,
			ClearStampOf: store.StateValidated,
		}, time.Now())
		return err
	})
	if err != nil {
		t.Fatalf("Transact failed: %v", err)
	}

	reverted, err := st.GetFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	if reverted.State != store.StateDetected {
		t.Fatalf("expected detected after revert, got %s", reverted.State)
	}
	if reverted.ValidatedAt != nil {
		t.Fatal("expected validated_at to be cleared")
	}
	if reverted.DetectedAt.IsZero() {
		t.Fatal("detected_at must survive the revert")
	}
}

func TestListFilesFilters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.NewFile(t, st, "tustin", "commercial_a.mov")
	testsupport.NewFile(t, st, "dallas", "commercial_b.mov")
	testsupport.NewFile(t, st, "dallas", "promo_c.mxf")

	all, err := st.ListFiles(ctx, store.FileFilter{})
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 files, got %d", len(all))
	}

	dallas, err := st.ListFiles(ctx, store.FileFilter{Site: "dallas"})
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if len(dallas) != 2 {
		t.Fatalf("expected 2 dallas files, got %d", len(dallas))
	}

	matched, err := st.ListFiles(ctx, store.FileFilter{Search: "commercial"})
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if len(matched) != 2 {
		t.Fatalf("expected 2 search matches, got %d", len(matched))
	}

	stats, err := st.StatsByState(ctx)
	if err != nil {
		t.Fatalf("StatsByState failed: %v", err)
	}
	if stats[store.StateDetected] != 3 {
		t.Fatalf("expected 3 detected files in stats, got %d", stats[store.StateDetected])
	}
}

func TestHeartbeatAutoRegistersSite(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	now := time.Now().UTC()
	site, err := st.TouchSiteHeartbeat(ctx, "Nashville", now)
	if err != nil {
		t.Fatalf("TouchSiteHeartbeat failed: %v", err)
	}
	if site == nil || site.Name != "nashville" {
		t.Fatalf("unexpected site: %#v", site)
	}
	if site.LastHeartbeat == nil {
		t.Fatal("expected heartbeat to be recorded")
	}

	later := now.Add(time.Minute)
	site, err = st.TouchSiteHeartbeat(ctx, "nashville", later)
	if err != nil {
		t.Fatalf("second TouchSiteHeartbeat failed: %v", err)
	}
	if !site.LastHeartbeat.After(now.Add(30 * time.Second)) {
		t.Fatalf("expected heartbeat to advance, got %v", site.LastHeartbeat)
	}

	sites, err := st.ListSites(ctx)
	if err != nil {
		t.Fatalf("ListSites failed: %v", err)
	}
	if len(sites) != 1 {
		t.Fatalf("expected a single site row, got %d", len(sites))
	}
}

func TestCleanupTaskCompletesWhenBothSidesDone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	file := testsupport.NewFile(t, st, "tustin", "cleanup.mov")

	var taskID string
	err := st.Transact(ctx, func(tx *store.Tx) error {
		id, err := tx.InsertCleanupTask(ctx, file, false, time.Now())
		taskID = id
		return err
	})
	if err != nil {
		t.Fatalf("insert cleanup task: %v", err)
	}

	pending, err := st.PendingCleanupTasks(ctx, "tustin")
	if err != nil {
		t.Fatalf("PendingCleanupTasks failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != taskID {
		t.Fatalf("expected one pending task, got %#v", pending)
	}

	err = st.Transact(ctx, func(tx *store.Tx) error {
		return tx.MarkCleanupDaemonDeleted(ctx, taskID, time.Now())
	})
	if err != nil {
		t.Fatalf("mark daemon deleted: %v", err)
	}
	task, err := st.GetCleanupTask(ctx, taskID)
	if err != nil {
		t.Fatalf("GetCleanupTask failed: %v", err)
	}
	if task.Status != store.TaskPending {
		t.Fatalf("task must stay pending until the orchestrator side is done, got %s", task.Status)
	}

	err = st.Transact(ctx, func(tx *store.Tx) error {
		return tx.MarkCleanupOrchestratorDeleted(ctx, taskID, time.Now())
	})
	if err != nil {
		t.Fatalf("mark orchestrator deleted: %v", err)
	}
	task, err = st.GetCleanupTask(ctx, taskID)
	if err != nil {
		t.Fatalf("GetCleanupTask failed: %v", err)
	}
	if task.Status != store.TaskCompleted {
		t.Fatalf("expected completed task, got %s", task.Status)
	}
	if task.CompletedAt == nil {
		t.Fatal("expected completed_at to be stamped")
	}
}

func TestHistoryLedger(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	entry := store.HistoryEntry{
		SHA256Hash: "feedface",
		Filename:   "seen.mov",
		SourceSite: "tustin",
		FileSize:   10,
	}
	if err := st.RecordHistory(ctx, entry); err != nil {
		t.Fatalf("RecordHistory failed: %v", err)
	}
	// Duplicate record is a no-op.
	if err := st.RecordHistory(ctx, entry); err != nil {
		t.Fatalf("duplicate RecordHistory failed: %v", err)
	}

	found, err := st.HistoryByHash(ctx, "feedface")
	if err != nil {
		t.Fatalf("HistoryByHash failed: %v", err)
	}
	if found == nil || found.Filename != "seen.mov" {
		t.Fatalf("unexpected history entry: %#v", found)
	}

	err = st.Transact(ctx, func(tx *store.Tx) error {
		return tx.DeleteHistoryByHash(ctx, "feedface")
	})
	if err != nil {
		t.Fatalf("DeleteHistoryByHash failed: %v", err)
	}
	found, err = st.HistoryByHash(ctx, "feedface")
	if err != nil {
		t.Fatalf("HistoryByHash failed: %v", err)
	}
	if found != nil {
		t.Fatal("expected history entry to be removed")
	}
}

func TestFirstActiveColoristIsDeterministic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	first := testsupport.NewColorist(t, st, "ava")
	testsupport.NewColorist(t, st, "ben")

	if err := st.SetUserActive(ctx, first.ID, false); err != nil {
		t.Fatalf("SetUserActive failed: %v", err)
	}

	err := st.Transact(ctx, func(tx *store.Tx) error {
		pick, err := tx.FirstActiveColorist(ctx)
		if err != nil {
			return err
		}
		if pick == nil || pick.Username != "ben" {
			t.Fatalf("expected ben to be picked, got %#v", pick)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Transact failed: %v", err)
	}
}
