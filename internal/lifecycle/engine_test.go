package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"colorflow/internal/lifecycle"
	"colorflow/internal/store"
	"colorflow/internal/testsupport"
)

func newEngine(t *testing.T) (*lifecycle.Engine, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	return lifecycle.New(st, nil), st
}

var admin = lifecycle.Actor{UserID: "admin-1", RemoteAddr: "10.0.0.9"}

// advance drives a file from detected to the requested state.
func advance(t *testing.T, eng *lifecycle.Engine, st *store.Store, file *store.File, target store.FileState) *store.File {
	t.Helper()
	ctx := context.Background()

	steps := []struct {
		state store.FileState
		apply func() (*store.File, error)
	}{
		{store.StateValidated, func() (*store.File, error) { return eng.Validate(ctx, file.ID, admin) }},
		{store.StateQueued, func() (*store.File, error) { return eng.Queue(ctx, file.ID, admin) }},
		{store.StateTransferring, func() (*store.File, error) { return eng.StartTransfer(ctx, file.ID, "rs-1", admin) }},
		{store.StateTransferred, func() (*store.File, error) { return eng.CompleteTransfer(ctx, file.ID, admin) }},
		{store.StateColoristAssigned, func() (*store.File, error) { return eng.Assign(ctx, file.ID, "", admin) }},
		{store.StateInProgress, func() (*store.File, error) { return eng.StartWork(ctx, file.ID, admin) }},
		{store.StateDeliveredToMAM, func() (*store.File, error) { return eng.Deliver(ctx, file.ID, admin) }},
		{store.StateArchived, func() (*store.File, error) { return eng.Archive(ctx, file.ID, admin) }},
	}
	current := file
	for _, step := range steps {
		if current.State == target {
			return current
		}
		next, err := step.apply()
		if err != nil {
			t.Fatalf("advance to %s via %s: %v", target, step.state, err)
		}
		current = next
	}
	if current.State != target {
		t.Fatalf("could not advance to %s, stopped at %s", target, current.State)
	}
	return current
}

func TestForwardPathStampsAndAudits(t *testing.T) {
	eng, st := newEngine(t)
	ctx := context.Background()
	testsupport.NewColorist(t, st, "ava")
	file := testsupport.NewFile(t, st, "tustin", "spot.mov")

	final := advance(t, eng, st, file, store.StateArchived)

	if final.ValidatedAt == nil || final.TransferStarted == nil || final.TransferDone == nil ||
		final.AssignedAt == nil || final.DeliveredAt == nil || final.ArchivedAt == nil {
		t.Fatalf("expected every per-state timestamp to be stamped: %#v", final)
	}
	if !final.Locked {
		t.Fatal("validate must lock the file")
	}
	if final.AssignedTo == "" {
		t.Fatal("expected an assignee after the forward path")
	}
	if final.TransferProgress != 100 {
		t.Fatalf("expected transfer progress 100, got %d", final.TransferProgress)
	}

	trail, err := st.FileAudit(ctx, file.ID)
	if err != nil {
		t.Fatalf("FileAudit failed: %v", err)
	}
	// detect + 8 forward transitions.
	if len(trail) != 9 {
		t.Fatalf("expected 9 audit entries, got %d", len(trail))
	}
	for i, entry := range trail[1:] {
		if entry.PreviousState == nil || entry.NewState == nil {
			t.Fatalf("entry %d missing states: %#v", i+1, entry)
		}
		if entry.PerformedBy != admin.UserID {
			t.Fatalf("entry %d has wrong actor %q", i+1, entry.PerformedBy)
		}
	}

	jobs, err := st.TransfersForFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("TransfersForFile failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != store.TransferCompleted {
		t.Fatalf("expected one completed transfer job, got %#v", jobs)
	}
}

func TestIllegalTransitionLeavesFileUntouched(t *testing.T) {
	eng, st := newEngine(t)
	ctx := context.Background()
	file := testsupport.NewFile(t, st, "tustin", "illegal.mov")

	_, err := eng.Deliver(ctx, file.ID, admin)
	var invalid *lifecycle.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if invalid.Current != store.StateDetected {
		t.Fatalf("error should carry current state, got %s", invalid.Current)
	}
	if len(invalid.Required) != 1 || invalid.Required[0] != store.StateInProgress {
		t.Fatalf("error should name required states, got %v", invalid.Required)
	}

	unchanged, err := st.GetFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	if unchanged.State != store.StateDetected || unchanged.DeliveredAt != nil {
		t.Fatalf("failed operation must not mutate the file: %#v", unchanged)
	}

	trail, err := st.FileAudit(ctx, file.ID)
	if err != nil {
		t.Fatalf("FileAudit failed: %v", err)
	}
	// Only the detect entry: a refused transition writes no audit.
	if len(trail) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(trail))
	}
}

func TestOperationOnMissingFile(t *testing.T) {
	eng, _ := newEngine(t)
	_, err := eng.Validate(context.Background(), "no-such-id", admin)
	if !lifecycle.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestAssignExplicitUnknownUser(t *testing.T) {
	eng, st := newEngine(t)
	ctx := context.Background()
	file := testsupport.NewFile(t, st, "tustin", "assignee.mov")
	advance(t, eng, st, file, store.StateValidated)

	_, err := eng.Assign(ctx, file.ID, "ghost", admin)
	var unknown *lifecycle.UnknownUserError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownUserError, got %v", err)
	}

	unchanged, _ := st.GetFile(ctx, file.ID)
	if unchanged.State != store.StateValidated {
		t.Fatalf("failed assign must not change state, got %s", unchanged.State)
	}
}

func TestAssignImplicitNoColorist(t *testing.T) {
	eng, st := newEngine(t)
	ctx := context.Background()
	file := testsupport.NewFile(t, st, "tustin", "nobody.mov")
	advance(t, eng, st, file, store.StateValidated)

	_, err := eng.Assign(ctx, file.ID, "", admin)
	if !errors.Is(err, lifecycle.ErrNoAssigneeAvailable) {
		t.Fatalf("expected ErrNoAssigneeAvailable, got %v", err)
	}
}

func TestAssignFromValidatedSkipsTransfer(t *testing.T) {
	eng, st := newEngine(t)
	ctx := context.Background()
	colorist := testsupport.NewColorist(t, st, "ben")
	file := testsupport.NewFile(t, st, "tustin", "local.mov")
	advance(t, eng, st, file, store.StateValidated)

	assigned, err := eng.Assign(ctx, file.ID, colorist.ID, admin)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if assigned.State != store.StateColoristAssigned || assigned.AssignedTo != colorist.ID {
		t.Fatalf("unexpected assignment result: %#v", assigned)
	}
}

func TestConcurrentAssignExactlyOneWins(t *testing.T) {
	eng, st := newEngine(t)
	ctx := context.Background()
	testsupport.NewColorist(t, st, "ava")
	testsupport.NewColorist(t, st, "ben")
	file := testsupport.NewFile(t, st, "tustin", "contested.mov")
	advance(t, eng, st, file, store.StateValidated)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, errs[slot] = eng.Assign(ctx, file.ID, "", admin)
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case lifecycle.IsInvalidTransition(err):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d conflicts", successes, conflicts)
	}

	final, _ := st.GetFile(ctx, file.ID)
	if final.State != store.StateColoristAssigned || final.AssignedTo == "" {
		t.Fatalf("expected a single assignment, got %#v", final)
	}
}

func TestRejectRecordsReasonAndFailsTransfer(t *testing.T) {
	eng, st := newEngine(t)
	ctx := context.Background()
	file := testsupport.NewFile(t, st, "tustin", "doomed.mov")
	advance(t, eng, st, file, store.StateTransferring)

	rejected, err := eng.Reject(ctx, file.ID, "checksum mismatch", admin)
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if rejected.State != store.StateRejected {
		t.Fatalf("expected rejected, got %s", rejected.State)
	}
	if rejected.ErrorMessage != "checksum mismatch" {
		t.Fatalf("expected reason recorded, got %q", rejected.ErrorMessage)
	}

	jobs, err := st.TransfersForFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("TransfersForFile failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != store.TransferFailed {
		t.Fatalf("expected the open transfer job to fail, got %#v", jobs)
	}

	// Terminal states cannot be rejected again.
	if _, err := eng.Reject(ctx, file.ID, "again", admin); !lifecycle.IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransitionError on double reject, got %v", err)
	}
}

func TestRejectKeepsAssigneeThroughRevert(t *testing.T) {
	eng, st := newEngine(t)
	ctx := context.Background()
	testsupport.NewColorist(t, st, "ava")
	file := testsupport.NewFile(t, st, "tustin", "redo.mov")
	working := advance(t, eng, st, file, store.StateInProgress)
	if working.AssignedTo == "" {
		t.Fatal("expected an assignee before the reject")
	}

	rejected, err := eng.Reject(ctx, file.ID, "wrong LUT", admin)
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if rejected.AssignedTo != working.AssignedTo {
		t.Fatalf("reject must keep the assignee, got %q", rejected.AssignedTo)
	}

	reverted, err := eng.Revert(ctx, file.ID, admin)
	if err != nil {
		t.Fatalf("Revert failed: %v", err)
	}
	if reverted.State != store.StateInProgress {
		t.Fatalf("expected in_progress after revert, got %s", reverted.State)
	}
	if reverted.AssignedTo != working.AssignedTo {
		t.Fatalf("revert must restore the file with its assignee, got %q", reverted.AssignedTo)
	}
	if reverted.ErrorMessage != "" {
		t.Fatalf("revert out of rejected must clear the reason, got %q", reverted.ErrorMessage)
	}
}

type capturingNotifier struct {
	mu       sync.Mutex
	filename string
	reason   string
	calls    int
}

func (c *capturingNotifier) NotifyFileRejected(_ context.Context, filename, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filename = filename
	c.reason = reason
	c.calls++
	return nil
}

func TestRejectSendsNotice(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	notifier := &capturingNotifier{}
	eng := lifecycle.NewWithNotifier(st, notifier, nil)
	ctx := context.Background()
	file := testsupport.NewFile(t, st, "tustin", "noisy.mov")

	if _, err := eng.Reject(ctx, file.ID, "clipped highlights", admin); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if notifier.calls != 1 {
		t.Fatalf("expected one rejection notice, got %d", notifier.calls)
	}
	if notifier.filename != "noisy.mov" || notifier.reason != "clipped highlights" {
		t.Fatalf("notice must carry filename and reason, got %q / %q", notifier.filename, notifier.reason)
	}

	// A refused reject sends nothing.
	if _, err := eng.Reject(ctx, file.ID, "again", admin); !lifecycle.IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if notifier.calls != 1 {
		t.Fatalf("failed reject must not notify, got %d calls", notifier.calls)
	}
}

func TestRevertSymmetry(t *testing.T) {
	eng, st := newEngine(t)
	ctx := context.Background()
	testsupport.NewColorist(t, st, "ava")
	file := testsupport.NewFile(t, st, "tustin", "undoable.mov")

	advance(t, eng, st, file, store.StateColoristAssigned)

	reverted, err := eng.Revert(ctx, file.ID, admin)
	if err != nil {
		t.Fatalf("Revert failed: %v", err)
	}
	if reverted.State != store.StateTransferred {
		t.Fatalf("expected transferred after revert, got %s", reverted.State)
	}
	if reverted.AssignedTo != "" {
		t.Fatal("revert out of colorist_assigned must clear the assignee")
	}
	if reverted.AssignedAt != nil {
		t.Fatal("revert must clear only the timestamp the edge stamped")
	}
	if reverted.TransferDone == nil || reverted.ValidatedAt == nil {
		t.Fatal("earlier timestamps must survive the revert")
	}
}

func TestRevertFollowsEdgeActuallyTaken(t *testing.T) {
	eng, st := newEngine(t)
	ctx := context.Background()
	colorist := testsupport.NewColorist(t, st, "ava")
	file := testsupport.NewFile(t, st, "tustin", "shortcut.mov")

	// Assign straight from validated, skipping the transfer leg.
	advance(t, eng, st, file, store.StateValidated)
	if _, err := eng.Assign(ctx, file.ID, colorist.ID, admin); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	reverted, err := eng.Revert(ctx, file.ID, admin)
	if err != nil {
		t.Fatalf("Revert failed: %v", err)
	}
	if reverted.State != store.StateValidated {
		t.Fatalf("revert must return along the validated edge, got %s", reverted.State)
	}
}

func TestRevertOutOfRejectedClearsError(t *testing.T) {
	eng, st := newEngine(t)
	ctx := context.Background()
	file := testsupport.NewFile(t, st, "tustin", "recover.mov")
	advance(t, eng, st, file, store.StateQueued)

	if _, err := eng.Reject(ctx, file.ID, "bad header", admin); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	reverted, err := eng.Revert(ctx, file.ID, admin)
	if err != nil {
		t.Fatalf("Revert failed: %v", err)
	}
	if reverted.State != store.StateQueued {
		t.Fatalf("expected queued after revert, got %s", reverted.State)
	}
	if reverted.ErrorMessage != "" {
		t.Fatalf("revert out of rejected must clear the error, got %q", reverted.ErrorMessage)
	}
}

func TestRevertFromDetectedRefused(t *testing.T) {
	eng, st := newEngine(t)
	file := testsupport.NewFile(t, st, "tustin", "floor.mov")
	if _, err := eng.Revert(context.Background(), file.ID, admin); !lifecycle.IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestDeleteHonorsLock(t *testing.T) {
	eng, st := newEngine(t)
	ctx := context.Background()
	file := testsupport.NewFile(t, st, "tustin", "keeper.mov")
	advance(t, eng, st, file, store.StateValidated)

	// Validated files are locked; revert returns them to detected unlocked.
	if err := eng.Delete(ctx, file.ID, admin); err == nil {
		t.Fatal("expected delete of non-detected file to fail")
	}

	if _, err := eng.Revert(ctx, file.ID, admin); err != nil {
		t.Fatalf("Revert failed: %v", err)
	}
	if err := eng.Delete(ctx, file.ID, admin); err != nil {
		t.Fatalf("Delete of unlocked detected file failed: %v", err)
	}
	gone, err := st.GetFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	if gone != nil {
		t.Fatal("expected file row to be removed")
	}
}

func TestDeleteLockedDetectedFileDenied(t *testing.T) {
	eng, st := newEngine(t)
	ctx := context.Background()
	file := testsupport.NewFile(t, st, "tustin", "locked.mov")

	// Force the lock flag without leaving detected.
	err := st.Transact(ctx, func(tx *store.Tx) error {
		locked := true
		_, err := tx.ApplyFileChange(ctx, store.FileChange{
			ID:         file.ID,
			FromStates: []store.FileState{store.StateDetected},
			To:         store.StateDetected,
			SetLocked:  &locked,
		}, file.DetectedAt)
		return err
	})
	if err != nil {
		t.Fatalf("Transact failed: %v", err)
	}

	var denied *lifecycle.LockedDeleteError
	if err := eng.Delete(ctx, file.ID, admin); !errors.As(err, &denied) {
		t.Fatalf("expected LockedDeleteError, got %v", err)
	}
	still, _ := st.GetFile(ctx, file.ID)
	if still == nil {
		t.Fatal("locked file must survive the delete attempt")
	}
}

func TestRegisterIdempotentBySourceAndDedupByHash(t *testing.T) {
	eng, st := newEngine(t)
	ctx := context.Background()

	params := lifecycle.RegisterParams{
		Filename:   "promo.mov",
		SourceSite: "dallas",
		SourcePath: "/watch/promo.mov",
		FileSize:   512,
		SHA256Hash: "cafebabe",
	}
	first, err := eng.Register(ctx, params, lifecycle.Actor{})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	again, err := eng.Register(ctx, params, lifecycle.Actor{})
	if err != nil {
		t.Fatalf("repeat Register failed: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("re-reporting the same source must return the tracked row, got %s and %s", first.ID, again.ID)
	}

	// Same content from another path is refused by the dedup ledger.
	params.SourcePath = "/watch/copy-of-promo.mov"
	_, err = eng.Register(ctx, params, lifecycle.Actor{})
	var dup *lifecycle.DuplicateContentError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateContentError, got %v", err)
	}

	files, err := st.ListFiles(ctx, store.FileFilter{})
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected a single tracked file, got %d", len(files))
	}
}

func TestConcurrentRegisterSameSource(t *testing.T) {
	eng, st := newEngine(t)
	ctx := context.Background()

	params := lifecycle.RegisterParams{
		Filename:   "contended.mov",
		SourceSite: "dallas",
		SourcePath: "/watch/contended.mov",
		FileSize:   2048,
		SHA256Hash: "deadbeef",
	}

	const reporters = 4
	var wg sync.WaitGroup
	results := make([]*store.File, reporters)
	errs := make([]error, reporters)
	for i := 0; i < reporters; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			results[slot], errs[slot] = eng.Register(ctx, params, lifecycle.Actor{})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("reporter %d failed: %v", i, err)
		}
	}
	for i := 1; i < reporters; i++ {
		if results[i].ID != results[0].ID {
			t.Fatalf("every reporter must see the same row, got %s and %s", results[0].ID, results[i].ID)
		}
	}

	files, err := st.ListFiles(ctx, store.FileFilter{})
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected a single tracked file, got %d", len(files))
	}

	// Exactly one detect entry: losers adopt the winner's row without
	// re-auditing, and the row never exists without its ledger entries.
	trail, err := st.FileAudit(ctx, results[0].ID)
	if err != nil {
		t.Fatalf("FileAudit failed: %v", err)
	}
	if len(trail) != 1 || trail[0].Action != "detect" {
		t.Fatalf("expected exactly one detect entry, got %#v", trail)
	}
	history, err := st.HistoryByHash(ctx, params.SHA256Hash)
	if err != nil {
		t.Fatalf("HistoryByHash failed: %v", err)
	}
	if history == nil {
		t.Fatal("registration must leave a dedup-ledger entry")
	}
}

func TestBulkValidatePartialSuccess(t *testing.T) {
	eng, st := newEngine(t)
	ctx := context.Background()
	good := testsupport.NewFile(t, st, "tustin", "good.mov")
	bad := testsupport.NewFile(t, st, "tustin", "bad.mov")
	advance(t, eng, st, bad, store.StateValidated)

	result := eng.BulkValidate(ctx, []string{good.ID, bad.ID, "missing"}, admin)
	if result.Succeeded != 1 || result.Failed != 2 {
		t.Fatalf("expected 1 success and 2 failures, got %+v", result)
	}
	if len(result.Failures) != 2 {
		t.Fatalf("expected per-item failures, got %+v", result.Failures)
	}

	validated, _ := st.GetFile(ctx, good.ID)
	if validated.State != store.StateValidated {
		t.Fatalf("successful item must not be rolled back, got %s", validated.State)
	}
}
