package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"colorflow/internal/logging"
	"colorflow/internal/store"
)

// Actor identifies who asked for an operation. A zero Actor means the system
// itself initiated the change.
type Actor struct {
	UserID     string
	RemoteAddr string
}

// Notifier receives push notices for operator-facing events. A nil Notifier
// disables them.
type Notifier interface {
	NotifyFileRejected(ctx context.Context, filename, reason string) error
}

// Engine applies lifecycle transitions. Every successful operation commits the
// state change and exactly one audit entry as a single transaction; a failed
// precondition writes nothing.
type Engine struct {
	store    *store.Store
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

// New constructs an Engine over the given store.
func New(st *store.Store, logger *slog.Logger) *Engine {
	return NewWithNotifier(st, nil, logger)
}

// NewWithNotifier constructs an Engine that pushes rejection notices through
// the given notifier.
func NewWithNotifier(st *store.Store, notifier Notifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		store:    st,
		notifier: notifier,
		log:      logging.WithComponent(logger, "lifecycle"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RegisterParams carries the metadata a daemon reports when it detects a file.
type RegisterParams struct {
	Filename   string
	SourceSite string
	SourcePath string
	FileSize   int64
	SHA256Hash string
}

// Register records a newly detected file. Re-reporting the same site+path is
// idempotent and returns the tracked row; a hash already present in the dedup
// ledger under a different source is refused. The row, its ledger entry, and
// the detect audit entry commit as one unit.
func (e *Engine) Register(ctx context.Context, params RegisterParams, actor Actor) (*store.File, error) {
	var (
		file    *store.File
		created bool
	)
	now := e.now()

	err := e.store.Transact(ctx, func(tx *store.Tx) error {
		created = false
		existing, err := tx.FindFileBySource(ctx, params.SourceSite, params.SourcePath)
		if err != nil {
			return err
		}
		if existing != nil {
			file = existing
			return nil
		}

		seen, err := tx.HistoryByHash(ctx, params.SHA256Hash)
		if err != nil {
			return err
		}
		if seen != nil {
			return &DuplicateContentError{SHA256Hash: params.SHA256Hash, FirstSeen: seen.Filename}
		}

		file, err = tx.InsertFile(ctx, store.NewFileParams{
			Filename:   params.Filename,
			SourceSite: params.SourceSite,
			SourcePath: params.SourcePath,
			FileSize:   params.FileSize,
			SHA256Hash: params.SHA256Hash,
		}, now)
		if err != nil {
			return err
		}
		if err := tx.RecordHistory(ctx, store.HistoryEntry{
			SHA256Hash: params.SHA256Hash,
			Filename:   params.Filename,
			SourceSite: params.SourceSite,
			FileSize:   params.FileSize,
		}, now); err != nil {
			return err
		}

		state := file.State
		if err := tx.InsertAudit(ctx, store.NewAuditParams{
			FileID:      file.ID,
			Action:      "detect",
			NewState:    &state,
			PerformedBy: actor.UserID,
			IPAddress:   actor.RemoteAddr,
			Details:     fmt.Sprintf("detected at %s on %s", params.SourcePath, file.SourceSite),
		}, now); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		// Two daemons racing to report the same path: the loser's insert hits
		// the source unique index after the winner commits. Adopt the winner's
		// row so the report stays idempotent.
		if store.IsConstraintViolation(err) {
			existing, findErr := e.store.FindFileBySource(ctx, params.SourceSite, params.SourcePath)
			if findErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	if created {
		e.log.Info("file detected",
			logging.String("file_id", file.ID),
			logging.String("site", file.SourceSite),
			logging.String("filename", file.Filename))
	}
	return file, nil
}

// transitionSpec describes one forward edge: its allowed source states, the
// destination, and the columns the edge owns.
type transitionSpec struct {
	action   string
	required []store.FileState
	build    func(ctx context.Context, tx *store.Tx, file *store.File, change *store.FileChange) (details string, err error)
}

func (e *Engine) transition(ctx context.Context, id string, actor Actor, spec transitionSpec) (*store.File, error) {
	var updated *store.File
	now := e.now()

	err := e.store.Transact(ctx, func(tx *store.Tx) error {
		file, err := tx.GetFile(ctx, id)
		if err != nil {
			return err
		}
		if file == nil {
			return &NotFoundError{Kind: "file", ID: id}
		}
		if !stateIn(file.State, spec.required) {
			return &InvalidTransitionError{
				FileID:   id,
				Action:   spec.action,
				Current:  file.State,
				Required: spec.required,
			}
		}

		change := store.FileChange{ID: id, FromStates: spec.required}
		details, err := spec.build(ctx, tx, file, &change)
		if err != nil {
			return err
		}

		applied, err := tx.ApplyFileChange(ctx, change, now)
		if err != nil {
			return err
		}
		if !applied {
			return &InvalidTransitionError{
				FileID:   id,
				Action:   spec.action,
				Current:  file.State,
				Required: spec.required,
			}
		}

		prev := file.State
		next := change.To
		if err := tx.InsertAudit(ctx, store.NewAuditParams{
			FileID:        id,
			Action:        spec.action,
			PreviousState: &prev,
			NewState:      &next,
			PerformedBy:   actor.UserID,
			IPAddress:     actor.RemoteAddr,
			Details:       details,
		}, now); err != nil {
			return err
		}

		updated, err = tx.GetFile(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("state transition",
		logging.String("file_id", id),
		logging.String("action", spec.action),
		logging.String("state", string(updated.State)))
	return updated, nil
}

// Validate confirms a detected file's integrity check and locks it against
// deletion.
func (e *Engine) Validate(ctx context.Context, id string, actor Actor) (*store.File, error) {
	locked := true
	return e.transition(ctx, id, actor, transitionSpec{
		action:   "validate",
		required: []store.FileState{store.StateDetected},
		build: func(ctx context.Context, tx *store.Tx, file *store.File, change *store.FileChange) (string, error) {
			change.To = store.StateValidated
			change.StampNow = true
			change.SetLocked = &locked
			return "file validated and locked", nil
		},
	})
}

// Queue marks a validated file ready for transfer.
func (e *Engine) Queue(ctx context.Context, id string, actor Actor) (*store.File, error) {
	return e.transition(ctx, id, actor, transitionSpec{
		action:   "queue",
		required: []store.FileState{store.StateValidated},
		build: func(ctx context.Context, tx *store.Tx, file *store.File, change *store.FileChange) (string, error) {
			change.To = store.StateQueued
			return "", nil
		},
	})
}

// StartTransfer opens a transfer job and moves the file to transferring.
func (e *Engine) StartTransfer(ctx context.Context, id, externalJobID string, actor Actor) (*store.File, error) {
	return e.transition(ctx, id, actor, transitionSpec{
		action:   "start_transfer",
		required: []store.FileState{store.StateQueued},
		build: func(ctx context.Context, tx *store.Tx, file *store.File, change *store.FileChange) (string, error) {
			change.To = store.StateTransferring
			change.StampNow = true
			change.ExternalJobID = externalJobID
			if _, err := tx.InsertTransferJob(ctx, file.ID, externalJobID, e.now()); err != nil {
				return "", err
			}
			if externalJobID != "" {
				return "transfer started, job " + externalJobID, nil
			}
			return "transfer started", nil
		},
	})
}

// CompleteTransfer closes the open transfer job and marks the file landed.
func (e *Engine) CompleteTransfer(ctx context.Context, id string, actor Actor) (*store.File, error) {
	full := 100
	return e.transition(ctx, id, actor, transitionSpec{
		action:   "complete_transfer",
		required: []store.FileState{store.StateTransferring},
		build: func(ctx context.Context, tx *store.Tx, file *store.File, change *store.FileChange) (string, error) {
			change.To = store.StateTransferred
			change.StampNow = true
			change.SetProgress = &full
			if err := tx.FinishTransferJob(ctx, file.ID, true, file.FileSize, "", e.now()); err != nil {
				return "", err
			}
			return "", nil
		},
	})
}

// Assign attaches a colorist to the file. An empty userID falls back to the
// first active colorist by account creation order.
func (e *Engine) Assign(ctx context.Context, id, userID string, actor Actor) (*store.File, error) {
	return e.transition(ctx, id, actor, transitionSpec{
		action:   "assign",
		required: []store.FileState{store.StateValidated, store.StateTransferred},
		build: func(ctx context.Context, tx *store.Tx, file *store.File, change *store.FileChange) (string, error) {
			var assignee *store.User
			var err error
			if userID != "" {
				assignee, err = tx.GetUser(ctx, userID)
				if err != nil {
					return "", err
				}
				if assignee == nil {
					return "", &UnknownUserError{UserID: userID}
				}
			} else {
				assignee, err = tx.FirstActiveColorist(ctx)
				if err != nil {
					return "", err
				}
				if assignee == nil {
					return "", ErrNoAssigneeAvailable
				}
			}
			change.To = store.StateColoristAssigned
			change.StampNow = true
			change.Assignee = assignee.ID
			return "assigned to " + assignee.Username, nil
		},
	})
}

// StartWork marks an assigned file as actively being graded.
func (e *Engine) StartWork(ctx context.Context, id string, actor Actor) (*store.File, error) {
	return e.transition(ctx, id, actor, transitionSpec{
		action:   "start_work",
		required: []store.FileState{store.StateColoristAssigned},
		build: func(ctx context.Context, tx *store.Tx, file *store.File, change *store.FileChange) (string, error) {
			change.To = store.StateInProgress
			return "", nil
		},
	})
}

// Deliver marks graded work handed to the MAM.
func (e *Engine) Deliver(ctx context.Context, id string, actor Actor) (*store.File, error) {
	return e.transition(ctx, id, actor, transitionSpec{
		action:   "deliver",
		required: []store.FileState{store.StateInProgress},
		build: func(ctx context.Context, tx *store.Tx, file *store.File, change *store.FileChange) (string, error) {
			change.To = store.StateDeliveredToMAM
			change.StampNow = true
			return "", nil
		},
	})
}

// Archive closes out a delivered file.
func (e *Engine) Archive(ctx context.Context, id string, actor Actor) (*store.File, error) {
	return e.transition(ctx, id, actor, transitionSpec{
		action:   "archive",
		required: []store.FileState{store.StateDeliveredToMAM},
		build: func(ctx context.Context, tx *store.Tx, file *store.File, change *store.FileChange) (string, error) {
			change.To = store.StateArchived
			change.StampNow = true
			return "", nil
		},
	})
}

// rejectableStates is every state reject accepts: anything not already
// delivered, archived, or rejected.
var rejectableStates = func() []store.FileState {
	var states []store.FileState
	for _, state := range store.AllStates() {
		switch state {
		case store.StateDeliveredToMAM, store.StateArchived, store.StateRejected:
		default:
			states = append(states, state)
		}
	}
	return states
}()

// Reject fails a file out of the pipeline, recording the reason. The assignee
// is kept so a later revert restores the file exactly as it was. An open
// transfer job is closed as failed.
func (e *Engine) Reject(ctx context.Context, id, reason string, actor Actor) (*store.File, error) {
	file, err := e.transition(ctx, id, actor, transitionSpec{
		action:   "reject",
		required: rejectableStates,
		build: func(ctx context.Context, tx *store.Tx, file *store.File, change *store.FileChange) (string, error) {
			change.To = store.StateRejected
			change.ErrorMessage = &reason
			if file.State == store.StateTransferring {
				if err := tx.FinishTransferJob(ctx, file.ID, false, 0, reason, e.now()); err != nil {
					return "", err
				}
			}
			return reason, nil
		},
	})
	if err != nil {
		return nil, err
	}

	if e.notifier != nil {
		if err := e.notifier.NotifyFileRejected(ctx, file.Filename, reason); err != nil {
			e.log.Warn("rejection notice failed",
				logging.String("file_id", file.ID),
				logging.Error(err))
		}
	}
	return file, nil
}

// fallbackPrevious covers states with exactly one forward edge into them.
// colorist_assigned and rejected have multiple entry edges and are resolved
// from the audit trail instead.
var fallbackPrevious = map[store.FileState]store.FileState{
	store.StateValidated:        store.StateDetected,
	store.StateQueued:           store.StateValidated,
	store.StateTransferring:     store.StateQueued,
	store.StateTransferred:      store.StateTransferring,
	store.StateInProgress:       store.StateColoristAssigned,
	store.StateDeliveredToMAM:   store.StateInProgress,
	store.StateArchived:         store.StateDeliveredToMAM,
	store.StateColoristAssigned: store.StateTransferred,
}

// Revert walks a file back exactly one state along the edge it most recently
// took, clearing only the timestamp that edge stamped.
func (e *Engine) Revert(ctx context.Context, id string, actor Actor) (*store.File, error) {
	var updated *store.File
	now := e.now()

	err := e.store.Transact(ctx, func(tx *store.Tx) error {
		file, err := tx.GetFile(ctx, id)
		if err != nil {
			return err
		}
		if file == nil {
			return &NotFoundError{Kind: "file", ID: id}
		}
		if file.State == store.StateDetected {
			return &InvalidTransitionError{
				FileID:   id,
				Action:   "revert",
				Current:  file.State,
				Required: revertableStates(),
			}
		}

		prev, err := e.previousState(ctx, tx, file)
		if err != nil {
			return err
		}

		change := store.FileChange{
			ID:           id,
			FromStates:   []store.FileState{file.State},
			To:           prev,
			ClearStampOf: file.State,
		}
		switch file.State {
		case store.StateColoristAssigned:
			change.ClearAssignee = true
		case store.StateRejected:
			change.ClearError = true
		case store.StateValidated:
			unlocked := false
			change.SetLocked = &unlocked
		}

		applied, err := tx.ApplyFileChange(ctx, change, now)
		if err != nil {
			return err
		}
		if !applied {
			return &InvalidTransitionError{
				FileID:   id,
				Action:   "revert",
				Current:  file.State,
				Required: revertableStates(),
			}
		}

		from := file.State
		if err := tx.InsertAudit(ctx, store.NewAuditParams{
			FileID:        id,
			Action:        "revert",
			PreviousState: &from,
			NewState:      &prev,
			PerformedBy:   actor.UserID,
			IPAddress:     actor.RemoteAddr,
		}, now); err != nil {
			return err
		}

		updated, err = tx.GetFile(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("state transition",
		logging.String("file_id", id),
		logging.String("action", "revert"),
		logging.String("state", string(updated.State)))
	return updated, nil
}

// previousState recovers the state a file came from, preferring the audit
// trail so revert follows the edge actually taken rather than a canonical path.
func (e *Engine) previousState(ctx context.Context, tx *store.Tx, file *store.File) (store.FileState, error) {
	entry, err := tx.LatestTransition(ctx, file.ID, file.State)
	if err != nil {
		return "", err
	}
	if entry != nil && entry.PreviousState != nil {
		return *entry.PreviousState, nil
	}
	if prev, ok := fallbackPrevious[file.State]; ok {
		return prev, nil
	}
	return "", &InvalidTransitionError{
		FileID:   file.ID,
		Action:   "revert",
		Current:  file.State,
		Required: revertableStates(),
	}
}

func revertableStates() []store.FileState {
	var states []store.FileState
	for _, state := range store.AllStates() {
		if state != store.StateDetected {
			states = append(states, state)
		}
	}
	return states
}

// Delete removes an unprocessed file row. Only unlocked files still in
// detected may be deleted.
func (e *Engine) Delete(ctx context.Context, id string, actor Actor) error {
	now := e.now()
	err := e.store.Transact(ctx, func(tx *store.Tx) error {
		file, err := tx.GetFile(ctx, id)
		if err != nil {
			return err
		}
		if file == nil {
			return &NotFoundError{Kind: "file", ID: id}
		}
		if file.Locked {
			return &LockedDeleteError{FileID: id}
		}
		if file.State != store.StateDetected {
			return &InvalidTransitionError{
				FileID:   id,
				Action:   "delete",
				Current:  file.State,
				Required: []store.FileState{store.StateDetected},
			}
		}
		if _, err := tx.DeleteFile(ctx, id); err != nil {
			return err
		}
		prev := file.State
		return tx.InsertAudit(ctx, store.NewAuditParams{
			FileID:        id,
			Action:        "delete",
			PreviousState: &prev,
			PerformedBy:   actor.UserID,
			IPAddress:     actor.RemoteAddr,
			Details:       "file removed before processing",
		}, now)
	})
	if err != nil {
		return err
	}
	e.log.Info("file deleted", logging.String("file_id", id))
	return nil
}

// SetTransferProgress records mover progress on a transferring file. Not a
// state change and not audited.
func (e *Engine) SetTransferProgress(ctx context.Context, id string, percent int) error {
	file, err := e.store.GetFile(ctx, id)
	if err != nil {
		return err
	}
	if file == nil {
		return &NotFoundError{Kind: "file", ID: id}
	}
	return e.store.SetTransferProgress(ctx, id, percent)
}

func stateIn(state store.FileState, set []store.FileState) bool {
	for _, candidate := range set {
		if candidate == state {
			return true
		}
	}
	return false
}
