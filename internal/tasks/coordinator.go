package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"colorflow/internal/config"
	"colorflow/internal/lifecycle"
	"colorflow/internal/logging"
	"colorflow/internal/notifications"
	"colorflow/internal/storagefs"
	"colorflow/internal/store"
)

// Coordinator hands deferred physical-file work to site daemons and tracks
// completion. Delivery is pull-based: daemons fetch pending tasks on each
// heartbeat and report completion on a later call. The coordinator never
// pushes and never times a task out on its own.
type Coordinator struct {
	store    *store.Store
	staging  *storagefs.Staging
	notifier notifications.Service
	log      *slog.Logger
	now      func() time.Time

	stuckThreshold  time.Duration
	monitorInterval time.Duration
	onlineWindow    time.Duration

	mu      sync.Mutex
	alerted map[string]struct{}
	offline map[string]struct{}
}

// NewCoordinator builds a Coordinator from the configured thresholds.
func NewCoordinator(st *store.Store, staging *storagefs.Staging, notifier notifications.Service, cfg *config.Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	threshold := time.Duration(cfg.Tasks.StuckThresholdSeconds) * time.Second
	if threshold <= 0 {
		threshold = time.Hour
	}
	interval := time.Duration(cfg.Tasks.MonitorIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	window := time.Duration(cfg.Sites.OnlineWindowSeconds) * time.Second
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Coordinator{
		store:           st,
		staging:         staging,
		notifier:        notifier,
		log:             logging.WithComponent(logger, "tasks"),
		now:             func() time.Time { return time.Now().UTC() },
		stuckThreshold:  threshold,
		monitorInterval: interval,
		onlineWindow:    window,
		alerted:         make(map[string]struct{}),
		offline:         make(map[string]struct{}),
	}
}

// Cleanup creates a deferred delete for a delivered file's site-local copy.
// The orchestrator's own staged copy is removed immediately; the File row is
// kept with cleanedUp set, since cleanup is bookkeeping rather than a state
// transition. Calling it again for the same file returns the existing task.
func (c *Coordinator) Cleanup(ctx context.Context, fileID string, actor lifecycle.Actor) (*store.CleanupTask, error) {
	now := c.now()
	var (
		task *store.CleanupTask
		file *store.File
	)

	err := c.store.Transact(ctx, func(tx *store.Tx) error {
		var err error
		file, err = tx.GetFile(ctx, fileID)
		if err != nil {
			return err
		}
		if file == nil {
			return &lifecycle.NotFoundError{Kind: "file", ID: fileID}
		}
		if file.State != store.StateDeliveredToMAM {
			return &lifecycle.InvalidTransitionError{
				FileID:   fileID,
				Action:   "cleanup",
				Current:  file.State,
				Required: []store.FileState{store.StateDeliveredToMAM},
			}
		}
		if file.CleanedUp {
			task, err = tx.CleanupTaskForFile(ctx, fileID)
			return err
		}

		taskID, err := tx.InsertCleanupTask(ctx, file, true, now)
		if err != nil {
			return err
		}
		if err := tx.MarkFileCleaned(ctx, fileID); err != nil {
			return err
		}
		if err := tx.InsertAudit(ctx, store.NewAuditParams{
			FileID:      fileID,
			Action:      "cleanup",
			PerformedBy: actor.UserID,
			IPAddress:   actor.RemoteAddr,
			Details:     "cleanup task queued for " + file.SourceSite,
		}, now); err != nil {
			return err
		}
		task, err = tx.GetCleanupTask(ctx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Best-effort: the staged copy may already be gone.
	if c.staging != nil {
		if err := c.staging.Remove(file.SourceSite, file.Filename); err != nil {
			c.log.Warn("remove staged copy",
				logging.String("file_id", fileID),
				logging.Error(err))
		}
	}

	c.log.Info("cleanup task queued",
		logging.String("file_id", fileID),
		logging.String("site", file.SourceSite),
		logging.String("task_id", task.ID))
	return task, nil
}

// Retransfer enqueues a re-upload for a rejected file. The File row and its
// dedup-history entry are deleted before any daemon acknowledgement so the
// daemon re-detects the file as brand new. If the daemon never picks the task
// up, the task row is the only remaining evidence of the file.
func (c *Coordinator) Retransfer(ctx context.Context, fileID string, actor lifecycle.Actor) (*store.RetransferTask, error) {
	now := c.now()
	var (
		task *store.RetransferTask
		file *store.File
	)

	err := c.store.Transact(ctx, func(tx *store.Tx) error {
		var err error
		file, err = tx.GetFile(ctx, fileID)
		if err != nil {
			return err
		}
		if file == nil {
			return &lifecycle.NotFoundError{Kind: "file", ID: fileID}
		}
		if file.State != store.StateRejected {
			return &lifecycle.InvalidTransitionError{
				FileID:   fileID,
				Action:   "retransfer",
				Current:  file.State,
				Required: []store.FileState{store.StateRejected},
			}
		}

		taskID, err := tx.InsertRetransferTask(ctx, file, now)
		if err != nil {
			return err
		}
		if _, err := tx.DeleteFile(ctx, fileID); err != nil {
			return err
		}
		if err := tx.DeleteHistoryByHash(ctx, file.SHA256Hash); err != nil {
			return err
		}
		prev := store.StateRejected
		if err := tx.InsertAudit(ctx, store.NewAuditParams{
			FileID:        fileID,
			Action:        "retransfer",
			PreviousState: &prev,
			PerformedBy:   actor.UserID,
			IPAddress:     actor.RemoteAddr,
			Details:       "file removed for retransfer from " + file.SourceSite,
		}, now); err != nil {
			return err
		}
		task, err = tx.GetRetransferTask(ctx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if c.staging != nil {
		if err := c.staging.Remove(file.SourceSite, file.Filename); err != nil {
			c.log.Warn("remove staged copy",
				logging.String("file_id", fileID),
				logging.Error(err))
		}
	}

	c.log.Info("retransfer task queued",
		logging.String("file_id", fileID),
		logging.String("site", file.SourceSite),
		logging.String("task_id", task.ID))
	return task, nil
}

// PendingForSite answers a daemon's poll with every task still waiting on it.
func (c *Coordinator) PendingForSite(ctx context.Context, site string) ([]*store.CleanupTask, []*store.RetransferTask, error) {
	cleanup, err := c.store.PendingCleanupTasks(ctx, site)
	if err != nil {
		return nil, nil, err
	}
	retransfer, err := c.store.PendingRetransferTasks(ctx, site)
	if err != nil {
		return nil, nil, err
	}
	return cleanup, retransfer, nil
}

// CompleteCleanup records a daemon's report that it deleted its local copy.
// Duplicate reports are a success no-op, not an error: daemons retry when an
// acknowledgement is dropped.
func (c *Coordinator) CompleteCleanup(ctx context.Context, taskID string) (*store.CleanupTask, error) {
	now := c.now()
	var task *store.CleanupTask

	err := c.store.Transact(ctx, func(tx *store.Tx) error {
		var err error
		task, err = tx.GetCleanupTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task == nil {
			return &lifecycle.NotFoundError{Kind: "cleanup task", ID: taskID}
		}
		if task.DaemonDeleted {
			return nil
		}
		if err := tx.MarkCleanupDaemonDeleted(ctx, taskID, now); err != nil {
			return err
		}
		task, err = tx.GetCleanupTask(ctx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("cleanup task reported done",
		logging.String("task_id", taskID),
		logging.String("status", string(task.Status)))
	return task, nil
}

// CompleteRetransfer records a daemon's acknowledgement that it re-uploaded
// the file. Idempotent like CompleteCleanup.
func (c *Coordinator) CompleteRetransfer(ctx context.Context, taskID string) (*store.RetransferTask, error) {
	now := c.now()
	var task *store.RetransferTask

	err := c.store.Transact(ctx, func(tx *store.Tx) error {
		var err error
		task, err = tx.GetRetransferTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task == nil {
			return &lifecycle.NotFoundError{Kind: "retransfer task", ID: taskID}
		}
		if task.DaemonAcknowledged {
			return nil
		}
		if err := tx.MarkRetransferAcknowledged(ctx, taskID, now); err != nil {
			return err
		}
		task, err = tx.GetRetransferTask(ctx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("retransfer task acknowledged",
		logging.String("task_id", taskID),
		logging.String("status", string(task.Status)))
	return task, nil
}
