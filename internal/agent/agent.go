package agent

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"colorflow/internal/api"
	"colorflow/internal/config"
	"colorflow/internal/logging"
)

// Agent is the site daemon: it detects local media files, reports them to the
// orchestrator, and executes the deferred tasks returned by each heartbeat.
type Agent struct {
	site    string
	client  *Client
	scanner *Scanner
	log     *slog.Logger

	heartbeatInterval time.Duration
	scanInterval      time.Duration
}

// New builds an Agent from the agent section of the config.
func New(cfg *config.Config, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = logging.NewNop()
	}
	heartbeat := time.Duration(cfg.Agent.HeartbeatIntervalSeconds) * time.Second
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	scan := time.Duration(cfg.Agent.ScanIntervalSeconds) * time.Second
	if scan <= 0 {
		scan = time.Minute
	}
	return &Agent{
		site:   cfg.Agent.Site,
		client: NewClient(cfg.Agent.OrchestratorURL, cfg.Agent.APIKey),
		scanner: NewScanner(
			cfg.Agent.WatchDir,
			cfg.Agent.Extensions,
			cfg.Agent.StabilityChecks,
			time.Duration(cfg.Agent.StabilityIntervalSeconds)*time.Second,
		),
		log:               logging.WithComponent(logger, "agent"),
		heartbeatInterval: heartbeat,
		scanInterval:      scan,
	}
}

// Run drives the heartbeat and scan loops until ctx is cancelled. The first
// heartbeat fires immediately so the orchestrator registers the site without
// waiting a full interval.
func (a *Agent) Run(ctx context.Context) error {
	a.log.Info("agent starting",
		logging.String("site", a.site),
		logging.Duration("heartbeat_interval", a.heartbeatInterval),
		logging.Duration("scan_interval", a.scanInterval))

	a.heartbeatOnce(ctx)
	a.scanOnce(ctx)

	heartbeat := time.NewTicker(a.heartbeatInterval)
	defer heartbeat.Stop()
	scan := time.NewTicker(a.scanInterval)
	defer scan.Stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("agent stopping")
			return ctx.Err()
		case <-heartbeat.C:
			a.heartbeatOnce(ctx)
		case <-scan.C:
			a.scanOnce(ctx)
		}
	}
}

// heartbeatOnce checks in and executes whatever tasks came back. Task
// failures are logged and left pending; the orchestrator re-delivers them on
// the next poll.
func (a *Agent) heartbeatOnce(ctx context.Context) {
	resp, err := a.client.Heartbeat(ctx, a.site)
	if err != nil {
		a.log.Warn("heartbeat failed", logging.Error(err))
		return
	}

	for _, task := range resp.CleanupTasks {
		if err := a.executeCleanup(ctx, task); err != nil {
			a.log.Warn("cleanup task failed",
				logging.String("task_id", task.ID),
				logging.Error(err))
		}
	}
	for _, task := range resp.RetransferTasks {
		if err := a.executeRetransfer(ctx, task); err != nil {
			a.log.Warn("retransfer task failed",
				logging.String("task_id", task.ID),
				logging.Error(err))
		}
	}
}

// executeCleanup deletes the local copy and acknowledges. A file already gone
// still acknowledges: the goal state is reached either way.
func (a *Agent) executeCleanup(ctx context.Context, task api.CleanupTaskView) error {
	if err := os.Remove(task.FilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	a.scanner.Forget(task.FilePath)
	if err := a.client.CompleteCleanup(ctx, task.ID); err != nil {
		return err
	}
	a.log.Info("cleanup task done",
		logging.String("task_id", task.ID),
		logging.String("path", task.FilePath))
	return nil
}

// executeRetransfer re-registers the file as brand new and acknowledges. The
// orchestrator has already forgotten the original row and its dedup entry.
func (a *Agent) executeRetransfer(ctx context.Context, task api.RetransferTaskView) error {
	a.scanner.Forget(task.FilePath)

	info, err := os.Stat(task.FilePath)
	if err != nil {
		// Source is gone; acknowledge so the task doesn't sit pending
		// forever, and leave the operator to locate the file.
		a.log.Warn("retransfer source missing",
			logging.String("task_id", task.ID),
			logging.String("path", task.FilePath))
		return a.client.CompleteRetransfer(ctx, task.ID)
	}

	hash, err := hashFile(task.FilePath)
	if err != nil {
		return err
	}
	if _, err := a.client.RegisterFile(ctx, api.RegisterFileRequest{
		Filename:   info.Name(),
		Site:       a.site,
		SourcePath: task.FilePath,
		FileSize:   info.Size(),
		SHA256Hash: hash,
	}); err != nil {
		var dup *DuplicateError
		if !errors.As(err, &dup) {
			return err
		}
	}
	a.scanner.MarkReported(task.FilePath)

	if err := a.client.CompleteRetransfer(ctx, task.ID); err != nil {
		return err
	}
	a.log.Info("retransfer task done",
		logging.String("task_id", task.ID),
		logging.String("path", task.FilePath))
	return nil
}

// scanOnce reports any newly stable files in the watch directory.
func (a *Agent) scanOnce(ctx context.Context) {
	detections, err := a.scanner.Scan(ctx)
	if err != nil {
		a.log.Warn("scan failed", logging.Error(err))
		return
	}

	for _, detection := range detections {
		known, err := a.client.CheckFile(ctx, detection.SHA256Hash)
		if err != nil {
			a.log.Warn("dedup check failed",
				logging.String("path", detection.Path),
				logging.Error(err))
			continue
		}
		if known {
			a.scanner.MarkReported(detection.Path)
			a.log.Info("skipping known content",
				logging.String("path", detection.Path))
			continue
		}

		_, err = a.client.RegisterFile(ctx, api.RegisterFileRequest{
			Filename:   detection.Filename,
			Site:       a.site,
			SourcePath: detection.Path,
			FileSize:   detection.Size,
			SHA256Hash: detection.SHA256Hash,
		})
		if err != nil {
			var dup *DuplicateError
			if errors.As(err, &dup) {
				// Already processed content: remember it so we stop rehashing.
				a.scanner.MarkReported(detection.Path)
				a.log.Info("skipping duplicate content",
					logging.String("path", detection.Path))
				continue
			}
			a.log.Warn("register failed",
				logging.String("path", detection.Path),
				logging.Error(err))
			continue
		}
		a.scanner.MarkReported(detection.Path)
		a.log.Info("file reported",
			logging.String("path", detection.Path),
			logging.Int64("size", detection.Size))
	}
}
