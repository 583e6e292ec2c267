package tasks

import (
	"context"
	"time"

	"colorflow/internal/logging"
)

// Monitor periodically scans for tasks no daemon has picked up and for sites
// that stopped heartbeating. Stuck tasks are never auto-expired; they surface
// as an operational signal until the owning daemon comes back or an operator
// intervenes.
func (c *Coordinator) Monitor(ctx context.Context) {
	ticker := time.NewTicker(c.monitorInterval)
	defer ticker.Stop()

	c.log.Info("task monitor started",
		logging.Duration("interval", c.monitorInterval),
		logging.Duration("stuck_threshold", c.stuckThreshold))

	for {
		select {
		case <-ctx.Done():
			c.log.Info("task monitor stopped")
			return
		case <-ticker.C:
			if err := c.CheckStuck(ctx); err != nil {
				c.log.Error("stuck task scan failed", logging.Error(err))
				if nerr := c.notifier.NotifyError(ctx, err, "stuck task scan"); nerr != nil {
					c.log.Warn("error notification failed", logging.Error(nerr))
				}
			}
			if err := c.CheckSites(ctx); err != nil {
				c.log.Error("site liveness sweep failed", logging.Error(err))
				if nerr := c.notifier.NotifyError(ctx, err, "site liveness sweep"); nerr != nil {
					c.log.Warn("error notification failed", logging.Error(nerr))
				}
			}
		}
	}
}

// CheckStuck performs one scan. Each stuck task is alerted once; a task that
// completes and a new one arriving under the same site produce fresh alerts.
func (c *Coordinator) CheckStuck(ctx context.Context) error {
	cutoff := c.now().Add(-c.stuckThreshold)

	cleanup, err := c.store.StuckCleanupTasks(ctx, cutoff)
	if err != nil {
		return err
	}
	retransfer, err := c.store.StuckRetransferTasks(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(cleanup) == 0 && len(retransfer) == 0 {
		return nil
	}

	var oldest time.Time
	fresh := 0
	c.mu.Lock()
	for _, task := range cleanup {
		if oldest.IsZero() || task.CreatedAt.Before(oldest) {
			oldest = task.CreatedAt
		}
		if _, seen := c.alerted[task.ID]; !seen {
			c.alerted[task.ID] = struct{}{}
			fresh++
			c.log.Warn("cleanup task stuck",
				logging.String("task_id", task.ID),
				logging.String("site", task.Site),
				logging.Duration("age", c.now().Sub(task.CreatedAt)))
		}
	}
	for _, task := range retransfer {
		if oldest.IsZero() || task.CreatedAt.Before(oldest) {
			oldest = task.CreatedAt
		}
		if _, seen := c.alerted[task.ID]; !seen {
			c.alerted[task.ID] = struct{}{}
			fresh++
			c.log.Warn("retransfer task stuck",
				logging.String("task_id", task.ID),
				logging.String("site", task.Site),
				logging.Duration("age", c.now().Sub(task.CreatedAt)))
		}
	}
	c.mu.Unlock()

	if fresh == 0 {
		return nil
	}
	if err := c.notifier.NotifyStuckTasks(ctx, len(cleanup), len(retransfer), c.now().Sub(oldest)); err != nil {
		c.log.Warn("stuck task notification failed", logging.Error(err))
	}
	return nil
}

// CheckSites performs one liveness sweep over registered sites. A site alerts
// once when its heartbeat falls out of the online window and re-arms after it
// comes back. Sites that never heartbeated are skipped; they have no daemon
// to lose.
func (c *Coordinator) CheckSites(ctx context.Context) error {
	sites, err := c.store.ListSites(ctx)
	if err != nil {
		return err
	}
	now := c.now()

	type outage struct {
		name     string
		lastSeen time.Time
	}
	var fresh []outage

	c.mu.Lock()
	for _, site := range sites {
		if !site.Active || site.LastHeartbeat == nil {
			continue
		}
		if now.Sub(*site.LastHeartbeat) < c.onlineWindow {
			delete(c.offline, site.Name)
			continue
		}
		if _, seen := c.offline[site.Name]; seen {
			continue
		}
		c.offline[site.Name] = struct{}{}
		fresh = append(fresh, outage{name: site.Name, lastSeen: *site.LastHeartbeat})
	}
	c.mu.Unlock()

	for _, down := range fresh {
		c.log.Warn("site offline",
			logging.String("site", down.name),
			logging.Duration("silent_for", now.Sub(down.lastSeen)))
		if err := c.notifier.NotifySiteOffline(ctx, down.name, down.lastSeen); err != nil {
			c.log.Warn("site offline notification failed", logging.Error(err))
		}
	}
	return nil
}
