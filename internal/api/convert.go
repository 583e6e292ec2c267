package api

import (
	"colorflow/internal/registry"
	"colorflow/internal/store"
)

// FromFile maps a store file to its wire form.
func FromFile(file *store.File) FileView {
	return FileView{
		ID:               file.ID,
		Filename:         file.Filename,
		SourceSite:       file.SourceSite,
		SourcePath:       file.SourcePath,
		FileSize:         file.FileSize,
		SHA256Hash:       file.SHA256Hash,
		State:            string(file.State),
		AssignedTo:       file.AssignedTo,
		ExternalJobID:    file.ExternalJobID,
		TransferProgress: file.TransferProgress,
		ErrorMessage:     file.ErrorMessage,
		Locked:           file.Locked,
		CleanedUp:        file.CleanedUp,
		DetectedAt:       file.DetectedAt,
		ValidatedAt:      file.ValidatedAt,
		TransferStarted:  file.TransferStarted,
		TransferDone:     file.TransferDone,
		AssignedAt:       file.AssignedAt,
		DeliveredAt:      file.DeliveredAt,
		ArchivedAt:       file.ArchivedAt,
	}
}

// FromFiles maps a file listing.
func FromFiles(files []*store.File) []FileView {
	views := make([]FileView, 0, len(files))
	for _, file := range files {
		views = append(views, FromFile(file))
	}
	return views
}

// FromSiteStatus maps a site with derived liveness.
func FromSiteStatus(status registry.SiteStatus) SiteView {
	return SiteView{
		ID:            status.ID,
		Name:          status.Name,
		ExportPath:    status.ExportPath,
		Active:        status.Site.Active,
		Online:        status.Online,
		LastHeartbeat: status.LastHeartbeat,
	}
}

// FromUser maps a user account.
func FromUser(user *store.User) UserView {
	return UserView{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		Role:        user.Role,
		Active:      user.Active,
		CreatedAt:   user.CreatedAt,
	}
}

// FromAudit maps an audit entry.
func FromAudit(entry *store.AuditEntry) AuditView {
	view := AuditView{
		ID:          entry.ID,
		FileID:      entry.FileID,
		Action:      entry.Action,
		PerformedBy: entry.PerformedBy,
		IPAddress:   entry.IPAddress,
		Details:     entry.Details,
		CreatedAt:   entry.CreatedAt,
	}
	if entry.PreviousState != nil {
		view.PreviousState = string(*entry.PreviousState)
	}
	if entry.NewState != nil {
		view.NewState = string(*entry.NewState)
	}
	return view
}

// FromAuditEntries maps an audit listing.
func FromAuditEntries(entries []*store.AuditEntry) []AuditView {
	views := make([]AuditView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, FromAudit(entry))
	}
	return views
}

// FromTransfer maps a transfer attempt.
func FromTransfer(job *store.TransferJob) TransferView {
	return TransferView{
		ID:               job.ID,
		FileID:           job.FileID,
		ExternalJobID:    job.ExternalJobID,
		Status:           job.Status,
		BytesTransferred: job.BytesTransferred,
		RetryCount:       job.RetryCount,
		ErrorMessage:     job.ErrorMessage,
		StartedAt:        job.StartedAt,
		CompletedAt:      job.CompletedAt,
		CreatedAt:        job.CreatedAt,
	}
}

// FromCleanupTask maps a deferred cleanup task.
func FromCleanupTask(task *store.CleanupTask) CleanupTaskView {
	return CleanupTaskView{
		ID:                  task.ID,
		FileID:              task.FileID,
		Site:                task.Site,
		FilePath:            task.FilePath,
		Status:              string(task.Status),
		OrchestratorDeleted: task.OrchestratorDeleted,
		DaemonDeleted:       task.DaemonDeleted,
		CreatedAt:           task.CreatedAt,
		CompletedAt:         task.CompletedAt,
	}
}

// FromRetransferTask maps a deferred retransfer task.
func FromRetransferTask(task *store.RetransferTask) RetransferTaskView {
	return RetransferTaskView{
		ID:                  task.ID,
		FileID:              task.FileID,
		Site:                task.Site,
		FilePath:            task.FilePath,
		SHA256Hash:          task.SHA256Hash,
		Status:              string(task.Status),
		OrchestratorDeleted: task.OrchestratorDeleted,
		DaemonAcknowledged:  task.DaemonAcknowledged,
		CreatedAt:           task.CreatedAt,
		CompletedAt:         task.CompletedAt,
	}
}

// FromCleanupTasks maps a cleanup task listing.
func FromCleanupTasks(tasks []*store.CleanupTask) []CleanupTaskView {
	views := make([]CleanupTaskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, FromCleanupTask(task))
	}
	return views
}

// FromRetransferTasks maps a retransfer task listing.
func FromRetransferTasks(tasks []*store.RetransferTask) []RetransferTaskView {
	views := make([]RetransferTaskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, FromRetransferTask(task))
	}
	return views
}
