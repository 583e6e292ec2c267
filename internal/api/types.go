package api

import "time"

// FileView is the wire representation of a tracked file.
type FileView struct {
	ID               string     `json:"id"`
	Filename         string     `json:"filename"`
	SourceSite       string     `json:"source_site"`
	SourcePath       string     `json:"source_path"`
	FileSize         int64      `json:"file_size"`
	SHA256Hash       string     `json:"sha256_hash"`
	State            string     `json:"state"`
	AssignedTo       string     `json:"assigned_to,omitempty"`
	ExternalJobID    string     `json:"external_job_id,omitempty"`
	TransferProgress int        `json:"transfer_progress"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	Locked           bool       `json:"locked"`
	CleanedUp        bool       `json:"cleaned_up"`
	DetectedAt       time.Time  `json:"detected_at"`
	ValidatedAt      *time.Time `json:"validated_at,omitempty"`
	TransferStarted  *time.Time `json:"transfer_started_at,omitempty"`
	TransferDone     *time.Time `json:"transfer_completed_at,omitempty"`
	AssignedAt       *time.Time `json:"assigned_at,omitempty"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
	ArchivedAt       *time.Time `json:"archived_at,omitempty"`
}

// SiteView is a site plus its derived liveness.
type SiteView struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	ExportPath    string     `json:"export_path"`
	Active        bool       `json:"active"`
	Online        bool       `json:"online"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
}

// UserView is a colorist/admin account.
type UserView struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	Role        string    `json:"role"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuditView is one audit trail entry.
type AuditView struct {
	ID            string    `json:"id"`
	FileID        string    `json:"file_id,omitempty"`
	Action        string    `json:"action"`
	PreviousState string    `json:"previous_state,omitempty"`
	NewState      string    `json:"new_state,omitempty"`
	PerformedBy   string    `json:"performed_by,omitempty"`
	IPAddress     string    `json:"ip_address,omitempty"`
	Details       string    `json:"details,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// TransferView is one transfer attempt.
type TransferView struct {
	ID               string     `json:"id"`
	FileID           string     `json:"file_id"`
	ExternalJobID    string     `json:"external_job_id,omitempty"`
	Status           string     `json:"status"`
	BytesTransferred int64      `json:"bytes_transferred"`
	RetryCount       int        `json:"retry_count"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// CleanupTaskView is a deferred site-local delete.
type CleanupTaskView struct {
	ID                  string     `json:"id"`
	FileID              string     `json:"file_id"`
	Site                string     `json:"site"`
	FilePath            string     `json:"file_path"`
	Status              string     `json:"status"`
	OrchestratorDeleted bool       `json:"orchestrator_deleted"`
	DaemonDeleted       bool       `json:"daemon_deleted"`
	CreatedAt           time.Time  `json:"created_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

// RetransferTaskView is a deferred re-upload of a rejected file.
type RetransferTaskView struct {
	ID                  string     `json:"id"`
	FileID              string     `json:"file_id"`
	Site                string     `json:"site"`
	FilePath            string     `json:"file_path"`
	SHA256Hash          string     `json:"sha256_hash"`
	Status              string     `json:"status"`
	OrchestratorDeleted bool       `json:"orchestrator_deleted"`
	DaemonAcknowledged  bool       `json:"daemon_acknowledged"`
	CreatedAt           time.Time  `json:"created_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

// RegisterFileRequest is a daemon's detection report.
type RegisterFileRequest struct {
	Filename   string `json:"filename"`
	Site       string `json:"site"`
	SourcePath string `json:"source_path"`
	FileSize   int64  `json:"file_size"`
	SHA256Hash string `json:"sha256_hash"`
}

// AssignRequest optionally names an explicit assignee.
type AssignRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// RejectRequest carries the rejection reason.
type RejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

// StartTransferRequest carries the optional external mover job id.
type StartTransferRequest struct {
	ExternalJobID string `json:"external_job_id,omitempty"`
}

// ProgressRequest updates the transfer progress percent.
type ProgressRequest struct {
	Percent int `json:"percent"`
}

// BulkRequest names the files for a bulk operation and its parameters.
type BulkRequest struct {
	FileIDs []string `json:"file_ids"`
	UserID  string   `json:"user_id,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// BulkResponse reports independent per-file outcomes.
type BulkResponse struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Failures  []BulkFailure `json:"failures,omitempty"`
}

// BulkFailure is one file that could not be processed.
type BulkFailure struct {
	FileID string `json:"file_id"`
	Error  string `json:"error"`
}

// HeartbeatRequest identifies the calling daemon.
type HeartbeatRequest struct {
	Site string `json:"site"`
}

// HeartbeatResponse answers a daemon poll with its pending work.
type HeartbeatResponse struct {
	Site            string               `json:"site"`
	CleanupTasks    []CleanupTaskView    `json:"cleanup_tasks"`
	RetransferTasks []RetransferTaskView `json:"retransfer_tasks"`
}

// CheckFileRequest asks whether content is already known.
type CheckFileRequest struct {
	SHA256Hash string `json:"sha256_hash"`
}

// CheckFileResponse reports dedup-ledger membership.
type CheckFileResponse struct {
	Known    bool   `json:"known"`
	Filename string `json:"filename,omitempty"`
}

// CreateSiteRequest registers a site by admin action.
type CreateSiteRequest struct {
	Name       string `json:"name"`
	ExportPath string `json:"export_path"`
}

// CreateUserRequest registers a user account.
type CreateUserRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
}

// StatsResponse aggregates file counts by state.
type StatsResponse struct {
	Total  int            `json:"total"`
	States map[string]int `json:"states"`
}

// FileListResponse wraps a file listing.
type FileListResponse struct {
	Files []FileView `json:"files"`
}

// AuditListResponse wraps an audit listing.
type AuditListResponse struct {
	Entries []AuditView `json:"entries"`
}

// SiteListResponse wraps a site listing.
type SiteListResponse struct {
	Sites []SiteView `json:"sites"`
}

// UserListResponse wraps a user listing.
type UserListResponse struct {
	Users []UserView `json:"users"`
}

// TransferListResponse wraps transfer attempts for a file.
type TransferListResponse struct {
	Transfers []TransferView `json:"transfers"`
}
