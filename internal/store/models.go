package store

import (
	"strings"
	"time"
)

// FileState represents the lifecycle of a tracked file.
type FileState string

const (
	StateDetected         FileState = "detected"
	StateValidated        FileState = "validated"
	StateQueued           FileState = "queued"
	StateTransferring     FileState = "transferring"
	StateTransferred      FileState = "transferred"
	StateColoristAssigned FileState = "colorist_assigned"
	StateInProgress       FileState = "in_progress"
	StateDeliveredToMAM   FileState = "delivered_to_mam"
	StateArchived         FileState = "archived"
	StateRejected         FileState = "rejected"
)

var allStates = []FileState{
	StateDetected,
	StateValidated,
	StateQueued,
	StateTransferring,
	StateTransferred,
	StateColoristAssigned,
	StateInProgress,
	StateDeliveredToMAM,
	StateArchived,
	StateRejected,
}

var stateSet = func() map[FileState]struct{} {
	set := make(map[FileState]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// AllStates returns the ordered list of known file states.
func AllStates() []FileState {
	cp := make([]FileState, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseFileState converts a string into a known FileState.
func ParseFileState(value string) (FileState, bool) {
	normalized := FileState(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a state admits no further forward transitions.
func (s FileState) IsTerminal() bool {
	switch s {
	case StateArchived, StateRejected:
		return true
	default:
		return false
	}
}

// User roles.
const (
	RoleAdmin    = "admin"
	RoleColorist = "colorist"
	RoleEngineer = "engineer"
	RoleReadonly = "readonly"
)

// TaskStatus is the lifecycle of a deferred cleanup/retransfer task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

// Transfer job statuses.
const (
	TransferPending    = "pending"
	TransferInProgress = "in_progress"
	TransferCompleted  = "completed"
	TransferFailed     = "failed"
)

// File is a tracked media asset persisted in SQLite.
type File struct {
	ID               string
	Filename         string
	SourceSite       string
	SourcePath       string
	FileSize         int64
	SHA256Hash       string
	State            FileState
	AssignedTo       string
	ExternalJobID    string
	TransferProgress int
	ErrorMessage     string
	Locked           bool
	CleanedUp        bool
	DetectedAt       time.Time
	ValidatedAt      *time.Time
	TransferStarted  *time.Time
	TransferDone     *time.Time
	AssignedAt       *time.Time
	DeliveredAt      *time.Time
	ArchivedAt       *time.Time
}

// User is a colorist/admin account referenced by assignments and audit entries.
type User struct {
	ID          string
	Username    string
	DisplayName string
	Email       string
	Role        string
	Active      bool
	CreatedAt   time.Time
}

// Site is a physical daemon endpoint.
type Site struct {
	ID            string
	Name          string
	ExportPath    string
	Active        bool
	LastHeartbeat *time.Time
}

// AuditEntry is an immutable fact about a transition or action.
type AuditEntry struct {
	ID            string
	FileID        string
	Action        string
	PreviousState *FileState
	NewState      *FileState
	PerformedBy   string
	IPAddress     string
	Details       string
	CreatedAt     time.Time
}

// TransferJob is one external bulk-transfer attempt.
type TransferJob struct {
	ID               string
	FileID           string
	ExternalJobID    string
	Status           string
	BytesTransferred int64
	RetryCount       int
	ErrorMessage     string
	StartedAt        *time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
}

// CleanupTask is a deferred instruction to delete a site-local file copy
// after MAM delivery.
type CleanupTask struct {
	ID                  string
	FileID              string
	Site                string
	FilePath            string
	Status              TaskStatus
	OrchestratorDeleted bool
	DaemonDeleted       bool
	CreatedAt           time.Time
	CompletedAt         *time.Time
}

// RetransferTask is a deferred instruction to re-upload a rejected file.
// FileID refers to a row that no longer exists by the time the daemon sees
// the task.
type RetransferTask struct {
	ID                  string
	FileID              string
	Site                string
	FilePath            string
	SHA256Hash          string
	Status              TaskStatus
	OrchestratorDeleted bool
	DaemonAcknowledged  bool
	CreatedAt           time.Time
	CompletedAt         *time.Time
}

// HistoryEntry is a permanent dedup-ledger record of a seen file hash.
type HistoryEntry struct {
	SHA256Hash  string
	Filename    string
	SourceSite  string
	FileSize    int64
	FirstSeenAt time.Time
}
