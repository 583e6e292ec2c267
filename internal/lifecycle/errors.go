package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"colorflow/internal/store"
)

// ErrNoAssigneeAvailable reports that implicit assignment found no active
// colorist to pick.
var ErrNoAssigneeAvailable = errors.New("no active colorist available for assignment")

// NotFoundError reports a missing file, user, or site.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// InvalidTransitionError reports an operation attempted from a state outside
// its allowed source set. Required names the states the operation accepts.
type InvalidTransitionError struct {
	FileID   string
	Action   string
	Current  store.FileState
	Required []store.FileState
}

func (e *InvalidTransitionError) Error() string {
	names := make([]string, len(e.Required))
	for i, state := range e.Required {
		names[i] = string(state)
	}
	return fmt.Sprintf("cannot %s file %s in state %s (requires %s)",
		e.Action, e.FileID, e.Current, strings.Join(names, " or "))
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var it *InvalidTransitionError
	return errors.As(err, &it)
}

// UnknownUserError reports an explicit assignee that does not resolve.
type UnknownUserError struct {
	UserID string
}

func (e *UnknownUserError) Error() string {
	return fmt.Sprintf("unknown user %s", e.UserID)
}

// LockedDeleteError reports a delete attempt on a locked file.
type LockedDeleteError struct {
	FileID string
}

func (e *LockedDeleteError) Error() string {
	return fmt.Sprintf("file %s is locked and cannot be deleted", e.FileID)
}

// DuplicateContentError reports a detection whose hash is already present in
// the permanent dedup ledger.
type DuplicateContentError struct {
	SHA256Hash string
	FirstSeen  string
}

func (e *DuplicateContentError) Error() string {
	return fmt.Sprintf("content %s already processed (first seen as %s)", e.SHA256Hash, e.FirstSeen)
}
