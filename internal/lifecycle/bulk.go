package lifecycle

import "context"

// BulkFailure records one file that could not be processed.
type BulkFailure struct {
	FileID string `json:"file_id"`
	Error  string `json:"error"`
}

// BulkResult aggregates independent per-file attempts. Files are unrelated
// once in flight, so one failure never rolls back the others.
type BulkResult struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Failures  []BulkFailure `json:"failures,omitempty"`
}

func (e *Engine) bulk(ctx context.Context, ids []string, attempt func(id string) error) BulkResult {
	var result BulkResult
	for _, id := range ids {
		if err := attempt(id); err != nil {
			result.Failed++
			result.Failures = append(result.Failures, BulkFailure{FileID: id, Error: err.Error()})
			continue
		}
		result.Succeeded++
	}
	return result
}

// BulkValidate validates each file independently.
func (e *Engine) BulkValidate(ctx context.Context, ids []string, actor Actor) BulkResult {
	return e.bulk(ctx, ids, func(id string) error {
		_, err := e.Validate(ctx, id, actor)
		return err
	})
}

// BulkAssign assigns each file independently, all to the same user (or the
// implicit pick when userID is empty).
func (e *Engine) BulkAssign(ctx context.Context, ids []string, userID string, actor Actor) BulkResult {
	return e.bulk(ctx, ids, func(id string) error {
		_, err := e.Assign(ctx, id, userID, actor)
		return err
	})
}

// BulkStartWork starts work on each file independently.
func (e *Engine) BulkStartWork(ctx context.Context, ids []string, actor Actor) BulkResult {
	return e.bulk(ctx, ids, func(id string) error {
		_, err := e.StartWork(ctx, id, actor)
		return err
	})
}

// BulkDeliver delivers each file independently.
func (e *Engine) BulkDeliver(ctx context.Context, ids []string, actor Actor) BulkResult {
	return e.bulk(ctx, ids, func(id string) error {
		_, err := e.Deliver(ctx, id, actor)
		return err
	})
}

// BulkReject rejects each file independently with a shared reason.
func (e *Engine) BulkReject(ctx context.Context, ids []string, reason string, actor Actor) BulkResult {
	return e.bulk(ctx, ids, func(id string) error {
		_, err := e.Reject(ctx, id, reason, actor)
		return err
	})
}

// BulkDelete deletes each file independently. Locked or already-processed
// files fail individually without affecting the rest of the batch.
func (e *Engine) BulkDelete(ctx context.Context, ids []string, actor Actor) BulkResult {
	return e.bulk(ctx, ids, func(id string) error {
		return e.Delete(ctx, id, actor)
	})
}
