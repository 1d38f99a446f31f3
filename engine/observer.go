package engine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/yawlgo/engine/engine/store"
	"github.com/yawlgo/engine/exceptionhook"
	"github.com/yawlgo/engine/ident"
)

// Engine implements runner.CompletionObserver so it learns of top-level
// case outcomes the moment the runner decides them. The runner calls
// these from kick and CancelCase while it still holds the case's lock, so
// an implementation must not call back into the runner for that case;
// the engine's callbacks touch only the store and the hook bus. This is
// the façade's hook for
// finalizing the durable CaseRecord and publishing the advisory IX
// event — neither of which the runner package does itself, keeping it
// free of a Store or exceptionhook dependency.

// CaseCompleted implements runner.CompletionObserver.
func (e *Engine) CaseCompleted(caseID string, data json.RawMessage) {
	ctx := context.Background()
	e.finalizeCaseRecord(ctx, caseID, store.CaseCompleted, data)
	e.publish(ctx, exceptionhook.Event{Kind: exceptionhook.CaseCompleted, CaseID: caseID})
}

// CaseCancelled implements runner.CompletionObserver. By the time this
// fires the runner has already torn down every live work item for
// caseID (RemoveForCase), so the store's copies are now stale and are
// deleted here rather than resynced against an empty live set.
func (e *Engine) CaseCancelled(caseID string) {
	ctx := context.Background()
	if stored, err := e.store.ListWorkItemsByCase(ctx, caseID); err == nil {
		for _, it := range stored {
			if err := e.store.DeleteWorkItem(ctx, it.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
				e.logger.Error(ctx, "delete stale work item failed", "work_item_id", string(it.ID), "error", err)
			}
		}
	}
	e.finalizeCaseRecord(ctx, caseID, store.CaseCancelled, nil)
	e.publish(ctx, exceptionhook.Event{Kind: exceptionhook.CaseCancelled, CaseID: caseID})
}

// CaseDeadlocked implements runner.CompletionObserver. A deadlocked case
// stays Normal (an administrator may still recover it via
// AdminEditMarking), so no CaseRecord status change is made here — only
// the advisory notification fires.
func (e *Engine) CaseDeadlocked(caseID string, stuckTasks []ident.Element) {
	ctx := context.Background()
	e.publish(ctx, exceptionhook.Event{
		Kind:   exceptionhook.CaseDeadlocked,
		CaseID: caseID,
		Detail: stuckTasks,
	})
}

func (e *Engine) finalizeCaseRecord(ctx context.Context, caseID string, status store.CaseStatus, data json.RawMessage) {
	rec, err := e.store.GetCase(ctx, caseID)
	if err != nil {
		rec = store.CaseRecord{ID: caseID}
	}
	rec.Status = status
	if data != nil {
		rec.Data = data
	}
	if err := e.store.SaveCase(ctx, rec); err != nil {
		e.logger.Error(ctx, "finalize case record failed", "case_id", caseID, "error", err)
	}
}
