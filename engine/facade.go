package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yawlgo/engine/engine/store"
	"github.com/yawlgo/engine/exceptionhook"
	"github.com/yawlgo/engine/handler"
	"github.com/yawlgo/engine/ident"
	"github.com/yawlgo/engine/net"
	"github.com/yawlgo/engine/runner"
	"github.com/yawlgo/engine/workitem"
)

// LoadSpecification verifies raw, caches the resulting Net, and persists
// it to the durable store (§4.8 loadSpecification, §4.10 verification).
// Non-fatal verification warnings are returned alongside a successfully
// built Net.
func (e *Engine) LoadSpecification(ctx context.Context, raw net.RawSpec) (*net.Net, []net.Warning, error) {
	n, warnings, err := net.Build(raw, e.handlers.ResolvedSet())
	if err != nil {
		return nil, warnings, err
	}
	e.specs.set(n)
	if err := e.store.SaveSpecification(ctx, n); err != nil {
		return n, warnings, fmt.Errorf("engine: persist specification %q: %w", n.ID, err)
	}
	return n, warnings, nil
}

// UnloadSpecification removes a net prototype from the cache and the
// durable store (§4.8 unloadSpecification). Live cases already running
// against it are unaffected: they hold their own cloned Net.
func (e *Engine) UnloadSpecification(ctx context.Context, id string) error {
	e.specs.delete(id)
	return e.store.DeleteSpecification(ctx, id)
}

// ListSpecifications returns every currently loaded net prototype.
func (e *Engine) ListSpecifications() []*net.Net { return e.specs.list() }

// LaunchCase creates and drives a new case (§4.8 launchCase).
func (e *Engine) LaunchCase(ctx context.Context, caseID, netID string, data json.RawMessage) (*runner.Case, error) {
	c, err := e.run.LaunchCase(ctx, caseID, netID, data)
	if c != nil {
		e.persistCaseState(ctx, caseID)
		e.publish(ctx, exceptionhook.Event{Kind: exceptionhook.CaseLaunched, CaseID: caseID})
	}
	return c, err
}

// GetCase returns the live runner state for caseID.
func (e *Engine) GetCase(caseID string) (*runner.Case, error) { return e.run.GetCase(caseID) }

// ListCases returns every live case id.
func (e *Engine) ListCases() []string { return e.run.ListCases() }

// GetCaseData returns caseID's current case data document (§4.8
// getCaseData).
func (e *Engine) GetCaseData(caseID string) (json.RawMessage, error) {
	c, err := e.run.GetCase(caseID)
	if err != nil {
		return nil, err
	}
	_, data, _ := c.Snapshot()
	return data, nil
}

// StartWorkItem transitions a work item to Executing (§4.8
// startWorkItem).
func (e *Engine) StartWorkItem(ctx context.Context, itemID workitem.ID, handlerID string) error {
	caseID := e.caseIDForItem(ctx, itemID)
	err := e.run.Start(ctx, itemID, handlerID)
	e.persistCaseState(ctx, caseID)
	if err == nil {
		e.publish(ctx, exceptionhook.Event{Kind: exceptionhook.WorkItemStarted, CaseID: caseID, WorkItemID: string(itemID)})
	}
	return err
}

// CompleteWorkItem finishes a work item and re-drives the case (§4.8
// completeWorkItem). Completing a work item can itself enable several
// new ones via kick(), so the whole case's live work items are resynced
// to the store afterward rather than just itemID.
func (e *Engine) CompleteWorkItem(ctx context.Context, itemID workitem.ID, output json.RawMessage, flag runner.CompletionFlag) error {
	caseID := e.caseIDForItem(ctx, itemID)
	err := e.run.Complete(ctx, itemID, output, flag)
	e.persistCaseState(ctx, caseID)
	switch {
	case err != nil:
		e.publish(ctx, exceptionhook.Event{Kind: exceptionhook.WorkItemFailed, CaseID: caseID, WorkItemID: string(itemID), Detail: err.Error()})
	default:
		e.publish(ctx, exceptionhook.Event{Kind: exceptionhook.WorkItemComplete, CaseID: caseID, WorkItemID: string(itemID)})
	}
	return err
}

// SuspendWorkItem pauses a single live work item (§4.8 suspendWorkItem).
func (e *Engine) SuspendWorkItem(ctx context.Context, itemID workitem.ID) error {
	caseID := e.caseIDForItem(ctx, itemID)
	err := e.run.SuspendWorkItem(ctx, itemID)
	e.persistCaseState(ctx, caseID)
	return err
}

// ResumeWorkItem reverts a suspended work item to its prior status
// (§4.8 resumeWorkItem).
func (e *Engine) ResumeWorkItem(ctx context.Context, itemID workitem.ID) error {
	caseID := e.caseIDForItem(ctx, itemID)
	err := e.run.ResumeWorkItem(ctx, itemID)
	e.persistCaseState(ctx, caseID)
	return err
}

// CancelCase tears down every live work item and token for caseID
// (§4.8 cancelCase). Terminal persistence happens via the
// CompletionObserver callback the runner invokes as part of
// cancellation.
func (e *Engine) CancelCase(ctx context.Context, caseID string) error {
	return e.run.CancelCase(ctx, caseID)
}

// SuspendCase stops caseID from enabling new work (§4.8 suspendCase).
func (e *Engine) SuspendCase(ctx context.Context, caseID string) error {
	if err := e.run.SuspendCase(ctx, caseID); err != nil {
		return err
	}
	e.persistCaseState(ctx, caseID)
	return nil
}

// ResumeCase returns a suspended case to Normal and re-drives it (§4.8
// resumeCase). Resuming can itself fire tasks via kick(), so the whole
// case's live work items are resynced rather than just its record.
func (e *Engine) ResumeCase(ctx context.Context, caseID string) error {
	if err := e.run.ResumeCase(ctx, caseID); err != nil {
		return err
	}
	e.persistCaseState(ctx, caseID)
	return nil
}

// InspectMarking returns every marked element and its token count for
// caseID (§3.3 supplemented admin API).
func (e *Engine) InspectMarking(caseID string) (map[ident.Element]int, error) {
	return e.run.InspectMarking(caseID)
}

// AdminEditMarking bypasses ordinary firing semantics to add or remove a
// token, gated by the caller already being an authorized administrator
// (callers of the Go API are the trust boundary here — the same
// assumption the runner's own AdminCapability documents). Typically used
// to recover a deadlocked case (§3.3, §7 ErrDeadlocked).
func (e *Engine) AdminEditMarking(ctx context.Context, caseID string, element ident.Element, delta int) error {
	cap := runner.NewAdminCapability()
	if err := e.run.AdminEditMarking(cap, ctx, caseID, element, delta); err != nil {
		return err
	}
	e.persistCaseState(ctx, caseID)
	return nil
}

// WorkItemFilter scopes GetLiveWorkItems. The zero value matches every
// live work item.
type WorkItemFilter struct {
	CaseID string
	TaskID string
	Status *workitem.Status
}

// GetLiveWorkItems returns every live work item matching filter (§4.8
// getLiveWorkItems). The repository keeps an item until its task exits,
// so terminal items such as a withdrawn deferred-choice loser or a
// region-cancelled item can still be indexed; with no explicit Status
// this only returns items whose Status.IsLive is true, and an explicit
// Status (including a terminal one) shows the kept items of that status.
func (e *Engine) GetLiveWorkItems(ctx context.Context, filter WorkItemFilter) []*workitem.Item {
	var base []*workitem.Item
	switch {
	case filter.CaseID != "" && filter.TaskID != "":
		base = e.repo.ListByTask(ctx, filter.CaseID, filter.TaskID)
	case filter.CaseID != "":
		base = e.repo.ListByCase(ctx, filter.CaseID)
	default:
		base = e.repo.ListAll(ctx)
	}
	out := make([]*workitem.Item, 0, len(base))
	for _, it := range base {
		switch {
		case filter.Status != nil:
			if it.Status == *filter.Status {
				out = append(out, it)
			}
		case it.Status.IsLive():
			out = append(out, it)
		}
	}
	return out
}

// RegisterHandler records a handler's presence in the C10 registry
// (§4.8 registerHandler). It does not attach the in-process
// implementation that actually dispatches work — see Router().
func (e *Engine) RegisterHandler(ctx context.Context, d handler.Descriptor) error {
	return e.handlers.Register(ctx, d)
}

// UnregisterHandler removes a handler from the C10 registry (§4.8
// unregisterHandler).
func (e *Engine) UnregisterHandler(ctx context.Context, ref string) error {
	return e.handlers.Unregister(ctx, ref)
}

// caseIDForItem looks up itemID's owning case id before an operation
// that may remove the item from the repository (e.g. CompleteWorkItem
// on a task's last live instance), so persistCaseState still knows which
// case to resync afterward.
func (e *Engine) caseIDForItem(ctx context.Context, itemID workitem.ID) string {
	if it, err := e.repo.Get(ctx, itemID); err == nil {
		return it.CaseID
	}
	return ""
}

// persistCaseState resyncs caseID's full work-item set to the durable
// store (every item the repository still indexes for the case, terminal
// ones included, see workitem.Status.IsLive), deletes any store-side item
// the repository no longer indexes at all (a task's items once the task
// has exited, or every item after a cancellation's RemoveForCase), and
// refreshes the case record. A single runner call — launch, complete,
// resume, an admin marking edit — can fire a whole cascade of tasks and
// create or retire several work items at once via kick(), so the façade
// cannot persist just the one item the caller named; it must resync the
// case as a whole or crash recovery would see a stale or incomplete
// work-item set. Failures are logged, not surfaced: the event log
// remains the authoritative record (see eventlog's package doc), and
// the durable store is a derived, recoverable cache of it.
func (e *Engine) persistCaseState(ctx context.Context, caseID string) {
	if caseID == "" {
		return
	}

	live := e.repo.ListByCase(ctx, caseID)
	liveIDs := make(map[workitem.ID]bool, len(live))
	for _, it := range live {
		liveIDs[it.ID] = true
		if err := e.store.SaveWorkItem(ctx, it); err != nil {
			e.logger.Error(ctx, "persist work item failed", "work_item_id", string(it.ID), "error", err)
		}
	}
	if stored, err := e.store.ListWorkItemsByCase(ctx, caseID); err == nil {
		for _, it := range stored {
			if liveIDs[it.ID] {
				continue
			}
			if err := e.store.DeleteWorkItem(ctx, it.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
				e.logger.Error(ctx, "delete stale work item failed", "work_item_id", string(it.ID), "error", err)
			}
		}
	}

	if c, err := e.run.GetCase(caseID); err == nil {
		e.persistCase(ctx, c)
	}
}

// persistCase best-effort saves a consistent snapshot of c to the
// durable store.
func (e *Engine) persistCase(ctx context.Context, c *runner.Case) {
	status, data, marking := c.Snapshot()
	rec := store.CaseRecord{
		ID:             c.ID,
		NetID:          c.Net.ID,
		Status:         toStoreStatus(status),
		Data:           data,
		Marking:        marking,
		ParentCaseID:   c.ParentCaseID,
		ParentWorkItem: string(c.ParentWorkItem),
		CreatedAt:      c.CreatedAt(),
	}
	if err := e.store.SaveCase(ctx, rec); err != nil {
		e.logger.Error(ctx, "persist case failed", "case_id", c.ID, "error", err)
	}
}
