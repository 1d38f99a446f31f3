package engine

import (
	"context"
	"fmt"

	"github.com/yawlgo/engine/ident"
	"github.com/yawlgo/engine/workitem"
)

// Recover reconstructs in-memory state from the durable store after a
// process restart (§4.9): every persisted specification is reloaded into
// the net cache, every non-terminal case's work items are replayed into
// the repository, its marking is rebuilt from the persisted
// ident.Snapshot, and the case runner re-drives it via RestoreCase —
// continuing any progress the crash interrupted for a case that was
// Normal when it was last saved.
//
// Recover is not called automatically by New: callers that want crash
// recovery invoke it explicitly once, before accepting new work, so a
// fresh Engine backed by a populated Store (e.g. a test fixture) isn't
// forced to pay for it.
func (e *Engine) Recover(ctx context.Context) error {
	specs, err := e.store.ListSpecifications(ctx)
	if err != nil {
		return fmt.Errorf("engine: recover: list specifications: %w", err)
	}
	for _, n := range specs {
		e.specs.set(n)
	}

	cases, err := e.store.ListNonTerminalCases(ctx)
	if err != nil {
		return fmt.Errorf("engine: recover: list non-terminal cases: %w", err)
	}
	for _, rec := range cases {
		items, err := e.store.ListWorkItemsByCase(ctx, rec.ID)
		if err != nil {
			return fmt.Errorf("engine: recover: list work items for case %q: %w", rec.ID, err)
		}
		for _, it := range items {
			if err := e.repo.Create(ctx, it); err != nil {
				return fmt.Errorf("engine: recover: restore work item %q: %w", it.ID, err)
			}
		}

		reg, root, err := ident.Restore(rec.ID, rec.Marking)
		if err != nil {
			return fmt.Errorf("engine: recover: restore marking for case %q: %w", rec.ID, err)
		}

		status := fromStoreStatus(rec.Status)
		if _, err := e.run.RestoreCase(ctx, rec.ID, rec.NetID, rec.Data, status, reg, root, rec.ParentCaseID, workitem.ID(rec.ParentWorkItem)); err != nil {
			e.logger.Error(ctx, "case restored with error", "case_id", rec.ID, "error", err)
		}
	}
	return nil
}
