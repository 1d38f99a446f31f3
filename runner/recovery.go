package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yawlgo/engine/ident"
	"github.com/yawlgo/engine/workitem"
)

// RestoreCase rebuilds a live Case from durable state after a process
// restart (§4.9 crash recovery): the caller (engine façade) has already
// reconstructed reg from a persisted ident.Snapshot and replayed the
// case's work items into the repository; RestoreCase rebuilds the
// in-memory busy/enabled/multi-instance bookkeeping kick() needs from
// those work items, tracks the case, and — for a case that was Normal at
// the time of the crash — re-invokes kick so any progress the crash
// interrupted resumes.
func (r *Runner) RestoreCase(ctx context.Context, caseID, netID string, data json.RawMessage, status Status, reg *ident.Registry, root ident.Identifier, parentCaseID string, parentWorkItem workitem.ID) (*Case, error) {
	proto, ok := r.specs.Net(netID)
	if !ok {
		return nil, fmt.Errorf("%w: net %q", ErrNotFound, netID)
	}

	c := &Case{
		ID:             caseID,
		Net:            proto.Clone(),
		Reg:            reg,
		Root:           root,
		Status:         status,
		Data:           data,
		ParentCaseID:   parentCaseID,
		ParentWorkItem: parentWorkItem,
		enabledSet:     make(map[ident.Element]bool),
		busySet:        make(map[ident.Element]bool),
		miActive:       make(map[ident.Element][]ident.ID),
		createdAt:      time.Now(),
	}

	for _, it := range r.repo.ListByCase(ctx, caseID) {
		switch it.Status {
		case workitem.Enabled, workitem.Fired:
			c.enabledSet[it.TaskID] = true
			c.busySet[it.TaskID] = true
		case workitem.Executing, workitem.Suspended:
			c.busySet[it.TaskID] = true
		}
	}
	for taskID, t := range c.Net.Tasks {
		if t.MI == nil {
			continue
		}
		seen := make(map[ident.ID]bool)
		var children []ident.ID
		for _, it := range r.repo.ListByTask(ctx, caseID, string(taskID)) {
			if !seen[it.Instance] {
				seen[it.Instance] = true
				children = append(children, it.Instance)
			}
		}
		if len(children) > 0 {
			c.miActive[taskID] = children
		}
	}

	r.track(c)
	if status != Normal {
		return c, nil
	}

	defer r.drainPending(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := r.kick(ctx, c); err != nil {
		return c, err
	}
	return c, nil
}
