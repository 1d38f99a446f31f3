package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/yawlgo/engine/eventlog"
	"github.com/yawlgo/engine/ident"
	"github.com/yawlgo/engine/net"
	"github.com/yawlgo/engine/runner/predicate"
	"github.com/yawlgo/engine/workitem"
)

// fire consumes t's preset tokens, deposits the internal "entered" and
// "active" tokens, and creates the work item(s) that make t live — one
// for a single-instance task, max(Min,1) for a multi-instance task (§4.2,
// §4.6).
// Callers must hold c.mu.
func (r *Runner) fire(ctx context.Context, c *Case, t *net.Task) error {
	consumePreset(c, t)

	if t.MI != nil {
		return r.fireMultiInstance(ctx, c, t)
	}
	return r.fireSingle(ctx, c, t, c.Root.ID, "")
}

// consumePreset withdraws the tokens that satisfied t's join from their
// preset conditions. AND-joins consume every preset condition; XOR and OR
// joins consume only the conditions that were actually marked, leaving
// any condition an OR-join chose to wait for.
func consumePreset(c *Case, t *net.Task) {
	for _, p := range t.Preset() {
		if c.Reg.Empty(p) {
			continue
		}
		for _, id := range c.Reg.Tokens(p) {
			c.Reg.RemoveLocation(id, p)
		}
	}
}

// fireSingle creates one work item for instance (the case root, or one
// multi-instance child) against task t.
func (r *Runner) fireSingle(ctx context.Context, c *Case, t *net.Task, instance ident.ID, parent workitem.ID) error {
	c.Reg.AddLocation(instance, t.Internal(net.PlaceEntered))
	c.Reg.AddLocation(instance, t.Internal(net.PlaceActive))
	c.busySet[t.ID] = true
	c.enabledSet[t.ID] = true

	itemID := workitem.Make(instance, t.ID)
	it := &workitem.Item{
		ID:        itemID,
		CaseID:    c.ID,
		TaskID:    t.ID,
		Instance:  instance,
		ParentID:  parent,
		Status:    workitem.Enabled,
		InputData: c.Data,
		EnabledAt: time.Now(),
	}
	if t.Profile != nil {
		it.Profile = *t.Profile
	}
	if err := r.repo.Create(ctx, it); err != nil {
		return &InternalConsistencyError{CaseID: c.ID, Reason: fmt.Sprintf("create work item %s: %v", itemID, err)}
	}
	r.appendEvent(ctx, c, eventlog.WorkItemEnabled, t.ID, itemID, "runner", nil)

	if t.Kind == net.Composite {
		r.scheduleCompositeLaunch(c, t, it)
		return nil
	}

	out, err := r.announce.Announce(ctx, it)
	if err != nil {
		// Handler unavailable: the item stays Enabled for manual pickup
		// or retry; this is not fatal to the case.
		return nil
	}
	if out != nil {
		// A codelet ran synchronously inside Announce: complete it now,
		// under the case lock we already hold (the public Complete would
		// try to re-acquire it and deadlock).
		return r.completeLocked(ctx, c, it, out, CompleteNormal)
	}
	return nil
}

// fireMultiInstance spawns max(Min,1) child instances for a multi-instance
// task, each with its own work item (§4.6). No further children are added
// afterwards, whatever the task's Max or creation mode.
func (r *Runner) fireMultiInstance(ctx context.Context, c *Case, t *net.Task) error {
	mi := t.MI
	n := mi.Min
	if n < 1 {
		n = 1
	}
	var children []ident.ID
	for i := 0; i < n; i++ {
		child, err := c.Reg.Spawn(c.Root.ID)
		if err != nil {
			return &InternalConsistencyError{CaseID: c.ID, Reason: err.Error()}
		}
		children = append(children, child.ID)
		if err := r.fireSingle(ctx, c, t, child.ID, ""); err != nil {
			return err
		}
	}
	c.miActive[t.ID] = children
	return nil
}

// Start transitions a work item from Enabled to Executing (§4.4
// startWorkItem). It is the external handler's signal that it has taken
// custody of the item.
func (r *Runner) Start(ctx context.Context, itemID workitem.ID, handlerID string) error {
	c, it, err := r.lockedItem(ctx, itemID)
	if err != nil {
		return err
	}
	defer r.drainPending(ctx)
	defer c.mu.Unlock()

	if it.Status != workitem.Enabled {
		return ErrAlreadyStarted
	}
	now := time.Now()
	it.Status = workitem.Executing
	it.StartedAt = &now
	it.HandlerID = handlerID
	if err := r.repo.Update(ctx, it); err != nil {
		return err
	}
	r.appendEvent(ctx, c, eventlog.WorkItemStarted, it.TaskID, itemID, handlerID, nil)
	return nil
}

// SuspendWorkItem pauses a single live work item without affecting the
// rest of the case (§4.8 suspendWorkItem). Only an Enabled or Executing
// item can be suspended; the prior status is remembered so ResumeWorkItem
// can restore it.
func (r *Runner) SuspendWorkItem(ctx context.Context, itemID workitem.ID) error {
	c, it, err := r.lockedItem(ctx, itemID)
	if err != nil {
		return err
	}
	defer c.mu.Unlock()

	if it.Status != workitem.Enabled && it.Status != workitem.Executing {
		return ErrIllegalTransition
	}
	it.SuspendedFrom = it.Status
	it.Status = workitem.Suspended
	if err := r.repo.Update(ctx, it); err != nil {
		return err
	}
	r.appendEvent(ctx, c, eventlog.WorkItemSuspended, it.TaskID, itemID, it.HandlerID, nil)
	return nil
}

// ResumeWorkItem reverts a Suspended item to the status it held before
// SuspendWorkItem (§4.8 resumeWorkItem).
func (r *Runner) ResumeWorkItem(ctx context.Context, itemID workitem.ID) error {
	c, it, err := r.lockedItem(ctx, itemID)
	if err != nil {
		return err
	}
	defer c.mu.Unlock()

	if it.Status != workitem.Suspended {
		return ErrIllegalTransition
	}
	it.Status = it.SuspendedFrom
	it.SuspendedFrom = workitem.Enabled
	if err := r.repo.Update(ctx, it); err != nil {
		return err
	}
	r.appendEvent(ctx, c, eventlog.WorkItemResumed, it.TaskID, itemID, it.HandlerID, nil)
	return nil
}

// Complete finishes a work item, validates its output against the task's
// schema (if any), runs exit() for the owning task — at once for a
// single-instance task, and for a multi-instance task once miReadyToExit
// holds (Threshold completions, or every child terminal under
// WaitForAll) — and re-enters the classify loop (§4.4 completeWorkItem,
// §4.5).
func (r *Runner) Complete(ctx context.Context, itemID workitem.ID, output json.RawMessage, flag CompletionFlag) error {
	c, it, err := r.lockedItem(ctx, itemID)
	if err != nil {
		return err
	}
	defer r.drainPending(ctx)
	defer c.mu.Unlock()
	return r.completeLocked(ctx, c, it, output, flag)
}

// completeLocked is Complete's body; callers must already hold c.mu (the
// public Complete acquires it via lockedItem, and fire()'s synchronous
// codelet path reuses the lock it already holds from kick()).
func (r *Runner) completeLocked(ctx context.Context, c *Case, it *workitem.Item, output json.RawMessage, flag CompletionFlag) error {
	if flag == CompleteNormal && it.Status != workitem.Executing && it.Status != workitem.Enabled {
		return ErrIllegalTransition
	}

	t := c.Net.Tasks[it.TaskID]
	if t.OutputSchema != nil {
		if err := r.validateOutput(t, output); err != nil {
			return &DataValidationError{TaskID: string(t.ID), Err: err}
		}
	}

	now := time.Now()
	it.CompletedAt = &now
	it.OutputData = output
	if flag == CompleteForce {
		it.Status = workitem.ForcedComplete
	} else {
		it.Status = workitem.Complete
	}
	if err := r.repo.Update(ctx, it); err != nil {
		return err
	}
	r.appendEvent(ctx, c, eventlog.WorkItemCompleted, t.ID, it.ID, it.HandlerID, output)

	if err := mergeOutputIntoCaseData(c, output); err != nil {
		return &DataValidationError{TaskID: string(t.ID), Err: err}
	}

	if t.MI != nil {
		if !miReadyToExit(c, r.repo, ctx, t) {
			return nil // more children must finish first
		}
	}
	if err := r.exit(ctx, c, t); err != nil {
		return err
	}
	return r.kick(ctx, c)
}

// validateOutput compiles (and caches) t's JSON Schema and checks output
// against it.
func (r *Runner) validateOutput(t *net.Task, output json.RawMessage) error {
	r.schemas.mu.Lock()
	sch, ok := r.schemas.byTask[string(t.ID)]
	if !ok {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(string(t.ID)+"#", jsonDecode(t.OutputSchema)); err != nil {
			r.schemas.mu.Unlock()
			return err
		}
		compiled, err := compiler.Compile(string(t.ID) + "#")
		if err != nil {
			r.schemas.mu.Unlock()
			return err
		}
		sch = compiled
		r.schemas.byTask[string(t.ID)] = sch
	}
	r.schemas.mu.Unlock()

	return sch.Validate(jsonDecode(output))
}

func jsonDecode(raw json.RawMessage) any {
	var v any
	_ = json.Unmarshal(raw, &v)
	return v
}

func mergeOutputIntoCaseData(c *Case, output json.RawMessage) error {
	if len(output) == 0 {
		return nil
	}
	doc, err := predicate.ParseDocument(c.Data)
	if err != nil {
		return err
	}
	patch, err := predicate.ParseDocument(output)
	if err != nil {
		return err
	}
	for k, v := range patch {
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	c.Data = merged
	return nil
}

// miReadyToExit reports whether enough of t's multi-instance children
// have reached a terminal state to proceed past the multi-instance join
// (§4.6: Threshold, WaitForAll).
func miReadyToExit(c *Case, repo *workitem.Repository, ctx context.Context, t *net.Task) bool {
	items := repo.ListByTask(ctx, c.ID, string(t.ID))
	complete := 0
	terminal := 0
	for _, it := range items {
		switch it.Status {
		case workitem.Complete, workitem.ForcedComplete:
			complete++
			terminal++
		case workitem.Failed, workitem.Discarded, workitem.Withdrawn, workitem.CancelledByCase, workitem.Deleted:
			terminal++
		}
	}
	if t.MI.WaitForAll {
		return terminal == len(items)
	}
	return complete >= t.MI.Threshold
}

// exit removes t's work items from the repository (unfinished
// multi-instance children are marked Discarded first) together with their
// tokens in t's internal places, cancels its cancellation region, and
// performs t's split onto its postset (§4.2, §4.4 exit()).
func (r *Runner) exit(ctx context.Context, c *Case, t *net.Task) error {
	for _, it := range r.repo.ListByTask(ctx, c.ID, string(t.ID)) {
		if it.Status == workitem.Enabled || it.Status == workitem.Executing {
			it.Status = workitem.Discarded
			_ = r.repo.Update(ctx, it)
		}
		for _, p := range []net.InternalPlace{net.PlaceEntered, net.PlaceActive, net.PlaceExecuting, net.PlaceComplete} {
			c.Reg.RemoveLocation(it.Instance, t.Internal(p))
		}
		_ = r.repo.Remove(ctx, it.ID)
	}
	delete(c.miActive, t.ID)
	c.busySet[t.ID] = false

	r.cancelRegion(ctx, c, t)

	if err := r.split(ctx, c, t); err != nil {
		return err
	}
	r.appendEvent(ctx, c, eventlog.TaskExited, t.ID, "", "runner", nil)
	return nil
}

// cancelRegion withdraws tokens and live work items from every element in
// t's cancellation region (§4.2).
func (r *Runner) cancelRegion(ctx context.Context, c *Case, t *net.Task) {
	for _, e := range t.CancellationRegion {
		if c.Net.IsTask(e) {
			for _, it := range r.repo.ListByTask(ctx, c.ID, string(e)) {
				if it.Status == workitem.Complete || it.Status == workitem.ForcedComplete {
					continue
				}
				it.Status = workitem.CancelledByCase
				_ = r.repo.Update(ctx, it)
				for _, p := range []net.InternalPlace{net.PlaceEntered, net.PlaceActive, net.PlaceExecuting, net.PlaceComplete} {
					c.Reg.RemoveLocation(it.Instance, c.Net.Tasks[e].Internal(p))
				}
				r.appendEvent(ctx, c, eventlog.WorkItemCancelled, e, it.ID, "runner", nil)
				r.announce.Withdraw(ctx, it, eventlog.WorkItemCancelled)
			}
			c.busySet[e] = false
			c.enabledSet[e] = false
			continue
		}
		for _, id := range c.Reg.Tokens(e) {
			c.Reg.RemoveLocation(id, e)
		}
	}
}

// split deposits a token on each postset condition t's split code selects
// (§4.2): AND deposits on every Out target; OR deposits on every flow
// whose predicate evaluates true (falling back to the default flow if
// none do); XOR deposits on the first true flow in priority order (or the
// default).
func (r *Runner) split(ctx context.Context, c *Case, t *net.Task) error {
	doc, err := predicate.ParseDocument(c.Data)
	if err != nil {
		return &InternalConsistencyError{CaseID: c.ID, Reason: "case data is not a valid document: " + err.Error()}
	}

	deposit := func(flow net.Flow) {
		c.Reg.AddLocation(c.Root.ID, flow.To)
	}

	switch t.Split {
	case net.SplitAND:
		for _, f := range t.Out {
			deposit(f)
		}
	case net.SplitOR:
		var defaultFlow *net.Flow
		matched := false
		for i, f := range t.Out {
			if f.IsDefault {
				defaultFlow = &t.Out[i]
				continue
			}
			ok, err := predicate.Eval(f.Predicate, doc)
			if err != nil {
				continue // treated as false per predicate package policy
			}
			if ok {
				deposit(f)
				matched = true
			}
		}
		if !matched && defaultFlow != nil {
			deposit(*defaultFlow)
		}
	case net.SplitXOR:
		flows := append([]net.Flow(nil), t.Out...)
		sort.Slice(flows, func(i, j int) bool { return flows[i].Priority < flows[j].Priority })
		var defaultFlow *net.Flow
		fired := false
		for i, f := range flows {
			if f.IsDefault {
				if defaultFlow == nil {
					defaultFlow = &flows[i]
				}
				continue
			}
			ok, err := predicate.Eval(f.Predicate, doc)
			if err != nil {
				continue
			}
			if ok {
				deposit(f)
				fired = true
				break
			}
		}
		if !fired && defaultFlow != nil {
			deposit(*defaultFlow)
		}
	}
	return nil
}

// lockedItem resolves itemID to its owning case, locks the case, and
// returns the current work item snapshot. Callers must unlock c.mu.
func (r *Runner) lockedItem(ctx context.Context, itemID workitem.ID) (*Case, *workitem.Item, error) {
	it, err := r.repo.Get(ctx, itemID)
	if err != nil {
		return nil, nil, ErrNotFound
	}
	c, err := r.GetCase(it.CaseID)
	if err != nil {
		return nil, nil, ErrNotFound
	}
	c.mu.Lock()
	// Re-fetch under lock: another goroutine may have completed/removed
	// the item between Get and Lock.
	it, err = r.repo.Get(ctx, itemID)
	if err != nil {
		c.mu.Unlock()
		return nil, nil, ErrNotFound
	}
	return c, it, nil
}
