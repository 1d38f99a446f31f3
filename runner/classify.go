package runner

import (
	"context"

	"github.com/yawlgo/engine/eventlog"
	"github.com/yawlgo/engine/ident"
	"github.com/yawlgo/engine/net"
	"github.com/yawlgo/engine/net/reach"
	"github.com/yawlgo/engine/workitem"
)

// reachState adapts a Case's live marking and busy bookkeeping to
// reach.State for OR-join evaluation (C3). A busy task counts as marked:
// its token sits in the task's internal places, from where it can still
// reach the task's postset.
type reachState struct{ c *Case }

func (s reachState) Marked(e ident.Element) bool { return !s.c.Reg.Empty(e) || s.c.busySet[e] }
func (s reachState) EnabledOrBusy(task ident.Element) bool {
	return s.c.enabledSet[task] || s.c.busySet[task]
}

// joinSatisfied reports whether t's join condition currently holds over
// c's marking (§4.3).
func joinSatisfied(c *Case, t *net.Task) bool {
	preset := t.Preset()
	switch t.Join {
	case net.JoinAND:
		if len(preset) == 0 {
			return false
		}
		for _, p := range preset {
			if c.Reg.Empty(p) {
				return false
			}
		}
		return true
	case net.JoinXOR:
		for _, p := range preset {
			if !c.Reg.Empty(p) {
				return true
			}
		}
		return false
	case net.JoinOR:
		return reach.CanFire(c.Net, reachState{c}, t.ID)
	default:
		return false
	}
}

// classify evaluates every task's join condition against one snapshot of
// c's marking (§4.5 step 1): the read-only pass neither fires nor
// withdraws anything, so a task sharing a precondition with another
// (a deferred choice) is judged against the same token the other task
// sees, not against whatever the other task's own fire happened to
// consume first. newlyEnabled holds tasks whose join now holds and that
// are not already live; toWithdraw holds tasks that still have a live,
// never-started work item, whose join no longer holds, and that share a
// preset condition with a sibling task that has since fired and exited
// (the deferred-choice loser once the winner completes).
func classify(c *Case, repo *workitem.Repository, ctx context.Context) (newlyEnabled, toWithdraw []*net.Task) {
	for _, taskID := range c.Net.SortedTaskIDs() {
		t := c.Net.Tasks[taskID]
		if joinSatisfied(c, t) {
			if !c.busySet[taskID] {
				newlyEnabled = append(newlyEnabled, t)
			}
			continue
		}
		if !c.busySet[taskID] || !hasEnabledNotStarted(repo, ctx, c.ID, taskID) {
			continue
		}
		// t's own fire emptied its preset too; only a sibling on a shared
		// preset condition that fired and has exited (enabledSet still
		// set, busySet cleared) makes t stale.
	siblings:
		for _, p := range t.Preset() {
			for _, u := range c.Net.TaskPostset(p) {
				if u != taskID && c.enabledSet[u] && !c.busySet[u] {
					toWithdraw = append(toWithdraw, t)
					break siblings
				}
			}
		}
	}
	return newlyEnabled, toWithdraw
}

// hasEnabledNotStarted reports whether taskID currently has a live work
// item still in Enabled status (never Started) — the only state
// deferred-choice withdrawal applies to; an Executing/Suspended instance
// is left alone (it is no longer "merely offered").
func hasEnabledNotStarted(repo *workitem.Repository, ctx context.Context, caseID string, taskID ident.Element) bool {
	for _, it := range repo.ListByTask(ctx, caseID, string(taskID)) {
		if it.Status == workitem.Enabled {
			return true
		}
	}
	return false
}

// kick runs the classify/fire/withdraw loop to quiescence (§4.5):
// classify the whole marking first, then fire every newly-enabled task
// and withdraw every task the classify pass found stale, then repeat
// until nothing changes. Callers must hold c.mu.
func (r *Runner) kick(ctx context.Context, c *Case) error {
	if c.Status == Quarantined {
		return &InternalConsistencyError{CaseID: c.ID, Reason: "kick called on quarantined case"}
	}
	for {
		if c.Status != Normal {
			break // suspending/suspended/cancelling cases stop enabling new work
		}
		newlyEnabled, toWithdraw := classify(c, r.repo, ctx)
		if len(newlyEnabled) == 0 && len(toWithdraw) == 0 {
			break
		}

		for _, t := range newlyEnabled {
			if c.Status != Normal {
				break
			}
			// busySet alone, not joinSatisfied, guards this fire: two
			// siblings sharing a precondition (a deferred choice) are
			// both newlyEnabled against the same classify snapshot, and
			// the first one fired drains that precondition via
			// consumePreset before the second is reached here. Re-
			// checking joinSatisfied would then skip the second sibling
			// and reproduce the single-winner bug this split exists to
			// fix. A synchronous codelet re-entering kick still can't
			// cause a double fire of t, since fire sets busySet before
			// announcing.
			if c.busySet[t.ID] {
				continue
			}
			if err := r.fire(ctx, c, t); err != nil {
				return err
			}
		}
		for _, t := range toWithdraw {
			if c.Status != Normal {
				break
			}
			if !c.busySet[t.ID] || joinSatisfied(c, t) {
				continue // already resolved by a nested fire/withdraw above
			}
			if err := r.withdraw(ctx, c, t); err != nil {
				return err
			}
		}
	}
	return r.checkQuiescence(ctx, c)
}

// withdraw retracts every live, never-started work item of t: the
// deferred-choice loser once a sibling sharing its precondition has fired
// and exited (§4.5, §4.7 Announcer.Withdraw).
func (r *Runner) withdraw(ctx context.Context, c *Case, t *net.Task) error {
	for _, it := range r.repo.ListByTask(ctx, c.ID, string(t.ID)) {
		if it.Status != workitem.Enabled {
			continue
		}
		it.Status = workitem.Withdrawn
		if err := r.repo.Update(ctx, it); err != nil {
			return err
		}
		c.Reg.RemoveLocation(it.Instance, t.Internal(net.PlaceEntered))
		c.Reg.RemoveLocation(it.Instance, t.Internal(net.PlaceActive))
		r.appendEvent(ctx, c, eventlog.WorkItemWithdrawn, t.ID, it.ID, "runner", nil)
		r.announce.Withdraw(ctx, it, eventlog.WorkItemWithdrawn)
	}
	c.busySet[t.ID] = false
	c.enabledSet[t.ID] = false
	delete(c.miActive, t.ID)
	return nil
}

// checkQuiescence decides whether c has completed (Output marked) or
// deadlocked (no enabled/busy task and Output unmarked), per §4.5 steps
// 5-6.
func (r *Runner) checkQuiescence(ctx context.Context, c *Case) error {
	if !c.Reg.Empty(c.Net.Output) {
		return r.completeCase(ctx, c)
	}
	if c.Status != Normal {
		return nil
	}
	for t := range c.busySet {
		if c.busySet[t] {
			return nil // some task instance is still live; not stuck
		}
	}
	// Nothing marked as busy and Output is unreached: the case cannot
	// progress on its own. This is not necessarily permanent (an
	// administrator may edit the marking, §3.3 InspectMarking/
	// AdminEditMarking), so the case stays Normal. A CaseDeadlocked event
	// is appended and the observer receives the task ids of the work
	// items the repository still holds for the case; no work item's
	// status is changed and no Deadlocked work item is created.
	var stuck []ident.Element
	for _, it := range r.repo.ListByCase(ctx, c.ID) {
		stuck = append(stuck, it.TaskID)
	}
	r.appendEvent(ctx, c, eventlog.CaseDeadlocked, "", "", "runner", nil)
	if r.observer != nil {
		r.observer.CaseDeadlocked(c.ID, stuck)
	}
	return ErrDeadlocked
}

func (r *Runner) completeCase(ctx context.Context, c *Case) error {
	if c.Status == Completed {
		return nil
	}
	c.Status = Completed
	r.appendEvent(ctx, c, eventlog.CaseCompleted, "", "", "runner", c.Data)
	r.untrack(c.ID)
	if r.observer != nil {
		r.observer.CaseCompleted(c.ID, c.Data)
	}
	if c.ParentWorkItem != "" {
		parentItem, data := c.ParentWorkItem, c.Data
		r.enqueue(func(ctx context.Context) {
			_ = r.Complete(ctx, parentItem, data, CompleteNormal)
		})
	}
	return nil
}
