package runner

import (
	"context"

	"github.com/yawlgo/engine/eventlog"
	"github.com/yawlgo/engine/ident"
)

// AdminCapability gates AdminEditMarking: without a granted capability
// the call returns ErrIllegalTransition. The runner itself never
// constructs or holds one. The engine façade (C8) mints one on every call
// of its own AdminEditMarking and performs no authorization check, so the
// caller of the façade's Go API is the trust boundary. Editing a stuck
// case's marking is an explicit administrative act, not something
// classify() ever does on its own.
type AdminCapability struct{ granted bool }

// NewAdminCapability mints a granted capability token. It performs no
// check of its own; the engine façade calls it unconditionally.
func NewAdminCapability() AdminCapability { return AdminCapability{granted: true} }

// InspectMarking returns a snapshot of every element in caseID's net that
// currently holds a token, and its token count (§3.3 supplemented admin
// API).
func (r *Runner) InspectMarking(caseID string) (map[ident.Element]int, error) {
	c, err := r.GetCase(caseID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Reg.Marking(), nil
}

// AdminEditMarking adds (delta > 0) or removes (delta < 0) a token for
// the case's root identifier at element, bypassing ordinary firing
// semantics. It exists to let an administrator recover a deadlocked case
// (ErrDeadlocked) by supplying the token classify() was waiting for, or
// to manually correct a marking after an external system failure.
// It re-runs kick itself once the edit is applied, so a supplied token
// can enable tasks (or complete the case) before it returns.
func (r *Runner) AdminEditMarking(cap AdminCapability, ctx context.Context, caseID string, element ident.Element, delta int) error {
	if !cap.granted {
		return ErrIllegalTransition
	}
	c, err := r.GetCase(caseID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer r.drainPending(ctx)
	defer c.mu.Unlock()

	switch {
	case delta > 0:
		for i := 0; i < delta; i++ {
			c.Reg.AddLocation(c.Root.ID, element)
		}
	case delta < 0:
		for i := 0; i > delta; i-- {
			c.Reg.RemoveLocation(c.Root.ID, element)
		}
	}
	r.appendEvent(ctx, c, eventlog.AdminMarkingEdited, element, "", "admin", nil)
	return r.kick(ctx, c)
}

// SuspendCase stops a case from enabling new work; work items already
// Executing are unaffected (§4.5's Suspended status only gates new
// firing).
func (r *Runner) SuspendCase(ctx context.Context, caseID string) error {
	c, err := r.GetCase(caseID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Status != Normal {
		return ErrIllegalTransition
	}
	c.Status = Suspended
	r.appendEvent(ctx, c, eventlog.CaseSuspended, "", "", "admin", nil)
	return nil
}

// ResumeCase returns a suspended case to Normal and re-drives classify.
func (r *Runner) ResumeCase(ctx context.Context, caseID string) error {
	c, err := r.GetCase(caseID)
	if err != nil {
		return err
	}
	defer r.drainPending(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Status != Suspended {
		return ErrIllegalTransition
	}
	c.Status = Normal
	r.appendEvent(ctx, c, eventlog.CaseResumed, "", "", "admin", nil)
	return r.kick(ctx, c)
}

// CancelCase tears down every live work item and token for caseID and
// marks it Cancelled. Sub-cases spawned by composite tasks are not
// automatically cancelled in this pass; an administrator cancelling a
// composite-heavy case should cancel children explicitly (a Non-goal
// exclusion: cascading cancellation is a façade-level orchestration
// concern, not a runner primitive).
func (r *Runner) CancelCase(ctx context.Context, caseID string) error {
	c, err := r.GetCase(caseID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Status == Completed || c.Status == Cancelled {
		return ErrIllegalTransition
	}
	for _, it := range r.repo.ListByCase(ctx, caseID) {
		c.Reg.RemoveAllLocations(it.Instance)
	}
	_ = r.repo.RemoveForCase(ctx, caseID)
	c.Status = Cancelled
	r.appendEvent(ctx, c, eventlog.CaseCancelled, "", "", "admin", nil)
	r.untrack(caseID)
	if r.observer != nil {
		r.observer.CaseCancelled(caseID)
	}
	return nil
}
