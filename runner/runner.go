package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yawlgo/engine/eventlog"
	"github.com/yawlgo/engine/ident"
	"github.com/yawlgo/engine/workitem"
)

// Runner owns every live case and the shared collaborators (work-item
// repository, event log, announcer, net prototypes) every case needs to
// classify and fire (C5). One Runner typically backs one engine façade
// (C8); it holds no persistence of its own beyond the live case map —
// durability is the caller's concern (engine/store), fed from the event
// log this Runner appends to.
type Runner struct {
	specs    SpecResolver
	repo     *workitem.Repository
	log      eventlog.Log
	announce Announcer
	observer CompletionObserver
	schemas  *schemaCache

	mu    sync.RWMutex
	cases map[string]*Case

	// pending holds cross-case follow-up actions discovered while a case
	// lock was held (a composite task's child-case launch, or a
	// completed sub-case's notification back to its parent work item).
	// They run only after the originating case's lock has been released,
	// so the parent-before-child lock-ordering discipline (§4.2
	// composite tasks) is never violated by a synchronous completion
	// chain.
	pendingMu sync.Mutex
	pending   []func(context.Context)
}

// New constructs a Runner. observer may be nil if the caller doesn't need
// top-level case lifecycle callbacks.
func New(specs SpecResolver, repo *workitem.Repository, log eventlog.Log, announce Announcer, observer CompletionObserver) *Runner {
	return &Runner{
		specs:    specs,
		repo:     repo,
		log:      log,
		announce: announce,
		observer: observer,
		schemas:  newSchemaCache(),
		cases:    make(map[string]*Case),
	}
}

func (r *Runner) track(c *Case) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cases[c.ID] = c
}

func (r *Runner) untrack(caseID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cases, caseID)
}

// GetCase returns the live case runner state, or ErrNotFound.
func (r *Runner) GetCase(caseID string) (*Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cases[caseID]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// ListCases returns every live case id.
func (r *Runner) ListCases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.cases))
	for id := range r.cases {
		out = append(out, id)
	}
	return out
}

// LaunchCase creates a new case against the named net prototype, deposits
// the initial token on the net's Input condition, and runs classify until
// the case quiesces (C5 §4.5 step 1). caseID must be unique; it is the
// caller's responsibility to mint one (e.g. via uuid).
func (r *Runner) LaunchCase(ctx context.Context, caseID, netID string, data []byte) (*Case, error) {
	return r.launch(ctx, caseID, netID, data, "", "")
}

func (r *Runner) launch(ctx context.Context, caseID, netID string, data []byte, parentCaseID string, parentWorkItem workitem.ID) (*Case, error) {
	proto, ok := r.specs.Net(netID)
	if !ok {
		return nil, fmt.Errorf("%w: net %q", ErrNotFound, netID)
	}

	reg, root := ident.NewRegistry(caseID)
	c := &Case{
		ID:             caseID,
		Net:            proto.Clone(),
		Reg:            reg,
		Root:           root,
		Status:         Normal,
		Data:           data,
		ParentCaseID:   parentCaseID,
		ParentWorkItem: parentWorkItem,
		enabledSet:     make(map[ident.Element]bool),
		busySet:        make(map[ident.Element]bool),
		miActive:       make(map[ident.Element][]ident.ID),
		createdAt:      time.Now(),
	}
	reg.AddLocation(root.ID, c.Net.Input)
	r.track(c)

	r.appendEvent(ctx, c, eventlog.CaseStarted, "", "", "runner", nil)

	defer r.drainPending(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := r.kick(ctx, c); err != nil {
		return c, err
	}
	return c, nil
}

// enqueue schedules fn to run once the current case lock is released and
// drainPending is reached by the originating public call.
func (r *Runner) enqueue(fn func(context.Context)) {
	r.pendingMu.Lock()
	r.pending = append(r.pending, fn)
	r.pendingMu.Unlock()
}

// drainPending runs every queued cross-case action to a fixpoint (an
// action may itself enqueue more, e.g. a chain of nested composite
// sub-cases completing in turn). Every public entry point that locks a
// case defers this after releasing that lock.
func (r *Runner) drainPending(ctx context.Context) {
	for {
		r.pendingMu.Lock()
		if len(r.pending) == 0 {
			r.pendingMu.Unlock()
			return
		}
		fn := r.pending[0]
		r.pending = r.pending[1:]
		r.pendingMu.Unlock()
		fn(ctx)
	}
}

func (r *Runner) appendEvent(ctx context.Context, c *Case, kind eventlog.Kind, taskID ident.Element, itemID workitem.ID, actor string, payload []byte) {
	e := &eventlog.Event{
		CaseID:     c.ID,
		TaskID:     string(taskID),
		WorkItemID: string(itemID),
		Kind:       kind,
		Actor:      actor,
		Payload:    payload,
		Timestamp:  time.Now(),
	}
	// Event log append failures are not fatal to firing: the engine
	// façade surfaces them to callers as degraded durability, mirroring
	// spec.md §9's log-is-derivable-but-authoritative stance. A student
	// implementation logs and continues rather than unwinding a marking
	// change that already happened in memory.
	_ = r.log.Append(ctx, e)
}
