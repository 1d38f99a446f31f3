// Package runner implements the task firing semantics (C4) and the
// per-case execution loop (C5): classify, fire, consume completions, and
// detect case completion or deadlock.
package runner

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/yawlgo/engine/eventlog"
	"github.com/yawlgo/engine/ident"
	"github.com/yawlgo/engine/net"
	"github.com/yawlgo/engine/workitem"
)

// Status is a case runner's execution status (spec.md §3).
type Status int

const (
	Normal Status = iota
	Suspending
	Suspended
	Resuming
	Cancelling
	Completed
	Cancelled
	Quarantined // InternalConsistencyError: fatal for the case (§7)
)

// CompletionFlag distinguishes a normal work-item completion from an
// administrator-forced one (§4.8 completeWorkItem).
type CompletionFlag int

const (
	CompleteNormal CompletionFlag = iota
	CompleteForce
)

// Announcer routes a newly-enabled (or withdrawn/cancelled) work item to
// its execution profile's handler (C7). The runner depends only on this
// interface so it never imports the announce package directly (the
// façade wires the two together).
type Announcer interface {
	// Announce delivers a WorkItemEnabled notification for it. If the
	// profile names a codelet, Announce executes it synchronously and
	// returns its output via codeletOutput (non-nil) so the caller can
	// immediately call Complete; for serviceRef/default-worklist/none,
	// codeletOutput is nil and the work item is left for an external
	// completeWorkItem call.
	Announce(ctx context.Context, it *workitem.Item) (codeletOutput json.RawMessage, err error)

	// Withdraw notifies handlers that it is no longer available
	// (deferred-choice withdrawal, or cancellation).
	Withdraw(ctx context.Context, it *workitem.Item, kind eventlog.Kind)
}

// SpecResolver looks up a composite task's child net prototype by id.
type SpecResolver interface {
	Net(id string) (*net.Net, bool)
}

// CompletionObserver is notified when a top-level case completes,
// cancels, or deadlocks (the façade's cross-case index maintenance and
// any caller-supplied completion webhook both implement this).
type CompletionObserver interface {
	CaseCompleted(caseID string, data json.RawMessage)
	CaseCancelled(caseID string)
	CaseDeadlocked(caseID string, stuckTasks []ident.Element)
}

// Case is one running process instance: the root identifier, a private
// clone of the prototype net, its marking, and its runner status.
type Case struct {
	mu sync.Mutex // serializes kick/complete/start/suspend/cancel for this case

	ID     string
	Net    *net.Net
	Reg    *ident.Registry
	Root   ident.Identifier
	Status Status
	Data   json.RawMessage // case data document

	ParentCaseID   string      // set for sub-cases spawned by a composite task
	ParentWorkItem workitem.ID // the parent's work item this sub-case will complete when it finishes

	enabledSet map[ident.Element]bool
	busySet    map[ident.Element]bool

	// miActive tracks, per multi-instance task, the live children created
	// for the current instance (cleared on exit or withdrawal). Nothing in
	// the runner reads it back: miReadyToExit counts the repository's
	// work items instead.
	miActive map[ident.Element][]ident.ID

	createdAt time.Time
}

// CreatedAt reports when the case was launched. Immutable after
// construction, so it is safe to read without holding c.mu.
func (c *Case) CreatedAt() time.Time { return c.createdAt }

// Snapshot returns a consistent, lock-protected view of the case's
// status, data document, and full marking — the view the engine façade
// (C8) needs to persist a CaseRecord (C9) or answer getCaseData without
// racing a concurrent kick/complete.
func (c *Case) Snapshot() (Status, json.RawMessage, ident.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Status, append(json.RawMessage(nil), c.Data...), c.Reg.Snapshot()
}

// schemaCache compiles and caches jsonschema validators by task id so
// complete() doesn't recompile on every call.
type schemaCache struct {
	mu     sync.Mutex
	byTask map[string]*jsonschema.Schema
}

func newSchemaCache() *schemaCache {
	return &schemaCache{byTask: make(map[string]*jsonschema.Schema)}
}
