// Package announce implements the execution-profile routing component
// (C7): given a newly-enabled work item, decide which handler delivers
// it — a registered service reference (dispatched asynchronously through
// a Pulse worker pool), an inline codelet (run synchronously, in-process,
// under the caller's own goroutine), or neither, in which case the item
// is left for the default manual worklist.
package announce

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"goa.design/pulse/pool"

	"github.com/yawlgo/engine/eventlog"
	"github.com/yawlgo/engine/handler"
	"github.com/yawlgo/engine/runner"
	"github.com/yawlgo/engine/telemetry"
	"github.com/yawlgo/engine/workitem"
)

// Codelet is an inline handler invoked synchronously inside Announce,
// under the case lock the runner already holds (spec.md §4.7: codelets
// are trusted, fast, in-process).
type Codelet func(ctx context.Context, it *workitem.Item) (json.RawMessage, error)

// ServiceHandler delivers a work item to an external service reference.
// Dispatch is asynchronous: the handler is expected to eventually call
// back into the engine's completeWorkItem, not return output directly.
type ServiceHandler interface {
	Handle(ctx context.Context, it *workitem.Item) error
}

// Router implements runner.Announcer: serviceRef wins over codelet when
// both are configured on a task's execution profile (a load-time warning
// is already recorded for that case by net.Build); codelet wins over the
// default manual worklist; no profile routing at all leaves the item
// Enabled for a human worklist (spec.md §4.7).
type Router struct {
	logger   telemetry.Logger
	registry *handler.Registry // C10: authoritative record of what refs exist

	mu       sync.RWMutex
	codelets map[string]Codelet
	services map[string]ServiceHandler
	limiters map[string]*rate.Limiter

	pool        *pool.Node // optional: present when async dispatch is pool-backed
	defaultRate rate.Limit
}

// Option configures a Router.
type Option func(*Router)

// WithPoolNode backs asynchronous serviceRef dispatch with a Pulse worker
// pool node, so dispatch survives this process restarting (another node
// in the pool can pick up the job).
func WithPoolNode(node *pool.Node) Option { return func(r *Router) { r.pool = node } }

// WithDefaultRateLimit caps dispatch throughput per serviceRef when no
// handler-specific limit is registered via RegisterService.
func WithDefaultRateLimit(perSecond float64) Option {
	return func(r *Router) { r.defaultRate = rate.Limit(perSecond) }
}

// WithLogger attaches a structured logger for dispatch diagnostics.
func WithLogger(l telemetry.Logger) Option { return func(r *Router) { r.logger = l } }

// New constructs a Router against reg, the C10 handler registry. Local
// ServiceHandler/Codelet implementations are still attached separately
// via RegisterCodelet/RegisterService — reg only tracks which refs
// exist and their Descriptor, used to distinguish "ref never registered"
// (HandlerUnavailable, §4.10) from "ref registered but no local
// ServiceHandler attached on this process" (also HandlerUnavailable,
// since dispatch has nowhere to go from this node).
func New(reg *handler.Registry, opts ...Option) *Router {
	r := &Router{
		registry:    reg,
		codelets:    make(map[string]Codelet),
		services:    make(map[string]ServiceHandler),
		limiters:    make(map[string]*rate.Limiter),
		defaultRate: rate.Inf,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterCodelet installs an inline handler under name, matched against
// a task's ExecutionProfile.Codelet.
func (r *Router) RegisterCodelet(name string, fn Codelet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codelets[name] = fn
}

// RegisterService installs an external service handler under ref,
// matched against a task's ExecutionProfile.ServiceRef, with an optional
// dedicated rate limit. ref must already be (or become) registered in
// the C10 registry; a local handler for an unregistered ref is dead
// code until the ref is registered too.
func (r *Router) RegisterService(ref string, h ServiceHandler, perSecond float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[ref] = h
	if perSecond > 0 {
		r.limiters[ref] = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// Unregister removes a service handler, e.g. when an external provider
// disconnects (handler unavailability is then surfaced to callers as
// HandlerUnavailable on the next Announce attempt). It does not remove
// ref from the C10 registry itself — callers that also want the ref to
// stop resolving at load-time verification should call
// handler.Registry.Unregister.
func (r *Router) Unregister(ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services, ref)
	delete(r.limiters, ref)
}

// Announce implements runner.Announcer.
func (r *Router) Announce(ctx context.Context, it *workitem.Item) (json.RawMessage, error) {
	profile := it.Profile

	if profile.ServiceRef != "" {
		return nil, r.dispatchService(ctx, it, profile.ServiceRef)
	}
	if profile.Codelet != "" {
		return r.runCodelet(ctx, it, profile.Codelet)
	}
	// No routing configured: leave the item Enabled for the default
	// manual worklist (§4.7's fall-through case).
	if r.logger != nil {
		r.logger.Info(ctx, "work item has no service ref or codelet; left for manual worklist", "work_item_id", string(it.ID))
	}
	return nil, nil
}

// Withdraw implements runner.Announcer.
func (r *Router) Withdraw(ctx context.Context, it *workitem.Item, kind eventlog.Kind) {
	profile := it.Profile
	if profile.ServiceRef == "" {
		return
	}
	r.mu.RLock()
	h := r.services[profile.ServiceRef]
	r.mu.RUnlock()
	if h == nil {
		return
	}
	if withdrawer, ok := h.(interface {
		Withdraw(context.Context, *workitem.Item) error
	}); ok {
		_ = withdrawer.Withdraw(ctx, it)
	}
}

func (r *Router) runCodelet(ctx context.Context, it *workitem.Item, name string) (json.RawMessage, error) {
	r.mu.RLock()
	fn, ok := r.codelets[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: codelet %q not registered on this node", runner.ErrHandlerUnavailable, name)
	}
	return fn(ctx, it)
}

func (r *Router) dispatchService(ctx context.Context, it *workitem.Item, ref string) error {
	if r.registry != nil && !r.registry.IsRegistered(ref) {
		return fmt.Errorf("%w: service ref %q is not registered", runner.ErrHandlerUnavailable, ref)
	}
	r.mu.RLock()
	h, ok := r.services[ref]
	limiter := r.limiters[ref]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: service ref %q has no local dispatch handler on this node", runner.ErrHandlerUnavailable, ref)
	}
	if limiter == nil {
		limiter = rate.NewLimiter(r.defaultRate, 1)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("announce: rate limit wait for %q: %w", ref, err)
	}

	if r.pool == nil {
		// No pool node configured: dispatch directly on a detached
		// goroutine so Announce returns immediately (async per profile).
		go func() {
			dctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = h.Handle(dctx, it)
		}()
		return nil
	}

	// Pool-backed dispatch lets another node in the cluster pick up the
	// job if this process restarts mid-flight; the job handler itself
	// is the same ServiceHandler, invoked from a pool worker goroutine.
	jobKey := string(it.ID)
	payload, _ := json.Marshal(it)
	return r.pool.DispatchJob(ctx, jobKey, payload)
}
