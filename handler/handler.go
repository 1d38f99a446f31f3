// Package handler implements the external handler registry (C10): the
// set of named services and inline codelets a task's execution profile
// may reference. Registration is replicated across engine processes
// when backed by a Pulse rmap.Map, so any engine node can resolve a
// serviceRef registered on another node (spec.md §4.10).
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Kind classifies a registered handler.
type Kind string

const (
	KindDefaultWorklist Kind = "default-worklist"
	KindCustomService   Kind = "custom-service"
	KindCodelet         Kind = "codelet"
)

// ErrNotFound is returned when a reference has no registered handler.
var ErrNotFound = errors.New("handler: not found")

// Descriptor is the registry entry for one handler.
type Descriptor struct {
	Ref         string `json:"ref"`
	DisplayName string `json:"display_name"`
	Kind        Kind   `json:"kind"`
	// Endpoint describes how announcements reach the handler; opaque to
	// the engine (an address, a queue name, a webhook URL — interpreted
	// only by the dispatch code that owns this Kind).
	Endpoint string `json:"endpoint,omitempty"`
}

// Map is the minimal replicated-map contract the registry needs to
// share state across engine processes. It is satisfied by
// *goa.design/pulse/rmap.Map. Defined here (rather than importing rmap
// directly into the type) so the registry stays unit-testable without
// Redis and so Registry can be backed by a plain in-memory map in
// single-process deployments.
type Map interface {
	Delete(ctx context.Context, key string) (string, error)
	Get(key string) (string, bool)
	Keys() []string
	Set(ctx context.Context, key, value string) (string, error)
}

// Registry resolves serviceRef/codelet names against their registered
// Descriptor, and tracks which references are currently unresolved (a
// load-time verification warning per spec.md §4.10, not a load error).
type Registry struct {
	m Map

	mu       sync.RWMutex
	fallback map[string]Descriptor // local copy kept in step by Register/Unregister; lookups read m
}

// New constructs a Registry backed by m. Pass a *rmap.Map for a
// multi-node cluster, or NewLocalMap() for a single-process engine
// (tests, the demo CLI).
func New(m Map) *Registry {
	return &Registry{m: m, fallback: make(map[string]Descriptor)}
}

// Register installs or replaces a handler Descriptor, keyed by its Ref.
// A default-worklist handler is conventionally registered once, at
// engine startup, under a well-known ref (see DefaultWorklistRef).
func (r *Registry) Register(ctx context.Context, d Descriptor) error {
	if d.Ref == "" {
		return fmt.Errorf("handler: ref is required")
	}
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("handler: marshal descriptor %q: %w", d.Ref, err)
	}
	if _, err := r.m.Set(ctx, d.Ref, string(b)); err != nil {
		return fmt.Errorf("handler: register %q: %w", d.Ref, err)
	}
	r.mu.Lock()
	r.fallback[d.Ref] = d
	r.mu.Unlock()
	return nil
}

// Unregister removes ref from the registry. A task whose serviceRef
// later resolves against ref will see HandlerUnavailable on the next
// announcement attempt (spec.md §4.10, §7).
func (r *Registry) Unregister(ctx context.Context, ref string) error {
	if _, err := r.m.Delete(ctx, ref); err != nil {
		return fmt.Errorf("handler: unregister %q: %w", ref, err)
	}
	r.mu.Lock()
	delete(r.fallback, ref)
	r.mu.Unlock()
	return nil
}

// Resolve looks up ref, returning ErrNotFound if unregistered (or
// unregistered on this node but not yet replicated, in which case the
// caller should treat it identically — §4.10's announce-time error).
func (r *Registry) Resolve(ref string) (Descriptor, error) {
	val, ok := r.m.Get(ref)
	if !ok {
		return Descriptor{}, ErrNotFound
	}
	var d Descriptor
	if err := json.Unmarshal([]byte(val), &d); err != nil {
		return Descriptor{}, fmt.Errorf("handler: unmarshal descriptor %q: %w", ref, err)
	}
	return d, nil
}

// IsRegistered reports whether ref currently resolves; the announce
// router uses it at announce time. Load-time verification of serviceRefs
// uses ResolvedSet instead.
func (r *Registry) IsRegistered(ref string) bool {
	_, ok := r.m.Get(ref)
	return ok
}

// List returns every registered Descriptor, ordered by Ref, for the
// design-time IA query interface.
func (r *Registry) List() []Descriptor {
	keys := r.m.Keys()
	sort.Strings(keys)
	out := make([]Descriptor, 0, len(keys))
	for _, k := range keys {
		if d, err := r.Resolve(k); err == nil {
			out = append(out, d)
		}
	}
	return out
}

// DefaultWorklistRef is the conventional ref under which the built-in
// manual human worklist handler is registered.
const DefaultWorklistRef = "default-worklist"

// ResolvedSet returns the registered refs as a set, in the shape
// net.Build's resolvedServiceRefs parameter expects, so a spec load can
// check every task's serviceRef against whatever is registered at load
// time without net importing this package.
func (r *Registry) ResolvedSet() map[string]bool {
	keys := r.m.Keys()
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out
}
