// Package engine implements the Engine Façade (C8): the single entry
// point that wires together the net prototype cache, the work-item
// repository (C6), the case runner (C4/C5), the external handler
// registry (C10), execution-profile routing (C7), the durable store
// (C9), the event log (IE), and the advisory hook bus (IX) into the
// operations spec.md §4.8 names.
//
// Engine owns the lifetime of its sub-components; callers construct one
// Engine per process (or per logical node in a cluster sharing the same
// Store/handler backend) and drive every case through it.
package engine

import (
	"context"
	"fmt"

	"github.com/yawlgo/engine/announce"
	"github.com/yawlgo/engine/engine/store"
	"github.com/yawlgo/engine/eventlog"
	"github.com/yawlgo/engine/eventlog/inmem"
	"github.com/yawlgo/engine/exceptionhook"
	"github.com/yawlgo/engine/handler"
	"github.com/yawlgo/engine/runner"
	"github.com/yawlgo/engine/telemetry"
	"github.com/yawlgo/engine/workitem"
)

// Config configures an Engine. Store is the only required field; every
// other collaborator falls back to a sane in-process default so a single
// engine can be stood up for tests or a one-node deployment without
// wiring Redis or Mongo.
type Config struct {
	// Store is the durable backing store for specifications, cases, and
	// work items (C9). Required.
	Store store.Store

	// Handlers is the replicated membership map backing the C10 handler
	// registry. Defaults to an in-process map (handler.NewLocalMap),
	// which only coordinates within this one engine.
	Handlers handler.Map

	// Router overrides the default execution-profile router (C7). Most
	// callers leave this nil and instead call Router() after New to
	// attach codelets/service handlers; supply one directly only when
	// the router needs construction-time options (a Pulse pool node, a
	// non-default rate limit) this Config does not expose.
	Router *announce.Router

	// EventLog is the append-only case event log (IE). Defaults to an
	// in-memory log, which does not survive a process restart.
	EventLog eventlog.Log

	// Hooks is the advisory case/work-item lifecycle bus (IX). Defaults
	// to a fresh, unsubscribed bus.
	Hooks exceptionhook.Bus

	// Logger receives structured diagnostics for best-effort persistence
	// and hook-dispatch failures. Defaults to a no-op logger.
	Logger telemetry.Logger

	// Metrics receives runtime counters. Defaults to a no-op recorder.
	Metrics telemetry.Metrics
}

// Engine is the wired-together C8 façade.
type Engine struct {
	store    store.Store
	handlers *handler.Registry
	router   *announce.Router
	log      eventlog.Log
	hooks    exceptionhook.Bus
	logger   telemetry.Logger
	metrics  telemetry.Metrics

	specs *specCache
	repo  *workitem.Repository
	run   *runner.Runner
}

// New wires a complete Engine from cfg. It does not load any
// specification or restore any case on its own — callers that need
// crash recovery call Recover explicitly once the Engine is
// constructed (§4.9).
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine: Store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	log := cfg.EventLog
	if log == nil {
		log = inmem.New()
	}
	hooks := cfg.Hooks
	if hooks == nil {
		hooks = exceptionhook.NewBus()
	}
	handlerMap := cfg.Handlers
	if handlerMap == nil {
		handlerMap = handler.NewLocalMap()
	}
	handlers := handler.New(handlerMap)

	router := cfg.Router
	if router == nil {
		router = announce.New(handlers, announce.WithLogger(logger))
	}

	e := &Engine{
		store:    cfg.Store,
		handlers: handlers,
		router:   router,
		log:      log,
		hooks:    hooks,
		logger:   logger,
		metrics:  metrics,
		specs:    newSpecCache(),
		repo:     workitem.NewRepository(),
	}
	e.run = runner.New(e.specs, e.repo, e.log, e.router, e)
	return e, nil
}

// Router returns the execution-profile router so callers can attach
// local ServiceHandler/Codelet implementations (RegisterService,
// RegisterCodelet) — a separate concern from C10's registerHandler,
// which only records a handler's presence and kind for load-time
// verification and cluster-wide discovery.
func (e *Engine) Router() *announce.Router { return e.router }

// Handlers returns the C10 external handler registry.
func (e *Engine) Handlers() *handler.Registry { return e.handlers }

// EventLog returns the append-only case event log (IE).
func (e *Engine) EventLog() eventlog.Log { return e.log }

// Hooks returns the advisory lifecycle bus (IX) so callers can Register
// subscribers.
func (e *Engine) Hooks() exceptionhook.Bus { return e.hooks }

func (e *Engine) publish(ctx context.Context, ev exceptionhook.Event) {
	if err := e.hooks.Publish(ctx, ev); err != nil {
		e.logger.Warn(ctx, "exceptionhook subscriber error", "kind", string(ev.Kind), "case_id", ev.CaseID, "error", err)
	}
}
