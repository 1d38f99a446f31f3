// Package inmem provides an in-memory implementation of eventlog.Log.
//
// The in-memory log is intended for tests and local development. It is
// not durable and should not be used in production; see the Pulse-stream
// backed implementation for that.
package inmem

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/yawlgo/engine/eventlog"
)

// Log implements eventlog.Log in memory.
type Log struct {
	mu sync.Mutex
	// per-case monotonically increasing sequence.
	nextSeq map[string]int64
	// per-case ordered events.
	events map[string][]*eventlog.Event
}

// New returns a new in-memory event log.
func New() *Log {
	return &Log{
		nextSeq: make(map[string]int64),
		events:  make(map[string][]*eventlog.Event),
	}
}

// Append implements eventlog.Log.
func (l *Log) Append(_ context.Context, e *eventlog.Event) error {
	if e == nil {
		return fmt.Errorf("eventlog: event is required")
	}
	if e.CaseID == "" {
		return fmt.Errorf("eventlog: case_id is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seq := l.nextSeq[e.CaseID] + 1
	l.nextSeq[e.CaseID] = seq

	e.ID = strconv.FormatInt(seq, 10)
	ev := *e
	l.events[e.CaseID] = append(l.events[e.CaseID], &ev)
	return nil
}

// List implements eventlog.Log.
func (l *Log) List(_ context.Context, caseID string, cursor string, limit int) (eventlog.Page, error) {
	if caseID == "" {
		return eventlog.Page{}, fmt.Errorf("eventlog: case_id is required")
	}
	if limit <= 0 {
		return eventlog.Page{}, fmt.Errorf("eventlog: limit must be > 0")
	}

	var after int64
	if cursor != "" {
		id, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return eventlog.Page{}, fmt.Errorf("eventlog: invalid cursor %q: %w", cursor, err)
		}
		after = id
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	all := l.events[caseID]
	if len(all) == 0 {
		return eventlog.Page{}, nil
	}

	start := 0
	if after > 0 {
		start = int(after) // IDs are 1-based sequence numbers.
		if start >= len(all) {
			return eventlog.Page{}, nil
		}
	}

	end := start + limit
	if end > len(all) {
		end = len(all)
	}

	events := append([]*eventlog.Event(nil), all[start:end]...)
	var next string
	if end < len(all) {
		next = events[len(events)-1].ID
	}

	return eventlog.Page{Events: events, NextCursor: next}, nil
}
