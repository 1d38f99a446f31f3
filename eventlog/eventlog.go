// Package eventlog provides a durable, append-only event log for case
// execution (C9/IE).
//
// The event log is the canonical source of truth for case audit and
// export: the case runner appends events as it classifies, fires, and
// exits tasks, and callers list them using opaque cursors. The
// normalised persisted state (engine/store) is derivable from this log
// but is kept for fast access.
package eventlog

import (
	"context"
	"encoding/json"
	"time"
)

type (
	// Kind identifies one event type in the log.
	Kind string

	// Event is a single immutable case event appended to the event log.
	//
	// Store implementations assign the ID when persisting the event. IDs
	// are opaque, monotonically ordered within a case, and suitable for
	// cursor-based pagination.
	Event struct {
		// ID is the store-assigned opaque identifier for this event.
		ID string
		// CaseID is the case this event belongs to.
		CaseID string
		// TaskID is set for task- and work-item-scoped events.
		TaskID string
		// WorkItemID is set for work-item-scoped events.
		WorkItemID string
		// Kind is the event type.
		Kind Kind
		// Actor identifies who/what caused the event ("runner",
		// "handler:<ref>", "admin:<id>").
		Actor string
		// Payload is the canonical JSON-encoded payload for the event.
		Payload json.RawMessage
		// Timestamp is the event time.
		Timestamp time.Time
	}

	// Page is a forward page of case events.
	Page struct {
		// Events are ordered oldest-first.
		Events []*Event
		// NextCursor is the cursor to use to fetch the next page. It is
		// empty when there are no further events.
		NextCursor string
	}

	// Log is an append-only event store for case introspection and audit
	// (IE). Implementations must provide stable ordering within a case;
	// cursor values are store-owned and opaque to callers.
	Log interface {
		// Append stores the event in the log. Append must be durable:
		// failures are surfaced to callers so the runner can treat a
		// failed append as a recoverable error rather than silently
		// losing audit history.
		Append(ctx context.Context, e *Event) error

		// List returns the next forward page of events for caseID.
		// cursor is an opaque value returned by a previous call to List
		// (or empty to start from the beginning). limit must be > 0.
		List(ctx context.Context, caseID string, cursor string, limit int) (Page, error)
	}
)

// Event kinds emitted by the runner (spec.md §4.9, §8 scenarios).
const (
	CaseStarted       Kind = "CaseStarted"
	WorkItemEnabled   Kind = "WorkItemEnabled"
	WorkItemStarted   Kind = "WorkItemStarted"
	WorkItemCompleted Kind = "WorkItemCompleted"
	WorkItemFailed    Kind = "WorkItemFailed"
	WorkItemWithdrawn Kind = "WorkItemWithdrawn"
	WorkItemCancelled Kind = "WorkItemCancelled"
	WorkItemSuspended Kind = "WorkItemSuspended"
	WorkItemResumed   Kind = "WorkItemResumed"
	TaskExited        Kind = "TaskExited"
	CaseCompleted     Kind = "CaseCompleted"
	CaseCancelled     Kind = "CaseCancelled"
	CaseDeadlocked    Kind = "CaseDeadlocked"
	CaseSuspended     Kind = "CaseSuspended"
	CaseResumed       Kind = "CaseResumed"
	AdminMarkingEdited Kind = "AdminMarkingEdited"
)

// Export renders every event for caseID as an ordered slice, paging
// through the log's cursor interface internally (§6 IE "bulk export").
func Export(ctx context.Context, log Log, caseID string) ([]*Event, error) {
	const pageSize = 500
	var out []*Event
	cursor := ""
	for {
		page, err := log.List(ctx, caseID, cursor, pageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Events...)
		if page.NextCursor == "" {
			return out, nil
		}
		cursor = page.NextCursor
	}
}
