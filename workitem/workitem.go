// Package workitem implements the Work-Item Repository (C6): the
// external-facing handle for every live task instance, and its 13-state
// lifecycle.
package workitem

import (
	"encoding/json"
	"time"

	"github.com/yawlgo/engine/ident"
	"github.com/yawlgo/engine/net"
)

// Status is one of the work item's 13 lifecycle states (spec.md §3).
type Status int

const (
	Enabled Status = iota
	Fired
	Executing
	Suspended
	Complete
	ForcedComplete
	Failed
	Withdrawn
	Deleted
	CancelledByCase
	Deadlocked
	Discarded
)

func (s Status) String() string {
	switch s {
	case Enabled:
		return "Enabled"
	case Fired:
		return "Fired"
	case Executing:
		return "Executing"
	case Suspended:
		return "Suspended"
	case Complete:
		return "Complete"
	case ForcedComplete:
		return "ForcedComplete"
	case Failed:
		return "Failed"
	case Withdrawn:
		return "Withdrawn"
	case Deleted:
		return "Deleted"
	case CancelledByCase:
		return "CancelledByCase"
	case Deadlocked:
		return "Deadlocked"
	case Discarded:
		return "Discarded"
	default:
		return "Unknown"
	}
}

// IsLive reports whether a work item in this status is still actionable —
// i.e. it has not reached one of the lifecycle's terminal states. A
// Deadlocked item is still live: the case itself stays Normal and an
// administrator may yet unstick it (§3.3 AdminEditMarking).
func (s Status) IsLive() bool {
	switch s {
	case Complete, ForcedComplete, Failed, Withdrawn, Deleted, CancelledByCase, Discarded:
		return false
	default:
		return true
	}
}

// ID is the canonical work-item identifier format of spec.md §6:
// "caseId:taskId" for single-instance, "caseId.k:taskId" for the k-th
// child of a multi-instance task.
type ID string

// Make constructs a work-item ID from a case/child identifier and a task
// id. This format is stable for the lifetime of the work item.
func Make(instance ident.ID, task ident.Element) ID {
	return ID(string(instance) + ":" + string(task))
}

// Item is one work item.
type Item struct {
	ID         ID
	CaseID     string
	TaskID     ident.Element
	Instance   ident.ID // the (possibly child) identifier this work item tracks
	ParentID   ID       // set for multi-instance children; zero value otherwise
	Status     Status
	InputData  json.RawMessage
	OutputData json.RawMessage
	Profile    net.ExecutionProfile // snapshot at enablement time

	// SuspendedFrom holds the status a Suspended item should revert to on
	// resume (Enabled or Executing). Zero value otherwise.
	SuspendedFrom Status

	EnabledAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	HandlerID string // who currently holds this work item (handler ref, empty until started)
}
