package engine

import (
	"github.com/yawlgo/engine/engine/store"
	"github.com/yawlgo/engine/runner"
)

// toStoreStatus and fromStoreStatus translate between runner.Status
// (live, in-process case state) and store.CaseStatus (the store's own
// enum, deliberately independent of the runner package so engine/store
// stays a leaf dependency — see engine/store's CaseStatus doc comment).
// The two enums are declared in the same order on purpose. A value
// missing from a switch falls to its default branch, which maps it to
// Normal.
func toStoreStatus(s runner.Status) store.CaseStatus {
	switch s {
	case runner.Normal:
		return store.CaseNormal
	case runner.Suspending:
		return store.CaseSuspending
	case runner.Suspended:
		return store.CaseSuspended
	case runner.Resuming:
		return store.CaseResuming
	case runner.Cancelling:
		return store.CaseCancelling
	case runner.Completed:
		return store.CaseCompleted
	case runner.Cancelled:
		return store.CaseCancelled
	case runner.Quarantined:
		return store.CaseQuarantined
	default:
		return store.CaseNormal
	}
}

func fromStoreStatus(s store.CaseStatus) runner.Status {
	switch s {
	case store.CaseNormal:
		return runner.Normal
	case store.CaseSuspending:
		return runner.Suspending
	case store.CaseSuspended:
		return runner.Suspended
	case store.CaseResuming:
		return runner.Resuming
	case store.CaseCancelling:
		return runner.Cancelling
	case store.CaseCompleted:
		return runner.Completed
	case store.CaseCancelled:
		return runner.Cancelled
	case store.CaseQuarantined:
		return runner.Quarantined
	default:
		return runner.Normal
	}
}
