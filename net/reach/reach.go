// Package reach implements the OR-join reachability algorithm (C3): given
// a case's current marking, decide whether an OR-join task should fire
// now or whether waiting could still let another token arrive on one of
// its currently-empty preset conditions.
//
// This is a design-level equivalent of the E2WFOJ construction from the
// YAWL literature: restrict the net to what the live marking can still
// reach, restrict further to what can still reach the target task, then
// ask whether optimistically firing every currently enabled-or-busy task
// in that restriction could still deposit a token on an empty preset
// condition of the target.
package reach

import (
	"github.com/yawlgo/engine/ident"
	"github.com/yawlgo/engine/net"
)

// State is the read-only view the algorithm needs of a case's current
// marking and task status; the case runner (C5) supplies a live view
// backed by its ident.Registry and enabled/busy sets.
type State interface {
	// Marked reports whether element currently holds the case's token.
	Marked(e ident.Element) bool
	// EnabledOrBusy reports whether task is currently a join candidate
	// (in the runner's enabledSet) or has an active instance (busy).
	EnabledOrBusy(task ident.Element) bool
}

// CanFire decides §4.3's "fire now vs. wait" question for OR-join task T
// given state s over net n.
//
// Edge policy: an OR-join with zero preset tokens never fires (returns
// false immediately, regardless of restricted-net reasoning).
func CanFire(n *net.Net, s State, t ident.Element) bool {
	task := n.Tasks[t]
	if task == nil {
		return false
	}
	preset := task.Preset()

	var anyMarked bool
	var emptyPreset []ident.Element
	for _, c := range preset {
		if s.Marked(c) {
			anyMarked = true
		} else {
			emptyPreset = append(emptyPreset, c)
		}
	}
	if !anyMarked {
		return false // zero preset tokens: never fires
	}
	if len(emptyPreset) == 0 {
		return true // every preset condition already holds a token
	}

	restrictedToMarking := forwardClosureFromMarking(n, s)
	restrictedToT := backwardClosureToTarget(n, t, restrictedToMarking)

	reachableEmpty := optimisticForwardClosure(n, s, restrictedToT)
	for _, c := range emptyPreset {
		if !restrictedToT[c] {
			continue // c cannot be reached by any live continuation at all
		}
		if reachableEmpty[c] {
			return false // some continuation could still fill c: wait
		}
	}
	return true
}

// forwardClosureFromMarking builds the working copy of step 1: every
// element holding a token, plus everything structurally reachable from
// it along the forward flow (unconditional — this is "could a token
// structurally ever get there", not "will it").
func forwardClosureFromMarking(n *net.Net, s State) map[ident.Element]bool {
	seen := make(map[ident.Element]bool)
	var queue []ident.Element
	for e := range allElements(n) {
		if s.Marked(e) {
			seen[e] = true
			queue = append(queue, e)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range successors(n, cur) {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

// backwardClosureToTarget builds step 2: the subset of restrictedToMarking
// from which t is reachable forward (equivalently, reachable backward
// from t).
func backwardClosureToTarget(n *net.Net, t ident.Element, restrictedToMarking map[ident.Element]bool) map[ident.Element]bool {
	seen := map[ident.Element]bool{t: true}
	queue := []ident.Element{t}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, prev := range predecessors(n, cur) {
			if restrictedToMarking[prev] && !seen[prev] {
				seen[prev] = true
				queue = append(queue, prev)
			}
		}
	}
	return seen
}

// optimisticForwardClosure implements step 3: starting from every
// currently-marked element in the restricted net, propagate forward
// only through tasks that are enabled-or-busy (i.e. tasks that could
// plausibly still fire) to find every condition that could still
// receive a token.
func optimisticForwardClosure(n *net.Net, s State, restrictedToT map[ident.Element]bool) map[ident.Element]bool {
	seen := make(map[ident.Element]bool)
	var queue []ident.Element
	for e := range restrictedToT {
		if s.Marked(e) {
			seen[e] = true
			queue = append(queue, e)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if n.IsTask(cur) && !s.EnabledOrBusy(cur) {
			continue // this task will never fire from here on: dead end
		}
		for _, next := range successors(n, cur) {
			if !restrictedToT[next] {
				continue
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

func successors(n *net.Net, e ident.Element) []ident.Element {
	if n.IsTask(e) {
		return n.Tasks[e].Postset()
	}
	return n.TaskPostset(e)
}

func predecessors(n *net.Net, e ident.Element) []ident.Element {
	if n.IsTask(e) {
		return n.Tasks[e].Preset()
	}
	return n.TaskPreset(e)
}

func allElements(n *net.Net) map[ident.Element]struct{} {
	out := make(map[ident.Element]struct{}, len(n.Conditions)+len(n.Tasks))
	for id := range n.Conditions {
		out[id] = struct{}{}
	}
	for id := range n.Tasks {
		out[id] = struct{}{}
	}
	return out
}
