package net

import (
	"fmt"

	"github.com/yawlgo/engine/ident"
)

// verify runs the structural checks of spec.md §4.2 before a Net may be
// used to launch any case. It is always called from Build and is not
// exported: callers only ever see a Net that has already passed.
func verify(n *Net) error {
	if _, ok := n.Conditions[n.Input]; !ok {
		return &StructuralError{Reason: fmt.Sprintf("input condition %q not declared", n.Input)}
	}
	if _, ok := n.Conditions[n.Output]; !ok {
		return &StructuralError{Reason: fmt.Sprintf("output condition %q not declared", n.Output)}
	}
	if n.Input == n.Output {
		return &StructuralError{Reason: "input and output condition must differ"}
	}

	if err := verifyReachability(n); err != nil {
		return err
	}
	if err := verifySplitDefaults(n); err != nil {
		return err
	}
	if err := verifyCancellationRegions(n); err != nil {
		return err
	}
	if err := verifyMultiInstance(n); err != nil {
		return err
	}
	return nil
}

// successors returns the elements directly reachable from e by a single
// forward flow: a condition's successors are the tasks that read it as
// preset; a task's successors are its postset.
func (n *Net) successors(e ident.Element) []ident.Element {
	if n.IsTask(e) {
		return n.Tasks[e].Postset()
	}
	return n.postset[e]
}

// predecessors returns the elements that flow directly into e.
func (n *Net) predecessors(e ident.Element) []ident.Element {
	if n.IsTask(e) {
		return n.Tasks[e].Preset()
	}
	return n.preset[e]
}

func verifyReachability(n *Net) error {
	forward := bfs(n, n.Input, (*Net).successors)
	backward := bfs(n, n.Output, (*Net).predecessors)

	for id := range n.Conditions {
		if !forward[id] {
			return &StructuralError{Reason: fmt.Sprintf("condition %q not reachable from input", id)}
		}
		if !backward[id] {
			return &StructuralError{Reason: fmt.Sprintf("condition %q not co-reachable to output", id)}
		}
	}
	for id := range n.Tasks {
		if !forward[id] {
			return &StructuralError{Reason: fmt.Sprintf("task %q not reachable from input", id)}
		}
		if !backward[id] {
			return &StructuralError{Reason: fmt.Sprintf("task %q not co-reachable to output", id)}
		}
	}
	return nil
}

func bfs(n *Net, start ident.Element, edges func(*Net, ident.Element) []ident.Element) map[ident.Element]bool {
	seen := map[ident.Element]bool{start: true}
	queue := []ident.Element{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range edges(n, cur) {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

// verifySplitDefaults enforces rule 3: every OR/XOR split has exactly one
// default flow, and every non-default flow on such a split carries a
// predicate (invariant I7; this is also what resolves spec.md §9's open
// question about zero-matching OR-splits: a missing default is rejected
// here, at load, not left to surface as a runtime error).
func verifySplitDefaults(n *Net) error {
	for id, t := range n.Tasks {
		if t.Split == SplitAND {
			continue
		}
		defaults := 0
		for _, f := range t.Out {
			if f.IsDefault {
				defaults++
				continue
			}
			if f.Predicate == "" {
				return &StructuralError{Reason: fmt.Sprintf("task %q: non-default flow to %q on %v split missing predicate", id, f.To, t.Split)}
			}
		}
		if defaults != 1 {
			return &StructuralError{Reason: fmt.Sprintf("task %q: %v split must have exactly one default flow, found %d", id, t.Split, defaults)}
		}
	}
	return nil
}

// verifyCancellationRegions enforces rule 4: a cancellation region may
// only reference elements of the same net.
func verifyCancellationRegions(n *Net) error {
	for id, t := range n.Tasks {
		for _, e := range t.CancellationRegion {
			if !n.IsTask(e) && !n.IsCondition(e) {
				return &StructuralError{Reason: fmt.Sprintf("task %q: cancellation region references unknown element %q", id, e)}
			}
		}
	}
	return nil
}

// verifyMultiInstance enforces rule 5: min <= threshold <= max, min >= 1.
func verifyMultiInstance(n *Net) error {
	for id, t := range n.Tasks {
		if t.MI == nil {
			continue
		}
		mi := t.MI
		if mi.Min < 1 {
			return &StructuralError{Reason: fmt.Sprintf("task %q: multi-instance min must be >= 1, got %d", id, mi.Min)}
		}
		if mi.Threshold < mi.Min || mi.Threshold > mi.Max {
			return &StructuralError{Reason: fmt.Sprintf("task %q: multi-instance threshold %d must satisfy min <= threshold <= max (%d..%d)", id, mi.Threshold, mi.Min, mi.Max)}
		}
	}
	return nil
}
