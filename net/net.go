// Package net implements the extended Petri-net model (C2): conditions,
// tasks, flows, and the structural verification pass that every
// specification must pass before a case can be launched against it.
//
// A Net is an arena of elements keyed by stable string ids, with
// adjacency stored as id-tuples rather than pointer-chased object graphs
// (see spec.md §9 "Cyclic object graphs → arena + ids"). This keeps a Net
// trivially cloneable: launching a case clones the arena's metadata and
// gives the clone a private ident.Registry for its runtime marking.
package net

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/yawlgo/engine/ident"
)

type (
	// JoinCode is a task's join behaviour.
	JoinCode int

	// SplitCode is a task's split behaviour.
	SplitCode int

	// TaskKind distinguishes atomic tasks (produce work items) from
	// composite tasks (decompose into a child net instance).
	TaskKind int

	// CreationMode controls how a multi-instance task's running instance
	// count may grow.
	CreationMode int

	// InteractionKind is part of a task's execution profile.
	InteractionKind int
)

const (
	JoinAND JoinCode = iota
	JoinOR
	JoinXOR
)

const (
	SplitAND SplitCode = iota
	SplitOR
	SplitXOR
)

const (
	Atomic TaskKind = iota
	Composite
)

const (
	CreationStatic CreationMode = iota
	CreationDynamic
)

const (
	Manual InteractionKind = iota
	Automated
)

// InternalPlace names one of a task's four internal places (§3 "Internal
// task places"). These are synthetic ident.Elements of the form
// "<taskID>#<place>".
type InternalPlace string

const (
	PlaceEntered   InternalPlace = "entered"
	PlaceActive    InternalPlace = "active"
	PlaceExecuting InternalPlace = "executing"
	PlaceComplete  InternalPlace = "complete"
)

// Internal returns the ident.Element key for one of t's internal places.
func (t *Task) Internal(p InternalPlace) ident.Element {
	return ident.Element(fmt.Sprintf("%s#%s", t.ID, p))
}

type (
	// Flow is a directed arc from a task to one of its postset elements
	// (a condition, or directly to another task — materialized as an
	// implicit condition at load time).
	Flow struct {
		To        ident.Element
		Predicate string // expr syntax understood by runner/predicate; empty means unconditional (AND split)
		Priority  int    // XOR evaluation order, lower fires first
		IsDefault bool
	}

	// MultiInstanceAttr configures a multi-instance task.
	MultiInstanceAttr struct {
		Min, Max, Threshold int
		Mode                CreationMode
		WaitForAll          bool
	}

	// ExecutionProfile is the routing decision attached to every atomic
	// task (§4.7).
	ExecutionProfile struct {
		Interaction InteractionKind
		ServiceRef  string
		Codelet     string
		Resourcing  map[string]any
	}

	// Condition is a place: a multiset of identifiers for a single case.
	// Implicit conditions are materialized at load time for every direct
	// task->task flow and are omitted from canonical (re-)serialisation.
	Condition struct {
		ID       ident.Element
		Implicit bool
	}

	// Task is a transition.
	Task struct {
		ID                 ident.Element
		Join               JoinCode
		Split              SplitCode
		Out                []Flow // outgoing flows, in declaration order
		CancellationRegion []ident.Element
		MI                 *MultiInstanceAttr // nil means single-instance
		Kind               TaskKind
		Profile            *ExecutionProfile // set iff Kind == Atomic
		SubNet             string            // set iff Kind == Composite: child net id
		OutputSchema       json.RawMessage   // optional JSON Schema checked by completeWorkItem

		preset  []ident.Element // computed: conditions with a flow into this task
		postset []ident.Element // computed: Out targets, de-duplicated
	}

	// Net is one complete process net.
	Net struct {
		ID         string
		Input      ident.Element
		Output     ident.Element
		Conditions map[ident.Element]*Condition
		Tasks      map[ident.Element]*Task

		preset  map[ident.Element][]ident.Element // condition -> tasks that flow into it
		postset map[ident.Element][]ident.Element // condition -> tasks that read it as preset
	}
)

// Preset returns t's preset conditions (elements that must hold the case
// id for t to be a join candidate).
func (t *Task) Preset() []ident.Element { return t.preset }

// Postset returns t's distinct postset elements in flow declaration order.
func (t *Task) Postset() []ident.Element { return t.postset }

// TaskPreset returns the tasks whose outgoing flow targets condition c
// (i.e. the tasks that can deposit a token into c).
func (n *Net) TaskPreset(c ident.Element) []ident.Element { return n.preset[c] }

// TaskPostset returns the tasks that read condition c as (part of) their
// preset.
func (n *Net) TaskPostset(c ident.Element) []ident.Element { return n.postset[c] }

// IsTask reports whether id names a task in n.
func (n *Net) IsTask(id ident.Element) bool {
	_, ok := n.Tasks[id]
	return ok
}

// IsCondition reports whether id names a condition in n.
func (n *Net) IsCondition(id ident.Element) bool {
	_, ok := n.Conditions[id]
	return ok
}

// SortedTaskIDs returns every task id in n, sorted, for deterministic
// iteration during classify (§4.5 step 2).
func (n *Net) SortedTaskIDs() []ident.Element {
	out := make([]ident.Element, 0, len(n.Tasks))
	for id := range n.Tasks {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone deep-copies the static net metadata for a new case instance. The
// clone shares no mutable state with n; runtime tokens live separately in
// an ident.Registry owned by the case.
func (n *Net) Clone() *Net {
	c := &Net{
		ID:         n.ID,
		Input:      n.Input,
		Output:     n.Output,
		Conditions: make(map[ident.Element]*Condition, len(n.Conditions)),
		Tasks:      make(map[ident.Element]*Task, len(n.Tasks)),
		preset:     make(map[ident.Element][]ident.Element, len(n.preset)),
		postset:    make(map[ident.Element][]ident.Element, len(n.postset)),
	}
	for id, cond := range n.Conditions {
		cp := *cond
		c.Conditions[id] = &cp
	}
	for id, t := range n.Tasks {
		cp := *t
		cp.Out = append([]Flow(nil), t.Out...)
		cp.CancellationRegion = append([]ident.Element(nil), t.CancellationRegion...)
		cp.preset = append([]ident.Element(nil), t.preset...)
		cp.postset = append([]ident.Element(nil), t.postset...)
		if t.MI != nil {
			mi := *t.MI
			cp.MI = &mi
		}
		if t.Profile != nil {
			p := *t.Profile
			cp.Profile = &p
		}
		cp.OutputSchema = append(json.RawMessage(nil), t.OutputSchema...)
		c.Tasks[id] = &cp
	}
	for id, v := range n.preset {
		c.preset[id] = append([]ident.Element(nil), v...)
	}
	for id, v := range n.postset {
		c.postset[id] = append([]ident.Element(nil), v...)
	}
	return c
}

// taskJSON mirrors Task for JSON (de)serialisation, additionally
// exposing the computed preset/postset indices so a Net persisted by C9
// round-trips without re-running Build (store.Store holds already-loaded
// specifications, not raw wire specs — see engine/store).
type taskJSON struct {
	ID                 ident.Element
	Join               JoinCode
	Split              SplitCode
	Out                []Flow
	CancellationRegion []ident.Element
	MI                 *MultiInstanceAttr
	Kind               TaskKind
	Profile            *ExecutionProfile
	SubNet             string
	OutputSchema       json.RawMessage
	Preset             []ident.Element
	Postset            []ident.Element
}

// MarshalJSON implements json.Marshaler.
func (t *Task) MarshalJSON() ([]byte, error) {
	return json.Marshal(taskJSON{
		ID: t.ID, Join: t.Join, Split: t.Split, Out: t.Out,
		CancellationRegion: t.CancellationRegion, MI: t.MI, Kind: t.Kind,
		Profile: t.Profile, SubNet: t.SubNet, OutputSchema: t.OutputSchema,
		Preset: t.preset, Postset: t.postset,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Task) UnmarshalJSON(data []byte) error {
	var aux taskJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*t = Task{
		ID: aux.ID, Join: aux.Join, Split: aux.Split, Out: aux.Out,
		CancellationRegion: aux.CancellationRegion, MI: aux.MI, Kind: aux.Kind,
		Profile: aux.Profile, SubNet: aux.SubNet, OutputSchema: aux.OutputSchema,
		preset: aux.Preset, postset: aux.Postset,
	}
	return nil
}

// netJSON mirrors Net for JSON (de)serialisation, additionally exposing
// the condition-keyed preset/postset reverse indices C3's reachability
// engine relies on.
type netJSON struct {
	ID         string
	Input      ident.Element
	Output     ident.Element
	Conditions map[ident.Element]*Condition
	Tasks      map[ident.Element]*Task
	Preset     map[ident.Element][]ident.Element
	Postset    map[ident.Element][]ident.Element
}

// MarshalJSON implements json.Marshaler.
func (n *Net) MarshalJSON() ([]byte, error) {
	return json.Marshal(netJSON{
		ID: n.ID, Input: n.Input, Output: n.Output,
		Conditions: n.Conditions, Tasks: n.Tasks,
		Preset: n.preset, Postset: n.postset,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Net) UnmarshalJSON(data []byte) error {
	var aux netJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	n.ID, n.Input, n.Output = aux.ID, aux.Input, aux.Output
	n.Conditions, n.Tasks = aux.Conditions, aux.Tasks
	n.preset, n.postset = aux.Preset, aux.Postset
	return nil
}
