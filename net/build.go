package net

import (
	"encoding/json"
	"fmt"

	"github.com/yawlgo/engine/ident"
)

// RawSpec is the parser-agnostic intermediate form a design-time loader
// (IA) builds from whatever wire format it accepts — YAML, JSON, or a
// generated form from an XML schema. Serialisation formats are out of
// scope for this module (spec.md §1); callers construct a RawSpec
// directly.
type RawSpec struct {
	ID         string             `yaml:"id"`
	Input      string             `yaml:"input"`
	Output     string             `yaml:"output"`
	Conditions []string           `yaml:"conditions"`
	Tasks      []RawTask          `yaml:"tasks"`
}

// RawTask is one task declaration in a RawSpec.
type RawTask struct {
	ID                 string            `yaml:"id"`
	In                 []string          `yaml:"in"` // preset condition ids
	Join               string            `yaml:"join"` // "and" | "or" | "xor"
	Split              string            `yaml:"split"`
	Out                []RawFlow         `yaml:"out"`
	CancellationRegion []string          `yaml:"cancellation_region"`
	MultiInstance      *RawMultiInstance `yaml:"multi_instance"`
	Composite          string            `yaml:"composite"` // child net id; empty means atomic
	Profile            *RawProfile       `yaml:"profile"`   // required iff atomic
	OutputSchema       json.RawMessage   `yaml:"output_schema"`
}

// RawFlow is one outgoing arc declaration.
type RawFlow struct {
	To        string `yaml:"to"`
	Predicate string `yaml:"predicate"`
	Priority  int    `yaml:"priority"`
	Default   bool   `yaml:"default"`
}

// RawMultiInstance mirrors MultiInstanceAttr for the wire form.
type RawMultiInstance struct {
	Min, Max, Threshold int
	Mode                string `yaml:"mode"` // "static" | "dynamic"
	WaitForAll          bool   `yaml:"wait_for_all"`
}

// RawProfile mirrors ExecutionProfile for the wire form.
type RawProfile struct {
	Interaction string         `yaml:"interaction"` // "manual" | "automated"
	ServiceRef  string         `yaml:"service_ref"`
	Codelet     string         `yaml:"codelet"`
	Resourcing  map[string]any `yaml:"resourcing"`
}

// Warning is a non-fatal verification finding (§4.10: unresolved
// serviceRef; §4.7: serviceRef + codelet both set).
type Warning struct {
	TaskID  string
	Message string
}

// StructuralError is raised when verify() rejects a specification. Load
// is refused and no case may be launched against it (spec.md §7).
type StructuralError struct {
	Reason string
}

func (e *StructuralError) Error() string { return "net: structural error: " + e.Reason }

// Build parses raw into a Net, materializing implicit conditions for
// every direct task->task flow, then runs verify(). It never returns a
// usable Net alongside an error: either verification succeeds and the
// Net is load-ready, or it fails and the caller must reject the load.
//
// resolvedServiceRefs is used to produce (non-fatal) warnings for
// serviceRefs that don't resolve to a registered handler; passing nil
// skips that check (the caller can defer it to handler registration
// time).
func Build(raw RawSpec, resolvedServiceRefs map[string]bool) (*Net, []Warning, error) {
	n := &Net{
		ID:         raw.ID,
		Input:      ident.Element(raw.Input),
		Output:     ident.Element(raw.Output),
		Conditions: make(map[ident.Element]*Condition),
		Tasks:      make(map[ident.Element]*Task),
		preset:     make(map[ident.Element][]ident.Element),
		postset:    make(map[ident.Element][]ident.Element),
	}

	for _, c := range raw.Conditions {
		n.Conditions[ident.Element(c)] = &Condition{ID: ident.Element(c)}
	}
	if _, ok := n.Conditions[n.Input]; !ok {
		n.Conditions[n.Input] = &Condition{ID: n.Input}
	}
	if _, ok := n.Conditions[n.Output]; !ok {
		n.Conditions[n.Output] = &Condition{ID: n.Output}
	}

	var warnings []Warning

	taskIDs := make(map[string]bool, len(raw.Tasks))
	for _, rt := range raw.Tasks {
		taskIDs[rt.ID] = true
	}

	// Pass 1: create every task with its declared join/split/preset/MI/
	// profile so pass 2 can freely reference any task as a flow target
	// regardless of declaration order.
	for _, rt := range raw.Tasks {
		t := &Task{ID: ident.Element(rt.ID), OutputSchema: rt.OutputSchema}
		for _, c := range rt.In {
			t.preset = append(t.preset, ident.Element(c))
		}
		switch rt.Join {
		case "", "and", "AND":
			t.Join = JoinAND
		case "or", "OR":
			t.Join = JoinOR
		case "xor", "XOR":
			t.Join = JoinXOR
		default:
			return nil, nil, &StructuralError{Reason: fmt.Sprintf("task %s: unknown join code %q", rt.ID, rt.Join)}
		}
		switch rt.Split {
		case "", "and", "AND":
			t.Split = SplitAND
		case "or", "OR":
			t.Split = SplitOR
		case "xor", "XOR":
			t.Split = SplitXOR
		default:
			return nil, nil, &StructuralError{Reason: fmt.Sprintf("task %s: unknown split code %q", rt.ID, rt.Split)}
		}

		for _, c := range rt.CancellationRegion {
			t.CancellationRegion = append(t.CancellationRegion, ident.Element(c))
		}
		if rt.MultiInstance != nil {
			mi := &MultiInstanceAttr{
				Min:        rt.MultiInstance.Min,
				Max:        rt.MultiInstance.Max,
				Threshold:  rt.MultiInstance.Threshold,
				WaitForAll: rt.MultiInstance.WaitForAll,
			}
			switch rt.MultiInstance.Mode {
			case "", "static":
				mi.Mode = CreationStatic
			case "dynamic":
				mi.Mode = CreationDynamic
			default:
				return nil, nil, &StructuralError{Reason: fmt.Sprintf("task %s: unknown multi-instance mode %q", rt.ID, rt.MultiInstance.Mode)}
			}
			t.MI = mi
		}
		if rt.Composite != "" {
			t.Kind = Composite
			t.SubNet = rt.Composite
		} else {
			t.Kind = Atomic
			if rt.Profile == nil {
				return nil, nil, &StructuralError{Reason: fmt.Sprintf("atomic task %s: missing execution profile", rt.ID)}
			}
			p := &ExecutionProfile{ServiceRef: rt.Profile.ServiceRef, Codelet: rt.Profile.Codelet, Resourcing: rt.Profile.Resourcing}
			switch rt.Profile.Interaction {
			case "", "manual":
				p.Interaction = Manual
			case "automated":
				p.Interaction = Automated
			default:
				return nil, nil, &StructuralError{Reason: fmt.Sprintf("task %s: unknown interaction %q", rt.ID, rt.Profile.Interaction)}
			}
			t.Profile = p
			if p.ServiceRef != "" && p.Codelet != "" {
				warnings = append(warnings, Warning{TaskID: rt.ID, Message: "serviceRef and codelet both set; serviceRef wins at runtime"})
			}
			if p.ServiceRef != "" && resolvedServiceRefs != nil && !resolvedServiceRefs[p.ServiceRef] {
				warnings = append(warnings, Warning{TaskID: rt.ID, Message: fmt.Sprintf("serviceRef %q does not resolve to a registered handler", p.ServiceRef)})
			}
		}
		n.Tasks[t.ID] = t
	}

	// Pass 2: wire outgoing flows now that every task exists, materializing
	// an implicit condition for each direct task->task flow and adding it
	// to the target task's preset (spec.md §4.2: "Implicit conditions are
	// materialised for every direct task->task flow discovered during
	// parse").
	for _, rt := range raw.Tasks {
		t := n.Tasks[ident.Element(rt.ID)]
		for _, rf := range rt.Out {
			to := rf.To
			if taskIDs[to] {
				implicitID := ident.Element(fmt.Sprintf("__implicit__%s__%s", rt.ID, to))
				n.Conditions[implicitID] = &Condition{ID: implicitID, Implicit: true}
				target := n.Tasks[ident.Element(to)]
				target.preset = append(target.preset, implicitID)
				to = string(implicitID)
			}
			t.Out = append(t.Out, Flow{
				To:        ident.Element(to),
				Predicate: rf.Predicate,
				Priority:  rf.Priority,
				IsDefault: rf.Default,
			})
		}
	}

	n.indexPresetPostset()

	if err := verify(n); err != nil {
		return nil, nil, err
	}
	return n, warnings, nil
}

// indexPresetPostset computes, for every task, its de-duplicated postset
// elements, and the two condition-keyed reverse indices used by the
// reachability engine (C3) and by exit()'s postset production (§4.4):
// n.preset[c] lists the tasks that can deposit a token into c (their Out
// targets c); n.postset[c] lists the tasks that read c as part of their
// preset.
func (n *Net) indexPresetPostset() {
	for _, t := range n.Tasks {
		seen := make(map[ident.Element]bool, len(t.Out))
		for _, f := range t.Out {
			if !seen[f.To] {
				seen[f.To] = true
				t.postset = append(t.postset, f.To)
			}
			n.preset[f.To] = append(n.preset[f.To], t.ID)
		}
		for _, c := range t.preset {
			n.postset[c] = append(n.postset[c], t.ID)
		}
	}
}
