package net_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yawlgo/engine/net"
)

func sequentialSpec() net.RawSpec {
	return net.RawSpec{
		ID:     "seq",
		Input:  "i",
		Output: "o",
		Tasks: []net.RawTask{
			{
				ID:   "A",
				In:   []string{"i"},
				Join: "and", Split: "and",
				Out:     []net.RawFlow{{To: "c1"}},
				Profile: &net.RawProfile{Interaction: "automated", Codelet: "noop"},
			},
			{
				ID:   "B",
				In:   []string{"c1"},
				Join: "and", Split: "and",
				Out:     []net.RawFlow{{To: "o"}},
				Profile: &net.RawProfile{Interaction: "automated", Codelet: "noop"},
			},
		},
		Conditions: []string{"i", "c1", "o"},
	}
}

func TestBuildSequentialNet(t *testing.T) {
	n, warnings, err := net.Build(sequentialSpec(), nil)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, []ident_Element{"i"}, toElems(n.Tasks["A"].Preset()))
	assert.Equal(t, []ident_Element{"c1"}, toElems(n.Tasks["A"].Postset()))
	assert.Equal(t, []ident_Element{"o"}, toElems(n.Tasks["B"].Postset()))
}

func TestBuildMaterializesImplicitCondition(t *testing.T) {
	spec := net.RawSpec{
		ID: "direct", Input: "i", Output: "o",
		Tasks: []net.RawTask{
			{ID: "A", In: []string{"i"}, Out: []net.RawFlow{{To: "B"}}, Profile: &net.RawProfile{Interaction: "automated", Codelet: "noop"}},
			{ID: "B", Out: []net.RawFlow{{To: "o"}}, Profile: &net.RawProfile{Interaction: "automated", Codelet: "noop"}},
		},
	}
	n, _, err := net.Build(spec, nil)
	require.NoError(t, err)
	require.Len(t, n.Tasks["B"].Preset(), 1)
	implicit := n.Tasks["B"].Preset()[0]
	assert.True(t, n.Conditions[implicit].Implicit)
}

func TestBuildRejectsUnreachableElement(t *testing.T) {
	spec := sequentialSpec()
	spec.Conditions = append(spec.Conditions, "dangling")
	_, _, err := net.Build(spec, nil)
	require.Error(t, err)
	var serr *net.StructuralError
	assert.ErrorAs(t, err, &serr)
}

func TestBuildRejectsMissingDefaultFlow(t *testing.T) {
	spec := net.RawSpec{
		ID: "xorsplit", Input: "i", Output: "o",
		Conditions: []string{"i", "c1", "c2", "o"},
		Tasks: []net.RawTask{
			{
				ID: "A", In: []string{"i"}, Split: "xor",
				Out: []net.RawFlow{
					{To: "c1", Predicate: "true()"},
					{To: "c2", Predicate: "true()"},
				},
				Profile: &net.RawProfile{Interaction: "automated", Codelet: "noop"},
			},
			{ID: "B", In: []string{"c1"}, Out: []net.RawFlow{{To: "o"}}, Profile: &net.RawProfile{Interaction: "automated", Codelet: "noop"}},
			{ID: "C", In: []string{"c2"}, Out: []net.RawFlow{{To: "o"}}, Profile: &net.RawProfile{Interaction: "automated", Codelet: "noop"}},
		},
	}
	_, _, err := net.Build(spec, nil)
	require.Error(t, err)
}

func TestBuildRejectsBadMultiInstanceAttr(t *testing.T) {
	spec := sequentialSpec()
	spec.Tasks[0].MultiInstance = &net.RawMultiInstance{Min: 3, Max: 5, Threshold: 1}
	_, _, err := net.Build(spec, nil)
	require.Error(t, err)
}

func TestBuildWarnsOnUnresolvedServiceRef(t *testing.T) {
	spec := sequentialSpec()
	spec.Tasks[0].Profile = &net.RawProfile{Interaction: "automated", ServiceRef: "svc.nope"}
	_, warnings, err := net.Build(spec, map[string]bool{})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
}

type ident_Element = string

func toElems[T ~string](in []T) []ident_Element {
	out := make([]ident_Element, len(in))
	for i, v := range in {
		out[i] = ident_Element(v)
	}
	return out
}
