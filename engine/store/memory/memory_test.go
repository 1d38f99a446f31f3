package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yawlgo/engine/engine/store"
	"github.com/yawlgo/engine/ident"
	"github.com/yawlgo/engine/net"
	"github.com/yawlgo/engine/workitem"
)

func sampleNet(id string) *net.Net {
	raw := net.RawSpec{
		ID: id, Input: "c_in", Output: "c_out",
		Tasks: []net.RawTask{{
			ID: "t1", In: []string{"c_in"}, Join: "and", Split: "and",
			Out:     []net.RawFlow{{To: "c_out", Default: true}},
			Profile: &net.RawProfile{Interaction: "manual"},
		}},
	}
	n, _, err := net.Build(raw, nil)
	if err != nil {
		panic(err)
	}
	return n
}

func TestStore_SpecificationRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	n := sampleNet("spec1")

	require.NoError(t, s.SaveSpecification(ctx, n))

	got, err := s.GetSpecification(ctx, "spec1")
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)
	assert.ElementsMatch(t, n.TaskPreset("c_out"), got.TaskPreset("c_out"))

	list, err := s.ListSpecifications(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteSpecification(ctx, "spec1"))
	_, err = s.GetSpecification(ctx, "spec1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_CaseRoundTripAndNonTerminalFilter(t *testing.T) {
	ctx := context.Background()
	s := New()
	reg, root := ident.NewRegistry("K1")
	reg.AddLocation(root.ID, "c_in")

	live := store.CaseRecord{ID: "K1", NetID: "spec1", Status: store.CaseNormal, Data: json.RawMessage(`{}`), Marking: reg.Snapshot()}
	done := store.CaseRecord{ID: "K2", NetID: "spec1", Status: store.CaseCompleted}

	require.NoError(t, s.SaveCase(ctx, live))
	require.NoError(t, s.SaveCase(ctx, done))

	got, err := s.GetCase(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, store.CaseNormal, got.Status)

	nonTerminal, err := s.ListNonTerminalCases(ctx)
	require.NoError(t, err)
	require.Len(t, nonTerminal, 1)
	assert.Equal(t, "K1", nonTerminal[0].ID)

	require.NoError(t, s.DeleteCase(ctx, "K2"))
	_, err = s.GetCase(ctx, "K2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_WorkItemRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	it := &workitem.Item{ID: "K1:t1", CaseID: "K1", TaskID: "t1", Status: workitem.Enabled}

	require.NoError(t, s.SaveWorkItem(ctx, it))

	got, err := s.GetWorkItem(ctx, "K1:t1")
	require.NoError(t, err)
	assert.Equal(t, workitem.Enabled, got.Status)

	byCase, err := s.ListWorkItemsByCase(ctx, "K1")
	require.NoError(t, err)
	assert.Len(t, byCase, 1)

	require.NoError(t, s.DeleteWorkItem(ctx, "K1:t1"))
	_, err = s.GetWorkItem(ctx, "K1:t1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
