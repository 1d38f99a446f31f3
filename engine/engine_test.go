package engine_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yawlgo/engine/engine"
	"github.com/yawlgo/engine/engine/store/memory"
	"github.com/yawlgo/engine/net"
	"github.com/yawlgo/engine/runner"
	"github.com/yawlgo/engine/workitem"
)

func sequentialSpec(id string) net.RawSpec {
	return net.RawSpec{
		ID: id, Input: "c_in", Output: "c_out",
		Conditions: []string{"c_mid"},
		Tasks: []net.RawTask{
			{
				ID: "t1", In: []string{"c_in"}, Join: "and", Split: "and",
				Out:     []net.RawFlow{{To: "c_mid", Default: true}},
				Profile: &net.RawProfile{Interaction: "manual"},
			},
			{
				ID: "t2", In: []string{"c_mid"}, Join: "and", Split: "and",
				Out:     []net.RawFlow{{To: "c_out", Default: true}},
				Profile: &net.RawProfile{Interaction: "manual"},
			},
		},
	}
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(engine.Config{Store: memory.New()})
	require.NoError(t, err)
	return e
}

func TestLaunchCompleteFlowsCaseToCompletion(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	_, warnings, err := e.LoadSpecification(ctx, sequentialSpec("seq1"))
	require.NoError(t, err)
	assert.Empty(t, warnings)

	c, err := e.LaunchCase(ctx, "K1", "seq1", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, runner.Normal, c.Status)

	items := e.GetLiveWorkItems(ctx, engine.WorkItemFilter{CaseID: "K1"})
	require.Len(t, items, 1)
	item1 := items[0].ID

	require.NoError(t, e.StartWorkItem(ctx, item1, "alice"))
	require.NoError(t, e.CompleteWorkItem(ctx, item1, json.RawMessage(`{}`), runner.CompleteNormal))

	items = e.GetLiveWorkItems(ctx, engine.WorkItemFilter{CaseID: "K1"})
	require.Len(t, items, 1)
	item2 := items[0].ID
	require.NoError(t, e.CompleteWorkItem(ctx, item2, json.RawMessage(`{}`), runner.CompleteNormal))

	_, err = e.GetCase("K1")
	assert.ErrorIs(t, err, runner.ErrNotFound) // completed cases are untracked
}

func TestSuspendAndResumeWorkItem(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	_, _, err := e.LoadSpecification(ctx, sequentialSpec("seq2"))
	require.NoError(t, err)
	_, err = e.LaunchCase(ctx, "K2", "seq2", json.RawMessage(`{}`))
	require.NoError(t, err)

	items := e.GetLiveWorkItems(ctx, engine.WorkItemFilter{CaseID: "K2"})
	require.Len(t, items, 1)
	itemID := items[0].ID

	require.NoError(t, e.SuspendWorkItem(ctx, itemID))
	suspended := e.GetLiveWorkItems(ctx, engine.WorkItemFilter{CaseID: "K2"})[0]
	assert.Equal(t, workitem.Suspended, suspended.Status)

	require.NoError(t, e.ResumeWorkItem(ctx, itemID))
	resumed := e.GetLiveWorkItems(ctx, engine.WorkItemFilter{CaseID: "K2"})[0]
	assert.Equal(t, workitem.Enabled, resumed.Status)
}

func TestSuspendWorkItemRejectsAlreadySuspended(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	_, _, err := e.LoadSpecification(ctx, sequentialSpec("seq3"))
	require.NoError(t, err)
	_, err = e.LaunchCase(ctx, "K3", "seq3", json.RawMessage(`{}`))
	require.NoError(t, err)

	itemID := e.GetLiveWorkItems(ctx, engine.WorkItemFilter{CaseID: "K3"})[0].ID
	require.NoError(t, e.SuspendWorkItem(ctx, itemID))
	assert.ErrorIs(t, e.SuspendWorkItem(ctx, itemID), runner.ErrIllegalTransition)
}

func TestRecoverRebuildsLiveCaseFromStore(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	e1, err := engine.New(engine.Config{Store: st})
	require.NoError(t, err)
	_, _, err = e1.LoadSpecification(ctx, sequentialSpec("seq4"))
	require.NoError(t, err)
	_, err = e1.LaunchCase(ctx, "K4", "seq4", json.RawMessage(`{"k":"v"}`))
	require.NoError(t, err)

	// A fresh engine sharing the same store simulates a process restart.
	e2, err := engine.New(engine.Config{Store: st})
	require.NoError(t, err)
	require.NoError(t, e2.Recover(ctx))

	c, err := e2.GetCase("K4")
	require.NoError(t, err)
	assert.Equal(t, runner.Normal, c.Status)

	items := e2.GetLiveWorkItems(ctx, engine.WorkItemFilter{CaseID: "K4"})
	require.Len(t, items, 1)
	assert.Equal(t, "t1", string(items[0].TaskID))
}

func TestCancelCaseRemovesLiveState(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	_, _, err := e.LoadSpecification(ctx, sequentialSpec("seq5"))
	require.NoError(t, err)
	_, err = e.LaunchCase(ctx, "K5", "seq5", json.RawMessage(`{}`))
	require.NoError(t, err)

	require.NoError(t, e.CancelCase(ctx, "K5"))
	_, err = e.GetCase("K5")
	assert.ErrorIs(t, err, runner.ErrNotFound)
	assert.Empty(t, e.GetLiveWorkItems(ctx, engine.WorkItemFilter{CaseID: "K5"}))
}
