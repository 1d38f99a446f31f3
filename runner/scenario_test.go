package runner_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yawlgo/engine/eventlog"
	"github.com/yawlgo/engine/eventlog/inmem"
	"github.com/yawlgo/engine/ident"
	"github.com/yawlgo/engine/net"
	"github.com/yawlgo/engine/runner"
	"github.com/yawlgo/engine/workitem"
)

// codeletAnnouncer stands in for the C7 router for an atomic automated
// task: it answers every Announce synchronously with empty output, the
// way a Router does for a profile naming an inline codelet, rather than
// leaving the item for an external completeWorkItem call.
type codeletAnnouncer struct{ withdrawn []workitem.ID }

func (a *codeletAnnouncer) Announce(context.Context, *workitem.Item) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (a *codeletAnnouncer) Withdraw(_ context.Context, it *workitem.Item, _ eventlog.Kind) {
	a.withdrawn = append(a.withdrawn, it.ID)
}

func automatedProfile() *net.RawProfile {
	return &net.RawProfile{Interaction: "automated", Codelet: "noop"}
}

func eventKinds(t *testing.T, log eventlog.Log, caseID string) []eventlog.Kind {
	t.Helper()
	events, err := eventlog.Export(context.Background(), log, caseID)
	require.NoError(t, err)
	kinds := make([]eventlog.Kind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}

// TestSequentialAutomatedChainCompletesWithoutIntervention exercises S1:
// i -> A -> c1 -> B -> o, both atomic single-instance AND/AND tasks
// answered inline by a codelet. Completion cascades end to end off of a
// single launchCase call with no external Start/Complete at all. The
// router answers synchronously, so there is no WorkItemStarted event:
// that event marks an external handler taking custody, which never
// happens here (runner/firing.go's fireSingle, the "codelet ran
// synchronously inside Announce" branch).
func TestSequentialAutomatedChainCompletesWithoutIntervention(t *testing.T) {
	ctx := context.Background()
	raw := net.RawSpec{
		ID: "seq-auto", Input: "c_in", Output: "c_out",
		Conditions: []string{"c1"},
		Tasks: []net.RawTask{
			{
				ID: "A", In: []string{"c_in"}, Join: "and", Split: "and",
				Out:     []net.RawFlow{{To: "c1", Default: true}},
				Profile: automatedProfile(),
			},
			{
				ID: "B", In: []string{"c1"}, Join: "and", Split: "and",
				Out:     []net.RawFlow{{To: "c_out", Default: true}},
				Profile: automatedProfile(),
			},
		},
	}
	n, _, err := net.Build(raw, nil)
	require.NoError(t, err)

	repo := workitem.NewRepository()
	log := inmem.New()
	obs := &recordingObserver{}
	r := runner.New(singleNetResolver{n}, repo, log, &codeletAnnouncer{}, obs)

	_, err = r.LaunchCase(ctx, "K1", n.ID, json.RawMessage(`{}`))
	require.NoError(t, err)

	_, err = r.GetCase("K1")
	assert.ErrorIs(t, err, runner.ErrNotFound, "a fully automated chain completes within launchCase itself")
	assert.Empty(t, repo.ListByCase(ctx, "K1"))
	assert.Equal(t, []string{"K1"}, obs.completed)

	assert.Equal(t, []eventlog.Kind{
		eventlog.CaseStarted,
		eventlog.WorkItemEnabled, eventlog.WorkItemCompleted, eventlog.TaskExited,
		eventlog.WorkItemEnabled, eventlog.WorkItemCompleted, eventlog.TaskExited,
		eventlog.CaseCompleted,
	}, eventKinds(t, log, "K1"))
}

// TestMultiInstanceExitsOnlyAtThreshold exercises S3: task M declares
// (min=3, max=5, threshold=3). Firing M spawns exactly 3 Enabled
// children; completing 2 of them must not exit M, and only the 3rd
// completion crosses the threshold and drives the postset.
func TestMultiInstanceExitsOnlyAtThreshold(t *testing.T) {
	ctx := context.Background()
	raw := net.RawSpec{
		ID: "mi-threshold", Input: "c_in", Output: "c_out",
		Tasks: []net.RawTask{
			{
				ID: "M", In: []string{"c_in"}, Join: "and", Split: "and",
				Out:           []net.RawFlow{{To: "c_out", Default: true}},
				Profile:       manualProfile(),
				MultiInstance: &net.RawMultiInstance{Min: 3, Max: 5, Threshold: 3},
			},
		},
	}
	n, _, err := net.Build(raw, nil)
	require.NoError(t, err)
	r, repo, _, obs := newTestRunner(n)

	_, err = r.LaunchCase(ctx, "K3", n.ID, json.RawMessage(`{}`))
	require.NoError(t, err)

	children := repo.ListByTask(ctx, "K3", "M")
	require.Len(t, children, 3, "min=3 must spawn exactly 3 child work items")
	for _, ch := range children {
		assert.Equal(t, workitem.Enabled, ch.Status)
	}

	require.NoError(t, r.Complete(ctx, children[0].ID, json.RawMessage(`{}`), runner.CompleteNormal))
	require.NoError(t, r.Complete(ctx, children[1].ID, json.RawMessage(`{}`), runner.CompleteNormal))
	_, err = r.GetCase("K3")
	require.NoError(t, err, "M must not exit before its threshold of 3 completions is reached")

	require.NoError(t, r.Complete(ctx, children[2].ID, json.RawMessage(`{}`), runner.CompleteNormal))
	_, err = r.GetCase("K3")
	assert.ErrorIs(t, err, runner.ErrNotFound, "the 3rd completion crosses threshold and drives the case to completion")
	assert.Equal(t, []string{"K3"}, obs.completed)
}

// TestCancellationRegionWithdrawsLiveInstanceAndToken exercises S4: task
// X declares a cancellation region of {Y, cond_q}. While Y has an
// Executing instance for the case and cond_q holds a token, X exits and
// must cancel Y's live work item and drain cond_q, before depositing on
// its own postset.
func TestCancellationRegionWithdrawsLiveInstanceAndToken(t *testing.T) {
	ctx := context.Background()
	// "start" fans the single input token out onto two independent
	// branches (c_go_x, c_go_y) so X and seed_y never compete for the
	// same token -- X must stay enabled on its own branch while Y's
	// branch runs ahead of it, not race it for a shared precondition.
	raw := net.RawSpec{
		ID: "cancel-region", Input: "c_in", Output: "c_out",
		Conditions: []string{"c_go_x", "c_go_y", "c_y", "cond_q", "c_final"},
		Tasks: []net.RawTask{
			{
				ID: "start", In: []string{"c_in"}, Join: "and", Split: "and",
				Out:     []net.RawFlow{{To: "c_go_x", Default: true}, {To: "c_go_y", Default: true}},
				Profile: manualProfile(),
			},
			{
				ID: "X", In: []string{"c_go_x"}, Join: "and", Split: "and",
				Out:                []net.RawFlow{{To: "c_final", Default: true}},
				CancellationRegion: []string{"Y", "cond_q"},
				Profile:            manualProfile(),
			},
			{
				ID: "seed_y", In: []string{"c_go_y"}, Join: "and", Split: "and",
				Out:     []net.RawFlow{{To: "c_y", Default: true}, {To: "cond_q", Default: true}},
				Profile: manualProfile(),
			},
			{
				ID: "Y", In: []string{"c_y"}, Join: "and", Split: "and",
				Out:     []net.RawFlow{{To: "c_out", Default: true}},
				Profile: manualProfile(),
			},
			{
				ID: "finish", In: []string{"c_final"}, Join: "and", Split: "and",
				Out:     []net.RawFlow{{To: "c_out", Default: true}},
				Profile: manualProfile(),
			},
			// drain_q is cond_q's only declared consumer, structurally
			// required so cond_q co-reaches Output (net/verify.go's
			// reachability check). It needs c_final too, which X only
			// deposits after cancelRegion has already drained cond_q, so
			// it never actually fires -- the same "structurally valid,
			// never satisfied at runtime" shape as the deadlock recovery
			// fixture uses.
			{
				ID: "drain_q", In: []string{"cond_q", "c_final"}, Join: "and", Split: "and",
				Out:     []net.RawFlow{{To: "c_out", Default: true}},
				Profile: manualProfile(),
			},
		},
	}
	n, _, err := net.Build(raw, nil)
	require.NoError(t, err)
	r, repo, _, _ := newTestRunner(n)

	_, err = r.LaunchCase(ctx, "K4", n.ID, json.RawMessage(`{}`))
	require.NoError(t, err)

	startItem := repo.ListByCase(ctx, "K4")[0]
	require.Equal(t, ident.Element("start"), startItem.TaskID)
	require.NoError(t, r.Complete(ctx, startItem.ID, json.RawMessage(`{}`), runner.CompleteNormal))

	var seedItem *workitem.Item
	for _, it := range repo.ListByCase(ctx, "K4") {
		if it.TaskID == "seed_y" {
			seedItem = it
		}
	}
	require.NotNil(t, seedItem)
	require.NoError(t, r.Complete(ctx, seedItem.ID, json.RawMessage(`{}`), runner.CompleteNormal))

	var yItem, xItem *workitem.Item
	for _, it := range repo.ListByCase(ctx, "K4") {
		switch it.TaskID {
		case "Y":
			yItem = it
		case "X":
			xItem = it
		}
	}
	require.NotNil(t, yItem, "Y must be enabled once seed_y deposits c_y's token")
	require.NotNil(t, xItem)
	require.NoError(t, r.Start(ctx, yItem.ID, "alice"))

	m, err := r.InspectMarking("K4")
	require.NoError(t, err)
	require.Equal(t, 1, m[ident.Element("cond_q")], "cond_q must hold a token before X exits")

	require.NoError(t, r.Complete(ctx, xItem.ID, json.RawMessage(`{}`), runner.CompleteNormal))

	got, err := repo.Get(ctx, yItem.ID)
	require.NoError(t, err)
	assert.Equal(t, workitem.CancelledByCase, got.Status, "Y's live instance must be cancelled by X's region")

	m, err = r.InspectMarking("K4")
	require.NoError(t, err)
	assert.Zero(t, m[ident.Element("cond_q")], "cond_q must be drained by X's cancellation region")

	var finishItem *workitem.Item
	for _, it := range repo.ListByCase(ctx, "K4") {
		if it.TaskID == "finish" {
			finishItem = it
		}
	}
	require.NotNil(t, finishItem)
	require.NoError(t, r.Complete(ctx, finishItem.ID, json.RawMessage(`{}`), runner.CompleteNormal))
	_, err = r.GetCase("K4")
	assert.ErrorIs(t, err, runner.ErrNotFound)
}
