package inmem_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yawlgo/engine/eventlog"
	"github.com/yawlgo/engine/eventlog/inmem"
)

func TestAppendAssignsSequentialIDs(t *testing.T) {
	ctx := context.Background()
	log := inmem.New()

	e1 := &eventlog.Event{CaseID: "K1", Kind: eventlog.CaseStarted}
	e2 := &eventlog.Event{CaseID: "K1", Kind: eventlog.WorkItemEnabled}
	require.NoError(t, log.Append(ctx, e1))
	require.NoError(t, log.Append(ctx, e2))

	assert.Equal(t, "1", e1.ID)
	assert.Equal(t, "2", e2.ID)
}

func TestListPaging(t *testing.T) {
	ctx := context.Background()
	log := inmem.New()
	for i := 0; i < 5; i++ {
		require.NoError(t, log.Append(ctx, &eventlog.Event{CaseID: "K1", Kind: eventlog.TaskExited}))
	}

	page, err := log.List(ctx, "K1", "", 2)
	require.NoError(t, err)
	assert.Len(t, page.Events, 2)
	assert.NotEmpty(t, page.NextCursor)

	page2, err := log.List(ctx, "K1", page.NextCursor, 10)
	require.NoError(t, err)
	assert.Len(t, page2.Events, 3)
	assert.Empty(t, page2.NextCursor)
}

func TestExportAcrossPages(t *testing.T) {
	ctx := context.Background()
	log := inmem.New()
	for i := 0; i < 3; i++ {
		require.NoError(t, log.Append(ctx, &eventlog.Event{CaseID: "K2", Kind: eventlog.CaseStarted}))
	}
	events, err := eventlog.Export(ctx, log, "K2")
	require.NoError(t, err)
	assert.Len(t, events, 3)
}
