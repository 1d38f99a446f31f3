package announce

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yawlgo/engine/handler"
	"github.com/yawlgo/engine/net"
	"github.com/yawlgo/engine/runner"
	"github.com/yawlgo/engine/workitem"
)

func newItem(profile net.ExecutionProfile) *workitem.Item {
	return &workitem.Item{ID: "C1:t1", CaseID: "C1", TaskID: "t1", Profile: profile}
}

type recordingService struct {
	calls int
	err   error
}

func (s *recordingService) Handle(ctx context.Context, it *workitem.Item) error {
	s.calls++
	return s.err
}

func TestRouter_ServiceRefWinsOverCodelet(t *testing.T) {
	reg := handler.New(handler.NewLocalMap())
	require.NoError(t, reg.Register(context.Background(), handler.Descriptor{Ref: "svc.ship", Kind: handler.KindCustomService}))

	r := New(reg)
	svc := &recordingService{}
	r.RegisterService("svc.ship", svc, 0)
	codeletRan := false
	r.RegisterCodelet("noop", func(ctx context.Context, it *workitem.Item) (json.RawMessage, error) {
		codeletRan = true
		return nil, nil
	})

	it := newItem(net.ExecutionProfile{ServiceRef: "svc.ship", Codelet: "noop"})
	out, err := r.Announce(context.Background(), it)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.False(t, codeletRan)
}

func TestRouter_CodeletRunsSynchronously(t *testing.T) {
	reg := handler.New(handler.NewLocalMap())
	r := New(reg)
	r.RegisterCodelet("addone", func(ctx context.Context, it *workitem.Item) (json.RawMessage, error) {
		return json.RawMessage(`{"n":1}`), nil
	})

	it := newItem(net.ExecutionProfile{Codelet: "addone"})
	out, err := r.Announce(context.Background(), it)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(out))
}

func TestRouter_NoProfileLeavesManualWorklist(t *testing.T) {
	r := New(handler.New(handler.NewLocalMap()))
	out, err := r.Announce(context.Background(), newItem(net.ExecutionProfile{}))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestRouter_UnregisteredServiceRefIsHandlerUnavailable(t *testing.T) {
	r := New(handler.New(handler.NewLocalMap()))
	_, err := r.Announce(context.Background(), newItem(net.ExecutionProfile{ServiceRef: "svc.ghost"}))
	assert.True(t, errors.Is(err, runner.ErrHandlerUnavailable))
}

func TestRouter_RegisteredRefWithNoLocalHandlerIsUnavailable(t *testing.T) {
	reg := handler.New(handler.NewLocalMap())
	require.NoError(t, reg.Register(context.Background(), handler.Descriptor{Ref: "svc.elsewhere", Kind: handler.KindCustomService}))
	r := New(reg) // no RegisterService call: this node has no local dispatch path
	_, err := r.Announce(context.Background(), newItem(net.ExecutionProfile{ServiceRef: "svc.elsewhere"}))
	assert.True(t, errors.Is(err, runner.ErrHandlerUnavailable))
}

func TestRouter_UnregisteredCodeletIsHandlerUnavailable(t *testing.T) {
	r := New(handler.New(handler.NewLocalMap()))
	_, err := r.Announce(context.Background(), newItem(net.ExecutionProfile{Codelet: "missing"}))
	assert.True(t, errors.Is(err, runner.ErrHandlerUnavailable))
}

func TestRouter_UnregisterRemovesLocalDispatch(t *testing.T) {
	reg := handler.New(handler.NewLocalMap())
	require.NoError(t, reg.Register(context.Background(), handler.Descriptor{Ref: "svc.ship", Kind: handler.KindCustomService}))
	r := New(reg)
	r.RegisterService("svc.ship", &recordingService{}, 0)
	r.Unregister("svc.ship")

	_, err := r.Announce(context.Background(), newItem(net.ExecutionProfile{ServiceRef: "svc.ship"}))
	assert.True(t, errors.Is(err, runner.ErrHandlerUnavailable))
}
