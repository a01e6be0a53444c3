package transport

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/follower/pkg/follower"
)

type demoEvent struct {
	Delta int
}

type demoState struct {
	Total int
}

type demoHandler struct {
	follower.NoopHandler[demoEvent, demoState]
}

func (demoHandler) OnEventDelivered(ctx context.Context, state *follower.State[demoState], event follower.Event[demoEvent]) error {
	state.Payload.Total += event.Payload.Delta
	return nil
}

type memEventStore struct{}

func (memEventStore) GetList(ctx context.Context, key string, startExclusive, endInclusive uint64) ([]follower.Event[demoEvent], error) {
	return nil, nil
}

type memStateStore struct{}

func (memStateStore) Get(ctx context.Context, key string) (*follower.State[demoState], error) {
	return nil, nil
}
func (memStateStore) Insert(ctx context.Context, state *follower.State[demoState]) error { return nil }
func (memStateStore) Update(ctx context.Context, state *follower.State[demoState]) error { return nil }

func newTestDispatcher() *InProcess[demoEvent, demoState] {
	registry := follower.NewTypeRegistry()
	registry.Register("demoEvent", func() any { return &follower.Event[demoEvent]{} })
	deps := follower.Dependencies[demoEvent, demoState]{
		EventStore: memEventStore{},
		StateStore: memStateStore{},
		Handler:    demoHandler{},
		Serializer: follower.NewJSONSerializer(registry),
		Config:     follower.DefaultConfig(),
	}
	return NewInProcess(deps)
}

func envelopeFor(t *testing.T, event follower.Event[demoEvent]) follower.MessageInfo {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return follower.MessageInfo{TypeName: "demoEvent", Bytes: data}
}

func TestInProcessDeliverLazilyActivates(t *testing.T) {
	d := newTestDispatcher()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	env := envelopeFor(t, follower.Event[demoEvent]{Base: follower.EventBase{Version: 1}, Payload: demoEvent{Delta: 5}})
	require.NoError(t, d.Deliver(ctx, "k1", env))

	state, err := d.State("k1")
	require.NoError(t, err)
	require.Equal(t, uint64(1), state.Version)
	require.Equal(t, 5, state.Payload.Total)
}

func TestInProcessSerializesDeliveriesPerKey(t *testing.T) {
	d := newTestDispatcher()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for v := uint64(1); v <= 10; v++ {
		env := envelopeFor(t, follower.Event[demoEvent]{Base: follower.EventBase{Version: v}, Payload: demoEvent{Delta: 1}})
		require.NoError(t, d.Deliver(ctx, "k1", env))
	}

	state, err := d.State("k1")
	require.NoError(t, err)
	require.Equal(t, uint64(10), state.Version)
	require.Equal(t, 10, state.Payload.Total)
}

func TestInProcessDeactivateForgetsKey(t *testing.T) {
	d := newTestDispatcher()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	env := envelopeFor(t, follower.Event[demoEvent]{Base: follower.EventBase{Version: 1}, Payload: demoEvent{Delta: 1}})
	require.NoError(t, d.Deliver(ctx, "k1", env))
	require.NoError(t, d.Deactivate(ctx, "k1"))

	_, err := d.State("k1")
	require.Error(t, err)
}
