package follower

import "context"

// Handler is the set of user-supplied hook points a Follower calls back
// into while applying events and persisting snapshots. All methods
// default to no-ops via NoopHandler; embed it and override what's needed.
type Handler[E any, S any] interface {
	// NewState produces the fresh payload for a key that has no snapshot
	// and no event history yet.
	NewState(key string) S

	// OnEventDelivered applies a single event's effects to state.Payload.
	// It must be commutative with itself across the events of a single
	// page when ConcurrentEvents is enabled (see Config), since the
	// applier may invoke it concurrently for every event in a page.
	OnEventDelivered(ctx context.Context, state *State[S], event Event[E]) error

	// OnSaveSnapshot is invoked immediately before a snapshot is written.
	OnSaveSnapshot(ctx context.Context, state *State[S]) error

	// OnSavedSnapshot is invoked immediately after a snapshot write
	// succeeds.
	OnSavedSnapshot(ctx context.Context, state *State[S]) error
}

// NoopHandler is an embeddable base that gives every Handler method a
// default no-op implementation. Embedders typically only override
// NewState and OnEventDelivered.
type NoopHandler[E any, S any] struct{}

func (NoopHandler[E, S]) NewState(key string) S {
	var zero S
	return zero
}

func (NoopHandler[E, S]) OnEventDelivered(ctx context.Context, state *State[S], event Event[E]) error {
	return nil
}

func (NoopHandler[E, S]) OnSaveSnapshot(ctx context.Context, state *State[S]) error {
	return nil
}

func (NoopHandler[E, S]) OnSavedSnapshot(ctx context.Context, state *State[S]) error {
	return nil
}
