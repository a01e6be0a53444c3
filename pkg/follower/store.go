package follower

import "context"

// EventStore is the abstract, append-only event log a Follower replays
// from. Implementations must return events ordered ascending by version,
// with length at most (endInclusive - startExclusive).
type EventStore[E any] interface {
	GetList(ctx context.Context, key string, startExclusive, endInclusive uint64) ([]Event[E], error)
}

// StateStore is the abstract snapshot store a Follower persists its
// materialized state to. Update is last-writer-wins per key; callers (not
// the store) are responsible for only ever writing non-decreasing
// versions.
type StateStore[S any] interface {
	// Get returns the stored state for key, or (nil, nil) if absent.
	Get(ctx context.Context, key string) (*State[S], error)
	// Insert fails if a state for the key already exists.
	Insert(ctx context.Context, state *State[S]) error
	Update(ctx context.Context, state *State[S]) error
}
