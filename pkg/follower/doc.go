/*
Package follower implements the per-key read-model actor lifecycle at the
core of Warren's event-sourced runtime.

A Follower materializes a State[S] for a single key by replaying an
append-only Event[E] log. It is activated once per key (by whatever hosts
it — a virtual-actor platform, a test harness, the demo dispatcher in
pkg/transport), loads the latest snapshot if one exists, optionally
replays every event newer than the snapshot, and then accepts further
events one at a time via Tell. State is mutated only by the goroutine that
owns the Activation; there is no internal locking beyond what protects
concurrent Tell calls from each other on the same activation.

# Architecture

	┌──────────────────────── FOLLOWER LIFECYCLE ───────────────────────┐
	│                                                                     │
	│   Activate(key)                                                    │
	│       │                                                            │
	│       ▼                                                            │
	│   StateStore.Get(key) ──absent──▶ Handler.NewState(key), v=0        │
	│       │ found                                                      │
	│       ▼                                                            │
	│   snapshotVersion = state.Version                                  │
	│       │                                                            │
	│       ▼ (fully_active)                                             │
	│   replay pages from EventStore until a short page is seen          │
	│       │                                                            │
	│       ▼                                                            │
	│   Ready ──Tell(event)──▶ apply / gap-fill ──▶ saveSnapshot ──▶ Ready │
	│       │                                                            │
	│       ▼                                                            │
	│   Deactivate ──▶ saveSnapshot(force) if min interval crossed        │
	│                                                                     │
	└─────────────────────────────────────────────────────────────────────┘

Snapshots are written through StateStore, events are read through
EventStore; both are supplied by the caller via Dependencies so this
package never imports a concrete storage backend (see pkg/storage/boltstate
and pkg/storage/boltevents for reference implementations on bbolt).
*/
package follower
