package follower

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/follower/pkg/log"
	"github.com/cuemby/follower/pkg/metrics"
)

// Dependencies are the collaborators an Activation needs, resolved once
// up front and passed in explicitly rather than located by a constructor.
type Dependencies[E any, S any] struct {
	EventStore EventStore[E]
	StateStore StateStore[S]
	Handler    Handler[E, S]
	Serializer Serializer
	Config     Config
}

// Activation is a single key's materialized Follower: the living state
// machine described in the runtime specification's §4.1. It is created by
// Activate and torn down by Deactivate; all mutation happens under mu, so
// an Activation is safe to drive concurrently even though the spec's
// default model is a single serialized mailbox.
type Activation[E any, S any] struct {
	key  string
	deps Dependencies[E, S]

	mu              sync.Mutex
	state           *State[S]
	snapshotVersion uint64
	noSnapshot      bool
}

// Activate resolves dependencies, loads the latest snapshot (or creates a
// fresh zero-version state if none exists), and — if Config.FullyActive —
// replays every event past the snapshot version before returning.
func Activate[E any, S any](ctx context.Context, key string, deps Dependencies[E, S]) (*Activation[E, S], error) {
	logger := log.WithKey(key)

	snap, err := deps.StateStore.Get(ctx, key)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read snapshot during activation")
		return nil, fmt.Errorf("%w: reading snapshot for key %q: %v", ErrActivationFailed, key, err)
	}

	a := &Activation[E, S]{key: key, deps: deps}
	if snap == nil {
		a.state = &State[S]{Key: key, Version: 0, DoingVersion: 0, Payload: deps.Handler.NewState(key)}
		a.noSnapshot = true
	} else {
		a.state = snap
		a.noSnapshot = false
	}
	a.snapshotVersion = a.state.Version

	if deps.Config.FullyActive {
		if err := a.fullActive(ctx); err != nil {
			logger.Error().Err(err).Msg("full replay failed during activation")
			return nil, fmt.Errorf("%w: replaying log for key %q: %v", ErrActivationFailed, key, err)
		}
	}

	logger.Debug().Uint64("version", a.state.Version).Msg("follower activated")
	return a, nil
}

// Key returns the key this Activation was activated for.
func (a *Activation[E, S]) Key() string { return a.key }

// State returns a shallow copy of the currently materialized state.
func (a *Activation[E, S]) State() State[S] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return *a.state
}

// fullActive replays pages of (version, version+EventsPerRead] from the
// event log until a short page signals the end of the log.
func (a *Activation[E, S]) fullActive(ctx context.Context) error {
	cfg := a.deps.Config
	for {
		page, err := a.deps.EventStore.GetList(ctx, a.key, a.state.Version, a.state.Version+cfg.EventsPerRead)
		if err != nil {
			return fmt.Errorf("reading event page: %w", err)
		}

		if len(page) > 0 {
			if cfg.ConcurrentEvents {
				if err := a.applyPageConcurrently(ctx, page); err != nil {
					return err
				}
				last := page[len(page)-1]
				a.state.Version = last.Base.Version
				a.state.DoingVersion = a.state.Version
			} else {
				for _, ev := range page {
					if err := a.applyOne(ctx, ev); err != nil {
						return err
					}
				}
			}
		}

		if err := a.saveSnapshot(ctx, false); err != nil {
			return err
		}

		if uint64(len(page)) < cfg.EventsPerRead {
			return nil
		}
	}
}

// applyPageConcurrently fans one goroutine out per event in the page. Per
// §9's open question, this requires the user's OnEventDelivered to be
// commutative within a page: state.Version only advances to the last
// event's version once every goroutine in the page has returned.
func (a *Activation[E, S]) applyPageConcurrently(ctx context.Context, page []Event[E]) error {
	var wg sync.WaitGroup
	errs := make([]error, len(page))
	for i, ev := range page {
		wg.Add(1)
		go func(i int, ev Event[E]) {
			defer wg.Done()
			errs[i] = a.deps.Handler.OnEventDelivered(ctx, a.state, ev)
		}(i, ev)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("applying event concurrently: %w", err)
		}
	}
	metrics.EventsAppliedTotal.WithLabelValues(a.key).Add(float64(len(page)))
	return nil
}

// applyOne applies a single event strictly in order, advancing
// DoingVersion then Version.
func (a *Activation[E, S]) applyOne(ctx context.Context, ev Event[E]) error {
	a.state.DoingVersion = ev.Base.Version
	if err := a.deps.Handler.OnEventDelivered(ctx, a.state, ev); err != nil {
		return fmt.Errorf("applying event version %d: %w", ev.Base.Version, err)
	}
	a.state.Version = ev.Base.Version
	metrics.EventsAppliedTotal.WithLabelValues(a.key).Inc()
	return nil
}

// Tell decodes a wire envelope and routes it to TellEvent. Envelopes whose
// TypeName does not resolve to an event kind are logged and dropped, per
// the runtime specification's "non-event payloads are logged and dropped
// (not an error)". Envelopes that fail to decode are likewise logged and
// dropped with a nil return, including those whose TypeName is a
// registered event kind.
func (a *Activation[E, S]) Tell(ctx context.Context, envelope MessageInfo) error {
	logger := log.WithKey(a.key)

	decoded, err := a.deps.Serializer.Deserialize(envelope.TypeName, envelope.Bytes)
	if err != nil {
		logger.Warn().Str("type_name", envelope.TypeName).Err(err).Msg("dropping undecodable envelope")
		return nil
	}

	event, ok := decoded.(*Event[E])
	if !ok {
		logger.Debug().Str("type_name", envelope.TypeName).Msg("dropping non-event payload")
		return nil
	}

	return a.TellEvent(ctx, *event)
}

// TellEvent applies a single delivered event, replaying any gap from the
// event log first if the incoming version is ahead of what's applied.
//
// The source algorithm this is modeled on re-applies the incoming event a
// second time after a successful gap fill. This module resolves that
// ambiguity (documented as an open question in the runtime specification,
// §9) by applying at most once: the gap-fill read already includes the
// incoming version if the log contains it, so state.Version reaches v
// without a second apply. If the log does not yet contain v, the mismatch
// below fires instead of silently double-applying.
func (a *Activation[E, S]) TellEvent(ctx context.Context, event Event[E]) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.TellDuration)

	v := event.Base.Version
	current := a.state.Version

	switch {
	case v == current+1:
		if err := a.applyOne(ctx, event); err != nil {
			log.WithKey(a.key).Error().Err(err).Uint64("version", v).Msg("tell failed applying event")
			return err
		}

	case v > current+1:
		metrics.GapFillReadsTotal.WithLabelValues(a.key).Inc()
		gap, err := a.deps.EventStore.GetList(ctx, a.key, current, v)
		if err != nil {
			return fmt.Errorf("reading gap (%d,%d] for key %q: %w", current, v, a.key, err)
		}
		for _, ev := range gap {
			if err := a.applyOne(ctx, ev); err != nil {
				log.WithKey(a.key).Error().Err(err).Uint64("version", ev.Base.Version).Msg("tell failed applying gap-fill event")
				return err
			}
		}
		if a.state.Version < v {
			mismatch := &VersionMismatchError{Key: a.key, Incoming: v, Current: a.state.Version}
			log.WithKey(a.key).Error().Uint64("incoming", v).Uint64("current", a.state.Version).Msg("event version mismatch after gap fill")
			return mismatch
		}

	default:
		// v <= current: stale event, already absorbed by prior history.
		return nil
	}

	return a.saveSnapshot(ctx, false)
}

// saveSnapshot persists the current state if SaveSnapshot is enabled and
// either force is set or the configured interval has been crossed.
func (a *Activation[E, S]) saveSnapshot(ctx context.Context, force bool) error {
	cfg := a.deps.Config
	if !cfg.SaveSnapshot {
		return nil
	}
	if !force && a.state.Version-a.snapshotVersion < cfg.SnapshotVersionInterval {
		return nil
	}

	logger := log.WithKey(a.key)

	if err := a.deps.Handler.OnSaveSnapshot(ctx, a.state); err != nil {
		logger.Error().Err(err).Msg("OnSaveSnapshot hook failed")
		return fmt.Errorf("on-save-snapshot hook: %w", err)
	}

	var err error
	if a.noSnapshot {
		err = a.deps.StateStore.Insert(ctx, a.state)
	} else {
		err = a.deps.StateStore.Update(ctx, a.state)
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to persist snapshot")
		return fmt.Errorf("persisting snapshot for key %q: %w", a.key, err)
	}
	a.noSnapshot = false
	a.snapshotVersion = a.state.Version
	metrics.SnapshotsSavedTotal.WithLabelValues(a.key).Inc()

	if err := a.deps.Handler.OnSavedSnapshot(ctx, a.state); err != nil {
		logger.Error().Err(err).Msg("OnSavedSnapshot hook failed")
		return fmt.Errorf("on-saved-snapshot hook: %w", err)
	}
	return nil
}

// Deactivate persists a final snapshot if state has advanced at least
// SnapshotMinVersionInterval past the last saved snapshot; otherwise it
// returns cleanly without writing.
func (a *Activation[E, S]) Deactivate(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state.Version-a.snapshotVersion >= a.deps.Config.SnapshotMinVersionInterval {
		return a.saveSnapshot(ctx, true)
	}
	return nil
}
