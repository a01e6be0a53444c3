package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/cuemby/follower/pkg/follower"
	"github.com/cuemby/follower/pkg/log"
)

const mailboxCapacity = 32

// mailboxItem is one envelope waiting on a key's serialized mailbox
// goroutine.
type mailboxItem struct {
	correlationID string
	envelope      follower.MessageInfo
	done          chan error
}

type mailbox[E any, S any] struct {
	activation *follower.Activation[E, S]
	inbox      chan mailboxItem
	cancel     context.CancelFunc
}

// InProcess is the smallest faithful stand-in for "the hosting actor
// platform": one goroutine per activated key, reading from a buffered
// channel and calling into a single follower.Activation, so the spec's
// "per-key serialized mailbox" holds without building real actor
// placement.
type InProcess[E any, S any] struct {
	mu        sync.Mutex
	deps      follower.Dependencies[E, S]
	mailboxes map[string]*mailbox[E, S]
}

// NewInProcess wires an InProcess dispatcher to the Dependencies every
// activated key's Activation will share.
func NewInProcess[E any, S any](deps follower.Dependencies[E, S]) *InProcess[E, S] {
	return &InProcess[E, S]{
		deps:      deps,
		mailboxes: make(map[string]*mailbox[E, S]),
	}
}

// Activate implements Dispatcher: it creates the key's Activation and
// starts its mailbox goroutine if not already running.
func (d *InProcess[E, S]) Activate(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activateLocked(ctx, key)
}

func (d *InProcess[E, S]) activateLocked(ctx context.Context, key string) error {
	if _, exists := d.mailboxes[key]; exists {
		return nil
	}

	activation, err := follower.Activate(ctx, key, d.deps)
	if err != nil {
		return fmt.Errorf("activating key %q: %w", key, err)
	}

	mboxCtx, cancel := context.WithCancel(context.Background())
	mb := &mailbox[E, S]{
		activation: activation,
		inbox:      make(chan mailboxItem, mailboxCapacity),
		cancel:     cancel,
	}
	d.mailboxes[key] = mb
	go mb.run(mboxCtx)
	return nil
}

func (mb *mailbox[E, S]) run(ctx context.Context) {
	for {
		select {
		case item := <-mb.inbox:
			item.done <- mb.activation.Tell(ctx, item.envelope)
		case <-ctx.Done():
			return
		}
	}
}

// Deliver implements Dispatcher. A key with no running mailbox is
// activated lazily on first delivery, matching the runtime specification's
// "a Follower activation is born on first mailbox delivery."
func (d *InProcess[E, S]) Deliver(ctx context.Context, key string, envelope follower.MessageInfo) error {
	d.mu.Lock()
	if _, exists := d.mailboxes[key]; !exists {
		if err := d.activateLocked(ctx, key); err != nil {
			d.mu.Unlock()
			return err
		}
	}
	mb := d.mailboxes[key]
	d.mu.Unlock()

	item := mailboxItem{
		correlationID: uuid.NewString(),
		envelope:      envelope,
		done:          make(chan error, 1),
	}
	logger := log.WithKey(key)
	logger.Debug().Str("correlation_id", item.correlationID).Str("type_name", envelope.TypeName).Msg("dispatching envelope")

	select {
	case mb.inbox <- item:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-item.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deactivate implements Dispatcher: it runs the Activation's Deactivate
// hook, stops the key's mailbox goroutine, and forgets the key.
func (d *InProcess[E, S]) Deactivate(ctx context.Context, key string) error {
	d.mu.Lock()
	mb, exists := d.mailboxes[key]
	if !exists {
		d.mu.Unlock()
		return nil
	}
	delete(d.mailboxes, key)
	d.mu.Unlock()

	mb.cancel()
	return mb.activation.Deactivate(ctx)
}

// State returns the materialized state for an already-activated key, or
// an error if the key has no running mailbox.
func (d *InProcess[E, S]) State(key string) (follower.State[S], error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mb, exists := d.mailboxes[key]
	if !exists {
		var zero follower.State[S]
		return zero, fmt.Errorf("transport: key %q is not activated", key)
	}
	return mb.activation.State(), nil
}
