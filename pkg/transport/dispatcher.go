package transport

import (
	"context"

	"github.com/cuemby/follower/pkg/follower"
)

// Dispatcher stands in for the host actor platform: it routes wire
// envelopes to the right key's mailbox and fires activation/deactivation
// triggers. It is not part of the reusable core.
type Dispatcher interface {
	Deliver(ctx context.Context, key string, envelope follower.MessageInfo) error
	Activate(ctx context.Context, key string) error
	Deactivate(ctx context.Context, key string) error
}
