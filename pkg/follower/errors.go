package follower

import (
	"errors"
	"fmt"
)

// Sentinel error kinds, matched with errors.Is against the wrapped error
// returned from Tell/Activate.
var (
	// ErrEventVersionMismatch means the incoming event version still
	// exceeds state.Version after the gap-fill read completed.
	ErrEventVersionMismatch = errors.New("follower: event version exceeds state version after gap fill")

	// ErrActivationFailed wraps any error encountered reading the
	// snapshot or replaying the log during Activate.
	ErrActivationFailed = errors.New("follower: activation failed")

	// ErrDeserialization means an envelope or event payload could not be
	// decoded. JSONSerializer.Deserialize returns it; Activation.Tell logs
	// and drops any envelope that fails to decode, whether or not its
	// TypeName names an event kind, and does not return this error.
	ErrDeserialization = errors.New("follower: deserialization failure")
)

// VersionMismatchError gives ErrEventVersionMismatch concrete key/version
// context for logs and tests.
type VersionMismatchError struct {
	Key      string
	Incoming uint64
	Current  uint64
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("follower: key %q: incoming event version %d exceeds current state version %d after gap fill", e.Key, e.Incoming, e.Current)
}

func (e *VersionMismatchError) Unwrap() error {
	return ErrEventVersionMismatch
}
