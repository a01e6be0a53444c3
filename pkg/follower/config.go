package follower

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the per-Follower-type options enumerated in the runtime
// specification: whether and how often to snapshot, how deep a log page
// scan goes, and whether activation eagerly replays the full log.
type Config struct {
	// SaveSnapshot disables all snapshot writes when false; state is
	// rebuilt from the full log on every activation.
	SaveSnapshot bool `yaml:"save_snapshot"`

	// SnapshotVersionInterval: after applying events, persist a snapshot
	// once state.Version-snapshotVersion reaches this.
	SnapshotVersionInterval uint64 `yaml:"snapshot_version_interval"`

	// SnapshotMinVersionInterval: on deactivation, only persist if
	// state.Version-snapshotVersion reaches this.
	SnapshotMinVersionInterval uint64 `yaml:"snapshot_min_version_interval"`

	// EventsPerRead is the page size for EventStore.GetList scans.
	EventsPerRead uint64 `yaml:"events_per_read"`

	// FullyActive, if true, replays every event past the snapshot version
	// before activation returns; otherwise replay is deferred to the
	// first Tell.
	FullyActive bool `yaml:"fully_active"`

	// ConcurrentEvents, if true, lets the full-replay applier fan one
	// goroutine out per event within a page instead of applying strictly
	// in order. The user's Handler.OnEventDelivered must be commutative
	// within a page for this to be safe.
	ConcurrentEvents bool `yaml:"concurrent_events"`
}

// DefaultConfig matches the scenario in spec §8.1: snapshots on, one
// event's worth of interval, full pages of 100, lazy activation.
func DefaultConfig() Config {
	return Config{
		SaveSnapshot:               true,
		SnapshotVersionInterval:    1,
		SnapshotMinVersionInterval: 1,
		EventsPerRead:              100,
		FullyActive:                false,
		ConcurrentEvents:           false,
	}
}

// LoadConfig reads a YAML-encoded Config from path, starting from
// DefaultConfig so an omitted field keeps its default rather than
// zeroing out.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
