package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/follower/pkg/appendlog"
	"github.com/cuemby/follower/pkg/follower"
	"github.com/cuemby/follower/pkg/log"
	"github.com/cuemby/follower/pkg/metrics"
	"github.com/cuemby/follower/pkg/storage/boltevents"
	"github.com/cuemby/follower/pkg/storage/boltstate"
	"github.com/cuemby/follower/pkg/storage/bolttx"
	"github.com/cuemby/follower/pkg/transport"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "follower-demo",
	Short: "Exercises the follower and appendlog packages end to end",
	Long: `follower-demo activates a Follower over a bbolt-backed event log,
replays a YAML fixture of events into it, and prints the materialized
state — demonstrating the core runtime without a real virtual-actor host.`,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "./follower-demo-data", "Data directory for the bbolt-backed stores")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(appendCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// counterEvent/counterState are the demo's domain types: a trivial
// accumulator, just enough to exercise Activate/Tell/Deactivate.
type counterEvent struct {
	Delta int `json:"delta"`
}

type counterState struct {
	Total int `json:"total"`
}

type counterHandler struct {
	follower.NoopHandler[counterEvent, counterState]
}

func (counterHandler) OnEventDelivered(ctx context.Context, state *follower.State[counterState], event follower.Event[counterEvent]) error {
	state.Payload.Total += event.Payload.Delta
	return nil
}

type fixtureEvent struct {
	Version uint64 `yaml:"version"`
	Delta   int    `yaml:"delta"`
}

type fixture struct {
	Key    string         `yaml:"key"`
	Events []fixtureEvent `yaml:"events"`
}

func loadFixture(path string) (fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fixture{}, fmt.Errorf("reading fixture %s: %w", path, err)
	}
	var f fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fixture{}, fmt.Errorf("parsing fixture %s: %w", path, err)
	}
	return f, nil
}

var replayCmd = &cobra.Command{
	Use:   "replay --fixture FILE",
	Short: "Activate a Follower and replay a YAML fixture of events into it",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		fixturePath, _ := cmd.Flags().GetString("fixture")
		if fixturePath == "" {
			return fmt.Errorf("--fixture is required")
		}

		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return fmt.Errorf("creating data dir: %w", err)
		}

		f, err := loadFixture(fixturePath)
		if err != nil {
			return err
		}
		if f.Key == "" {
			return fmt.Errorf("fixture is missing a key")
		}

		eventStore, err := boltevents.Open[counterEvent](dataDir)
		if err != nil {
			return fmt.Errorf("opening event store: %w", err)
		}
		defer eventStore.Close()

		stateStore, err := boltstate.Open[counterState](dataDir)
		if err != nil {
			return fmt.Errorf("opening state store: %w", err)
		}
		defer stateStore.Close()

		ctx := context.Background()
		for _, fe := range f.Events {
			if err := eventStore.Append(ctx, f.Key, follower.Event[counterEvent]{
				Base:    follower.EventBase{Version: fe.Version},
				Payload: counterEvent{Delta: fe.Delta},
			}); err != nil {
				return fmt.Errorf("seeding event version %d: %w", fe.Version, err)
			}
		}

		registry := follower.NewTypeRegistry()
		registry.Register("counterEvent", func() any { return &follower.Event[counterEvent]{} })

		deps := follower.Dependencies[counterEvent, counterState]{
			EventStore: eventStore,
			StateStore: stateStore,
			Handler:    counterHandler{},
			Serializer: follower.NewJSONSerializer(registry),
			Config:     follower.DefaultConfig(),
		}
		dispatcher := transport.NewInProcess(deps)

		for _, fe := range f.Events {
			payload, err := json.Marshal(follower.Event[counterEvent]{
				Base:    follower.EventBase{Version: fe.Version},
				Payload: counterEvent{Delta: fe.Delta},
			})
			if err != nil {
				return fmt.Errorf("marshaling envelope for version %d: %w", fe.Version, err)
			}
			envelope := follower.MessageInfo{TypeName: "counterEvent", Bytes: payload}
			if err := dispatcher.Deliver(ctx, f.Key, envelope); err != nil {
				return fmt.Errorf("delivering version %d: %w", fe.Version, err)
			}
		}

		state, err := dispatcher.State(f.Key)
		if err != nil {
			return err
		}

		fmt.Printf("key:     %s\n", state.Key)
		fmt.Printf("version: %d\n", state.Version)
		fmt.Printf("total:   %d\n", state.Payload.Total)

		return dispatcher.Deactivate(ctx, f.Key)
	},
}

var appendCmd = &cobra.Command{
	Use:   "append",
	Short: "Submit a batch of sample commits through the transactional append coalescer",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		count, _ := cmd.Flags().GetInt("count")

		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return fmt.Errorf("creating data dir: %w", err)
		}

		store, err := bolttx.Open(dataDir)
		if err != nil {
			return fmt.Errorf("opening transaction store: %w", err)
		}
		defer store.Close()

		ctx := context.Background()
		coalescer := appendlog.NewCoalescer[string](ctx, store, follower.NewJSONSerializer(follower.NewTypeRegistry()), 64, 64)

		unitName := uuid.NewString()
		persisted, duplicate := 0, 0
		for i := 0; i < count; i++ {
			ok, err := coalescer.Append(ctx, appendlog.Commit[string]{
				UnitName:      unitName,
				TransactionID: int64(i),
				Data:          fmt.Sprintf("commit-%d", i),
			})
			if err != nil {
				return fmt.Errorf("appending commit %d: %w", i, err)
			}
			if ok {
				persisted++
			} else {
				duplicate++
			}
		}

		fmt.Printf("unit:      %s\n", unitName)
		fmt.Printf("persisted: %d\n", persisted)
		fmt.Printf("duplicate: %d\n", duplicate)
		fmt.Printf("metrics endpoint available via metrics.Handler() for a hosting process\n")
		_ = metrics.Handler
		return nil
	},
}

func init() {
	replayCmd.Flags().String("fixture", "", "Path to a YAML fixture of events (required)")
	appendCmd.Flags().Int("count", 20, "Number of sample commits to submit")
}
