package boltstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/follower/pkg/follower"
)

var bucketSnapshots = []byte("snapshots")

// ErrDuplicateKey is returned by Insert when a snapshot already exists
// for the key, matching the teacher's "insert fails on duplicate" note on
// StateStore.insert.
var ErrDuplicateKey = errors.New("boltstate: snapshot already exists for key")

// BoltStateStore is a follower.StateStore[S] backed by a single bbolt
// bucket.
type BoltStateStore[S any] struct {
	db *bolt.DB
}

// Open creates or opens the snapshot database at dataDir/state.db.
func Open[S any](dataDir string) (*BoltStateStore[S], error) {
	path := filepath.Join(dataDir, "state.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening state store at %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSnapshots)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating snapshot bucket: %w", err)
	}
	return &BoltStateStore[S]{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStateStore[S]) Close() error {
	return s.db.Close()
}

// Get implements follower.StateStore[S]. It returns (nil, nil) if no
// snapshot exists for key.
func (s *BoltStateStore[S]) Get(ctx context.Context, key string) (*follower.State[S], error) {
	var state *follower.State[S]
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		var decoded follower.State[S]
		if err := json.Unmarshal(data, &decoded); err != nil {
			return fmt.Errorf("unmarshaling snapshot for key %q: %w", key, err)
		}
		state = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// Insert implements follower.StateStore[S]. It fails with ErrDuplicateKey
// if a snapshot already exists for state.Key.
func (s *BoltStateStore[S]) Insert(ctx context.Context, state *follower.State[S]) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling snapshot for key %q: %w", state.Key, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		if b.Get([]byte(state.Key)) != nil {
			return fmt.Errorf("%w: %q", ErrDuplicateKey, state.Key)
		}
		return b.Put([]byte(state.Key), data)
	})
}

// Update implements follower.StateStore[S]; last-writer-wins, matching the
// teacher's CreateNode/UpdateNode upsert-via-Put convention.
func (s *BoltStateStore[S]) Update(ctx context.Context, state *follower.State[S]) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling snapshot for key %q: %w", state.Key, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		return b.Put([]byte(state.Key), data)
	})
}
