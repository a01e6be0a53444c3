package boltevents

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/follower/pkg/follower"
)

// keyBucketPrefix namespaces per-key buckets from anything else sharing
// the database file, mirroring the teacher's one-bucket-per-collection
// convention generalized to one-bucket-per-key.
var keyBucketPrefix = []byte("events/")

// BoltEventStore is a follower.EventStore[E] backed by a single bbolt
// database file, one bucket per key.
type BoltEventStore[E any] struct {
	db *bolt.DB
}

// Open creates or opens the event log database at dataDir/events.db.
func Open[E any](dataDir string) (*BoltEventStore[E], error) {
	path := filepath.Join(dataDir, "events.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening event store at %s: %w", path, err)
	}
	return &BoltEventStore[E]{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltEventStore[E]) Close() error {
	return s.db.Close()
}

func bucketName(key string) []byte {
	return append(append([]byte{}, keyBucketPrefix...), []byte(key)...)
}

func versionKey(version uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, version)
	return buf
}

// Append persists event under key's bucket, creating the bucket if this is
// the key's first event. Not part of follower.EventStore; it is the
// producer-side counterpart every concrete event store needs even though
// the core Follower never writes to the log itself.
func (s *BoltEventStore[E]) Append(ctx context.Context, key string, event follower.Event[E]) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event version %d for key %q: %w", event.Base.Version, key, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName(key))
		if err != nil {
			return fmt.Errorf("creating bucket for key %q: %w", key, err)
		}
		return b.Put(versionKey(event.Base.Version), data)
	})
}

// GetList implements follower.EventStore[E]: events strictly greater than
// startExclusive and at most endInclusive, ascending by version.
func (s *BoltEventStore[E]) GetList(ctx context.Context, key string, startExclusive, endInclusive uint64) ([]follower.Event[E], error) {
	var out []follower.Event[E]
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(key))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(versionKey(startExclusive + 1)); k != nil; k, v = c.Next() {
			version := binary.BigEndian.Uint64(k)
			if version > endInclusive {
				break
			}
			var ev follower.Event[E]
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("unmarshaling event version %d for key %q: %w", version, key, err)
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
