package bolttx

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/follower/pkg/appendlog"
)

var unitBucketPrefix = []byte("tx/")

// row is the on-disk shape of one append, matching the abstract schema
// {UnitName, TransactionId, Data, Status}.
type row struct {
	UnitName      string
	TransactionID int64
	Data          string
	Status        appendlog.TransactionStatus
}

// BoltTransactionStore is an appendlog.TransactionStore backed by a single
// bbolt database file, one bucket per unit name.
type BoltTransactionStore struct {
	db *bolt.DB
}

// Open creates or opens the transaction log database at dataDir/tx.db.
func Open(dataDir string) (*BoltTransactionStore, error) {
	path := filepath.Join(dataDir, "tx.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening transaction store at %s: %w", path, err)
	}
	return &BoltTransactionStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltTransactionStore) Close() error {
	return s.db.Close()
}

func bucketName(unitName string) []byte {
	return append(append([]byte{}, unitBucketPrefix...), []byte(unitName)...)
}

func txKey(transactionID int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(transactionID))
	return buf
}

// BulkInsert implements appendlog.TransactionStore. It is all-or-nothing:
// a single bbolt Update transaction either commits every request or, on
// any error (including a duplicate key encountered mid-batch), aborts and
// leaves no row written — matching "start a storage transaction ...
// attempt a bulk insert ... on failure, abort" from the batch-consumer
// algorithm.
func (s *BoltTransactionStore) BulkInsert(ctx context.Context, requests []appendlog.AppendRequest) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		buckets := make(map[string]*bolt.Bucket, len(requests))
		for _, req := range requests {
			b, ok := buckets[req.UnitName]
			if !ok {
				created, err := tx.CreateBucketIfNotExists(bucketName(req.UnitName))
				if err != nil {
					return fmt.Errorf("creating bucket for unit %q: %w", req.UnitName, err)
				}
				b = created
				buckets[req.UnitName] = b
			}
			key := txKey(req.TransactionID)
			if b.Get(key) != nil {
				return fmt.Errorf("%w: unit %q transaction %d", appendlog.ErrDuplicateCommit, req.UnitName, req.TransactionID)
			}
			data, err := json.Marshal(row{UnitName: req.UnitName, TransactionID: req.TransactionID, Data: req.Data, Status: req.Status})
			if err != nil {
				return fmt.Errorf("marshaling row for unit %q transaction %d: %w", req.UnitName, req.TransactionID, err)
			}
			if err := b.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Insert implements appendlog.TransactionStore's per-row fallback path:
// get-before-put inside one Update transaction, returning
// appendlog.ErrDuplicateCommit if the (UnitName, TransactionId) pair is
// already present.
func (s *BoltTransactionStore) Insert(ctx context.Context, request appendlog.AppendRequest) error {
	data, err := json.Marshal(row{UnitName: request.UnitName, TransactionID: request.TransactionID, Data: request.Data, Status: request.Status})
	if err != nil {
		return fmt.Errorf("marshaling row for unit %q transaction %d: %w", request.UnitName, request.TransactionID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName(request.UnitName))
		if err != nil {
			return fmt.Errorf("creating bucket for unit %q: %w", request.UnitName, err)
		}
		key := txKey(request.TransactionID)
		if b.Get(key) != nil {
			return appendlog.ErrDuplicateCommit
		}
		return b.Put(key, data)
	})
}

// Delete implements appendlog.TransactionStore.
func (s *BoltTransactionStore) Delete(ctx context.Context, unitName string, transactionID int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(unitName))
		if b == nil {
			return nil
		}
		return b.Delete(txKey(transactionID))
	})
}

// GetList implements appendlog.TransactionStore.
func (s *BoltTransactionStore) GetList(ctx context.Context, unitName string) ([]appendlog.AppendRequest, error) {
	var out []appendlog.AppendRequest
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(unitName))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var r row
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshaling row for unit %q: %w", unitName, err)
			}
			out = append(out, appendlog.AppendRequest{UnitName: r.UnitName, TransactionID: r.TransactionID, Data: r.Data, Status: r.Status})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update implements appendlog.TransactionStore. It returns false if no row
// exists for (unitName, transactionID), true otherwise.
func (s *BoltTransactionStore) Update(ctx context.Context, unitName string, transactionID int64, status appendlog.TransactionStatus) (bool, error) {
	found := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(unitName))
		if b == nil {
			return nil
		}
		key := txKey(transactionID)
		data := b.Get(key)
		if data == nil {
			return nil
		}
		var r row
		if err := json.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("unmarshaling row for unit %q transaction %d: %w", unitName, transactionID, err)
		}
		r.Status = status
		updated, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshaling row for unit %q transaction %d: %w", unitName, transactionID, err)
		}
		found = true
		return b.Put(key, updated)
	})
	if err != nil {
		return false, err
	}
	return found, nil
}
