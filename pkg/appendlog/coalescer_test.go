package appendlog

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jsonSerializer is a minimal Serializer stand-in; the coalescer only
// needs Serialize.
type jsonSerializer struct{}

func (jsonSerializer) Serialize(v any) ([]byte, error) {
	return []byte(fmt.Sprintf("%v", v)), nil
}

// fakeTransactionStore is an in-memory TransactionStore with scriptable
// bulk-insert failure and per-row duplicate detection, keyed by
// (UnitName, TransactionID).
type fakeTransactionStore struct {
	mu        sync.Mutex
	rows      map[string]AppendRequest
	bulkErr   error
	bulkCalls int
}

func newFakeTransactionStore() *fakeTransactionStore {
	return &fakeTransactionStore{rows: make(map[string]AppendRequest)}
}

func rowKey(unitName string, txID int64) string {
	return fmt.Sprintf("%s/%d", unitName, txID)
}

func (f *fakeTransactionStore) BulkInsert(ctx context.Context, requests []AppendRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkCalls++
	if f.bulkErr != nil {
		return f.bulkErr
	}
	for _, r := range requests {
		f.rows[rowKey(r.UnitName, r.TransactionID)] = r
	}
	return nil
}

func (f *fakeTransactionStore) Insert(ctx context.Context, request AppendRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := rowKey(request.UnitName, request.TransactionID)
	if _, exists := f.rows[key]; exists {
		return ErrDuplicateCommit
	}
	f.rows[key] = request
	return nil
}

func (f *fakeTransactionStore) Delete(ctx context.Context, unitName string, transactionID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, rowKey(unitName, transactionID))
	return nil
}

func (f *fakeTransactionStore) GetList(ctx context.Context, unitName string) ([]AppendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []AppendRequest
	for _, r := range f.rows {
		if r.UnitName == unitName {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeTransactionStore) Update(ctx context.Context, unitName string, transactionID int64, status TransactionStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := rowKey(unitName, transactionID)
	if _, exists := f.rows[key]; !exists {
		return false, nil
	}
	return true, nil
}

// Scenario 5 (spec §8): distinct commits all succeed via bulk insert (one
// or more batches, depending on how the concurrent appends are drained).
func TestCoalescerAppendBulkSuccess(t *testing.T) {
	store := newFakeTransactionStore()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c := NewCoalescer[string](ctx, store, jsonSerializer{}, 64, 64)

	var wg sync.WaitGroup
	results := make([]bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := c.Append(ctx, Commit[string]{UnitName: "unit-a", TransactionID: int64(i), Data: "payload"})
			assert.NoError(t, err)
			results[i] = ok
		}(i)
	}
	wg.Wait()

	for i, ok := range results {
		assert.True(t, ok, "commit %d should have been persisted", i)
	}
	assert.GreaterOrEqual(t, store.bulkCalls, 1)

	rows, err := store.GetList(ctx, "unit-a")
	require.NoError(t, err)
	assert.Len(t, rows, 20)
}

// The round-trip law from spec §8: append then get_list returns the
// committed Commit's fields, status included, unchanged.
func TestCoalescerAppendPreservesStatus(t *testing.T) {
	store := newFakeTransactionStore()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c := NewCoalescer[string](ctx, store, jsonSerializer{}, 64, 64)

	ok, err := c.Append(ctx, Commit[string]{UnitName: "unit-d", TransactionID: 1, Data: "payload", Status: TransactionStatus(7)})
	require.NoError(t, err)
	require.True(t, ok)

	rows, err := store.GetList(ctx, "unit-d")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, TransactionStatus(7), rows[0].Status)
}

// Scenario 6 (spec §8): bulk insert aborts, per-row fallback distinguishes
// a genuine duplicate from a fresh commit.
func TestCoalescerFallsBackOnBulkFailureAndDetectsDuplicate(t *testing.T) {
	store := newFakeTransactionStore()

	// Pre-seed one row so it looks like a prior attempt already
	// persisted transaction id 1 for this unit.
	require.NoError(t, store.Insert(context.Background(), AppendRequest{UnitName: "unit-b", TransactionID: 1, Data: "prior"}))
	store.bulkErr = fmt.Errorf("simulated bulk transaction abort")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c := NewCoalescer[string](ctx, store, jsonSerializer{}, 64, 64)

	ok1, err := c.Append(ctx, Commit[string]{UnitName: "unit-b", TransactionID: 1, Data: "retry"})
	require.NoError(t, err)
	assert.False(t, ok1, "resubmitting an already-persisted transaction id must resolve as duplicate, not an error")

	ok2, err := c.Append(ctx, Commit[string]{UnitName: "unit-b", TransactionID: 2, Data: "fresh"})
	require.NoError(t, err)
	assert.True(t, ok2, "a genuinely new transaction id must be persisted by the per-row fallback")

	assert.GreaterOrEqual(t, store.bulkCalls, 1, "the coalescer must have attempted (and aborted) a bulk insert first")
}

// A single slow/erroring item must not prevent independent completion of
// the rest of its batch.
func TestCoalescerIndependentCompletionWithinBatch(t *testing.T) {
	store := newFakeTransactionStore()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c := NewCoalescer[string](ctx, store, jsonSerializer{}, 64, 64)

	// Seed a duplicate ahead of time so one concurrent Append in the
	// same batch is guaranteed to resolve false while its siblings
	// resolve true, once the bulk path is forced to fail.
	store.bulkErr = fmt.Errorf("forced abort for fallback exercise")
	require.NoError(t, store.Insert(context.Background(), AppendRequest{UnitName: "unit-c", TransactionID: 0, Data: "prior"}))

	var wg sync.WaitGroup
	results := make([]bool, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := c.Append(ctx, Commit[string]{UnitName: "unit-c", TransactionID: int64(i), Data: "x"})
			assert.NoError(t, err)
			results[i] = ok
		}(i)
	}
	wg.Wait()

	assert.False(t, results[0], "transaction id 0 was already persisted and must resolve as duplicate")
	for i := 1; i < 5; i++ {
		assert.True(t, results[i], "transaction id %d is fresh and must be persisted", i)
	}
}
