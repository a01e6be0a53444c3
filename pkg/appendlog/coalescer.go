package appendlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/follower/pkg/log"
	"github.com/cuemby/follower/pkg/metrics"
)

// ErrDuplicateCommit signals that (UnitName, TransactionId) was already
// persisted by a prior attempt; it is the DuplicateAppend error kind,
// surfaced to callers of Append as a plain boolean rather than an error.
var ErrDuplicateCommit = errors.New("appendlog: duplicate (unit_name, transaction_id)")

// Commit is a single unit of work submitted to the coalescer: Data is the
// payload the coalescer serializes into the row's Data string,
// TransactionId the caller-assigned idempotency key
// scoped to UnitName, Status the caller-supplied row status carried through
// to the persisted row untouched.
type Commit[Input any] struct {
	UnitName      string
	TransactionID int64
	Data          Input
	Status        TransactionStatus
}

// AppendRequest is the row the batch consumer hands to TransactionStore; it
// is the on-the-wire shape of a Commit once Data has been serialized to a
// string, matching the abstract row schema
// {UnitName, TransactionId, Data, Status}.
type AppendRequest struct {
	UnitName      string
	TransactionID int64
	Data          string
	Status        TransactionStatus
}

// TransactionStatus is the row status column; concrete values are an
// out-of-core concern left to implementers, matching spec.md's "opaque
// status" note.
type TransactionStatus int32

// TransactionStore is the abstract append-log backend the coalescer writes
// through. BulkInsert must be all-or-nothing: either every request is
// persisted, or none are and err is non-nil so the caller falls back to
// per-row Insert.
type TransactionStore interface {
	BulkInsert(ctx context.Context, requests []AppendRequest) error
	Insert(ctx context.Context, request AppendRequest) error
	Delete(ctx context.Context, unitName string, transactionID int64) error
	GetList(ctx context.Context, unitName string) ([]AppendRequest, error)
	Update(ctx context.Context, unitName string, transactionID int64, status TransactionStatus) (bool, error)
}

// Serializer narrows the follower package's Serializer to the one method
// the coalescer needs for turning a Commit's Data into a row payload.
type Serializer interface {
	Serialize(v any) ([]byte, error)
}

// Coalescer batches per-commit Append calls from many producers into bulk
// transactional writes, built on a Channel[Commit[Input], bool].
type Coalescer[Input any] struct {
	store      TransactionStore
	serializer Serializer
	ch         *Channel[Commit[Input], bool]
}

// NewCoalescer wires a Coalescer to its TransactionStore and starts the
// underlying channel's consumer. A batchBound of 0 takes
// DefaultBatchBound; a capacity of 0 gives an unbuffered queue.
func NewCoalescer[Input any](ctx context.Context, store TransactionStore, serializer Serializer, capacity, batchBound int) *Coalescer[Input] {
	c := &Coalescer[Input]{
		store:      store,
		serializer: serializer,
		ch:         NewChannel[Commit[Input], bool](capacity, batchBound),
	}
	c.ch.Bind(c.consumeBatch)
	_ = c.ch.Start(ctx)
	return c
}

// Append enqueues commit, then awaits its completion future: true means
// persisted, false means a prior attempt already persisted the same
// (UnitName, TransactionId). The enqueue and the await are split exactly
// as the coalescing algorithm describes ("enqueue it; await its completion
// future") even though Append itself does not return between the two.
func (c *Coalescer[Input]) Append(ctx context.Context, commit Commit[Input]) (bool, error) {
	completion, err := c.ch.Enqueue(ctx, commit)
	if err != nil {
		return false, err
	}
	return completion.Wait(ctx)
}

// consumeBatch is the bound BatchFunc: it attempts one bulk insert for the
// whole batch, and on failure falls back to per-row inserts so a single
// bad row cannot block the rest of the batch.
func (c *Coalescer[Input]) consumeBatch(ctx context.Context, items []*asyncItem[Commit[Input], bool]) {
	logger := log.WithUnitName(batchUnitName(items))
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.AppendBatchDuration)
	metrics.AppendBatchSize.Observe(float64(len(items)))

	live := make([]*asyncItem[Commit[Input], bool], 0, len(items))
	requests := make([]AppendRequest, 0, len(items))
	for _, item := range items {
		req, err := c.toRequest(item.in)
		if err != nil {
			item.complete(false, fmt.Errorf("serializing commit payload: %w", err))
			continue
		}
		live = append(live, item)
		requests = append(requests, req)
	}

	if len(live) == 0 {
		return
	}

	if err := c.store.BulkInsert(ctx, requests); err == nil {
		for _, item := range live {
			item.complete(true, nil)
		}
		return
	}

	metrics.AppendBulkFallbackTotal.Inc()
	logger.Warn().Int("batch_size", len(live)).Msg("bulk insert aborted, falling back to per-row insert")

	for i, item := range live {
		err := c.store.Insert(ctx, requests[i])
		switch {
		case err == nil:
			item.complete(true, nil)
		case errors.Is(err, ErrDuplicateCommit):
			metrics.AppendDuplicateTotal.Inc()
			item.complete(false, nil)
		default:
			item.complete(false, fmt.Errorf("per-row insert fallback: %w", err))
		}
	}
}

func (c *Coalescer[Input]) toRequest(commit Commit[Input]) (AppendRequest, error) {
	data, err := c.serializer.Serialize(commit.Data)
	if err != nil {
		return AppendRequest{}, err
	}
	return AppendRequest{
		UnitName:      commit.UnitName,
		TransactionID: commit.TransactionID,
		Data:          string(data),
		Status:        commit.Status,
	}, nil
}

func batchUnitName[Input any](items []*asyncItem[Commit[Input], bool]) string {
	if len(items) == 0 {
		return ""
	}
	return items[0].in.UnitName
}
