package appendlog

import (
	"context"
	"fmt"
)

// DefaultBatchBound is the number of items a consumer iteration drains
// before invoking the bound function, absent an explicit override — a
// roundish power of two sized for expected producer burst, matching the
// instinct behind the teacher's event-broker channel buffering.
const DefaultBatchBound = 64

// asyncItem is a single enqueued unit of work carrying a one-shot
// completion: exactly one of result/err is meaningful once done is
// closed, and it is set exactly once by whichever consumer iteration
// drains this item.
type asyncItem[In any, Out any] struct {
	in     In
	done   chan struct{}
	result Out
	err    error
}

func newAsyncItem[In any, Out any](in In) *asyncItem[In, Out] {
	return &asyncItem[In, Out]{in: in, done: make(chan struct{})}
}

func (a *asyncItem[In, Out]) complete(result Out, err error) {
	a.result = result
	a.err = err
	close(a.done)
}

// Wait blocks until the item completes or ctx is done. It satisfies
// Completion[Out] so callers that only hold the interface returned by
// Enqueue can still await it without seeing the unexported asyncItem type.
func (a *asyncItem[In, Out]) Wait(ctx context.Context) (Out, error) {
	select {
	case <-a.done:
		return a.result, a.err
	case <-ctx.Done():
		var zero Out
		return zero, ctx.Err()
	}
}

// Completion is the handle a producer holds after Enqueue returns: the
// item has been accepted onto the queue, but not necessarily applied yet.
type Completion[Out any] interface {
	Wait(ctx context.Context) (Out, error)
}

// BatchFunc owns completion of every item handed to it: it must call
// complete for each item exactly once. Channel itself never completes an
// item.
type BatchFunc[In any, Out any] func(ctx context.Context, items []*asyncItem[In, Out])

// Channel is a bounded, multi-producer single-consumer queue of
// AsyncItem[In, Out]. Producers call Enqueue and suspend only until the
// item is accepted onto the queue, getting back a Completion to await
// separately once they're ready for the applied result (Write folds both
// steps together for callers that don't need to separate them); a single
// consumer goroutine, started by Start, drains items in batches and
// invokes the bound BatchFunc.
type Channel[In any, Out any] struct {
	queue      chan *asyncItem[In, Out]
	batchBound int
	fn         BatchFunc[In, Out]
}

// NewChannel returns a Channel with the given enqueue capacity. A capacity
// of 0 makes Write rendezvous directly with the consumer.
func NewChannel[In any, Out any](capacity int, batchBound int) *Channel[In, Out] {
	if batchBound <= 0 {
		batchBound = DefaultBatchBound
	}
	return &Channel[In, Out]{
		queue:      make(chan *asyncItem[In, Out], capacity),
		batchBound: batchBound,
	}
}

// Bind registers the batch consumer function. Must be called before Start.
func (c *Channel[In, Out]) Bind(fn BatchFunc[In, Out]) {
	c.fn = fn
}

// Enqueue hands in to the queue and returns as soon as it is accepted —
// not once it is applied. It suspends only while the channel is at
// capacity. The returned Completion is awaited separately via Wait, so a
// producer that wants to enqueue many items before awaiting any of them
// can do so.
func (c *Channel[In, Out]) Enqueue(ctx context.Context, in In) (Completion[Out], error) {
	item := newAsyncItem[In, Out](in)
	select {
	case c.queue <- item:
		return item, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write is a convenience wrapper around Enqueue+Wait for callers that just
// want the applied result: it suspends until in is enqueued, then further
// suspends until it completes, or ctx is done first.
func (c *Channel[In, Out]) Write(ctx context.Context, in In) (Out, error) {
	completion, err := c.Enqueue(ctx, in)
	if err != nil {
		var zero Out
		return zero, err
	}
	return completion.Wait(ctx)
}

// Start launches exactly one consumer goroutine that runs until ctx is
// done. Each iteration blocks for the first item, then greedily drains any
// further items already queued (without blocking) up to batchBound before
// invoking the bound function.
func (c *Channel[In, Out]) Start(ctx context.Context) error {
	if c.fn == nil {
		return fmt.Errorf("appendlog: Start called before Bind")
	}
	go c.run(ctx)
	return nil
}

func (c *Channel[In, Out]) run(ctx context.Context) {
	for {
		var first *asyncItem[In, Out]
		select {
		case first = <-c.queue:
		case <-ctx.Done():
			return
		}

		batch := make([]*asyncItem[In, Out], 0, c.batchBound)
		batch = append(batch, first)
	drain:
		for len(batch) < c.batchBound {
			select {
			case item := <-c.queue:
				batch = append(batch, item)
			default:
				break drain
			}
		}

		c.fn(ctx, batch)
	}
}
