/*
Package appendlog implements the MPSC coalescing channel and the
transactional append coalescer built on top of it: many producers submit
one commit each, a single consumer goroutine drains a batch and turns it
into one bulk transactional write, falling back to per-row inserts (with
duplicate-key tolerance) when the bulk write aborts.
*/
package appendlog
