/*
Package boltevents is a go.etcd.io/bbolt-backed follower.EventStore: one
bucket per key, events keyed by their version zero-padded to 8 bytes
big-endian so a bucket cursor scan yields ascending version order.
*/
package boltevents
