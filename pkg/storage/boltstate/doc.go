/*
Package boltstate is a go.etcd.io/bbolt-backed follower.StateStore: a
single bucket holding one JSON-encoded snapshot per key.
*/
package boltstate
