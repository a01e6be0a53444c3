/*
Package bolttx is a go.etcd.io/bbolt-backed appendlog.TransactionStore:
one bucket per unit name, rows keyed by the transaction id zero-padded to
8 bytes big-endian. bbolt has no unique-index error to catch, so Insert
performs a get-before-put check inside the same update transaction and
returns ErrDuplicateCommit instead.
*/
package bolttx
