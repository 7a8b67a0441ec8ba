// Package bolt implements db.KVDB on top of go.etcd.io/bbolt.
//
// Every namespace is a top-level bucket, keys inside a bucket are ordered byte-wise by
// bbolt itself. Apply maps to exactly one bbolt read-write transaction, so a transaction
// is committed (and fsynced) as a whole or not at all. A bucket is dropped as soon as its
// last key is erased.
//
// Cursors own a read-only bbolt transaction and therefore see a stable snapshot. bbolt
// can not grow its memory map while read transactions are open, so cursors should be
// closed promptly.
package bolt
