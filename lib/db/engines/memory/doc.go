// Package memory implements db.KVDB on top of a google/btree B-tree.
//
// Entries of all namespaces live in one tree ordered by (namespace, key). Writes are
// serialized by a mutex, reads share it. Cursors iterate a copy-on-write clone taken
// when the cursor is created: creating one is O(1), it never blocks writers and it keeps
// seeing the state from its creation for its whole lifetime.
//
// Save and Load use the engine-independent snapshot format of package db.
package memory
