// Package db provides a standardized interface for the ordered key-value engines that back
// a dCfg node. The replicated state machine applies committed transactions to a KVDB and
// readers iterate it with cursors.
//
// Key Components:
//
//   - KVDB Interface: The interface all engines must satisfy. It provides exact lookups
//     (Get, Has), ordered iteration per namespace (NewCursor, Namespaces), atomic batched
//     writes (Apply), metadata retrieval (GetInfo) and persistence (Save, Load).
//
//   - Cursor: A forward-only iterator with lower-bound Seek. Keys are compared as plain
//     byte strings, so a prefix scan is "Seek(prefix), then Next while the key still has
//     the prefix". Every cursor works on a consistent snapshot of its namespace.
//
//   - Transaction: An ordered batch of put and erase operations. Transactions are the only
//     way to write. They have a compact binary encoding (Serialize, Deserialize) which is
//     used as the RAFT log entry payload.
//
//   - Snapshot Format: WriteSnapshot and ReadSnapshot implement one engine-independent
//     stream format. Every engine uses it for Save and Load, so a snapshot taken from the
//     bolt engine can be restored into the memory engine and vice versa.
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     advertise through SupportsFeature.
//
// Related Packages:
//
// The engines/memory package provides a google/btree based in-memory engine. Cursors
// iterate over a copy-on-write clone of the tree, so they never block writers.
//
// The engines/bolt package stores every namespace in its own bbolt bucket. Cursors hold a
// read transaction until they are closed.
//
// The engines/badger package stores entries in a badger LSM tree under the key
// "<namespace>\x00<key>". It can run on disk or fully in memory.
//
// The testing package (github.com/ValentinKolb/dCfg/lib/db/testing) provides
// standardized tests and benchmarks for database implementations that satisfy the db.KVDB interface.
//   - RunKVDBTests: Runs a standardized test suite to validate implementations
//   - RunKVDBBenchmarks: Provides performance benchmarks for comparing implementations
package db
