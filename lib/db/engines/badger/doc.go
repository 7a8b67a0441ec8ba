// Package badger implements db.KVDB on top of dgraph-io/badger/v3.
//
// All namespaces share one LSM tree. An entry is stored under "<namespace>\x00<key>",
// which keeps the keys of a namespace contiguous and byte-wise ordered. Apply maps to one
// badger read-write transaction, cursors own a read-only transaction and see the snapshot
// from their creation.
//
// With an empty directory the engine runs fully in memory (badger's InMemory mode), which
// is what the tests use. Badger's own log output is routed to the "badger" logger of the
// dragonboat logger facade.
package badger
