// Package dquorum implements quorum.Quorum on top of a dragonboat RAFT shard.
//
// Architecture:
//
//   - Quorum: Tracks the leader and the term through dragonboat's RaftEventListener and
//     maps them to the local role (leader, peon, electing) and the epoch. It embeds the
//     shared quorum.Pipeline and acts as its Proposer: the pending transaction is
//     serialized and handed to SyncPropose on a separate goroutine, the result is posted
//     back to the event loop.
//
//   - StateMachine: A dragonboat IConcurrentStateMachine. Every committed entry holds one
//     serialized db.Transaction which is applied atomically to the replica's engine.
//     Lookup answers engine info and namespace queries. Snapshots use the engine's
//     Save and Load, so every engine produces the same snapshot stream.
//
// Leadership:
//
//	Replicas only propose while they lead. When a replica loses leadership the pending
//	transaction and its finishers are dropped. Requests that arrive while no leader is
//	known are parked by WaitForReadable and retried as soon as one is elected.
//
// Error Handling and Retries:
//
//	ErrSystemBusy from dragonboat is retried a few times with a short pause. Every other
//	failure aborts the proposal, which drops its finishers.
//
// Usage:
//
//	q := dquorum.New(l, dquorum.Options{ShardID: 1, ReplicaID: id, Engine: factory})
//	nhc := cfg.ToNodeHostConfig()
//	nhc.RaftEventListener = q
//	nh, err := dragonboat.NewNodeHost(nhc)
//	if err != nil { ... }
//	if err := q.Start(nh, members, cfg.ToDragonboatConfig(1)); err != nil { ... }
package dquorum
