// Package quorum defines the consensus layer the config-key service commits through.
//
// The service never talks to RAFT directly. It stages mutations into the pending
// transaction, registers a Finisher per waiting request and triggers a proposal. Once the
// transaction is committed and applied, the finishers run on the event loop in the order
// they were registered. Aborted transactions drop their finishers silently.
//
// Key Components:
//
//   - Quorum: The interface the service sees (role, epoch, pending transaction,
//     finishers, proposals, readable waits and plugging).
//
//   - Pipeline: The shared proposal machinery. It keeps at most one proposal in flight,
//     batches everything staged in the meantime into the next one and can be plugged to
//     hold proposals back while a multi-step workflow stages its ops.
//
//   - Stats: Proposal meter, commit timer and abort counter in a go-metrics registry,
//     mirrored as VictoriaMetrics counters and histograms for the /metrics endpoint.
//
// Implementations:
//
//   - Local quorum (lquorum): A single node that always leads. Commits apply straight to
//     the engine.
//
//   - Distributed quorum (dquorum): A dragonboat RAFT shard whose state machine applies
//     serialized transactions to the engine of every replica.
package quorum
