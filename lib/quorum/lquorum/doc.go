// Package lquorum provides a single node implementation of quorum.Quorum.
//
// The node is always the leader of its own quorum. Proposals are applied directly to the
// engine, but their results still travel through the event loop, so finishers behave
// exactly as with a replicated quorum.
package lquorum
