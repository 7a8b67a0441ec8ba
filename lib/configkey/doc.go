// Package configkey implements the config-key service: an opaque key-value store that
// lives in one namespace of the node's engine and is changed only through the quorum.
//
// Key Components:
//
//   - Store: Point reads, existence and prefix checks, ordered listing, prefix dumps with
//     binary values replaced by a placeholder, and staging of puts, erases and prefix
//     deletions into a transaction. Prefixes match literally, "abc" matches "abcX".
//
//   - Committer: Stages a mutation into the quorum's pending transaction, registers the
//     finisher that answers the request and triggers a proposal. It never waits.
//
//   - Dispatcher: Routes a parsed command. Out of quorum the request is parked until the
//     quorum is readable again. Reads (get, exists, list, dump) are answered locally.
//     Writes (put, del) are forwarded to the leader, or committed when this node leads
//     and answered once the commit is reported. Requests from peers never get a reply.
//
//   - TickScheduler: A single self-rescheduling timer on the event loop.
//
//   - Hooks: Validate and apply steps binding a dm-crypt secret to a device on creation
//     and removing everything bound to it on destruction.
//
//   - Service: Ties the above together per node and epoch.
//
// Reply codes:
//
//	0         success
//	-ENOENT   get or exists of a missing key
//	-EFBIG    value larger than the configured maximum
//	-EEXIST   a different dm-crypt secret is bound to the device
//	+EEXIST   the same dm-crypt secret is already bound (success)
//	-EINVAL   missing key argument
//	-EIO      engine failure
//	-EAGAIN   write received by a follower that cannot reach the leader
//
// Concurrency:
//
//	Everything in this package runs on the node's event loop and uses no locks. Requests
//	from transports, commit results and ticks all arrive as loop tasks.
package configkey
