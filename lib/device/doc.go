// Package device implements the device lifecycle on top of the config-key hooks.
//
// Creating a device binds its dm-crypt secret under dm-crypt/<uuid>/luks. Destroying it
// removes every entry under dm-crypt/<uuid>/ and daemon-private/<id>/ in one commit.
// Both run on the leader only: requests are parked while the node is out of quorum and
// forwarded by followers.
//
// Proposals are plugged while the hooks stage their mutations, so the staged ops and the
// finisher answering the request travel in the same transaction:
//
//	q.Plug()
//	hooks.ApplyCreate(uuid, secret)
//	q.QueuePendingFinisher(replyCreated)
//	q.Unplug() // proposes
package device
