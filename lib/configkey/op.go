package configkey

// Replier is anything a reply can be sent to.
type Replier interface {
	// FromPeer reports whether the request was issued by another node of the cluster.
	// Such requests never get a reply.
	FromPeer() bool
	// Reply sends the result to the requester.
	Reply(code RetCode, status string, data []byte)
}

// Op is an inbound config-key request.
type Op interface {
	Replier
	Command() Command
}

// Forwarder relays a request to the current leader. The leader's reply is delivered to
// the original requester by the forwarder, the forwarding node never replies itself.
type Forwarder interface {
	ForwardToLeader(op Replier)
}

// Disposition tells the caller of Dispatch what happened to a request.
type Disposition uint8

const (
	// Replied means the request was answered (or its reply suppressed).
	Replied Disposition = iota
	// Deferred means the reply comes later: after a commit, from the leader or after a retry.
	Deferred
)

func (d Disposition) String() string {
	if d == Deferred {
		return "deferred"
	}
	return "replied"
}

// reply answers op unless it came from a peer
func reply(op Replier, code RetCode, status string, data []byte) {
	if op.FromPeer() {
		return
	}
	op.Reply(code, status, data)
}
