package quorum

import (
	"errors"

	"github.com/ValentinKolb/dCfg/lib/db"
)

// Finisher is a callback that fires once, on the event loop, after the transaction it
// was queued for has been committed. It never fires if the transaction is aborted.
type Finisher func()

var (
	// ErrNotPlugged is returned by operations that must be staged while proposals are held back.
	ErrNotPlugged = errors.New("quorum: proposals are not plugged")
	// ErrNotLeader is returned when a proposal is submitted on a replica that is not the leader.
	ErrNotLeader = errors.New("quorum: not the leader")
	// ErrAborted is reported to a proposal whose transaction was dropped without committing.
	ErrAborted = errors.New("quorum: proposal aborted")
)

// Quorum is the consensus layer as seen by the config-key service.
//
// All methods must be called on the node's event loop.
type Quorum interface {
	// IsLeader reports whether this replica currently leads the quorum.
	IsLeader() bool
	// IsPeon reports whether this replica is a follower of a known leader.
	IsPeon() bool
	// Epoch is the current election epoch (the RAFT term).
	Epoch() uint64

	// PendingTransaction returns the transaction that will be proposed next. Repeated
	// calls before the next proposal return the same transaction.
	PendingTransaction() *db.Transaction
	// QueuePendingFinisher registers f to fire after the pending transaction committed.
	QueuePendingFinisher(f Finisher)
	// TriggerPropose asks for the pending transaction to be proposed. It never blocks
	// and never fires finishers synchronously.
	TriggerPropose()

	// WaitForReadable parks retry until the replica is part of a readable quorum and then
	// posts it to the event loop.
	WaitForReadable(retry func())

	// Plug holds back proposals so several staging steps end up in one transaction.
	Plug()
	// Unplug releases proposals and proposes the pending transaction if one was requested.
	Unplug()
	// IsPlugged reports whether proposals are held back.
	IsPlugged() bool
}

// Role is the cluster role of a replica.
type Role int

const (
	RoleNone Role = iota // not part of a converged quorum
	RolePeon
	RoleLeader
)

func (r Role) String() string {
	switch r {
	case RoleLeader:
		return "leader"
	case RolePeon:
		return "peon"
	default:
		return "electing"
	}
}
