package dquorum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/dCfg/lib/db"
	"github.com/ValentinKolb/dCfg/lib/loop"
	"github.com/ValentinKolb/dCfg/lib/quorum"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/config"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/lni/dragonboat/v4/raftio"
)

var (
	retries = 5
	log     = logger.GetLogger("quorum")
)

// ErrNotStarted is returned by operations that need the RAFT replica before Start.
var ErrNotStarted = errors.New("dquorum: replica not started")

// ElectionHandler is called on the loop whenever the role or the epoch of the replica changed.
type ElectionHandler func(role quorum.Role, epoch uint64)

// Options configures a distributed quorum.
type Options struct {
	ShardID   uint64
	ReplicaID uint64
	// Timeout bounds a single proposal attempt.
	Timeout time.Duration
	// Engine opens the engine of this replica when dragonboat starts the state machine.
	Engine db.Factory
	// Stats may be nil.
	Stats *quorum.Stats
}

// Quorum is a quorum.Quorum backed by a dragonboat shard.
//
// Role and epoch follow dragonboat's leader notifications. Committed transactions are
// applied by the StateMachine on every replica, so followers read the same data from
// their local engine.
type Quorum struct {
	*quorum.Pipeline

	loop *loop.Loop
	opts Options

	// set once by Start
	nh *dragonboat.NodeHost
	cs *client.Session

	mu     sync.RWMutex // guards engine, written by dragonboat's state machine factory
	engine db.KVDB

	// loop owned
	leaderID   uint64
	term       uint64
	known      bool
	parked     []func()
	onElection ElectionHandler
}

// New creates the quorum. Pass it as RaftEventListener of the NodeHostConfig, then call Start.
func New(l *loop.Loop, opts Options) *Quorum {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	q := &Quorum{
		loop: l,
		opts: opts,
	}
	q.Pipeline = quorum.NewPipeline(l, q, opts.Stats)
	return q
}

// OnElection registers the handler for role and epoch changes. Must be called on the loop.
func (q *Quorum) OnElection(h ElectionHandler) {
	q.onElection = h
}

// Start joins the shard with the given initial members and reads the current leader.
func (q *Quorum) Start(nh *dragonboat.NodeHost, members map[uint64]string, rc config.Config) error {
	q.nh = nh
	q.cs = nh.GetNoOPSession(q.opts.ShardID)

	factory := CreateStateMachineFactory(q.opts.Engine, func(database db.KVDB) {
		q.mu.Lock()
		q.engine = database
		q.mu.Unlock()
	})
	if err := nh.StartConcurrentReplica(members, false, factory, rc); err != nil {
		return fmt.Errorf("failed to start shard %d: %w", q.opts.ShardID, err)
	}

	if leaderID, term, valid, err := nh.GetLeaderID(q.opts.ShardID); err == nil && valid {
		q.LeaderUpdated(raftio.LeaderInfo{
			ShardID:   q.opts.ShardID,
			ReplicaID: q.opts.ReplicaID,
			Term:      term,
			LeaderID:  leaderID,
		})
	}
	return nil
}

// Engine returns the engine of the local replica (nil before the state machine started).
func (q *Quorum) Engine() db.KVDB {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.engine
}

// Info returns the engine info of the local replica as seen by the state machine.
func (q *Quorum) Info() (db.DatabaseInfo, error) {
	if q.nh == nil {
		return db.DatabaseInfo{}, ErrNotStarted
	}
	res, err := q.nh.StaleRead(q.opts.ShardID, Query{Type: QueryInfo})
	if err != nil {
		return db.DatabaseInfo{}, err
	}
	info, ok := res.(db.DatabaseInfo)
	if !ok {
		return db.DatabaseInfo{}, fmt.Errorf("unexpected type: received %T, expected db.DatabaseInfo", res)
	}
	return info, nil
}

// --------------------------------------------------------------------------
// Leadership (raftio.IRaftEventListener)
// --------------------------------------------------------------------------

// LeaderUpdated is called by dragonboat on its own goroutines. The update is applied on the loop.
func (q *Quorum) LeaderUpdated(info raftio.LeaderInfo) {
	if info.ShardID != q.opts.ShardID {
		return
	}
	q.loop.Post(func() { q.applyLeaderInfo(info) })
}

func (q *Quorum) applyLeaderInfo(info raftio.LeaderInfo) {
	if info.Term < q.term {
		return
	}
	before := q.Role()

	q.term = info.Term
	q.leaderID = info.LeaderID
	q.known = info.LeaderID != 0

	after := q.Role()
	log.Infof("shard %d: leader %d, term %d, local role %s", q.opts.ShardID, info.LeaderID, info.Term, after)

	if before == quorum.RoleLeader && after != quorum.RoleLeader {
		q.Reset()
	}

	if q.known {
		parked := q.parked
		q.parked = nil
		for _, retry := range parked {
			q.loop.Post(retry)
		}
	}

	if q.onElection != nil {
		q.onElection(after, q.term)
	}
}

// Role returns the local role.
func (q *Quorum) Role() quorum.Role {
	switch {
	case !q.known:
		return quorum.RoleNone
	case q.leaderID == q.opts.ReplicaID:
		return quorum.RoleLeader
	default:
		return quorum.RolePeon
	}
}

// LeaderID returns the replica id of the current leader.
func (q *Quorum) LeaderID() (uint64, bool) {
	return q.leaderID, q.known
}

func (q *Quorum) IsLeader() bool { return q.Role() == quorum.RoleLeader }

func (q *Quorum) IsPeon() bool { return q.Role() == quorum.RolePeon }

func (q *Quorum) Epoch() uint64 { return q.term }

// WaitForReadable posts retry once a leader is known.
func (q *Quorum) WaitForReadable(retry func()) {
	if q.known {
		q.loop.Post(retry)
		return
	}
	q.parked = append(q.parked, retry)
}

// --------------------------------------------------------------------------
// Proposals (quorum.Proposer)
// --------------------------------------------------------------------------

// Propose replicates tx through RAFT. Called on the loop by the pipeline, the proposal
// itself runs on its own goroutine.
func (q *Quorum) Propose(tx *db.Transaction, done func(err error)) {
	if q.nh == nil {
		done(ErrNotStarted)
		return
	}
	if !q.IsLeader() {
		done(quorum.ErrNotLeader)
		return
	}
	cmd := tx.Serialize()
	go func() { done(q.propose(cmd)) }()
}

func (q *Quorum) propose(cmd []byte) error {
	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), q.opts.Timeout)
		res, err := q.nh.SyncPropose(ctx, q.cs, cmd)
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: system busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(q.opts.Timeout / 10)
			continue
		}
		if err != nil {
			return err
		}
		if res.Value != resultApplied {
			return fmt.Errorf("%w: %s", quorum.ErrAborted, res.Data)
		}
		return nil
	}
	return fmt.Errorf("%w: system busy after %d attempts", quorum.ErrAborted, retries)
}

var (
	_ quorum.Quorum              = (*Quorum)(nil)
	_ quorum.Proposer            = (*Quorum)(nil)
	_ raftio.IRaftEventListener = (*Quorum)(nil)
)
