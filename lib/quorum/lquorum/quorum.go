package lquorum

import (
	"github.com/ValentinKolb/dCfg/lib/db"
	"github.com/ValentinKolb/dCfg/lib/loop"
	"github.com/ValentinKolb/dCfg/lib/quorum"
)

// applier commits by applying the transaction to the local engine
type applier struct {
	engine db.KVDB
}

func (a applier) Propose(tx *db.Transaction, done func(err error)) {
	done(a.engine.Apply(tx))
}

// Quorum is a quorum of one. It always leads, so reads are always allowed and proposals
// commit as soon as the engine applied them.
type Quorum struct {
	*quorum.Pipeline
	loop   *loop.Loop
	engine db.KVDB
	epoch  uint64
}

// New creates a single node quorum committing into engine. stats may be nil.
func New(l *loop.Loop, engine db.KVDB, stats *quorum.Stats) *Quorum {
	return &Quorum{
		Pipeline: quorum.NewPipeline(l, applier{engine: engine}, stats),
		loop:     l,
		engine:   engine,
		epoch:    1,
	}
}

// Engine returns the engine the quorum commits into.
func (q *Quorum) Engine() db.KVDB {
	return q.engine
}

// Elect starts a new epoch, dropping whatever was pending in the old one.
func (q *Quorum) Elect() uint64 {
	q.Reset()
	q.epoch++
	return q.epoch
}

func (q *Quorum) IsLeader() bool { return true }

func (q *Quorum) IsPeon() bool { return false }

func (q *Quorum) Epoch() uint64 { return q.epoch }

func (q *Quorum) Role() quorum.Role { return quorum.RoleLeader }

// WaitForReadable posts retry right away, a single node is always readable.
func (q *Quorum) WaitForReadable(retry func()) {
	q.loop.Post(retry)
}

var _ quorum.Quorum = (*Quorum)(nil)
