package quorum

import (
	"time"

	"github.com/ValentinKolb/dCfg/lib/db"
	"github.com/ValentinKolb/dCfg/lib/loop"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("quorum")

// Proposer hands a transaction to the replication backend.
//
// done must be called exactly once, from any goroutine, with nil when tx was committed
// and applied, or with the reason it was not.
type Proposer interface {
	Propose(tx *db.Transaction, done func(err error))
}

// Pipeline implements the proposal side of Quorum on top of a Proposer.
//
// It owns the pending transaction and its finishers, keeps at most one proposal in flight
// and reports results back on the loop, so finishers of one transaction always run before
// those of any later transaction. Like Quorum, all methods must be called on the loop.
type Pipeline struct {
	loop     *loop.Loop
	proposer Proposer
	stats    *Stats

	pending   *db.Transaction
	finishers []Finisher

	inFlight    bool
	wantPropose bool
	plugged     bool

	// bumped by Reset, results of older proposals are ignored
	generation uint64
}

// NewPipeline creates a pipeline that proposes through p and reports on l.
// stats may be nil.
func NewPipeline(l *loop.Loop, p Proposer, stats *Stats) *Pipeline {
	if stats == nil {
		stats = NewStats(nil)
	}
	return &Pipeline{
		loop:     l,
		proposer: p,
		stats:    stats,
		pending:  db.NewTransaction(),
	}
}

// Stats returns the proposal statistics.
func (p *Pipeline) Stats() *Stats {
	return p.stats
}

// PendingTransaction returns the transaction the next proposal will carry.
func (p *Pipeline) PendingTransaction() *db.Transaction {
	return p.pending
}

// QueuePendingFinisher registers f for the pending transaction.
func (p *Pipeline) QueuePendingFinisher(f Finisher) {
	if f == nil {
		return
	}
	p.finishers = append(p.finishers, f)
}

// TriggerPropose requests a proposal of the pending transaction. If one is already in
// flight, the request is served once it completes.
func (p *Pipeline) TriggerPropose() {
	p.wantPropose = true
	p.maybePropose()
}

// Plug holds back proposals until Unplug.
func (p *Pipeline) Plug() {
	p.plugged = true
}

// Unplug releases held back proposals.
func (p *Pipeline) Unplug() {
	if !p.plugged {
		return
	}
	p.plugged = false
	p.maybePropose()
}

// IsPlugged reports whether proposals are held back.
func (p *Pipeline) IsPlugged() bool {
	return p.plugged
}

// InFlight reports whether a proposal waits for its result.
func (p *Pipeline) InFlight() bool {
	return p.inFlight
}

// Reset drops the pending transaction, its finishers and the result of an in-flight
// proposal. Used when the replica loses leadership: none of the dropped finishers fire.
func (p *Pipeline) Reset() {
	if !p.pending.Empty() || len(p.finishers) > 0 || p.inFlight {
		log.Infof("dropping pending transaction (%d ops, %d finishers, in flight: %t)",
			p.pending.Len(), len(p.finishers), p.inFlight)
	}
	p.generation++
	p.pending = db.NewTransaction()
	p.finishers = nil
	p.inFlight = false
	p.wantPropose = false
	p.plugged = false
}

func (p *Pipeline) maybePropose() {
	if p.plugged || p.inFlight || !p.wantPropose {
		return
	}
	p.wantPropose = false

	tx, finishers := p.pending, p.finishers
	p.pending, p.finishers = db.NewTransaction(), nil

	if tx.Empty() {
		if len(finishers) > 0 {
			// nothing to replicate, still report asynchronously
			p.loop.Post(func() { fire(finishers) })
		}
		return
	}

	p.inFlight = true
	gen := p.generation
	start := p.loop.Clock().Now()
	p.stats.proposed(tx.Len())

	p.proposer.Propose(tx, func(err error) {
		p.loop.Post(func() { p.complete(gen, tx, finishers, start, err) })
	})
}

func (p *Pipeline) complete(gen uint64, tx *db.Transaction, finishers []Finisher, start time.Time, err error) {
	if gen != p.generation {
		log.Debugf("ignoring result of a proposal from before the last reset")
		return
	}
	p.inFlight = false

	if err != nil {
		p.stats.aborted()
		log.Warningf("proposal of %d ops aborted, dropping %d finishers: %v", tx.Len(), len(finishers), err)
	} else {
		p.stats.committed(start)
		fire(finishers)
	}
	p.maybePropose()
}

func fire(finishers []Finisher) {
	for _, f := range finishers {
		f()
	}
}
