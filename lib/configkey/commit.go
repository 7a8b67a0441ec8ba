package configkey

import (
	"github.com/ValentinKolb/dCfg/lib/db"
	"github.com/ValentinKolb/dCfg/lib/quorum"
)

// Committer stages mutations into the quorum's pending transaction and requests a proposal.
type Committer struct {
	quorum quorum.Quorum
}

// NewCommitter creates a committer for q.
func NewCommitter(q quorum.Quorum) *Committer {
	return &Committer{quorum: q}
}

// CommitMutation lets mutate stage its ops into the pending transaction, registers
// onCommitted (may be nil) and triggers a proposal. It returns immediately. The staged
// ops are visible to reads once onCommitted runs.
func (c *Committer) CommitMutation(mutate func(tx *db.Transaction), onCommitted quorum.Finisher) {
	tx := c.quorum.PendingTransaction()
	mutate(tx)
	if onCommitted != nil {
		c.quorum.QueuePendingFinisher(onCommitted)
	}
	c.quorum.TriggerPropose()
}
