package dquorum

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/dCfg/lib/db"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// Results written into sm.Result.Value by Update
const (
	resultApplied uint64 = iota
	resultRejected
)

// QueryType selects what Lookup returns.
type QueryType uint8

const (
	QueryInfo       QueryType = iota // db.DatabaseInfo of the replica's engine
	QueryNamespaces                  // []string of non-empty namespaces
)

func (q QueryType) String() string {
	switch q {
	case QueryInfo:
		return "Info"
	case QueryNamespaces:
		return "Namespaces"
	default:
		return "Unknown"
	}
}

// Query is a read-only request passed to SyncRead or StaleRead.
type Query struct {
	Type QueryType
}

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// StateMachine applies committed transactions to the engine of one replica.
type StateMachine struct {
	replicaID uint64
	shardID   uint64
	database  db.KVDB
}

// NewStateMachine wraps database. Mostly useful for tests, dragonboat uses the factory.
func NewStateMachine(shardID, replicaID uint64, database db.KVDB) *StateMachine {
	return &StateMachine{
		replicaID: replicaID,
		shardID:   shardID,
		database:  database,
	}
}

// CreateStateMachineFactory returns the factory dragonboat calls when the replica starts.
// The engine is created lazily by open and handed to onOpen so the owner can read from it.
func CreateStateMachineFactory(open db.Factory, onOpen func(db.KVDB)) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		database, err := open()
		if err != nil {
			// dragonboat offers no error path here
			log.Panicf("shard %d replica %d: cannot open engine: %v", shardID, replicaID, err)
		}
		if onOpen != nil {
			onOpen(database)
		}
		return NewStateMachine(shardID, replicaID, database)
	}
}

// Lookup answers read-only queries against the local engine.
func (fsm *StateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(Query)
	if !ok {
		return nil, fmt.Errorf("invalid query type: %T", itf)
	}

	switch q.Type {
	case QueryInfo:
		return fsm.database.GetInfo(), nil
	case QueryNamespaces:
		return fsm.database.Namespaces()
	default:
		return nil, fmt.Errorf("unknown query: %s", q.Type)
	}
}

// Update applies a batch of committed entries. Every entry carries one serialized
// db.Transaction, which is applied atomically. A transaction the engine rejects is
// reported through its result, it never stops the batch.
func (fsm *StateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()

	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = sm.Result{Value: resultRejected, Data: []byte("empty command ignored")}
			continue
		}

		tx := db.NewTransaction()
		if err := tx.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{
				Value: resultRejected,
				Data:  []byte(fmt.Sprintf("failed to deserialize transaction: %v", err)),
			}
			continue
		}

		if err := fsm.database.Apply(tx); err != nil {
			log.Warningf("shard %d: entry %d rejected: %v", fsm.shardID, e.Index, err)
			entries[idx].Result = sm.Result{Value: resultRejected, Data: []byte(err.Error())}
			continue
		}
		entries[idx].Result = sm.Result{Value: resultApplied, Data: []byte(fmt.Sprintf("applied %d ops", tx.Len()))}
	}

	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("state machine took long to update. Batch of %d entries took %.2fms",
			len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// PrepareSnapshot is not used, every engine saves from a consistent view of its own.
func (fsm *StateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot writes the engine contents to writer.
func (fsm *StateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureSave) {
		return fmt.Errorf("engine %s does not support Save", fsm.database.GetInfo().DbType)
	}
	return fsm.database.Save(writer)
}

// RecoverFromSnapshot replaces the engine contents with the snapshot.
func (fsm *StateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureLoad) {
		return fmt.Errorf("engine %s does not support Load", fsm.database.GetInfo().DbType)
	}
	return fsm.database.Load(r)
}

// Close closes the engine.
func (fsm *StateMachine) Close() error {
	return fsm.database.Close()
}

var _ sm.IConcurrentStateMachine = (*StateMachine)(nil)
