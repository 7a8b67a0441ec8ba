package configkey

import (
	"context"
	"testing"
	"time"

	"github.com/ValentinKolb/dCfg/lib/db"
	"github.com/ValentinKolb/dCfg/lib/db/engines/memory"
	"github.com/ValentinKolb/dCfg/lib/loop"
	"github.com/ValentinKolb/dCfg/lib/quorum"
)

// fakeQuorum records everything the service asks of the quorum. commit applies the
// pending transaction to the engine and runs the finishers, like a real commit would.
type fakeQuorum struct {
	leader  bool
	peon    bool
	epoch   uint64
	plugged bool

	engine       db.KVDB
	pending      *db.Transaction
	finishers    []quorum.Finisher
	pendingCalls int
	proposes     int
	parked       []func()
}

func newFakeQuorum(engine db.KVDB) *fakeQuorum {
	return &fakeQuorum{
		leader:  true,
		epoch:   1,
		engine:  engine,
		pending: db.NewTransaction(),
	}
}

func (q *fakeQuorum) IsLeader() bool { return q.leader }
func (q *fakeQuorum) IsPeon() bool   { return q.peon }
func (q *fakeQuorum) Epoch() uint64  { return q.epoch }

func (q *fakeQuorum) PendingTransaction() *db.Transaction {
	q.pendingCalls++
	return q.pending
}

func (q *fakeQuorum) QueuePendingFinisher(f quorum.Finisher) {
	q.finishers = append(q.finishers, f)
}

func (q *fakeQuorum) TriggerPropose() { q.proposes++ }

func (q *fakeQuorum) WaitForReadable(retry func()) {
	q.parked = append(q.parked, retry)
}

func (q *fakeQuorum) Plug()           { q.plugged = true }
func (q *fakeQuorum) Unplug()         { q.plugged = false }
func (q *fakeQuorum) IsPlugged() bool { return q.plugged }

// commit applies the pending transaction and fires its finishers
func (q *fakeQuorum) commit(t *testing.T) {
	t.Helper()
	if !q.pending.Empty() {
		if err := q.engine.Apply(q.pending); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
	}
	finishers := q.finishers
	q.pending = db.NewTransaction()
	q.finishers = nil
	for _, f := range finishers {
		f()
	}
}

// becomeReadable runs all parked retries
func (q *fakeQuorum) becomeReadable() {
	parked := q.parked
	q.parked = nil
	for _, retry := range parked {
		retry()
	}
}

var _ quorum.Quorum = (*fakeQuorum)(nil)

type replyRecord struct {
	code   RetCode
	status string
	data   []byte
}

// recordingOp is a request that records the replies it gets
type recordingOp struct {
	cmd     Command
	peer    bool
	replies []replyRecord
}

func newOp(prefix string, args map[string]string, data []byte) *recordingOp {
	return &recordingOp{cmd: ParseCommand(prefix, args, data)}
}

func (o *recordingOp) Command() Command { return o.cmd }
func (o *recordingOp) FromPeer() bool   { return o.peer }
func (o *recordingOp) Reply(code RetCode, status string, data []byte) {
	o.replies = append(o.replies, replyRecord{code: code, status: status, data: data})
}

func (o *recordingOp) onlyReply(t *testing.T) replyRecord {
	t.Helper()
	if len(o.replies) != 1 {
		t.Fatalf("Expected exactly one reply, got %d: %+v", len(o.replies), o.replies)
	}
	return o.replies[0]
}

// recordingForwarder records forwarded requests
type recordingForwarder struct {
	forwarded []Replier
}

func (f *recordingForwarder) ForwardToLeader(op Replier) {
	f.forwarded = append(f.forwarded, op)
}

func newTestStore(t *testing.T) (*Store, *fakeQuorum) {
	t.Helper()
	engine := memory.NewMemoryDB(nil)
	t.Cleanup(func() { _ = engine.Close() })
	return NewStore(engine), newFakeQuorum(engine)
}

// seed writes entries into the engine directly
func seed(t *testing.T, s *Store, entries map[string]string) {
	t.Helper()
	tx := db.NewTransaction()
	for k, v := range entries {
		s.Put(tx, k, []byte(v))
	}
	if err := s.Engine().Apply(tx); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

// mustExist reports whether key is stored and fails the test on an engine error
func mustExist(t *testing.T, s *Store, key string) bool {
	t.Helper()
	ok, err := s.Exists(key)
	if err != nil {
		t.Fatalf("Exists(%q) failed: %v", key, err)
	}
	return ok
}

func onLoop(t *testing.T, l *loop.Loop, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Call(ctx, fn); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
}

func newManualLoop(t *testing.T) (*loop.Loop, *loop.ManualClock) {
	t.Helper()
	clock := loop.NewManualClock(time.Unix(0, 0))
	l := loop.New(clock)
	l.Start()
	t.Cleanup(l.Stop)
	return l, clock
}
