package configkey

import (
	"fmt"

	"github.com/ValentinKolb/dCfg/lib/db"
	"github.com/ValentinKolb/dCfg/lib/quorum"
	vmetrics "github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
)

// DefaultMaxEntrySize is the largest value put accepts unless configured otherwise.
const DefaultMaxEntrySize = 64 * 1024

// Dispatcher routes config-key commands by the node's role in the quorum.
//
// Reads are answered from the local store on every quorum member. Writes are forwarded
// to the leader unless this node leads, in which case they are committed and answered
// once the commit is reported. Must only be used on the event loop.
type Dispatcher struct {
	quorum       quorum.Quorum
	store        *Store
	committer    *Committer
	forwarder    Forwarder
	maxEntrySize int
	registry     gometrics.Registry
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// MaxEntrySize limits the value of put (0 = DefaultMaxEntrySize).
	MaxEntrySize int
	// Forwarder relays writes received by followers. Without one such writes fail with RetCAgain.
	Forwarder Forwarder
	// Registry receives the dispatch counters (nil = a private registry).
	Registry gometrics.Registry
}

// NewDispatcher creates a dispatcher executing commands against store through q.
func NewDispatcher(q quorum.Quorum, store *Store, opts DispatcherOptions) *Dispatcher {
	if opts.MaxEntrySize <= 0 {
		opts.MaxEntrySize = DefaultMaxEntrySize
	}
	if opts.Registry == nil {
		opts.Registry = gometrics.NewRegistry()
	}
	return &Dispatcher{
		quorum:       q,
		store:        store,
		committer:    NewCommitter(q),
		forwarder:    opts.Forwarder,
		maxEntrySize: opts.MaxEntrySize,
		registry:     opts.Registry,
	}
}

// MaxEntrySize returns the configured value size limit.
func (d *Dispatcher) MaxEntrySize() int {
	return d.maxEntrySize
}

func (d *Dispatcher) count(name string) {
	gometrics.GetOrRegisterCounter("configkey."+name, d.registry).Inc(1)
	vmetrics.GetOrCreateCounter(fmt.Sprintf(`dcfg_configkey_dispatch_total{result=%q}`, name)).Inc()
}

// Dispatch executes op or arranges for it to be executed later.
func (d *Dispatcher) Dispatch(op Op) Disposition {
	cmd := op.Command()
	log.Debugf("%s dispatch %s", logPrefix(d.quorum.Epoch()), cmd)

	if !d.quorum.IsLeader() && !d.quorum.IsPeon() {
		log.Infof("%s not in quorum -- waiting", logPrefix(d.quorum.Epoch()))
		d.count("parked")
		d.quorum.WaitForReadable(func() { d.Dispatch(op) })
		return Deferred
	}

	d.count("cmd." + cmd.Kind.String())

	// writes are only executed by the leader
	if cmd.Kind.IsWrite() && d.forward(op) {
		return Deferred
	}

	switch cmd.Kind {
	case CommandGet:
		return d.get(op, cmd)
	case CommandPut:
		return d.put(op, cmd)
	case CommandDel:
		return d.del(op, cmd)
	case CommandExists:
		return d.exists(op, cmd)
	case CommandList:
		return d.list(op)
	case CommandDump:
		return d.dump(op, cmd)
	default:
		// nothing matched, answer with the default reply
		reply(op, RetCSuccess, "", nil)
		return Replied
	}
}

func (d *Dispatcher) get(op Op, cmd Command) Disposition {
	if cmd.Key == "" {
		reply(op, RetCInvalid, "error: key required", nil)
		return Replied
	}
	value, err := d.store.Get(cmd.Key)
	if err != nil {
		code := CodeOf(err)
		reason := code.String()
		if code == RetCIO {
			reason = err.Error()
		}
		reply(op, code, fmt.Sprintf("error obtaining '%s': %s", cmd.Key, reason), nil)
		return Replied
	}
	reply(op, RetCSuccess, fmt.Sprintf("obtained '%s'", cmd.Key), value)
	return Replied
}

// forward hands a write to the leader. Returns false if this node leads.
func (d *Dispatcher) forward(op Op) bool {
	if d.quorum.IsLeader() {
		return false
	}
	if d.forwarder == nil {
		reply(op, RetCAgain, "not the leader and no leader to forward to", nil)
		return true
	}
	d.count("forwarded")
	d.forwarder.ForwardToLeader(op)
	return true
}

func (d *Dispatcher) put(op Op, cmd Command) Disposition {
	if cmd.Key == "" {
		reply(op, RetCInvalid, "error: key required", nil)
		return Replied
	}
	if len(cmd.Value) > d.maxEntrySize {
		reply(op, RetCTooLarge, fmt.Sprintf(
			"error: entry size limited to %d bytes. Use 'max-entry-size' to manually adjust", d.maxEntrySize), nil)
		return Replied
	}

	status := fmt.Sprintf("set %s", cmd.Key)
	d.committer.CommitMutation(
		func(tx *db.Transaction) { d.store.Put(tx, cmd.Key, cmd.Value) },
		func() { reply(op, RetCSuccess, status, nil) },
	)
	return Deferred
}

func (d *Dispatcher) del(op Op, cmd Command) Disposition {
	if cmd.Key == "" {
		reply(op, RetCInvalid, "error: key required", nil)
		return Replied
	}
	found, err := d.store.Exists(cmd.Key)
	if err != nil {
		reply(op, CodeOf(err), fmt.Sprintf("error deleting '%s': %v", cmd.Key, err), nil)
		return Replied
	}
	if !found {
		reply(op, RetCSuccess, fmt.Sprintf("no such key '%s'", cmd.Key), nil)
		return Replied
	}

	d.committer.CommitMutation(
		func(tx *db.Transaction) { d.store.Delete(tx, cmd.Key) },
		func() { reply(op, RetCSuccess, "key deleted", nil) },
	)
	return Deferred
}

func (d *Dispatcher) exists(op Op, cmd Command) Disposition {
	if cmd.Key == "" {
		reply(op, RetCInvalid, "error: key required", nil)
		return Replied
	}
	found, err := d.store.Exists(cmd.Key)
	switch {
	case err != nil:
		reply(op, CodeOf(err), fmt.Sprintf("error checking '%s': %v", cmd.Key, err), nil)
	case found:
		reply(op, RetCSuccess, fmt.Sprintf("key '%s' exists", cmd.Key), nil)
	default:
		reply(op, RetCNotFound, fmt.Sprintf("key '%s' doesn't exist", cmd.Key), nil)
	}
	return Replied
}

func (d *Dispatcher) list(op Op) Disposition {
	keys, err := d.store.ListKeys()
	if err != nil {
		reply(op, CodeOf(err), fmt.Sprintf("error listing keys: %v", err), nil)
		return Replied
	}
	data, err := RenderKeys(keys)
	if err != nil {
		reply(op, RetCIO, fmt.Sprintf("error rendering keys: %v", err), nil)
		return Replied
	}
	reply(op, RetCSuccess, "", data)
	return Replied
}

func (d *Dispatcher) dump(op Op, cmd Command) Disposition {
	entries, err := d.store.Dump(cmd.Key)
	if err != nil {
		reply(op, CodeOf(err), fmt.Sprintf("error dumping '%s': %v", cmd.Key, err), nil)
		return Replied
	}
	data, err := RenderDump(entries)
	if err != nil {
		reply(op, RetCIO, fmt.Sprintf("error rendering dump: %v", err), nil)
		return Replied
	}
	reply(op, RetCSuccess, "", data)
	return Replied
}
