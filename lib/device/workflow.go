package device

import (
	"fmt"

	"github.com/ValentinKolb/dCfg/lib/configkey"
	"github.com/ValentinKolb/dCfg/lib/quorum"
	vmetrics "github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("device")

// Workflow creates and destroys devices on the leader, binding and purging their secrets
// through the config-key lifecycle hooks. Must only be used on the event loop.
type Workflow struct {
	quorum    quorum.Quorum
	hooks     *configkey.Hooks
	forwarder configkey.Forwarder
}

// NewWorkflow creates the device workflow. fwd may be nil, followers then answer with
// RetCAgain.
func NewWorkflow(q quorum.Quorum, hooks *configkey.Hooks, fwd configkey.Forwarder) *Workflow {
	return &Workflow{
		quorum:    q,
		hooks:     hooks,
		forwarder: fwd,
	}
}

func reply(op configkey.Replier, code configkey.RetCode, status string) {
	if op.FromPeer() {
		return
	}
	op.Reply(code, status, nil)
}

func count(kind Kind, result string) {
	vmetrics.GetOrCreateCounter(fmt.Sprintf(`dcfg_device_requests_total{op=%q,result=%q}`, kind, result)).Inc()
}

// Handle runs op according to its kind.
func (w *Workflow) Handle(op Op) configkey.Disposition {
	switch op.Request().Kind {
	case KindCreate:
		return w.Create(op)
	case KindDestroy:
		return w.Destroy(op)
	default:
		reply(op, configkey.RetCInvalid, "error: unknown device operation")
		return configkey.Replied
	}
}

// route parks op out of quorum and forwards it on followers. It returns false if op
// has to run here.
func (w *Workflow) route(op Op, retry func(Op) configkey.Disposition) (configkey.Disposition, bool) {
	if !w.quorum.IsLeader() && !w.quorum.IsPeon() {
		log.Infof("not in quorum, parking %s", op.Request())
		w.quorum.WaitForReadable(func() { retry(op) })
		return configkey.Deferred, true
	}
	if w.quorum.IsLeader() {
		return configkey.Replied, false
	}
	if w.forwarder == nil {
		reply(op, configkey.RetCAgain, "not the leader and no leader to forward to")
		return configkey.Replied, true
	}
	w.forwarder.ForwardToLeader(op)
	return configkey.Deferred, true
}

// Create binds the request's secret to the device. Binding the same secret again is a
// successful no-op answered with RetCExistsMatch, a different secret fails with RetCExists.
// The reply is sent once the binding is committed.
func (w *Workflow) Create(op Op) configkey.Disposition {
	if d, routed := w.route(op, w.Create); routed {
		return d
	}

	req := op.Request()
	if len(req.Secret) == 0 {
		count(KindCreate, "invalid")
		reply(op, configkey.RetCInvalid, "error: dm-crypt secret required")
		return configkey.Replied
	}

	v, err := w.hooks.ValidateCreate(req.UUID, req.Secret)
	if err != nil {
		count(KindCreate, "error")
		reply(op, configkey.CodeOf(err), fmt.Sprintf("error validating dm-crypt key of %s: %v", req.UUID, err))
		return configkey.Replied
	}
	switch v {
	case configkey.ValidationAlreadyBound:
		count(KindCreate, "exists")
		reply(op, v.Code(), fmt.Sprintf("dm-crypt key for device %s already exists", req.UUID))
		return configkey.Replied
	case configkey.ValidationConflict:
		count(KindCreate, "conflict")
		reply(op, v.Code(), fmt.Sprintf("dm-crypt key for device %s already exists with a different secret", req.UUID))
		return configkey.Replied
	}

	w.quorum.Plug()
	if err := w.hooks.ApplyCreate(req.UUID, req.Secret); err != nil {
		w.quorum.Unplug()
		count(KindCreate, "error")
		reply(op, configkey.CodeOf(err), fmt.Sprintf("error binding dm-crypt key of %s: %v", req.UUID, err))
		return configkey.Replied
	}
	w.quorum.QueuePendingFinisher(func() {
		count(KindCreate, "created")
		reply(op, configkey.RetCSuccess, fmt.Sprintf("created device %s", req.UUID))
	})
	w.quorum.Unplug()

	log.Infof("creating %s", req)
	return configkey.Deferred
}

// Destroy removes everything bound to the device. Destroying a device with nothing bound
// fails with RetCNotFound. The reply is sent once the removal is committed.
func (w *Workflow) Destroy(op Op) configkey.Disposition {
	if d, routed := w.route(op, w.Destroy); routed {
		return d
	}

	req := op.Request()
	if !w.hooks.ValidateDestroy(req.UUID, req.ID) {
		count(KindDestroy, "not_found")
		reply(op, configkey.RetCNotFound, fmt.Sprintf("nothing bound to device %s (id %d)", req.UUID, req.ID))
		return configkey.Replied
	}

	w.quorum.Plug()
	if err := w.hooks.ApplyDestroy(req.UUID, req.ID); err != nil {
		w.quorum.Unplug()
		count(KindDestroy, "error")
		reply(op, configkey.CodeOf(err), fmt.Sprintf("error destroying device %s: %v", req.UUID, err))
		return configkey.Replied
	}
	w.quorum.QueuePendingFinisher(func() {
		count(KindDestroy, "destroyed")
		reply(op, configkey.RetCSuccess, fmt.Sprintf("destroyed device %s", req.UUID))
	})
	w.quorum.Unplug()

	log.Infof("destroying %s", req)
	return configkey.Deferred
}
