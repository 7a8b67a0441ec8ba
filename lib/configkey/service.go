package configkey

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/dCfg/lib/db"
	"github.com/ValentinKolb/dCfg/lib/db/util"
	"github.com/ValentinKolb/dCfg/lib/loop"
	"github.com/ValentinKolb/dCfg/lib/quorum"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

var log = logger.GetLogger("configkey")

func logPrefix(epoch uint64) string {
	return fmt.Sprintf("cfgkey(%d)", epoch)
}

// DefaultTickPeriod is the interval of the maintenance tick unless configured otherwise.
const DefaultTickPeriod = 5 * time.Second

// Config configures a Service.
type Config struct {
	// MaxEntrySize limits the value of put (0 = DefaultMaxEntrySize).
	MaxEntrySize int
	// TickPeriod is the interval of the maintenance tick. Negative disables it, 0 = DefaultTickPeriod.
	TickPeriod time.Duration
	// Forwarder relays writes received while not leading.
	Forwarder Forwarder
	// Registry receives dispatch counters and is reported on every tick (nil = private).
	Registry gometrics.Registry
}

// statsSource is implemented by quorums built on quorum.Pipeline
type statsSource interface {
	Stats() *quorum.Stats
}

// Service is the config-key service of one node. It owns the store, the dispatcher,
// the lifecycle hooks and the maintenance tick, and lives on the node's event loop.
type Service struct {
	loop     *loop.Loop
	quorum   quorum.Quorum
	store    *Store
	disp     *Dispatcher
	hooks    *Hooks
	tick     *TickScheduler
	registry gometrics.Registry

	epoch    uint64
	shutdown bool
}

// NewService creates the service on top of engine and q. Nothing runs until Start.
func NewService(l *loop.Loop, q quorum.Quorum, engine db.KVDB, cfg Config) *Service {
	if cfg.Registry == nil {
		cfg.Registry = gometrics.NewRegistry()
	}
	if cfg.TickPeriod == 0 {
		cfg.TickPeriod = DefaultTickPeriod
	}

	store := NewStore(engine)
	s := &Service{
		loop:   l,
		quorum: q,
		store:  store,
		disp: NewDispatcher(q, store, DispatcherOptions{
			MaxEntrySize: cfg.MaxEntrySize,
			Forwarder:    cfg.Forwarder,
			Registry:     cfg.Registry,
		}),
		hooks:    NewHooks(q, store),
		registry: cfg.Registry,
	}
	s.tick = NewTickScheduler(l, cfg.TickPeriod, s.serviceTick)
	return s
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Start begins a new epoch and (re)starts the tick.
func (s *Service) Start(epoch uint64) {
	if s.shutdown {
		return
	}
	s.epoch = epoch
	log.Infof("%s start", logPrefix(epoch))
	s.tick.Start()
}

// Finish ends the current epoch.
func (s *Service) Finish() {
	log.Debugf("%s finish", logPrefix(s.epoch))
	s.tick.Stop()
}

// Shutdown stops the tick for good. Later Start calls are ignored.
func (s *Service) Shutdown() {
	log.Infof("%s config-key service shutdown", logPrefix(s.epoch))
	s.shutdown = true
	s.tick.Stop()
}

// Epoch returns the epoch passed to the last Start.
func (s *Service) Epoch() uint64 {
	return s.epoch
}

// InQuorum reports whether this node leads or follows a converged quorum.
func (s *Service) InQuorum() bool {
	return s.quorum.IsLeader() || s.quorum.IsPeon()
}

// Dispatch executes a config-key command, see Dispatcher.
func (s *Service) Dispatch(op Op) Disposition {
	return s.disp.Dispatch(op)
}

// StorePrefixes returns the engine namespaces owned by the service.
func (s *Service) StorePrefixes() []string {
	return []string{Namespace}
}

// SetUpdatePeriod changes the tick period. It takes effect with the next tick.
func (s *Service) SetUpdatePeriod(d time.Duration) {
	s.tick.SetPeriod(d)
}

// Store returns the service's store.
func (s *Service) Store() *Store { return s.store }

// Hooks returns the device lifecycle hooks.
func (s *Service) Hooks() *Hooks { return s.hooks }

// Quorum returns the quorum the service commits through.
func (s *Service) Quorum() quorum.Quorum { return s.quorum }

// Registry returns the metrics registry reported on every tick.
func (s *Service) Registry() gometrics.Registry { return s.registry }

// Ticking reports whether a tick is scheduled.
func (s *Service) Ticking() bool { return s.tick.Pending() }

// --------------------------------------------------------------------------
// Tick
// --------------------------------------------------------------------------

// serviceTick logs a one line health report
func (s *Service) serviceTick() {
	stats, err := s.EntryStats()
	if err != nil {
		log.Warningf("%s tick: %v", logPrefix(s.epoch), err)
		return
	}

	role := "electing"
	switch {
	case s.quorum.IsLeader():
		role = "leader"
	case s.quorum.IsPeon():
		role = "peon"
	}

	report := fmt.Sprintf("%s tick: role=%s entries=%d bytes=%d max_value=%d p99_value=%d",
		logPrefix(s.epoch), role, stats.Entries, stats.SizeBytes(), stats.MaxValueBytes, stats.P99ValueEst)

	if src, ok := s.quorum.(statsSource); ok {
		qs := src.Stats().Snapshot()
		report += fmt.Sprintf(" proposals=%d commits=%d aborts=%d commit_mean=%s commit_p99=%s",
			qs.Proposals, qs.Commits, qs.Aborts, qs.CommitMean, qs.CommitP99)
	}

	dispatched := int64(0)
	s.registry.Each(func(name string, m interface{}) {
		if c, ok := m.(gometrics.Counter); ok && strings.HasPrefix(name, "configkey.cmd.") {
			dispatched += c.Count()
		}
	})
	report += fmt.Sprintf(" dispatched=%d", dispatched)

	log.Infof("%s", report)
}

// EntryStats summarizes the config-key namespace. Must be called on the loop.
func (s *Service) EntryStats() (util.EntryStats, error) {
	c, err := s.store.Engine().NewCursor(Namespace)
	if err != nil {
		return util.EntryStats{}, err
	}
	defer c.Close()

	collector := util.NewStatsCollector()
	for ; c.Valid(); c.Next() {
		collector.Add(Namespace, len(c.Key()), len(c.Value()))
	}
	return collector.Result(), c.Err()
}
