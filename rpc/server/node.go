package server

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ValentinKolb/dCfg/lib/configkey"
	"github.com/ValentinKolb/dCfg/lib/db"
	"github.com/ValentinKolb/dCfg/lib/db/engines/badger"
	"github.com/ValentinKolb/dCfg/lib/db/engines/bolt"
	"github.com/ValentinKolb/dCfg/lib/db/engines/memory"
	"github.com/ValentinKolb/dCfg/lib/device"
	"github.com/ValentinKolb/dCfg/lib/loop"
	"github.com/ValentinKolb/dCfg/lib/quorum"
	"github.com/ValentinKolb/dCfg/lib/quorum/dquorum"
	"github.com/ValentinKolb/dCfg/lib/quorum/lquorum"
	"github.com/ValentinKolb/dCfg/rpc/common"
	"github.com/lni/dragonboat/v4"
	gometrics "github.com/rcrowley/go-metrics"
)

// replicatedQuorum is the part of dquorum.Quorum the node needs besides quorum.Quorum
type replicatedQuorum interface {
	quorum.Quorum
	LeaderID() (uint64, bool)
	Role() quorum.Role
}

// node bundles everything that runs on one event loop: the engine, the quorum, the
// config-key service and the device workflow.
type node struct {
	config   common.ServerConfig
	loop     *loop.Loop
	engine   db.KVDB
	quorum   quorum.Quorum
	local    *lquorum.Quorum  // set in local mode
	raft     *dquorum.Quorum  // set in raft mode
	nodeHost *dragonboat.NodeHost
	service  *configkey.Service
	devices  *device.Workflow
	registry gometrics.Registry
}

// openEngine opens the storage engine selected by the config
func openEngine(config common.ServerConfig) (db.KVDB, error) {
	switch config.Engine {
	case "memory":
		return memory.NewMemoryDB(nil), nil
	case "bolt":
		if err := os.MkdirAll(config.DataDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return bolt.NewBoltDB(&bolt.DBOptions{
			Path: filepath.Join(config.DataDir, fmt.Sprintf("configkey-%d.bolt", config.ShardID)),
		})
	case "badger":
		return badger.NewBadgerDB(&badger.DBOptions{
			Dir:        filepath.Join(config.DataDir, fmt.Sprintf("configkey-%d", config.ShardID)),
			SyncWrites: true,
		})
	default:
		return nil, fmt.Errorf("unknown engine %q", config.Engine)
	}
}

// newNode opens the engine and wires quorum, service and workflow. Nothing runs before start.
func newNode(config common.ServerConfig, fwd *leaderForwarder) (*node, error) {
	engine, err := openEngine(config)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s engine: %w", config.Engine, err)
	}

	n := &node{
		config:   config,
		loop:     loop.New(loop.SystemClock{}),
		engine:   engine,
		registry: gometrics.NewRegistry(),
	}
	stats := quorum.NewStats(n.registry)

	if config.IsReplicated() {
		n.raft = dquorum.New(n.loop, dquorum.Options{
			ShardID:   config.ShardID,
			ReplicaID: config.ReplicaID,
			Timeout:   config.Timeout(),
			Engine:    func() (db.KVDB, error) { return engine, nil },
			Stats:     stats,
		})
		n.quorum = n.raft
	} else {
		n.local = lquorum.New(n.loop, engine, stats)
		n.quorum = n.local
	}

	var forwarder configkey.Forwarder
	if fwd != nil && config.IsReplicated() {
		fwd.leader = n.raft.LeaderID
		forwarder = fwd
	}

	n.service = configkey.NewService(n.loop, n.quorum, engine, configkey.Config{
		MaxEntrySize: config.MaxEntrySize,
		TickPeriod:   config.TickPeriod(),
		Forwarder:    forwarder,
		Registry:     n.registry,
	})
	n.devices = device.NewWorkflow(n.quorum, n.service.Hooks(), forwarder)
	return n, nil
}

// start runs the loop and joins the quorum
func (n *node) start() error {
	n.loop.Start()

	if !n.config.IsReplicated() {
		n.loop.Post(func() {
			n.service.Start(n.local.Elect())
		})
		return nil
	}

	n.loop.Post(func() {
		n.raft.OnElection(func(role quorum.Role, epoch uint64) {
			if role == quorum.RoleNone {
				n.service.Finish()
				return
			}
			n.service.Start(epoch)
		})
	})

	nhConfig := n.config.ToNodeHostConfig()
	nhConfig.RaftEventListener = n.raft
	nh, err := dragonboat.NewNodeHost(nhConfig)
	if err != nil {
		return fmt.Errorf("failed to create node host: %w", err)
	}
	n.nodeHost = nh

	return n.raft.Start(nh, n.config.ClusterMembers, n.config.ToDragonboatConfig())
}

// stop shuts the service down and releases the replica and the engine
func (n *node) stop() {
	_ = n.loop.Post(n.service.Shutdown)
	n.loop.Stop()
	if n.nodeHost != nil {
		// closes the state machine, which closes the engine
		n.nodeHost.Close()
		return
	}
	if err := n.engine.Close(); err != nil {
		Logger.Warningf("Failed to close engine: %v", err)
	}
}

// status collects the node status, must be called on the loop
func (n *node) status() common.NodeStatus {
	s := common.NodeStatus{
		ReplicaID: n.config.ReplicaID,
		Mode:      n.config.Mode,
		Epoch:     n.quorum.Epoch(),
		InQuorum:  n.service.InQuorum(),
		Ticking:   n.service.Ticking(),
		Engine:    n.engine.GetInfo(),
	}
	if rq, ok := n.quorum.(replicatedQuorum); ok {
		s.Role = rq.Role().String()
		if id, known := rq.LeaderID(); known {
			s.LeaderID = id
		}
	} else {
		s.Role = quorum.RoleLeader.String()
		s.LeaderID = n.config.ReplicaID
	}
	if stats, err := n.service.EntryStats(); err == nil {
		s.Entries = uint64(stats.Entries)
	}
	return s
}
