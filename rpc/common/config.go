package common

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for the server util)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig() config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            c.ShardID,
		ElectionRTT:        electionRTTFactor,  // = c.RTTMillisecond * 10
		HeartbeatRTT:       heartbeatRTTFactor, // = c.RTTMillisecond * 1
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Socket configuration (shared by client and server)
// --------------------------------------------------------------------------

// SocketConf holds the buffer sizes of stream sockets
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds the TCP specific socket options
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerMode selects how the config-key quorum is formed
type ServerMode string

const (
	// ModeLocal runs a quorum of one, commits are applied to the local engine directly
	ModeLocal ServerMode = "local"
	// ModeRaft replicates commits through a dragonboat shard
	ModeRaft ServerMode = "raft"
)

// ServerTransportConfig configures the server side of the transport
type ServerTransportConfig struct {
	// Endpoint is the address the API listens on
	Endpoint string
	// WorkersPerConn limits concurrent requests per connection (tcp, unix)
	WorkersPerConn int
	// BufferSize is the size of the pooled read buffers (tcp, unix)
	BufferSize int
	SocketConf
	TCPConf
}

// ServerConfig holds all configuration parameters of a node.
type ServerConfig struct {
	// Mode selects a local or a replicated quorum
	Mode ServerMode
	// ShardID is the dragonboat shard (and transport shard) of the config-key service
	ShardID uint64
	// Engine is the storage engine (memory, bolt, badger)
	Engine string

	// Dragenboat parameters
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string

	// APIMembers maps replica ids to their API endpoints, used to forward writes to the leader
	APIMembers map[uint64]string

	// timeout of proposals and forwarded requests
	TimeoutSecond int64

	// config-key service parameters
	MaxEntrySize   int
	TickSecond     int
	MaxForwardHops int

	// Transport settings
	Transport ServerTransportConfig

	// MetricsEndpoint serves /metrics over http, empty disables it (the http transport
	// always serves /metrics on its own endpoint)
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// IsReplicated reports whether the node runs a dragonboat replica
func (c *ServerConfig) IsReplicated() bool {
	return c.Mode == ModeRaft
}

// Timeout returns TimeoutSecond as a duration
func (c *ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// TickPeriod returns the service tick interval (negative disables the tick)
func (c *ServerConfig) TickPeriod() time.Duration {
	if c.TickSecond < 0 {
		return -1
	}
	return time.Duration(c.TickSecond) * time.Second
}

// Validate checks the parts of the configuration that depend on each other
func (c *ServerConfig) Validate() error {
	switch c.Mode {
	case ModeLocal:
	case ModeRaft:
		if c.ReplicaID == 0 {
			return fmt.Errorf("replica id is required in raft mode")
		}
		if len(c.ClusterMembers) == 0 {
			return fmt.Errorf("cluster members are required in raft mode")
		}
		if _, ok := c.ClusterMembers[c.ReplicaID]; !ok {
			return fmt.Errorf("no address found for replica ID %d in cluster members", c.ReplicaID)
		}
	default:
		return fmt.Errorf("invalid mode '%s' (expected local or raft)", c.Mode)
	}

	switch c.Engine {
	case "memory", "bolt", "badger":
	default:
		return fmt.Errorf("invalid engine '%s' (expected memory, bolt or badger)", c.Engine)
	}
	if c.Engine != "memory" && c.DataDir == "" {
		return fmt.Errorf("engine %s needs a data directory", c.Engine)
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Metrics Endpoint", c.MetricsEndpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Service
	addSection("Config-Key Service")
	addField("Mode", string(c.Mode))
	addField("Shard", strconv.FormatUint(c.ShardID, 10))
	addField("Engine", c.Engine)
	addField("Max Entry Size", fmt.Sprintf("%d bytes", c.MaxEntrySize))
	addField("Tick Interval", fmt.Sprintf("%d sec", c.TickSecond))
	addField("Max Forward Hops", strconv.Itoa(c.MaxForwardHops))

	// Storage
	addSection("Storage")
	addField("Data Directory", c.DataDir)

	if c.IsReplicated() {
		// Node Identity
		addSection("Node Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))

		// RAFT parameters
		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Check Quorum", fmt.Sprintf("%t", true))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))

		// Cluster members, sorted for consistent output
		addSection("Cluster")
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			api := c.APIMembers[k]
			if api == "" {
				api = "-"
			}
			sb.WriteString(fmt.Sprintf("    Node %d: %s (api %s)\n", k, c.ClusterMembers[k], api))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig configures the client side of the transport
type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
	SocketConf
	TCPConf
}

// ClientConfig configures an RPC client
type ClientConfig struct {
	TimeoutSecond int
	Transport     ClientTransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.Transport.ConnectionsPerEndpoint)))))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
