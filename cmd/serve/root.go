package serve

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	cmdUtil "github.com/ValentinKolb/dCfg/cmd/util"
	"github.com/ValentinKolb/dCfg/lib/db/util"
	"github.com/ValentinKolb/dCfg/rpc/common"
	"github.com/ValentinKolb/dCfg/rpc/server"
	"github.com/ValentinKolb/dCfg/rpc/transport"
	"github.com/ValentinKolb/dCfg/rpc/transport/http"
	"github.com/ValentinKolb/dCfg/rpc/transport/tcp"
	"github.com/ValentinKolb/dCfg/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start a dCfg node",
		Long:    `Start a dCfg node with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DCFG_<flag> (e.g. DCFG_TIMEOUT=15)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "mode"
	ServeCmd.PersistentFlags().String(key, "local", cmdUtil.WrapString("Mode of the node: 'local' runs a quorum of one, 'raft' replicates every commit through a dragonboat shard"))

	key = "engine"
	ServeCmd.PersistentFlags().String(key, "memory", cmdUtil.WrapString("Storage engine of the config-key entries (memory, bolt, badger)"))

	key = "shard"
	ServeCmd.PersistentFlags().Uint64(key, 100, cmdUtil.WrapString("ID of the shard the config-key service is served on"))

	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(raft mode) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances. \nOther raft configuration parameters (ElectionRTT=value/10, HeartbeatRTT=value/100) are derived from this value"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(raft mode) SnapshotEntries defines how often the state machine should be snapshotted automatically. It is defined in terms of the number of applied Raft log entries. SnapshotEntries can be set to 0 to disable such automatic snapshotting (not recommended)"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Int(key, 50, cmdUtil.WrapString("(raft mode) CompactionOverhead defines the number of log entries to keep after a snapshot"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("DataDir is the directory used for the raft log, the snapshots and the bolt or badger files"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(raft mode) ReplicaID is the unique name of this node (e.g. 'node-1')"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(raft mode) ClusterMembers is a comma-separated list of raft addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "api-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(raft mode) APIMembers is a comma-separated list of API endpoints in the format 'node-1=localhost:8080,node-2=localhost:8081,...'. Followers forward writes to the endpoint of the leader"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds of proposals and forwarded requests"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080, /tmp/dcfg.sock, ...)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Optional address of a separate http listener serving /metrics (the http transport always serves /metrics)"))

	key = "max-entry-size"
	ServeCmd.PersistentFlags().Int(key, 64*1024, cmdUtil.WrapString("Maximum size of a config-key value in bytes, larger puts are rejected with EFBIG (0 disables the limit)"))

	key = "tick-interval"
	ServeCmd.PersistentFlags().Int(key, 5, cmdUtil.WrapString("Interval in seconds of the periodic service tick (negative disables it)"))

	key = "max-forward-hops"
	ServeCmd.PersistentFlags().Int(key, 2, cmdUtil.WrapString("(raft mode) How often a request may be forwarded before it fails with EAGAIN"))

	key = "workers"
	ServeCmd.PersistentFlags().Int(key, 64, cmdUtil.WrapString("Concurrent requests per connection (tcp, unix)"))

	key = "buffer"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Size of the pooled read buffers in KB (tcp, unix, 0 uses the transport default)"))

	key = "tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY on accepted connections (tcp)"))

	key = "tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Keepalive interval in seconds of accepted connections (tcp, 0 disables it)"))

	key = "tcp-linger"
	ServeCmd.PersistentFlags().Int(key, -1, cmdUtil.WrapString("Linger time in seconds of accepted connections (tcp, negative keeps the OS default)"))

	key = "socket-buffer"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Read and write socket buffer size in KB of accepted connections (tcp, unix, 0 keeps the OS default)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.Mode = common.ServerMode(viper.GetString("mode"))
	serveCmdConfig.Engine = viper.GetString("engine")
	serveCmdConfig.ShardID = viper.GetUint64("shard")
	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.MaxEntrySize = viper.GetInt("max-entry-size")
	serveCmdConfig.TickSecond = viper.GetInt("tick-interval")
	serveCmdConfig.MaxForwardHops = viper.GetInt("max-forward-hops")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	serveCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint:       viper.GetString("endpoint"),
		WorkersPerConn: viper.GetInt("workers"),
		BufferSize:     viper.GetInt("buffer") * 1024,
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("socket-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("socket-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("tcp-linger"),
		},
	}

	if id := viper.GetString("replica-id"); id != "" {
		serveCmdConfig.ReplicaID = replicaID(id)
	}

	var err error
	if serveCmdConfig.ClusterMembers, err = parseMembers(viper.GetString("cluster-members")); err != nil {
		return fmt.Errorf("invalid cluster members: %w", err)
	}
	if serveCmdConfig.APIMembers, err = parseMembers(viper.GetString("api-members")); err != nil {
		return fmt.Errorf("invalid api members: %w", err)
	}

	// the remaining checks (replica id in cluster members, ...) are done by the server
	return serveCmdConfig.Validate()
}

// replicaID maps a node name onto the numeric dragonboat replica id
func replicaID(name string) uint64 {
	return uint64(util.HashString(strings.TrimSpace(name), 0))
}

// parseMembers parses a list in the format 'name=address,name=address'
func parseMembers(list string) (map[uint64]string, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}

	members := make(map[uint64]string)
	for _, member := range strings.Split(list, ",") {
		name, address, ok := strings.Cut(member, "=")
		if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(address) == "" {
			return nil, fmt.Errorf("invalid member format: %s (expected ID=address)", member)
		}
		id := replicaID(name)
		if _, exists := members[id]; exists {
			return nil, fmt.Errorf("duplicate member %s", name)
		}
		members[id] = strings.TrimSpace(address)
	}
	return members, nil
}

// newServerTransport creates the server transport selected by the transport flag
func newServerTransport(name string, config *common.ServerConfig) (transport.IRPCServerTransport, error) {
	switch name {
	case "http":
		return http.NewHttpServerTransport(), nil
	case "tcp":
		return tcp.NewTCPServerTransport(config.Transport.BufferSize, config.Transport.WorkersPerConn), nil
	case "unix":
		return unix.NewUnixServerTransport(config.Transport.BufferSize, config.Transport.WorkersPerConn), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", name)
	}
}

// run starts the node and blocks until it is stopped by SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	t, err := newServerTransport(viper.GetString("transport"), serveCmdConfig)
	if err != nil {
		return err
	}

	clientTransport, err := cmdUtil.GetTransportFactory()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(*serveCmdConfig, t, clientTransport, s)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- serv.Serve()
	}()

	select {
	case err := <-errCh:
		serv.Shutdown()
		return err
	case sig := <-sigCh:
		server.Logger.Infof("Received %s, shutting down", sig)
		serv.Shutdown()
		return <-errCh
	}
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(cmdUtil.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
