package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ValentinKolb/dCfg/lib/configkey"
	"github.com/ValentinKolb/dCfg/rpc/common"
	"github.com/ValentinKolb/dCfg/rpc/serializer"
	"github.com/ValentinKolb/dCfg/rpc/transport"
	vmetrics "github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

// defaultReplyTimeout bounds the wait for a reply when the config has no timeout
const defaultReplyTimeout = 30 * time.Second

// NewRPCServer creates a new RPC server
// It takes a config, the server transport, a factory for client transports (used to
// forward requests to the leader) and a serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(0, 0),
//		tcp.NewTCPClientTransport,
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	clientTransport func() transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return &RPCServer{
		config:          config,
		transport:       transport,
		clientTransport: clientTransport,
		serializer:      serializer,
	}
}

// RPCServer exposes the config-key service of one node over a transport
type RPCServer struct {
	config          common.ServerConfig
	transport       transport.IRPCServerTransport
	clientTransport func() transport.IRPCClientTransport
	serializer      serializer.IRPCSerializer

	node      *node
	forwarder *leaderForwarder
	metrics   *http.Server
}

func (s *RPCServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(shardId uint64, req []byte) []byte {
		var msg common.Message
		var respMsg *common.Message

		if shardId != s.config.ShardID {
			respMsg = common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId))
		} else if err := s.serializer.Deserialize(req, &msg); err != nil {
			respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
		} else {
			respMsg = s.handle(&msg)
		}

		val, err := s.serializer.Serialize(*respMsg)
		if err != nil {
			Logger.Errorf("Failed to serialize response: %v", err)
			val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
		}
		return val
	})
}

// handle routes one request onto the loop and waits for its reply
func (s *RPCServer) handle(req *common.Message) *common.Message {
	vmetrics.GetOrCreateCounter(fmt.Sprintf(`dcfg_rpc_messages_total{type=%q}`, req.MsgType)).Inc()

	switch req.MsgType {
	case common.MsgTConfigKey:
		op := newConfigKeyOp(req)
		return s.await(&op.rpcOp, func() { s.node.service.Dispatch(op) })

	case common.MsgTDevice:
		op, err := newDeviceOp(req)
		if err != nil {
			return common.NewReplyResponse(common.MsgTDevice, int32(configkey.RetCInvalid), err.Error(), nil)
		}
		return s.await(&op.rpcOp, func() { s.node.devices.Handle(op) })

	case common.MsgTStatus:
		var status common.NodeStatus
		ctx, cancel := context.WithTimeout(context.Background(), s.replyTimeout())
		defer cancel()
		if err := s.node.loop.Call(ctx, func() { status = s.node.status() }); err != nil {
			return common.NewStatusResponse("unavailable", nil, err)
		}
		info, err := json.Marshal(status)
		return common.NewStatusResponse(status.Role, info, err)

	default:
		return common.NewErrorResponse(fmt.Sprintf("unsupported message type: %s", req.MsgType))
	}
}

// await posts fn to the loop and waits for the reply of op. Requests of peers are
// acknowledged as soon as they are queued.
func (s *RPCServer) await(op *rpcOp, fn func()) *common.Message {
	if !s.node.loop.Post(fn) {
		return common.NewErrorResponse("node is shutting down")
	}
	if op.FromPeer() {
		return &common.Message{MsgType: common.MsgTSuccess}
	}

	select {
	case resp := <-op.done:
		return resp
	case <-time.After(s.replyTimeout()):
		return common.NewReplyResponse(op.req.MsgType, int32(configkey.RetCAgain), "timed out waiting for the reply", nil)
	}
}

func (s *RPCServer) replyTimeout() time.Duration {
	if t := s.config.Timeout(); t > 0 {
		return t
	}
	return defaultReplyTimeout
}

func (s *RPCServer) init() error {
	if err := common.InitLoggers(s.config); err != nil {
		return err
	}
	if err := s.config.Validate(); err != nil {
		return err
	}

	if s.config.IsReplicated() && s.clientTransport != nil {
		s.forwarder = newLeaderForwarder(s.config, s.clientTransport, s.serializer)
	}

	n, err := newNode(s.config, s.forwarder)
	if err != nil {
		return err
	}
	s.node = n
	if err := n.start(); err != nil {
		n.stop()
		return err
	}

	if s.config.MetricsEndpoint != "" {
		s.serveMetrics()
	}

	Logger.Infof("dCfg setup completed successfully")

	s.registerTransportHandler()
	return nil
}

// serveMetrics exposes /metrics on the metrics endpoint
func (s *RPCServer) serveMetrics() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		vmetrics.WritePrometheus(w, true)
	})
	s.metrics = &http.Server{
		Addr:              s.config.MetricsEndpoint,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		Logger.Infof("Serving metrics on %s", s.config.MetricsEndpoint)
		if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("Metrics endpoint failed: %v", err)
		}
	}()
}

// Serve starts the RPC server
// This function will also initialize the node and start the transport layer. It blocks
// until Shutdown is called or the transport fails.
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Shutdown stops the transport, the service and the replica
func (s *RPCServer) Shutdown() {
	if err := s.transport.Close(); err != nil {
		Logger.Warningf("Failed to close transport: %v", err)
	}
	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.metrics.Shutdown(ctx)
		cancel()
	}
	if s.forwarder != nil {
		s.forwarder.close()
	}
	if s.node != nil {
		s.node.stop()
	}
	Logger.Infof("dCfg stopped")
}
