package client

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dCfg/lib/configkey"
	"github.com/ValentinKolb/dCfg/rpc/common"
	"github.com/ValentinKolb/dCfg/rpc/serializer"
	"github.com/ValentinKolb/dCfg/rpc/transport"
)

// Reply is the answer of the service to a config-key or device request
type Reply struct {
	Code   configkey.RetCode
	Status string
	Data   []byte
}

// OK reports whether the request succeeded (codes >= 0)
func (r Reply) OK() bool {
	return r.Code.OK()
}

// Err returns nil for a successful reply and a *configkey.Error otherwise
func (r Reply) Err() error {
	if r.OK() {
		return nil
	}
	return configkey.NewError(r.Code, r.Status)
}

// IConfigKeyClient is the client side of the config-key service.
//
// Transport failures are returned as error, failures of the service itself are part of the Reply.
type IConfigKeyClient interface {
	// Command sends a raw config-key command (get, put, del, exists, list, dump)
	Command(prefix, key string, value []byte) (Reply, error)

	Get(key string) (Reply, error)
	Put(key string, value []byte) (Reply, error)
	Delete(key string) (Reply, error)
	Exists(key string) (Reply, error)
	// List returns the json array of all keys
	List() (Reply, error)
	// Dump returns the json object of all entries whose key starts with prefix
	Dump(prefix string) (Reply, error)

	// CreateDevice binds the secret to the device
	CreateDevice(device string, id int64, secret []byte) (Reply, error)
	// DestroyDevice removes everything bound to the device and its id
	DestroyDevice(device string, id int64) (Reply, error)

	// Status returns role, epoch and engine information of the node the request reached
	Status() (*common.NodeStatus, error)

	// Forward sends a prepared message unchanged, used to relay requests between nodes
	Forward(msg *common.Message) (*common.Message, error)

	// Close closes the underlying transport
	Close() error
}

// NewRPCConfigKeyClient creates a new config-key client
// The function takes a shard ID, a config, a transport and a serializer as parameters
func NewRPCConfigKeyClient(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (IConfigKeyClient, error) {

	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &rpcConfigKeyClient{
		shardId:    shardId,
		config:     config,
		transport:  transport,
		serializer: serializer,
	}, nil
}

type rpcConfigKeyClient struct {
	shardId    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see IConfigKeyClient)
// --------------------------------------------------------------------------

func (c *rpcConfigKeyClient) Command(prefix, key string, value []byte) (Reply, error) {
	return c.invoke(common.NewConfigKeyRequest(prefix, key, value))
}

func (c *rpcConfigKeyClient) Get(key string) (Reply, error) {
	return c.Command("get", key, nil)
}

func (c *rpcConfigKeyClient) Put(key string, value []byte) (Reply, error) {
	return c.Command("put", key, value)
}

func (c *rpcConfigKeyClient) Delete(key string) (Reply, error) {
	return c.Command("del", key, nil)
}

func (c *rpcConfigKeyClient) Exists(key string) (Reply, error) {
	return c.Command("exists", key, nil)
}

func (c *rpcConfigKeyClient) List() (Reply, error) {
	return c.Command("list", "", nil)
}

func (c *rpcConfigKeyClient) Dump(prefix string) (Reply, error) {
	return c.Command("dump", prefix, nil)
}

func (c *rpcConfigKeyClient) CreateDevice(device string, id int64, secret []byte) (Reply, error) {
	return c.invoke(common.NewDeviceRequest("create", device, id, secret))
}

func (c *rpcConfigKeyClient) DestroyDevice(device string, id int64) (Reply, error) {
	return c.invoke(common.NewDeviceRequest("destroy", device, id, nil))
}

func (c *rpcConfigKeyClient) Status() (*common.NodeStatus, error) {
	resp, err := invokeRPCRequest(c.shardId, common.NewStatusRequest(), c.transport, c.serializer)
	if err != nil {
		return nil, err
	}
	status := &common.NodeStatus{}
	if err := json.Unmarshal(resp.Meta, status); err != nil {
		return nil, fmt.Errorf("rpc client: invalid status payload: %w", err)
	}
	return status, nil
}

func (c *rpcConfigKeyClient) Forward(msg *common.Message) (*common.Message, error) {
	return invokeRPCRequest(c.shardId, msg, c.transport, c.serializer)
}

func (c *rpcConfigKeyClient) Close() error {
	return c.transport.Close()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (c *rpcConfigKeyClient) invoke(req *common.Message) (Reply, error) {
	resp, err := invokeRPCRequest(c.shardId, req, c.transport, c.serializer)
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Code:   configkey.RetCode(resp.Code),
		Status: resp.Status,
		Data:   resp.Value,
	}, nil
}
