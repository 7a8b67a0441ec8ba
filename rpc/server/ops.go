package server

import (
	"github.com/ValentinKolb/dCfg/lib/configkey"
	"github.com/ValentinKolb/dCfg/lib/device"
	"github.com/ValentinKolb/dCfg/rpc/common"
)

// rpcOp carries one request from the transport to the loop and its reply back
type rpcOp struct {
	req  *common.Message
	done chan *common.Message
}

func newRPCOp(req *common.Message) rpcOp {
	return rpcOp{req: req, done: make(chan *common.Message, 1)}
}

func (o *rpcOp) FromPeer() bool {
	return o.req.Peer
}

// Reply never blocks, only the first reply is delivered
func (o *rpcOp) Reply(code configkey.RetCode, status string, data []byte) {
	o.deliver(common.NewReplyResponse(o.req.MsgType, int32(code), status, data))
}

func (o *rpcOp) deliver(resp *common.Message) {
	select {
	case o.done <- resp:
	default:
	}
}

// message returns the request as received, used to forward it
func (o *rpcOp) message() *common.Message {
	return o.req
}

// configKeyOp is a config-key request (configkey.Op)
type configKeyOp struct {
	rpcOp
	cmd configkey.Command
}

func newConfigKeyOp(req *common.Message) *configKeyOp {
	return &configKeyOp{
		rpcOp: newRPCOp(req),
		cmd:   configkey.ParseCommand(req.Prefix, map[string]string{"key": req.Key}, req.Value),
	}
}

func (o *configKeyOp) Command() configkey.Command {
	return o.cmd
}

// deviceOp is a device request (device.Op)
type deviceOp struct {
	rpcOp
	request device.Request
}

func newDeviceOp(req *common.Message) (*deviceOp, error) {
	request, err := device.ParseRequest(req.Prefix, req.UUID, int(req.ID), req.Value)
	if err != nil {
		return nil, err
	}
	return &deviceOp{rpcOp: newRPCOp(req), request: request}, nil
}

func (o *deviceOp) Request() device.Request {
	return o.request
}

var (
	_ configkey.Op = (*configKeyOp)(nil)
	_ device.Op    = (*deviceOp)(nil)
)
