package client

import (
	"github.com/ValentinKolb/dTab/rpc/common"
	"github.com/ValentinKolb/dTab/rpc/serializer"
	"github.com/ValentinKolb/dTab/rpc/transport"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// ErrRemote wraps every error message returned by a server.
var ErrRemote = errors.New("remote error")

// rpcClientAdapter stores everything a client needs to reach one shard.
// Embedded by RPCTable and RPCLeader.
type rpcClientAdapter struct {
	shardId    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

func newClientAdapter(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (rpcClientAdapter, error) {
	if err := transport.Connect(config); err != nil {
		return rpcClientAdapter{}, errors.Wrap(err, "connect transport")
	}
	return rpcClientAdapter{
		shardId:    shardId,
		config:     config,
		transport:  transport,
		serializer: serializer,
	}, nil
}

// invoke sends req to the shard and returns the response.
// Error responses and responses of an unexpected type are returned as errors.
func (a *rpcClientAdapter) invoke(req *common.Message) (*common.Message, error) {
	reqBytes, err := a.serializer.Serialize(*req)
	if err != nil {
		return nil, errors.Wrap(err, "serialize request")
	}

	respBytes, err := a.transport.Send(a.shardId, reqBytes)
	if err != nil {
		return nil, err
	}

	resp := &common.Message{}
	if err := a.serializer.Deserialize(respBytes, resp); err != nil {
		return nil, errors.Wrap(err, "deserialize response")
	}

	if resp.MsgType == common.MsgTError || resp.Err != "" {
		return nil, errors.Wrapf(ErrRemote, "shard %d: %s", a.shardId, resp.Err)
	}
	if resp.MsgType != req.MsgType {
		return nil, errors.Newf("unexpected message type %s, expected %s", resp.MsgType, req.MsgType)
	}
	return resp, nil
}

// Close closes the transport.
func (a *rpcClientAdapter) Close() error {
	return a.transport.Close()
}
