package server

import (
	"context"
	"fmt"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/dTab/lib/blockstore"
	"github.com/ValentinKolb/dTab/lib/blockstore/engines"
	"github.com/ValentinKolb/dTab/lib/leader"
	"github.com/ValentinKolb/dTab/lib/pagecache"
	"github.com/ValentinKolb/dTab/lib/store"
	"github.com/ValentinKolb/dTab/lib/store/dstore"
	"github.com/ValentinKolb/dTab/lib/store/lstore"
	"github.com/ValentinKolb/dTab/rpc/common"
	"github.com/ValentinKolb/dTab/rpc/serializer"
	"github.com/ValentinKolb/dTab/rpc/transport"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewMsgpackSerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, IRPCServerAdapter](),
	}
}

// RPCServer routes requests of the transport to the adapters of its shards.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, IRPCServerAdapter]

	nodeHost  *dragonboat.NodeHost
	cancel    context.CancelFunc
	loops     sync.WaitGroup
	closeOnce sync.Once
}

// handle decodes a request, dispatches it to the shard adapter and encodes the response.
func (s *RPCServer) handle(shardId uint64, req []byte) []byte {
	var (
		msg     common.Message
		respMsg *common.Message
	)

	// Find the shard and decode the request
	adapter, ok := s.shards.Load(shardId)
	if !ok {
		respMsg = common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		respMsg = adapter.Handle(&msg)
	}

	// Encode the response (an encoding failure is answered with an error message)
	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		Logger.Errorf("failed to serialize response for shard %d: %v", shardId, err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

// AddShard registers an adapter for a shard id.
func (s *RPCServer) AddShard(shardId uint64, adapter IRPCServerAdapter) error {
	if _, loaded := s.shards.LoadOrStore(shardId, adapter); loaded {
		return errors.Newf("shard %d is already registered", shardId)
	}
	return nil
}

func (s *RPCServer) timeout() time.Duration {
	if s.config.TimeoutSecond <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.config.TimeoutSecond) * time.Second
}

func (s *RPCServer) init() error {
	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}

	// Create the node host if any shard is replicated with raft
	if s.config.HasRemoteShard() {
		nh, err := dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return errors.Wrap(err, "failed to create node host")
		}
		s.nodeHost = nh
	}

	// The leader loops stop when the server is closed
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	interval := time.Duration(s.config.ReconcileIntervalMs) * time.Millisecond

	/*
		Note: A single RPC Server can have any number of table and leader shards.
		The following loop creates all the shards and stores them for the RPC server.
	*/

	for _, shardConfig := range s.config.Shards {
		var adapter IRPCServerAdapter

		switch shardConfig.Type {
		case common.ShardTypeBTree:
			impl, err := blockstore.ParseImplementation(shardConfig.Engine)
			if err != nil {
				return errors.Wrapf(err, "shard %d", shardConfig.ShardID)
			}
			bs, err := engines.Open(impl, shardConfig.Path)
			if err != nil {
				return errors.Wrapf(err, "shard %d: open block store", shardConfig.ShardID)
			}
			adapter = NewBTreeServerAdapter(pagecache.New(bs, s.config.CachePages), s.timeout())

		case common.ShardTypeLocalLeader, common.ShardTypeRemoteLeader:
			var (
				st       store.IStore
				isLeader func() bool
			)
			if shardConfig.Type == common.ShardTypeLocalLeader {
				st = lstore.NewLocalStore()
			} else {
				if s.nodeHost == nil {
					return errors.New("node host is nil, cannot create remote store")
				}
				if err := s.nodeHost.StartConcurrentReplica(s.config.ClusterMembers, false, dstore.CreateStateMachineFactory(), s.config.ToDragonboatConfig(shardConfig.ShardID)); err != nil {
					return errors.Wrapf(err, "failed to start shard %d", shardConfig.ShardID)
				}
				st = dstore.NewDistributedStore(s.nodeHost, shardConfig.ShardID, s.timeout())
				// only the RAFT leader of the shard runs the periodic rounds
				isLeader = dstore.LeaderCheck(s.nodeHost, shardConfig.ShardID, s.config.ReplicaID)
			}
			// Start the leader loop
			l := leader.New(st, leader.Options{Interval: interval, IsLeader: isLeader})
			s.loops.Add(1)
			go func(id uint64) {
				defer s.loops.Done()
				if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					Logger.Errorf("leader of shard %d stopped: %v", id, err)
				}
			}(shardConfig.ShardID)
			adapter = NewLeaderServerAdapter(l, shardConfig.Type, s.timeout())

		default:
			return errors.Newf("invalid shard type: %s", shardConfig.Type)
		}

		// Register the shard (closing the adapter if the id is taken)
		if err := s.AddShard(shardConfig.ShardID, adapter); err != nil {
			_ = adapter.Close()
			return err
		}
		Logger.Infof("created %s for shard %d", shardConfig.String(), shardConfig.ShardID)
	}

	// Route all requests of the transport to the shards
	Logger.Infof("dTab setup completed successfully")
	s.transport.RegisterHandler(s.handle)
	return nil
}

// Serve initializes the shards and starts the transport layer.
// It blocks until the transport stops.
func (s *RPCServer) Serve() error {
	Logger.Infof("Created RPC Server")
	Logger.Infof(s.config.String())

	if err := s.init(); err != nil {
		s.Close()
		return err
	}
	return s.transport.Listen(s.config)
}

// Close stops the transport, the leader loops and all shards.
func (s *RPCServer) Close() error {
	var errs error
	s.closeOnce.Do(func() {
		// Stop accepting requests
		if err := s.transport.Shutdown(); err != nil {
			errs = errors.CombineErrors(errs, err)
		}

		// Stop the leader loops and close the shards
		if s.cancel != nil {
			s.cancel()
		}
		s.shards.Range(func(id uint64, adapter IRPCServerAdapter) bool {
			if err := adapter.Close(); err != nil {
				errs = errors.CombineErrors(errs, errors.Wrapf(err, "close shard %d", id))
			}
			return true
		})
		s.loops.Wait()

		// Close the node host last, the dstore shards use it until here
		if s.nodeHost != nil {
			s.nodeHost.Close()
		}
	})
	return errs
}
