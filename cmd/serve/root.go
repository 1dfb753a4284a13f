package serve

import (
	"strings"

	cmdUtil "github.com/ValentinKolb/dTab/cmd/util"
	"github.com/ValentinKolb/dTab/rpc/common"
	"github.com/ValentinKolb/dTab/rpc/server"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the dTab server",
		Long:    `Start the dTab server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DTAB_<flag> (e.g. DTAB_CACHE_PAGES=4096)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)

	key := "shards"
	ServeCmd.PersistentFlags().String(key, "100=btree(mem),200=leader(lstore)", cmdUtil.WrapString("Comma-separated list of shards to serve. Format: ID=TYPE where TYPE is one of: btree(ENGINE[:PATH]) with ENGINE mem, pebble or bolt, leader(lstore), leader(dstore)"))

	key = "cache-pages"
	ServeCmd.PersistentFlags().Int(key, 1024, cmdUtil.WrapString("Number of blocks each btree shard keeps in its page cache"))

	key = "reconcile-interval-ms"
	ServeCmd.PersistentFlags().Int64(key, 1000, cmdUtil.WrapString("How often a leader recomputes the L2F of its tables, in milliseconds"))

	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(leader(dstore) only) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("(leader(dstore) only) SnapshotEntries defines after how many applied Raft log entries the L2F register is snapshotted. 0 disables automatic snapshots"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Int(key, 5, cmdUtil.WrapString("(leader(dstore) only) CompactionOverhead defines the number of snapshots that are retained"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("(leader(dstore) only) DataDir is the directory used for the raft log and snapshots"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(leader(dstore) only) ReplicaID is the unique name of this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(leader(dstore) only) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds of a single request"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig converts flags and environment variables into the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	config, err := buildConfig()
	if err != nil {
		return err
	}
	*serveCmdConfig = config
	return nil
}

func buildConfig() (common.ServerConfig, error) {
	// Scalar settings
	config := common.ServerConfig{
		RTTMillisecond:      viper.GetUint64("rtt-millisecond"),
		SnapshotEntries:     viper.GetUint64("snapshot-entries"),
		CompactionOverhead:  viper.GetUint64("compaction-overhead"),
		DataDir:             viper.GetString("data-dir"),
		TimeoutSecond:       viper.GetInt64("timeout"),
		CachePages:          viper.GetInt("cache-pages"),
		ReconcileIntervalMs: viper.GetInt64("reconcile-interval-ms"),
		Endpoint:            viper.GetString("endpoint"),
		LogLevel:            viper.GetString("log-level"),
	}

	// Parse the shard definitions
	seen := make(map[uint64]bool)
	for _, def := range strings.Split(viper.GetString("shards"), ",") {
		shard, err := cmdUtil.ParseShard(def)
		if err != nil {
			return config, err
		}
		if seen[shard.ShardID] {
			return config, errors.Newf("shard %d is defined twice", shard.ShardID)
		}
		seen[shard.ShardID] = true
		config.Shards = append(config.Shards, shard)
	}

	// Resolve the replica id (required for raft replicated shards)
	if id := viper.GetString("replica-id"); id != "" {
		config.ReplicaID = cmdUtil.HashReplicaID(id)
	} else if config.HasRemoteShard() {
		return config, errors.New("ReplicaId is required for leader(dstore) shards")
	}

	// Parse the cluster members
	if members := viper.GetString("cluster-members"); members != "" {
		config.ClusterMembers = make(map[uint64]string)
		for _, member := range strings.Split(members, ",") {
			name, addr, ok := strings.Cut(member, "=")
			if !ok {
				return config, errors.Newf("invalid cluster member format: %s (expected ID=address)", member)
			}
			config.ClusterMembers[cmdUtil.HashReplicaID(name)] = addr
		}
	} else if config.HasRemoteShard() {
		return config, errors.New("ClusterMembers is required for leader(dstore) shards")
	}

	// This node must be one of the members
	if _, ok := config.ClusterMembers[config.ReplicaID]; !ok && config.HasRemoteShard() {
		return config, errors.Newf("no address found for replica ID %d in cluster members", config.ReplicaID)
	}
	return config, nil
}

// run starts the dTab server
func run(_ *cobra.Command, _ []string) error {
	// Create the serializer
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	// Create the transport
	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	// Start the server (blocks)
	return server.NewRPCServer(*serveCmdConfig, t, s).Serve()
}
