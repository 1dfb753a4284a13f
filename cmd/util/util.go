package util

import (
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dTab/lib/btree"
	"github.com/ValentinKolb/dTab/rpc/common"
	"github.com/ValentinKolb/dTab/rpc/serializer"
	"github.com/ValentinKolb/dTab/rpc/transport"
	"github.com/ValentinKolb/dTab/rpc/transport/http"
	"github.com/ValentinKolb/dTab/rpc/transport/tcp"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables read by dtab
	EnvPrefix = "dtab"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		if lineWidth > 0 && lineWidth+1+len(word) > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}
		currentLine.WriteString(word)
		lineWidth += len(word)
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}
	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and makes viper read DTAB_* environment variables.
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Client
// --------------------------------------------------------------------------

// SetupRPCClientFlags adds the connection flags of a client command
func SetupRPCClientFlags(cmd *cobra.Command, defaultShard int) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of the client"))

	key = "transport-endpoints"
	cmd.PersistentFlags().String(key, "http://localhost:8080", WrapString("The address of the dTab server. Multiple endpoints can be specified as a comma-separated list"))

	key = "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections per endpoint"))

	key = "transport-retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to retry the request"))

	key = "shard"
	cmd.PersistentFlags().Int(key, defaultShard, WrapString("ID of the shard to connect to"))
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() common.ClientConfig {
	return common.ClientConfig{
		TimeoutSecond:          viper.GetInt("timeout"),
		RetryCount:             viper.GetInt("transport-retries"),
		Endpoints:              strings.Split(viper.GetString("transport-endpoints"), ","),
		ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
	}
}

// GetShardID retrieves the configured shard ID
func GetShardID() uint64 {
	return uint64(viper.GetInt("shard"))
}

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	return serializer.New(viper.GetString("serializer"))
}

// GetClientTransport creates a client transport based on configuration
func GetClientTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "", "http":
		return http.NewHttpClientTransport(), nil
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	default:
		return nil, errors.Newf("invalid transport %s (expected http or tcp)", viper.GetString("transport"))
	}
}

// GetServerTransport creates a server transport based on configuration
func GetServerTransport() (transport.IRPCServerTransport, error) {
	switch viper.GetString("transport") {
	case "", "http":
		return http.NewHttpServerTransport(), nil
	case "tcp":
		return tcp.NewTCPServerTransport(), nil
	default:
		return nil, errors.Newf("invalid transport %s (expected http or tcp)", viper.GetString("transport"))
	}
}

// --------------------------------------------------------------------------
// Parsing
// --------------------------------------------------------------------------

// HashReplicaID maps a human readable replica name (e.g. node-1) to a dragonboat replica id.
func HashReplicaID(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}

// ParseBound builds a range bound from a key and a mode (none, open, closed).
// A key without a mode is closed, a mode without a key is rejected.
func ParseBound(key, mode string) (btree.Bound, error) {
	if mode == "" && key != "" {
		mode = "closed"
	}
	m, err := btree.ParseBoundMode(mode)
	if err != nil {
		return btree.Bound{}, err
	}
	if m == btree.BoundNone {
		return btree.Unbounded(), nil
	}
	if key == "" {
		return btree.Bound{}, errors.Newf("a %s bound needs a key", m)
	}
	return btree.Bound{Mode: m, Key: btree.Key(key)}, nil
}

// ParseShard parses one ID=TYPE shard definition of the serve command.
// TYPE is leader(lstore), leader(dstore) or btree(ENGINE[:PATH]).
func ParseShard(def string) (common.ServerShard, error) {
	id, typ, ok := strings.Cut(strings.TrimSpace(def), "=")
	if !ok {
		return common.ServerShard{}, errors.Newf("invalid shard format: %s (expected ID=TYPE)", def)
	}
	shardID, err := strconv.ParseUint(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return common.ServerShard{}, errors.Wrapf(err, "invalid shard ID %s", id)
	}

	shard := common.ServerShard{ShardID: shardID}
	typ = strings.TrimSpace(typ)
	switch {
	case typ == string(common.ShardTypeLocalLeader):
		shard.Type = common.ShardTypeLocalLeader
	case typ == string(common.ShardTypeRemoteLeader):
		shard.Type = common.ShardTypeRemoteLeader
	case strings.HasPrefix(typ, "btree(") && strings.HasSuffix(typ, ")"):
		shard.Type = common.ShardTypeBTree
		shard.Engine, shard.Path, _ = strings.Cut(typ[len("btree("):len(typ)-1], ":")
		if shard.Engine == "" {
			return common.ServerShard{}, errors.Newf("shard %d: btree needs an engine", shardID)
		}
	default:
		return common.ServerShard{}, errors.Newf("invalid shard type: %s (expected one of: btree(ENGINE[:PATH]), leader(lstore), leader(dstore))", typ)
	}
	return shard, nil
}
