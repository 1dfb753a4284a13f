package util

import (
	"strings"
	"testing"

	"github.com/ValentinKolb/dTab/lib/btree"
	"github.com/ValentinKolb/dTab/rpc/common"
	"github.com/ValentinKolb/dTab/rpc/transport/http"
	"github.com/ValentinKolb/dTab/rpc/transport/tcp"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
}

func TestParseBound(t *testing.T) {
	tests := []struct {
		key, mode string
		want      btree.Bound
		wantErr   bool
	}{
		{"", "", btree.Unbounded(), false},
		{"a", "", btree.Closed("a"), false},
		{"a", "open", btree.Open("a"), false},
		{"a", "none", btree.Unbounded(), false},
		{"", "open", btree.Bound{}, true},
		{"a", "half", btree.Bound{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"/"+tt.mode, func(t *testing.T) {
			got, err := ParseBound(tt.key, tt.mode)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseShard(t *testing.T) {
	tests := []struct {
		def     string
		want    common.ServerShard
		wantErr bool
	}{
		{"200=leader(lstore)", common.ServerShard{ShardID: 200, Type: common.ShardTypeLocalLeader}, false},
		{" 7 = leader(dstore) ", common.ServerShard{ShardID: 7, Type: common.ShardTypeRemoteLeader}, false},
		{"100=btree(mem)", common.ServerShard{ShardID: 100, Type: common.ShardTypeBTree, Engine: "mem"}, false},
		{"100=btree(pebble:/data/users)", common.ServerShard{ShardID: 100, Type: common.ShardTypeBTree, Engine: "pebble", Path: "/data/users"}, false},
		{"100=btree()", common.ServerShard{}, true},
		{"100=lstore", common.ServerShard{}, true},
		{"x=leader(lstore)", common.ServerShard{}, true},
		{"leader(lstore)", common.ServerShard{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.def, func(t *testing.T) {
			got, err := ParseShard(tt.def)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHashReplicaID(t *testing.T) {
	assert.Equal(t, HashReplicaID("node-1"), HashReplicaID("node-1"))
	assert.NotEqual(t, HashReplicaID("node-1"), HashReplicaID("node-2"))
}

func TestGetTransports(t *testing.T) {
	defer viper.Set("transport", "")

	tests := []struct {
		name    string
		client  any
		server  any
		wantErr bool
	}{
		{name: "", client: http.NewHttpClientTransport(), server: http.NewHttpServerTransport()},
		{name: "http", client: http.NewHttpClientTransport(), server: http.NewHttpServerTransport()},
		{name: "tcp", client: tcp.NewTCPClientTransport(), server: tcp.NewTCPServerTransport()},
		{name: "unix", wantErr: true},
	}
	for _, tt := range tests {
		t.Run("transport="+tt.name, func(t *testing.T) {
			viper.Set("transport", tt.name)

			ct, err := GetClientTransport()
			st, serr := GetServerTransport()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Error(t, serr)
				return
			}
			require.NoError(t, err)
			require.NoError(t, serr)
			assert.IsType(t, tt.client, ct)
			assert.IsType(t, tt.server, st)
		})
	}
}
