package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ValentinKolb/dTab/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	st := &httpServerTransport{}
	st.RegisterHandler(func(shardId uint64, req []byte) []byte {
		return []byte(strings.ToUpper(string(req)) + "@" + string(rune('0'+shardId)))
	})
	srv := httptest.NewServer(st.newMux())
	t.Cleanup(srv.Close)
	return srv
}

func TestRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	ct := NewHttpClientTransport()
	require.NoError(t, ct.Connect(common.ClientConfig{Endpoints: []string{srv.URL}, TimeoutSecond: 5, RetryCount: 1}))
	defer ct.Close()

	resp, err := ct.Send(7, []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, "PING@7", string(resp))
}

func TestInvalidShardId(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/notanumber", "application/octet-stream", strings.NewReader("x"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	_, err := http.Post(srv.URL+"/1", "application/octet-stream", strings.NewReader("x"))
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "dtab_rpc_requests_total")
}

func TestClientFailsOver(t *testing.T) {
	srv := newTestServer(t)
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer dead.Close()

	ct := NewHttpClientTransport()
	require.NoError(t, ct.Connect(common.ClientConfig{Endpoints: []string{dead.URL, srv.URL}, TimeoutSecond: 5, RetryCount: 2}))
	defer ct.Close()

	for i := 0; i < 4; i++ {
		resp, err := ct.Send(1, []byte("a"))
		require.NoError(t, err)
		assert.Equal(t, "A@1", string(resp))
	}
}

func TestClientErrors(t *testing.T) {
	ct := NewHttpClientTransport()
	_, err := ct.Send(1, nil)
	assert.Error(t, err, "send before connect")

	assert.Error(t, ct.Connect(common.ClientConfig{}))

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer dead.Close()
	require.NoError(t, ct.Connect(common.ClientConfig{Endpoints: []string{dead.URL}, TimeoutSecond: 5, RetryCount: 3}))
	_, err = ct.Send(1, []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestListenWithoutHandler(t *testing.T) {
	st := NewHttpServerTransport()
	assert.Error(t, st.Listen(common.ServerConfig{Endpoint: "127.0.0.1:0"}))
	assert.NoError(t, st.Shutdown())
}
