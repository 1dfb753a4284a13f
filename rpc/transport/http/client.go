package http

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dTab/rpc/common"
	"github.com/ValentinKolb/dTab/rpc/transport"
	"github.com/cockroachdb/errors"
)

func NewHttpClientTransport() transport.IRPCClientTransport {
	return &httpClientTransport{}
}

type httpClientTransport struct {
	serverURLs []*url.URL
	client     *http.Client
	counter    uint32
	retryCount int
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (transport *httpClientTransport) Connect(config common.ClientConfig) error {
	if len(config.Endpoints) == 0 {
		return errors.New("http transport needs at least one endpoint")
	}

	// Parse each server URL (a missing scheme defaults to http)
	parsedURLs := make([]*url.URL, len(config.Endpoints))
	for i, server := range config.Endpoints {
		if !strings.Contains(server, "://") {
			server = "http://" + server
		}
		parsedURL, err := url.Parse(server)
		if err != nil {
			return errors.Wrapf(err, "parse endpoint %q", server)
		}
		parsedURLs[i] = parsedURL
	}

	// Create client with a pooled transport
	perHost := config.ConnectionsPerEndpoint
	if perHost < 1 {
		perHost = 10
	}
	transport.client = &http.Client{
		Timeout: time.Duration(config.TimeoutSecond) * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: perHost,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	// Set the server URLs and reset the round-robin counter
	transport.serverURLs = parsedURLs
	transport.counter = 0
	transport.retryCount = max(1, config.RetryCount)
	return nil
}

// Send posts req to the next endpoint (round-robin). Failed attempts move on
// to the following endpoint.
func (transport *httpClientTransport) Send(shardId uint64, req []byte) ([]byte, error) {
	// Check if the transport is initialized
	if transport.client == nil {
		return nil, errors.New("http transport not initialized")
	}

	// Send the request (with retries), each attempt on the next server
	var lastErr error
	for i := 0; i < transport.retryCount; i++ {
		idx := atomic.AddUint32(&transport.counter, 1) % uint32(len(transport.serverURLs))
		resp, err := transport.post(fmt.Sprintf("%s/%d", transport.serverURLs[idx].String(), shardId), req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (transport *httpClientTransport) post(requestURL string, req []byte) ([]byte, error) {
	// Create and send the request
	httpResponse, err := transport.client.Post(requestURL, "application/octet-stream", bytes.NewReader(req))
	if err != nil {
		return nil, err
	}
	defer httpResponse.Body.Close()

	// Check if the response status code is OK
	if httpResponse.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResponse.Body)
		return nil, errors.Newf("http error: %s: %s", httpResponse.Status, strings.TrimSpace(string(body)))
	}

	// Read the response body
	return io.ReadAll(httpResponse.Body)
}

func (transport *httpClientTransport) Close() error {
	// Close the client
	if transport.client != nil {
		transport.client.CloseIdleConnections()
	}

	// Reset the client and server URLs
	transport.client = nil
	transport.serverURLs = nil
	return nil
}
