package tcp

import (
	"bufio"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/dTab/rpc/common"
	"github.com/ValentinKolb/dTab/rpc/transport"
	vm "github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/rpc")

var (
	requestsTotal = vm.GetOrCreateCounter("dtab_rpc_requests_total")
	requestErrors = vm.GetOrCreateCounter("dtab_rpc_request_errors_total")
)

// defaultWorkersPerConn bounds the requests handled at once for one connection.
const defaultWorkersPerConn = 64

func NewTCPServerTransport() transport.IRPCServerTransport {
	return &tcpServerTransport{
		workers: defaultWorkersPerConn,
		conns:   make(map[net.Conn]struct{}),
	}
}

type tcpServerTransport struct {
	handler transport.ServerHandleFunc
	workers int

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	active   sync.WaitGroup
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *tcpServerTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *tcpServerTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return errors.New("no handler registered")
	}

	// Create the listener
	ln, err := net.Listen("tcp", config.Endpoint)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", config.Endpoint)
	}
	return t.serve(ln, time.Duration(config.TimeoutSecond)*time.Second)
}

func (t *tcpServerTransport) Shutdown() error {
	t.mu.Lock()
	t.closed = true
	var err error
	if t.listener != nil {
		err = t.listener.Close()
	}
	for conn := range t.conns {
		_ = conn.Close()
	}
	t.mu.Unlock()

	// Wait for the connection handlers (and their workers)
	t.active.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// serve accepts connections on ln until Shutdown is called.
func (t *tcpServerTransport) serve(ln net.Listener, timeout time.Duration) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ln.Close()
	}
	t.listener = ln
	t.mu.Unlock()

	Logger.Infof("Starting TCP server on %s with %d workers per connection", ln.Addr(), t.workers)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if t.isClosed() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				Logger.Warningf("accept: %v", err)
				continue
			}
			return errors.Wrap(err, "accept")
		}

		if !t.track(conn) {
			_ = conn.Close()
			return nil
		}
		go func() {
			defer t.untrack(conn)
			t.handleConnection(conn, timeout)
		}()
	}
}

// track registers an accepted connection. It returns false after Shutdown.
func (t *tcpServerTransport) track(conn net.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.conns[conn] = struct{}{}
	t.active.Add(1)
	return true
}

func (t *tcpServerTransport) untrack(conn net.Conn) {
	t.mu.Lock()
	delete(t.conns, conn)
	t.mu.Unlock()
	t.active.Done()
}

func (t *tcpServerTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// handleConnection reads requests of one connection until it is closed.
// Responses are written in completion order, tagged with the request id.
func (t *tcpServerTransport) handleConnection(conn net.Conn, timeout time.Duration) {
	var (
		writeMu sync.Mutex
		workers = make(chan struct{}, t.workers)
		wg      sync.WaitGroup
	)
	defer conn.Close()
	defer wg.Wait()

	reader := bufio.NewReader(conn)
	for {
		// Read the next request
		shardID, requestID, data, err := readFrame(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !t.isClosed() {
				Logger.Warningf("closing connection from %s: %v", conn.RemoteAddr(), err)
			}
			return
		}
		requestsTotal.Inc()

		// Wait for a free worker slot of this connection
		workers <- struct{}{}
		wg.Add(1)

		go func() {
			defer func() {
				<-workers
				wg.Done()
			}()

			// Process the request
			resp := t.handler(shardID, data)

			// Write the response (one writer at a time)
			writeMu.Lock()
			defer writeMu.Unlock()
			if timeout > 0 {
				_ = conn.SetWriteDeadline(time.Now().Add(timeout))
			}
			if err := writeFrame(conn, shardID, requestID, resp); err != nil {
				requestErrors.Inc()
				Logger.Warningf("failed to write response for shard %d: %v", shardID, err)
			}
		}()
	}
}
