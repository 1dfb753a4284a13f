package tcp

import (
	"bufio"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dTab/rpc/common"
	"github.com/ValentinKolb/dTab/rpc/transport"
	"github.com/cockroachdb/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

// initialBackoff is the pause after the first failed attempt; it doubles per attempt.
const initialBackoff = 50 * time.Millisecond

func NewTCPClientTransport() transport.IRPCClientTransport {
	return &tcpClientTransport{}
}

type tcpClientTransport struct {
	config  common.ClientConfig
	conns   []*clientConn
	next    atomic.Uint64
	request atomic.Uint64
}

// clientConn is one slot of the pool. The link behind it is replaced when
// the connection is lost.
type clientConn struct {
	endpoint string
	mu       sync.Mutex // guards link and serializes writes
	link     *link
}

// link is one established connection with the requests waiting on it.
type link struct {
	conn    net.Conn
	pending *xsync.MapOf[uint64, chan result]
}

type result struct {
	data []byte
	err  error
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *tcpClientTransport) Connect(config common.ClientConfig) error {
	if len(config.Endpoints) == 0 {
		return errors.New("tcp transport needs at least one endpoint")
	}
	_ = t.Close()
	t.config = config

	perEndpoint := max(1, config.ConnectionsPerEndpoint)
	conns := make([]*clientConn, 0, len(config.Endpoints)*perEndpoint)
	connected := 0
	var lastErr error

	// Create the pool, dialing every slot once
	for _, endpoint := range config.Endpoints {
		for i := 0; i < perEndpoint; i++ {
			c := &clientConn{endpoint: endpoint}
			c.mu.Lock()
			_, err := t.dialLocked(c)
			c.mu.Unlock()
			if err != nil {
				lastErr = err
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, perEndpoint, err)
			} else {
				connected++
			}
			conns = append(conns, c)
		}
	}
	t.conns = conns

	if connected == 0 {
		_ = t.Close()
		return errors.Wrap(lastErr, "failed to connect to any endpoint")
	}
	Logger.Infof("Connected %d of %d connections to %d endpoints using tcp transport",
		connected, len(conns), len(config.Endpoints))
	return nil
}

// Send writes req to the next connection (round-robin) and waits for the
// response. Failed attempts move on to the following connection.
func (t *tcpClientTransport) Send(shardId uint64, req []byte) ([]byte, error) {
	conns := t.conns
	if len(conns) == 0 {
		return nil, errors.New("tcp transport not initialized")
	}

	attempts := max(1, t.config.RetryCount)
	backoff := initialBackoff
	var lastErr error
	for i := 0; i < attempts; i++ {
		c := conns[t.next.Add(1)%uint64(len(conns))]
		resp, err := t.roundTrip(c, shardId, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		Logger.Debugf("Request attempt %d/%d failed: %v", i+1, attempts, err)

		if i+1 < attempts {
			// Back off with a small random jitter (+-10%)
			jitter := 0.9 + 0.2*rand.Float64()
			time.Sleep(time.Duration(float64(backoff) * jitter))
			backoff *= 2
		}
	}
	return nil, errors.Wrapf(lastErr, "failed to send request after %d attempts", attempts)
}

func (t *tcpClientTransport) Close() error {
	for _, c := range t.conns {
		c.mu.Lock()
		if c.link != nil {
			_ = c.link.conn.Close()
			c.link = nil
		}
		c.mu.Unlock()
	}
	t.conns = nil
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *tcpClientTransport) timeout() time.Duration {
	return time.Duration(t.config.TimeoutSecond) * time.Second
}

// roundTrip sends one request on c and waits for its response.
func (t *tcpClientTransport) roundTrip(c *clientConn, shardID uint64, req []byte) ([]byte, error) {
	id := t.request.Add(1)
	ch := make(chan result, 1)

	// Register and write the request (dial first if the connection is down)
	c.mu.Lock()
	l := c.link
	if l == nil {
		var err error
		if l, err = t.dialLocked(c); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	l.pending.Store(id, ch)
	defer l.pending.Delete(id)

	if timeout := t.timeout(); timeout > 0 {
		_ = l.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	err := writeFrame(l.conn, shardID, id, req)
	if err != nil {
		// the reader notices the closed connection and drops the link
		_ = l.conn.Close()
	}
	c.mu.Unlock()
	if err != nil {
		return nil, errors.Wrapf(err, "write request to %s", c.endpoint)
	}

	// Wait for the response or the timeout
	var timeoutCh <-chan time.Time
	if timeout := t.timeout(); timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}
	select {
	case r := <-ch:
		return r.data, r.err
	case <-timeoutCh:
		return nil, errors.Newf("request %d to %s timed out", id, c.endpoint)
	}
}

// dialLocked connects c and starts the reader of the new link. c.mu must be held.
func (t *tcpClientTransport) dialLocked(c *clientConn) (*link, error) {
	dialer := net.Dialer{Timeout: t.timeout()}
	conn, err := dialer.Dial("tcp", c.endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", c.endpoint)
	}

	l := &link{conn: conn, pending: xsync.NewMapOf[uint64, chan result]()}
	c.link = l
	go c.readResponses(l)
	return l, nil
}

// readResponses hands every response of l to the request waiting for it.
// When the connection fails, all requests still waiting on l get the error
// and the next use of c dials a new connection.
func (c *clientConn) readResponses(l *link) {
	reader := bufio.NewReader(l.conn)
	for {
		_, id, data, err := readFrame(reader)
		if err != nil {
			c.mu.Lock()
			if c.link == l {
				c.link = nil
			}
			c.mu.Unlock()
			_ = l.conn.Close()

			lost := errors.Wrapf(err, "connection to %s lost", c.endpoint)
			l.pending.Range(func(_ uint64, ch chan result) bool {
				select {
				case ch <- result{err: lost}:
				default:
				}
				return true
			})
			return
		}

		ch, ok := l.pending.Load(id)
		if !ok {
			Logger.Warningf("Dropping response for unknown request %d from %s", id, c.endpoint)
			continue
		}
		select {
		case ch <- result{data: data}:
		default:
		}
	}
}
