package wire

import (
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Client is a minimal synchronous RPC client: one connection, one in-flight
// call at a time. The Capability Validator (pkg/capability) and cross-
// service calls (Chat -> Auth) use exactly this client — there is no
// separate protocol for service-to-service calls (spec.md §4.3).
type Client struct {
	mu   sync.Mutex
	conn *Conn
	next uint64
}

// Dial opens a new framed connection to addr ("domain:port").
func Dial(addr string, timeout time.Duration) (*Client, error) {
	nc, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return &Client{conn: NewConn(nc)}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call issues op with args marshaled as the request body, decoding the
// response payload into out (which may be nil for operations with no
// success payload). Returns the wire error code as a plain string on
// failure; callers translate it with rpcerr as appropriate.
func (c *Client) Call(deadline time.Time, op string, args interface{}, out interface{}) (ok bool, errCode string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := atomic.AddUint64(&c.next, 1)
	argBytes, err := json.Marshal(args)
	if err != nil {
		return false, "", err
	}
	if !deadline.IsZero() {
		_ = c.conn.SetDeadline(deadline)
	}
	if err := c.conn.WriteRequest(&Request{ID: id, Op: op, Args: argBytes}); err != nil {
		return false, "", err
	}
	resp, err := c.conn.ReadResponse()
	if err != nil {
		return false, "", err
	}
	if !resp.OK {
		return false, resp.Error, nil
	}
	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return false, "", err
		}
	}
	return true, "", nil
}
