// Package cdptest provides an in-process CDP endpoint for tests.
package cdptest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const acceptTimeout = 5 * time.Second

// Request is a command frame as received by the endpoint.
type Request struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"sessionId,omitempty"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params"`
}

// Endpoint is a fake browser DevTools WebSocket endpoint.
type Endpoint struct {
	URL string

	tb    testing.TB
	conns chan *websocket.Conn
}

// NewEndpoint starts an Endpoint that is shut down when the test ends.
func NewEndpoint(tb testing.TB) *Endpoint {
	tb.Helper()

	e := &Endpoint{
		tb:    tb,
		conns: make(chan *websocket.Conn, 4),
	}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			tb.Errorf("upgrading connection: %v", err)
			return
		}
		e.conns <- ws
	}))
	tb.Cleanup(srv.Close)

	e.URL = "ws" + strings.TrimPrefix(srv.URL, "http")

	return e
}

// Accept waits for the next client connection. It must be called from the
// test goroutine.
func (e *Endpoint) Accept() *Conn {
	e.tb.Helper()

	select {
	case ws := <-e.conns:
		e.tb.Cleanup(func() { _ = ws.Close() })
		return &Conn{tb: e.tb, ws: ws}
	case <-time.After(acceptTimeout):
		require.FailNow(e.tb, "no client connected")
		return nil
	}
}

// Serve accepts the next connection and answers every request with
// handler from a background goroutine. See Conn.Serve.
func (e *Endpoint) Serve(handler Handler) *Conn {
	e.tb.Helper()

	c := e.Accept()
	c.Serve(handler)
	return c
}

// Handler computes the reply to req. It returns the raw result object, or
// an error reply built with Error. An empty result sends nothing.
type Handler func(req Request) string

// Error returns a raw error reply object for a Handler.
func Error(code int64, msg string) string {
	return fmt.Sprintf(`{"error":{"code":%d,"message":%q}}`, code, msg)
}

// Conn is the endpoint side of one client connection.
type Conn struct {
	tb testing.TB
	ws *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	requests []Request
	served   chan struct{}
}

// ReadRequest reads and decodes the next command frame. It must be
// called from the test goroutine.
func (c *Conn) ReadRequest() Request {
	c.tb.Helper()

	req, err := c.readRequest()
	require.NoError(c.tb, err)
	return req
}

func (c *Conn) readRequest() (Request, error) {
	_ = c.ws.SetReadDeadline(time.Now().Add(acceptTimeout))
	typ, buf, err := c.ws.ReadMessage()
	if err != nil {
		return Request{}, fmt.Errorf("reading request: %w", err)
	}
	if typ != websocket.TextMessage {
		return Request{}, fmt.Errorf("unexpected frame type %d", typ)
	}
	var req Request
	if err := json.Unmarshal(buf, &req); err != nil {
		return Request{}, fmt.Errorf("decoding request %q: %w", buf, err)
	}
	return req, nil
}

// Send writes a raw text frame.
func (c *Conn) Send(frame string) {
	c.tb.Helper()
	require.NoError(c.tb, c.write(websocket.TextMessage, frame))
}

// SendBinary writes a raw binary frame.
func (c *Conn) SendBinary(frame []byte) {
	c.tb.Helper()
	require.NoError(c.tb, c.write(websocket.BinaryMessage, string(frame)))
}

// Reply sends a response with the given raw result object for id.
func (c *Conn) Reply(id int64, result string) {
	c.tb.Helper()
	c.Send(fmt.Sprintf(`{"id":%d,"result":%s}`, id, result))
}

// ReplyError sends an error response for id.
func (c *Conn) ReplyError(id int64, code int64, msg string) {
	c.tb.Helper()
	c.Send(fmt.Sprintf(`{"id":%d,"error":{"code":%d,"message":%q}}`, id, code, msg))
}

// Event sends an event frame.
func (c *Conn) Event(method, sessionID, params string) {
	c.tb.Helper()

	if sessionID == "" {
		c.Send(fmt.Sprintf(`{"method":%q,"params":%s}`, method, params))
		return
	}
	c.Send(fmt.Sprintf(`{"method":%q,"sessionId":%q,"params":%s}`, method, sessionID, params))
}

// Close closes the connection without a close handshake.
func (c *Conn) Close() {
	_ = c.ws.Close()
}

// Serve answers requests with handler from a background goroutine until
// the connection ends. Requests are recorded for Requests.
func (c *Conn) Serve(handler Handler) {
	c.served = make(chan struct{})

	go func() {
		defer close(c.served)
		for {
			_ = c.ws.SetReadDeadline(time.Time{})
			_, buf, err := c.ws.ReadMessage()
			if err != nil {
				return
			}
			var req Request
			if err := json.Unmarshal(buf, &req); err != nil {
				c.tb.Errorf("decoding request %q: %v", buf, err)
				return
			}

			c.mu.Lock()
			c.requests = append(c.requests, req)
			c.mu.Unlock()

			reply := handler(req)
			if reply == "" {
				continue
			}
			if err := c.write(websocket.TextMessage, withID(req.ID, reply)); err != nil {
				return
			}
		}
	}()
}

// Requests returns the requests seen by Serve so far.
func (c *Conn) Requests() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]Request(nil), c.requests...)
}

// WaitRequest polls until a request for method has been served and
// returns it.
func (c *Conn) WaitRequest(method string) Request {
	c.tb.Helper()

	var found Request
	require.Eventually(c.tb, func() bool {
		for _, req := range c.Requests() {
			if req.Method == method {
				found = req
				return true
			}
		}
		return false
	}, acceptTimeout, 10*time.Millisecond, "no %s request", method)

	return found
}

func (c *Conn) write(typ int, frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(typ, []byte(frame)); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// withID turns a Handler reply into a response frame for id.
func withID(id int64, reply string) string {
	if strings.HasPrefix(reply, `{"error":`) {
		return fmt.Sprintf(`{"id":%d,%s`, id, reply[1:])
	}
	return fmt.Sprintf(`{"id":%d,"result":%s}`, id, reply)
}
