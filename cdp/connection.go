package cdp

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson/jwriter"
	"github.com/oxtoacart/bpool"
)

const (
	handshakeTimeout = 10 * time.Second
	closeGracePeriod = time.Second
	bufferPoolSize   = 32
)

// connection owns the WebSocket to the browser. Reads are done only by the
// client's receive loop, writes are serialized by writeMu.
type connection struct {
	ws    *websocket.Conn
	wsURL string

	writeMu sync.Mutex
	bufPool *bpool.BufferPool
}

func newConnection(ctx context.Context, wsURL string) (*connection, error) {
	if err := validateEndpoint(wsURL); err != nil {
		return nil, err
	}

	wd := &websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		ReadBufferSize:   1 << 20,
		WriteBufferSize:  1 << 20,
		Proxy:            http.ProxyFromEnvironment,
	}
	ws, _, err := wd.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrConnect, wsURL, err)
	}

	return &connection{
		ws:      ws,
		wsURL:   wsURL,
		bufPool: bpool.NewBufferPool(bufferPoolSize),
	}, nil
}

func validateEndpoint(wsURL string) error {
	u, err := url.Parse(wsURL)
	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidEndpoint, wsURL, err)
	}
	if (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("%w %q: expected a ws:// or wss:// URL", ErrInvalidEndpoint, wsURL)
	}
	return nil
}

// encode serializes msg into a pooled buffer. The caller must hand the
// buffer back with release.
func (c *connection) encode(msg *cdproto.Message) (*bytes.Buffer, error) {
	var w jwriter.Writer
	msg.MarshalEasyJSON(&w)
	if w.Error != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSerialize, msg.Method, w.Error)
	}

	buf := c.bufPool.Get()
	if _, err := w.DumpTo(buf); err != nil {
		c.bufPool.Put(buf)
		return nil, fmt.Errorf("%w: %s: %w", ErrSerialize, msg.Method, err)
	}
	return buf, nil
}

func (c *connection) release(buf *bytes.Buffer) {
	c.bufPool.Put(buf)
}

// write sends one text frame. Only one writer is active at a time.
func (c *connection) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("writing to %q: %w", c.wsURL, err)
	}
	return nil
}

// read blocks until the next frame arrives.
func (c *connection) read() (int, []byte, error) {
	return c.ws.ReadMessage() //nolint:wrapcheck
}

// close sends a close frame and closes the underlying socket, which makes
// a pending read return.
func (c *connection) close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))

	if err := c.ws.Close(); err != nil {
		return fmt.Errorf("closing connection to %q: %w", c.wsURL, err)
	}
	return nil
}
