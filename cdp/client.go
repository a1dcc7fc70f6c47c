package cdp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto"
	cdpext "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson"
	"golang.org/x/time/rate"

	"github.com/grafana/downstage/cdp/domains"
	"github.com/grafana/downstage/log"
	"github.com/grafana/downstage/metrics"
	"github.com/grafana/downstage/trace"
)

var _ cdpext.Executor = &Client{}

// emptyParams is sent for commands without parameters, the browser
// expects an object.
var emptyParams = easyjson.RawMessage("{}") //nolint:gochecknoglobals

// Client manages CDP communication with the browser over a single
// WebSocket connection. Any number of goroutines may send commands
// concurrently; a single receive loop routes every response back to the
// goroutine waiting for it.
type Client struct {
	ctx    context.Context
	logger *log.Logger
	id     string

	Browser domains.Browser
	Target  domains.Target

	connMu sync.Mutex
	conn   *connection
	wsURL  string

	// msgID is the next CDP message ID. It is scoped to this client so
	// independent connections never share a sequence.
	msgID   int64
	pending *pendingCalls
	watcher *eventWatcher

	done      chan struct{}
	closeOnce sync.Once

	limiter *rate.Limiter
	metrics *metrics.Transport
	tracer  *trace.Tracer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRateLimit throttles outbound commands to limit per second with the
// given burst.
func WithRateLimit(limit rate.Limit, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithMetrics records transport metrics in m.
func WithMetrics(m *metrics.Transport) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTracer creates a span for every command with t.
func WithTracer(t *trace.Tracer) ClientOption {
	return func(c *Client) {
		c.tracer = t
	}
}

// NewClient returns a new Client that is unusable until a CDP connection is
// established with Connect(). Cancelling ctx closes the connection.
func NewClient(ctx context.Context, logger *log.Logger, opts ...ClientOption) *Client {
	c := &Client{
		ctx:     ctx,
		logger:  logger,
		id:      uuid.New().String(),
		pending: newPendingCalls(),
		watcher: newEventWatcher(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Browser = domains.NewBrowser(c)
	c.Target = domains.NewTarget(c)

	return c
}

// Dial creates a Client and connects it to wsURL.
func Dial(ctx context.Context, wsURL string, logger *log.Logger, opts ...ClientOption) (*Client, error) {
	c := NewClient(ctx, logger, opts...)
	if err := c.Connect(wsURL); err != nil {
		return nil, err
	}
	return c, nil
}

// Connect to the browser that exposes a CDP API at wsURL.
// It returns as soon as the WebSocket handshake is done.
func (c *Client) Connect(wsURL string) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("%w to %q", ErrAlreadyConnected, c.wsURL)
	}

	conn, err := newConnection(c.ctx, wsURL)
	if err != nil {
		return err
	}
	c.conn = conn
	c.wsURL = wsURL
	c.logger.Infof("Client:Connect", "cid:%s established CDP connection to %q", c.id, wsURL)

	go c.recvLoop()
	context.AfterFunc(c.ctx, c.Close)

	return nil
}

// ID returns the unique ID of this client, used to correlate log entries.
func (c *Client) ID() string {
	return c.id
}

// WsURL returns the endpoint this client is connected to.
func (c *Client) WsURL() string {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.wsURL
}

// Done returns a channel that is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// IsConnected reports whether the receive loop is still running.
func (c *Client) IsConnected() bool {
	c.connMu.Lock()
	connected := c.conn != nil
	c.connMu.Unlock()

	select {
	case <-c.done:
		return false
	default:
		return connected
	}
}

// Close closes the WebSocket connection. Commands waiting for a response
// fail with ErrConnectionClosed once the receive loop notices.
func (c *Client) Close() {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		c.shutdown()
		return
	}
	if err := conn.close(); err != nil {
		c.logger.Debugf("Client:Close", "cid:%s %v", c.id, err)
	}
}

// Execute implements cdproto.Executor and performs a synchronous send and
// receive. The target session is taken from ctx (see WithSessionID).
func (c *Client) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	return c.Send(ctx, GetSessionID(ctx), method, params, res)
}

// Send writes a command for sessionID and blocks until its response
// arrives, ctx is done, or the connection is closed. An empty sessionID
// addresses the browser. If res is not nil, the result is decoded into it.
func (c *Client) Send(
	ctx context.Context, sessionID target.SessionID, method string,
	params easyjson.Marshaler, res easyjson.Unmarshaler,
) (err error) {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("sending %s: not connected: %w", method, ErrConnectionClosed)
	}
	select {
	case <-c.done:
		return fmt.Errorf("sending %s: %w", method, ErrConnectionClosed)
	default:
	}

	id := atomic.AddInt64(&c.msgID, 1) - 1

	ctx, span := c.tracer.TraceCommand(ctx, method, string(sessionID), id)
	defer func() { trace.End(span, err) }()

	buf := emptyParams
	if params != nil {
		if buf, err = easyjson.Marshal(params); err != nil {
			return fmt.Errorf("%w: %s params: %w", ErrSerialize, method, err)
		}
	}
	msg := &cdproto.Message{
		ID:        id,
		SessionID: sessionID,
		Method:    cdproto.MethodType(method),
		Params:    buf,
	}
	frame, err := conn.encode(msg)
	if err != nil {
		return err
	}
	defer conn.release(frame)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("throttling %s: %w", method, err)
		}
	}

	c.logger.Debugf("Client:Send", "cid:%s id:%d sid:%v method:%q", c.id, id, sessionID, method)

	// The slot must exist before the frame is written, otherwise a fast
	// reply could find nobody waiting.
	respCh := c.pending.register(id)
	start := time.Now()
	if err := conn.write(frame.Bytes()); err != nil {
		c.pending.forget(id)
		if c.closed() {
			return fmt.Errorf("sending %s: %w", method, ErrConnectionClosed)
		}
		return fmt.Errorf("sending %s: %w", method, err)
	}
	c.metrics.CommandSent(method)
	defer func() { c.metrics.CommandDone(method, start, err) }()

	select {
	case resp := <-respCh:
		return c.processResponse(method, resp, res)
	case <-c.done:
		// The response may have been routed right before the loop ended.
		select {
		case resp := <-respCh:
			return c.processResponse(method, resp, res)
		default:
		}
		return fmt.Errorf("waiting for %s response: %w", method, ErrConnectionClosed)
	case <-ctx.Done():
		c.pending.forget(id)
		c.logger.Debugf("Client:Send:<-ctx.Done()", "cid:%s id:%d method:%q err:%v", c.id, id, method, ctx.Err())
		return fmt.Errorf("waiting for %s response: %w", method, ctx.Err())
	}
}

// Subscribe returns a channel that receives the given CDP events and a
// function that unsubscribes and closes the channel. Events are dropped
// for a subscriber that doesn't keep up.
func (c *Client) Subscribe(events ...cdproto.MethodType) (<-chan *Event, func()) {
	return c.watcher.subscribe(events...)
}

func (c *Client) processResponse(method string, msg *cdproto.Message, res easyjson.Unmarshaler) error {
	if msg.Error != nil {
		return &ProtocolError{
			Method:  method,
			Code:    msg.Error.Code,
			Message: msg.Error.Message,
		}
	}
	if msg.Result == nil {
		return fmt.Errorf("%s: %w", method, ErrEmptyResponse)
	}
	if res == nil {
		return nil
	}
	if err := easyjson.Unmarshal(msg.Result, res); err != nil {
		return fmt.Errorf("%w: %s result: %w", ErrSerialize, method, err)
	}
	return nil
}

// recvLoop reads frames until the connection ends and routes responses to
// their waiters. Per-frame problems are logged and skipped.
func (c *Client) recvLoop() {
	defer func() {
		// gorilla connections can't be read from after an error.
		_ = c.conn.ws.Close()
		c.shutdown()
	}()

	for {
		typ, buf, err := c.conn.read()
		if err != nil {
			if isClosedError(err) {
				c.logger.Debugf("Client:recvLoop", "cid:%s connection closed: %v", c.id, err)
			} else {
				c.logger.Errorf("Client:recvLoop", "cid:%s wsURL:%q reading: %v", c.id, c.wsURL, err)
			}
			return
		}

		if typ != websocket.TextMessage {
			c.logger.Warnf("Client:recvLoop", "cid:%s skipping non-text frame of type %d", c.id, typ)
			c.metrics.FrameDropped(metrics.ReasonNotText)
			continue
		}

		var msg cdproto.Message
		if err := easyjson.Unmarshal(buf, &msg); err != nil {
			c.logger.Errorf("Client:recvLoop", "cid:%s skipping undecodable frame: %v", c.id, err)
			c.metrics.FrameDropped(metrics.ReasonMalformed)
			continue
		}

		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *cdproto.Message) {
	switch {
	case msg.Method != "":
		c.onEvent(msg)
	default:
		ch, ok := c.pending.take(msg.ID)
		if !ok {
			c.logger.Warnf("Client:dispatch", "cid:%s id:%d nobody is waiting for this response", c.id, msg.ID)
			c.metrics.FrameDropped(metrics.ReasonUnroutable)
			return
		}
		ch <- msg
	}
}

func (c *Client) onEvent(msg *cdproto.Message) {
	if !c.watcher.wants(msg.Method) {
		c.logger.Warnf("Client:onEvent", "cid:%s sid:%v dropping unroutable event %q", c.id, msg.SessionID, msg.Method)
		c.metrics.FrameDropped(metrics.ReasonUnroutable)
		return
	}

	data, err := cdproto.UnmarshalMessage(msg)
	if err != nil {
		c.logger.Errorf("Client:onEvent", "cid:%s decoding event %q: %v", c.id, msg.Method, err)
		c.metrics.FrameDropped(metrics.ReasonMalformed)
		return
	}

	delivered, skipped := c.watcher.notify(&Event{
		Name:      msg.Method,
		SessionID: msg.SessionID,
		Data:      data,
	})
	if skipped > 0 {
		c.logger.Warnf("Client:onEvent", "cid:%s %d subscribers skipped event %q", c.id, skipped, msg.Method)
	}
	if delivered > 0 {
		c.metrics.EventDelivered(string(msg.Method))
	}
}

// shutdown marks the client as closed. Waiters blocked in Send observe
// ErrConnectionClosed.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		if n := c.pending.clear(); n > 0 {
			c.logger.Debugf("Client:shutdown", "cid:%s abandoning %d pending calls", c.id, n)
		}
		c.watcher.closeAll()
		c.metrics.ConnectionClosed()
	})
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func isClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
