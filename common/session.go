package common

import (
	"context"

	cdppkg "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"

	"github.com/grafana/downstage/cdp"
)

var _ cdppkg.Executor = Session{}

// Session addresses commands on a CDP connection: to the browser when the
// session ID is empty, or to the attached target it names. Sessions are
// cheap values; any number of them can share one connection.
type Session struct {
	client *cdp.Client
	id     target.SessionID
}

// NewSession returns a Session sending commands for id over client.
func NewSession(client *cdp.Client, id target.SessionID) Session {
	return Session{client: client, id: id}
}

// ID returns the session ID, empty for the browser session.
func (s Session) ID() target.SessionID {
	return s.id
}

// WithSessionID returns a Session for id on the same connection.
func (s Session) WithSessionID(id target.SessionID) Session {
	return Session{client: s.client, id: id}
}

// Execute implements the cdproto Executor interface, so cdproto actions
// can run on the session with action.Do(cdp.WithExecutor(ctx, session)).
func (s Session) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	return s.client.Send(ctx, s.id, method, params, res) //nolint:wrapcheck
}
