package cdp

import (
	"context"

	"github.com/chromedp/cdproto/target"
)

type ctxKey int

const (
	ctxKeySessionID ctxKey = iota
)

// WithSessionID returns a context that routes commands executed through
// Client.Execute to the target attached with sessionID.
func WithSessionID(ctx context.Context, sessionID target.SessionID) context.Context {
	return context.WithValue(ctx, ctxKeySessionID, sessionID)
}

// GetSessionID returns the session ID stored in ctx, or an empty ID
// which addresses the browser itself.
func GetSessionID(ctx context.Context) target.SessionID {
	sid, _ := ctx.Value(ctxKeySessionID).(target.SessionID)
	return sid
}
