package api

import "context"

// BrowserType is the public interface of a CDP browser client.
type BrowserType interface {
	Connect(ctx context.Context, wsEndpoint string) (Browser, error)
	ExecutablePath() string
	Launch(ctx context.Context) (_ Browser, browserProcessID int, _ error)
	Name() string
}
