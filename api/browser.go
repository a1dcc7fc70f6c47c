// Package api defines the public interfaces for controlling a browser.
package api

import "context"

// Browser is the public interface of a CDP browser.
type Browser interface {
	Clone() Browser
	Close(ctx context.Context) error
	IsConnected() bool
	NewPage(ctx context.Context) (Page, error)
	Pid() int
	Release()
	UserAgent(ctx context.Context) (string, error)
	Version(ctx context.Context) (string, error)
}

// Page is the public interface of a browser tab.
type Page interface {
	Clone() Page
	Close(ctx context.Context) error
	Document(ctx context.Context) (ElementHandle, error)
	Goto(ctx context.Context, url string) error
	QuerySelector(ctx context.Context, selector string) (ElementHandle, error)
	Release()
	Screenshot(ctx context.Context, path string) ([]byte, error)
}

// ElementHandle is the public interface of a DOM element.
type ElementHandle interface {
	BoundingBox(ctx context.Context) (*Rect, error)
	Click(ctx context.Context) error
	QuerySelector(ctx context.Context, selector string) (ElementHandle, error)
}

// Rect is a rectangle in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}
