package render

import (
	"context"
	"time"
)

type Viewport struct {
	Width  int
	Height int
}

type Cookie struct {
	Name  string
	Value string
}

// Request describes a single page load.
type Request struct {
	URL       string
	UserAgent string
	Headers   map[string]string
	Cookies   []Cookie
	Viewport  Viewport
	// InitScript runs in every frame before the page's own scripts.
	InitScript string
	// Script runs after the DOM is ready and may return a promise.
	Script  string
	Timeout time.Duration
	Settle  time.Duration
}

// Response is the raw result of a page load.
type Response struct {
	HTML   string
	Title  string
	Links  []string
	Status int
}

// Renderer loads a page. Render returns ErrRendererUnavailable (or an error
// wrapping exec.ErrNotFound) when the underlying engine cannot run at all.
type Renderer interface {
	Available() bool
	Render(ctx context.Context, req Request) (*Response, error)
}
