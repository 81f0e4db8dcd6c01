package render

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/gocolly/colly/v2"

	"github.com/go-scripts/siteextract/internal/config"
)

// Fallback fetches the raw document without executing scripts.
type Fallback struct {
	transport http.RoundTripper
}

// FallbackOption configures a Fallback.
type FallbackOption func(*Fallback)

// WithTransport replaces the HTTP transport, mainly for tests.
func WithTransport(rt http.RoundTripper) FallbackOption {
	return func(f *Fallback) {
		f.transport = rt
	}
}

// NewFallback builds the plain fetcher. Unless cfg.PlainTransport is set the
// transport mimics a browser TLS fingerprint.
func NewFallback(cfg config.RenderConfig, opts ...FallbackOption) *Fallback {
	var transport http.RoundTripper = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.PageTimeout.Duration,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if !cfg.PlainTransport {
		transport = cloudflarebp.AddCloudFlareByPass(transport)
	}

	f := &Fallback{transport: transport}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Available is always true; a plain GET needs no external engine.
func (f *Fallback) Available() bool { return true }

// Render issues a GET for req.URL. Scripts, viewport and init scripts are
// ignored.
func (f *Fallback) Render(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := colly.NewCollector(colly.AllowURLRevisit())
	if req.UserAgent != "" {
		c.UserAgent = req.UserAgent
	}
	if req.Timeout > 0 {
		c.SetRequestTimeout(req.Timeout)
	}
	c.WithTransport(&contextTransport{ctx: ctx, next: f.transport})

	var (
		resp     Response
		fetchErr error
	)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		for k, v := range req.Headers {
			r.Headers.Set(k, v)
		}
		if cookie := cookieHeader(req.Cookies); cookie != "" {
			r.Headers.Set("Cookie", cookie)
		}
	})

	c.OnResponse(func(r *colly.Response) {
		resp.Status = r.StatusCode
		resp.HTML = string(r.Body)
	})

	c.OnHTML("title", func(e *colly.HTMLElement) {
		if resp.Title == "" {
			resp.Title = strings.TrimSpace(e.Text)
		}
	})

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		if abs := resolveHref(e.Request.URL, e.Attr("href")); abs != "" {
			resp.Links = append(resp.Links, abs)
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = classifyError(err, status)
	})

	visitErr := c.Visit(req.URL)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if visitErr != nil {
		return nil, classifyError(fmt.Errorf("visit %s: %w", req.URL, visitErr), resp.Status)
	}
	return &resp, nil
}

// contextTransport ties every request colly sends to ctx, so an in-flight
// fetch is abandoned when the caller gives up.
type contextTransport struct {
	ctx  context.Context
	next http.RoundTripper
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithCancel(req.Context())
	stop := context.AfterFunc(t.ctx, cancel)
	resp, err := t.next.RoundTrip(req.WithContext(ctx))
	if err != nil {
		stop()
		cancel()
		return nil, err
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, done: func() {
		stop()
		cancel()
	}}
	return resp, nil
}

// cancelBody releases the request context once the body is closed.
type cancelBody struct {
	io.ReadCloser
	done func()
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.done()
	return err
}

func cookieHeader(cookies []Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, (&http.Cookie{Name: c.Name, Value: c.Value}).String())
	}
	return strings.Join(parts, "; ")
}
