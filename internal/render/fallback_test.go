package render

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-scripts/siteextract/internal/config"
)

func htmlResponder(status int, body string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(status, body)
		resp.Header.Set("Content-Type", "text/html; charset=utf-8")
		return resp, nil
	}
}

func plainConfig() config.RenderConfig {
	cfg := config.DefaultConfig().Render
	cfg.PlainTransport = true
	cfg.PageTimeout = config.D(5 * time.Second)
	return cfg
}

func TestFallbackRender(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/rates", htmlResponder(200,
		`<html><head><title>Rates</title></head><body>
			<a href="/rates/eur">EUR</a>
			<a href="mailto:x@example.test">mail</a>
			<p>USD 1.00</p>
		</body></html>`))

	f := NewFallback(plainConfig(), WithTransport(transport))
	resp, err := f.Render(context.Background(), Request{URL: "http://example.test/rates"})
	require.NoError(t, err)

	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "Rates", resp.Title)
	assert.Equal(t, []string{"http://example.test/rates/eur"}, resp.Links)
	assert.Contains(t, resp.HTML, "USD 1.00")
	assert.True(t, f.Available())
}

func TestFallbackStatusErrors(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusNotFound, expected: "not_found"},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", "http://example.test/", htmlResponder(tt.status, "<html></html>"))

			f := NewFallback(plainConfig(), WithTransport(transport))
			_, err := f.Render(context.Background(), Request{URL: "http://example.test/"})
			require.Error(t, err)
			assert.Equal(t, tt.expected, ErrorType(err))
		})
	}
}

func TestFallbackSendsHeadersAndCookies(t *testing.T) {
	var got *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	t.Cleanup(server.Close)

	a := NewAdapter(plainConfig(), WithRenderer(nil))
	req := a.Request(server.URL, "rates")

	f := NewFallback(plainConfig())
	_, err := f.Render(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "en-US,en;q=0.9", got.Header.Get("Accept-Language"))
	assert.Contains(t, got.Header.Get("Accept"), "text/html")
	assert.Equal(t, config.DefaultConfig().Render.UserAgent, got.UserAgent())

	cookie, err := got.Cookie("currency")
	require.NoError(t, err)
	assert.Equal(t, "USD", cookie.Value)
	cookie, err = got.Cookie("lang")
	require.NoError(t, err)
	assert.Equal(t, "en-US", cookie.Value)
}

func TestFallbackCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFallback(plainConfig(), WithTransport(httpmock.NewMockTransport()))
	_, err := f.Render(ctx, Request{URL: "http://example.test/"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFallbackAbandonsSlowFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
			w.Write([]byte("<html><title>late</title></html>"))
		}
	}))
	t.Cleanup(server.Close)

	cfg := plainConfig()
	cfg.PageTimeout = config.D(30 * time.Second)
	f := NewFallback(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.Render(ctx, Request{URL: server.URL, Timeout: 30 * time.Second})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 2*time.Second)
}
