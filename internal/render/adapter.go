package render

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/go-scripts/siteextract/internal/config"
	"github.com/go-scripts/siteextract/internal/metrics"
	"github.com/go-scripts/siteextract/pkg/common"
)

var tracer = otel.Tracer("siteextract/render")

// Adapter produces the cleaned text of one page, preferring a scripted
// render and degrading to a plain fetch when the renderer is unavailable.
// Fetch errors are returned as-is; nothing is retried here.
type Adapter struct {
	cfg      config.RenderConfig
	renderer Renderer
	fallback Renderer
	cache    *expirable.LRU[string, *common.Page]
	logger   *log.Logger
	metrics  *metrics.Metrics

	// distinguishes an explicit nil renderer from the default
	rendererSet bool
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithRenderer replaces the scripted renderer. A nil renderer forces
// fallback mode.
func WithRenderer(r Renderer) AdapterOption {
	return func(a *Adapter) {
		a.renderer = r
		a.rendererSet = true
	}
}

// WithFallback replaces the plain fetcher.
func WithFallback(r Renderer) AdapterOption {
	return func(a *Adapter) {
		a.fallback = r
	}
}

func WithLogger(l *log.Logger) AdapterOption {
	return func(a *Adapter) {
		a.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) AdapterOption {
	return func(a *Adapter) {
		a.metrics = m
	}
}

// NewAdapter builds an Adapter backed by headless Chrome and a colly
// fallback unless overridden by opts.
func NewAdapter(cfg config.RenderConfig, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		cfg:    cfg,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if !a.rendererSet {
		a.renderer = NewChromeRenderer(cfg, a.logger)
	}
	if a.fallback == nil {
		a.fallback = NewFallback(cfg)
	}
	if cfg.CacheSize > 0 {
		a.cache = expirable.NewLRU[string, *common.Page](cfg.CacheSize, nil, cfg.CacheTTL.Duration)
	}
	return a
}

// Close releases the renderer, if it holds resources.
func (a *Adapter) Close() {
	if c, ok := a.renderer.(interface{ Close() }); ok {
		c.Close()
	}
}

// Request builds the render request for rawURL with wait keywords derived
// from query.
func (a *Adapter) Request(rawURL, query string) Request {
	headers := map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language":           a.cfg.AcceptLanguage,
		"Upgrade-Insecure-Requests": "1",
	}
	if a.cfg.Currency != "" {
		headers["X-Currency"] = a.cfg.Currency
	}
	for k, v := range a.cfg.Headers {
		headers[k] = v
	}

	var cookies []Cookie
	if lang := firstLanguage(a.cfg.AcceptLanguage); lang != "" {
		cookies = append(cookies, Cookie{Name: "lang", Value: lang})
	}
	if a.cfg.Currency != "" {
		cookies = append(cookies, Cookie{Name: "currency", Value: a.cfg.Currency})
	}

	return Request{
		URL:        rawURL,
		UserAgent:  a.cfg.UserAgent,
		Headers:    headers,
		Cookies:    cookies,
		Viewport:   Viewport{Width: a.cfg.ViewportWidth, Height: a.cfg.ViewportHeight},
		InitScript: StealthScript(a.cfg.AcceptLanguage),
		Script: PageScript(PageScriptOptions{
			Keywords:    WaitKeywords(a.cfg.WaitKeywords, query),
			Polls:       a.cfg.WaitPolls,
			Interval:    a.cfg.WaitInterval.Duration,
			ScrollStep:  a.cfg.ScrollStep,
			ScrollPause: a.cfg.ScrollPause.Duration,
		}),
		Timeout: a.cfg.PageTimeout.Duration,
		Settle:  a.cfg.SettleDelay.Duration,
	}
}

func firstLanguage(acceptLanguage string) string {
	langs := languageList(acceptLanguage)
	if len(langs) == 0 {
		return ""
	}
	return langs[0]
}

// Fetch loads rawURL and returns its cleaned text and links.
func (a *Adapter) Fetch(ctx context.Context, rawURL, query string) (*common.Page, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("url", rawURL))

	if a.cache != nil {
		if page, ok := a.cache.Get(cacheKey(rawURL, query)); ok {
			a.metrics.IncPage("cached")
			span.SetAttributes(attribute.Bool("cached", true))
			return page, nil
		}
	}

	start := time.Now()
	req := a.Request(rawURL, query)

	resp, fallbackUsed, err := a.load(ctx, req)
	a.metrics.ObserveFetch(time.Since(start))
	if err != nil {
		errType := ErrorType(err)
		a.metrics.IncFetchError(errType)
		span.RecordError(err)
		span.SetStatus(codes.Error, errType)
		return nil, err
	}

	mode := "rendered"
	if fallbackUsed {
		mode = "fallback"
	}
	a.metrics.IncPage(mode)
	span.SetAttributes(attribute.Bool("fallback_used", fallbackUsed))

	links := resp.Links
	if len(links) == 0 {
		links = ExtractLinks(resp.HTML, rawURL)
	}
	title := resp.Title
	if title == "" {
		title = ExtractTitle(resp.HTML)
	}

	page := &common.Page{
		URL:          rawURL,
		Title:        title,
		Text:         ExtractText(resp.HTML),
		Links:        links,
		FallbackUsed: fallbackUsed,
	}
	if a.cache != nil {
		a.cache.Add(cacheKey(rawURL, query), page)
	}
	return page, nil
}

// cacheKey includes the query because the wait keywords derive from it.
func cacheKey(rawURL, query string) string {
	return query + "\x00" + rawURL
}

func (a *Adapter) load(ctx context.Context, req Request) (*Response, bool, error) {
	if a.renderer != nil && a.renderer.Available() {
		resp, err := a.renderer.Render(ctx, req)
		if err == nil {
			return resp, false, nil
		}
		if !isUnavailable(err) {
			return nil, false, err
		}
		a.logger.Warn("renderer unavailable, using plain fetch", "url", req.URL, "err", err)
	} else {
		a.logger.Debug("renderer not available, using plain fetch", "url", req.URL)
	}

	resp, err := a.fallback.Render(ctx, req)
	if err != nil {
		return nil, true, fmt.Errorf("plain fetch: %w", err)
	}
	return resp, true, nil
}
