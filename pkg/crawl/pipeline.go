package crawl

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/go-scripts/siteextract/internal/config"
	"github.com/go-scripts/siteextract/internal/extract"
	"github.com/go-scripts/siteextract/internal/llm"
	"github.com/go-scripts/siteextract/internal/metrics"
	"github.com/go-scripts/siteextract/internal/present"
	"github.com/go-scripts/siteextract/internal/render"
	"github.com/go-scripts/siteextract/pkg/common"
)

// InternalErrorMessage is reported when a crawl is aborted by a panic.
const InternalErrorMessage = "internal error during crawl and extract"

// Pipeline wires the crawler, the extraction engine and the formatter.
// A Pipeline holds no per-crawl state and may serve concurrent calls.
type Pipeline struct {
	cfg       *config.Config
	fetcher   Fetcher
	adapter   *render.Adapter
	completer extract.Completer
	engine    *extract.Engine
	logger    *log.Logger
	metrics   *metrics.Metrics
	observer  Observer

	adapterOpts []render.AdapterOption
}

type Option func(*Pipeline)

func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithPageObserver reports page progress of every crawl to o. If o also has
// an ExtractionStarted method it is called before the model request.
func WithPageObserver(o Observer) Option {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// WithFetcher replaces the render adapter.
func WithFetcher(f Fetcher) Option {
	return func(p *Pipeline) {
		p.fetcher = f
	}
}

// WithCompleter replaces the chat completion client.
func WithCompleter(c extract.Completer) Option {
	return func(p *Pipeline) {
		p.completer = c
	}
}

// WithAdapterOptions passes options to the default render adapter.
func WithAdapterOptions(opts ...render.AdapterOption) Option {
	return func(p *Pipeline) {
		p.adapterOpts = append(p.adapterOpts, opts...)
	}
}

// New validates cfg and builds a Pipeline.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	p := &Pipeline{
		cfg:    cfg,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.fetcher == nil {
		adapterOpts := append([]render.AdapterOption{
			render.WithLogger(p.logger),
			render.WithMetrics(p.metrics),
		}, p.adapterOpts...)
		p.adapter = render.NewAdapter(cfg.Render, adapterOpts...)
		p.fetcher = p.adapter
	}
	if p.completer == nil {
		p.completer = llm.New(cfg.LLM, llm.WithLogger(p.logger))
	}
	p.engine = extract.NewEngine(p.completer, cfg.Extract,
		extract.WithLogger(p.logger),
		extract.WithMetrics(p.metrics),
	)
	return p, nil
}

// Close releases the browser held by the default render adapter.
func (p *Pipeline) Close() {
	if p.adapter != nil {
		p.adapter.Close()
	}
}

// CrawlAndExtract crawls target, extracts what its query asks for and
// formats the records as a table. It always returns a well-formed result;
// only a failed seed fetch, an invalid target, cancellation or an internal
// fault produce Success == false.
func (p *Pipeline) CrawlAndExtract(ctx context.Context, target common.CrawlTarget) (result *common.CrawlResult) {
	crawlID := uuid.NewString()
	logger := p.logger.With("crawl_id", crawlID)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic during crawl", "panic", r, "stack", string(debug.Stack()))
			p.metrics.IncCrawl("panic")
			result = common.FailedResult(target, InternalErrorMessage)
			result.CrawlID = crawlID
		}
	}()

	fail := func(status, msg string) *common.CrawlResult {
		p.metrics.IncCrawl(status)
		res := common.FailedResult(target, msg)
		res.CrawlID = crawlID
		return res
	}

	if err := target.Validate(); err != nil {
		logger.Error("invalid crawl target", "url", target.URL, "err", err)
		return fail("invalid", fmt.Sprintf("invalid crawl target: %v", err))
	}

	if d := p.cfg.PipelineTimeout.Duration; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	logger.Info("crawl started", "url", target.URL, "query", target.Query,
		"max_depth", target.MaxDepth, "max_links", target.MaxLinks)

	crawler := NewCrawler(p.fetcher, p.cfg.Crawl,
		WithCrawlerLogger(logger),
		WithObserver(p.observer),
	)
	outcome := crawler.Crawl(ctx, target)
	if !outcome.Success {
		logger.Error("crawl failed", "url", target.URL, "err", outcome.Error, "error_type", render.ErrorType(outcome.Error))
		return fail("failed", fmt.Sprintf("Failed to crawl %s: %v", target.URL, outcome.Error))
	}

	if o, ok := p.observer.(interface{ ExtractionStarted() }); ok {
		o.ExtractionStarted()
	}
	extraction := p.engine.Extract(ctx, target.Query, outcome.Content)
	if err := ctx.Err(); err != nil {
		logger.Error("extraction interrupted", "url", target.URL, "err", err)
		return fail("failed", fmt.Sprintf("Failed to crawl %s: crawl interrupted: %v", target.URL, err))
	}
	table := present.Format(extraction)

	logger.Info("crawl finished",
		"pages", outcome.TotalPages,
		"links", len(outcome.Links),
		"items", len(extraction.Items),
		"data_type", extraction.DataType,
		"fallback", outcome.FallbackUsed,
		"elapsed", time.Since(start).Round(time.Millisecond))
	p.metrics.IncCrawl("success")

	return &common.CrawlResult{
		Success:       true,
		URL:           target.URL,
		Query:         target.Query,
		ExtractedData: &extraction,
		TableHTML:     table.HTML,
		TableData:     table.Rows,
		Summary:       extraction.Summary,
		TotalPages:    outcome.TotalPages,
		Links:         outcome.Links,
		FallbackUsed:  outcome.FallbackUsed,
		CrawlID:       crawlID,
	}
}

// CrawlAndExtract runs a single crawl with the default configuration and
// SITEEXTRACT_* environment overrides.
func CrawlAndExtract(ctx context.Context, rawURL, query string, maxDepth, maxLinks int) *common.CrawlResult {
	target := common.NewCrawlTarget(rawURL, query)
	target.MaxDepth = maxDepth
	target.MaxLinks = maxLinks

	p, err := New(config.FromEnv())
	if err != nil {
		return common.FailedResult(target, err.Error())
	}
	defer p.Close()

	return p.CrawlAndExtract(ctx, target)
}
