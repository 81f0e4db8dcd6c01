package crawl

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-scripts/siteextract/internal/config"
	"github.com/go-scripts/siteextract/internal/queue"
	"github.com/go-scripts/siteextract/internal/render"
	"github.com/go-scripts/siteextract/pkg/common"
)

var tracer = otel.Tracer("siteextract/crawl")

// Fetcher loads a single page. render.Adapter implements it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, query string) (*common.Page, error)
}

// Observer is notified around every page fetch.
type Observer interface {
	PageStarted(rawURL string, depth int)
	PageFinished(rawURL string, depth int, err error)
}

type nopObserver struct{}

func (nopObserver) PageStarted(string, int)         {}
func (nopObserver) PageFinished(string, int, error) {}

// Outcome is what a traversal produced.
type Outcome struct {
	Success      bool
	Content      string
	TotalPages   int
	Links        []string
	Visited      []string
	Records      []common.VisitRecord
	FallbackUsed bool
	Error        error
}

// Crawler walks a site depth-first from a seed URL.
type Crawler struct {
	fetcher  Fetcher
	cfg      config.CrawlConfig
	logger   *log.Logger
	observer Observer
}

type CrawlerOption func(*Crawler)

func WithCrawlerLogger(l *log.Logger) CrawlerOption {
	return func(c *Crawler) {
		c.logger = l
	}
}

func WithObserver(o Observer) CrawlerOption {
	return func(c *Crawler) {
		if o != nil {
			c.observer = o
		}
	}
}

// NewCrawler creates a Crawler that fetches through f.
func NewCrawler(f Fetcher, cfg config.CrawlConfig, opts ...CrawlerOption) *Crawler {
	c := &Crawler{
		fetcher:  f,
		cfg:      cfg,
		logger:   log.Default(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Crawl visits target.URL and, while depth < MaxDepth, the first MaxLinks
// internal links of every fetched page. A URL is fetched at most once.
// Pages are visited sequentially in depth-first document order.
func (c *Crawler) Crawl(ctx context.Context, target common.CrawlTarget) Outcome {
	ctx, span := tracer.Start(ctx, "Crawl", trace.WithAttributes(
		attribute.String("url", target.URL),
		attribute.Int("max_depth", target.MaxDepth),
		attribute.Int("max_links", target.MaxLinks),
	))
	defer span.End()

	seed, err := url.Parse(target.URL)
	if err != nil || seed.Host == "" {
		return failed(fmt.Errorf("invalid seed URL %q", target.URL))
	}

	frontier := queue.New()
	frontier.Push(queue.Entry{URL: target.URL, Depth: 0})

	var (
		corpus     strings.Builder
		out        Outcome
		discovered = make(map[string]bool)
	)

	for {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "canceled")
			return failed(fmt.Errorf("crawl interrupted: %w", err))
		}

		entry, ok := frontier.Pop()
		if !ok {
			break
		}
		if entry.Depth > target.MaxDepth || !frontier.MarkVisited(entry.URL) {
			continue
		}

		c.observer.PageStarted(entry.URL, entry.Depth)
		page, err := c.fetcher.Fetch(ctx, entry.URL, target.Query)
		c.observer.PageFinished(entry.URL, entry.Depth, err)

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				span.SetStatus(codes.Error, "canceled")
				return failed(fmt.Errorf("crawl interrupted: %w", ctxErr))
			}
			if entry.Depth == 0 {
				span.RecordError(err)
				span.SetStatus(codes.Error, "seed fetch failed")
				return failed(fmt.Errorf("fetch %s: %w", entry.URL, err))
			}
			c.logger.Error("fetch failed", "url", entry.URL, "depth", entry.Depth, "err", err, "error_type", render.ErrorType(err))
			continue
		}

		out.TotalPages++
		out.FallbackUsed = out.FallbackUsed || page.FallbackUsed

		rec := common.VisitRecord{
			URL:          entry.URL,
			Title:        page.Title,
			Content:      truncate(page.Text, c.cfg.MaxPageChars),
			Depth:        entry.Depth,
			FallbackUsed: page.FallbackUsed,
		}
		out.Records = append(out.Records, rec)
		writeRecord(&corpus, rec)

		links := internalLinks(seed, entry.URL, page.Links, c.cfg.ExcludePaths)
		for _, l := range links {
			if k := queue.Key(l); !discovered[k] {
				discovered[k] = true
				out.Links = append(out.Links, l)
			}
		}

		c.logger.Debug("page fetched", "url", entry.URL, "depth", entry.Depth,
			"chars", utf8.RuneCountInString(rec.Content), "links", len(links), "fallback", page.FallbackUsed)

		if entry.Depth >= target.MaxDepth {
			continue
		}
		if len(links) > target.MaxLinks {
			links = links[:target.MaxLinks]
		}
		children := make([]queue.Entry, 0, len(links))
		for _, l := range links {
			if !frontier.IsVisited(l) {
				children = append(children, queue.Entry{URL: l, Depth: entry.Depth + 1})
			}
		}
		frontier.Push(children...)
	}

	out.Success = true
	out.Content = corpus.String()
	out.Visited = frontier.Visited()
	if out.Links == nil {
		out.Links = []string{}
	}
	span.SetAttributes(attribute.Int("total_pages", out.TotalPages))
	return out
}

func failed(err error) Outcome {
	return Outcome{Success: false, Error: err, Links: []string{}}
}

func writeRecord(b *strings.Builder, rec common.VisitRecord) {
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	fmt.Fprintf(b, "--- Page: %s (depth %d) ---\n", rec.URL, rec.Depth)
	if rec.Title != "" {
		fmt.Fprintf(b, "Title: %s\n", rec.Title)
	}
	b.WriteString(rec.Content)
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
