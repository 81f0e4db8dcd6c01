package extract

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/go-scripts/siteextract/internal/config"
	"github.com/go-scripts/siteextract/internal/llm"
	"github.com/go-scripts/siteextract/internal/metrics"
	"github.com/go-scripts/siteextract/pkg/common"
)

var tracer = otel.Tracer("siteextract/extract")

// Completer is the language-model collaborator.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Engine turns a crawl corpus and a query into an ExtractionResult.
type Engine struct {
	completer   Completer
	corpusChars int
	timeout     time.Duration
	logger      *log.Logger
	metrics     *metrics.Metrics
}

type Option func(*Engine)

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an Engine around completer.
func NewEngine(completer Completer, cfg config.ExtractConfig, opts ...Option) *Engine {
	e := &Engine{
		completer:   completer,
		corpusChars: cfg.CorpusChars,
		timeout:     cfg.Timeout.Duration,
		logger:      log.Default(),
	}
	if e.corpusChars <= 0 {
		e.corpusChars = DefaultCorpusChars
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract asks the model for records matching query. It never returns an
// error: service and parse failures produce an empty result whose summary
// says what went wrong. Callers must check their own ctx afterwards, since a
// cancelled caller also gets an empty result. The output is not reproducible
// across calls.
func (e *Engine) Extract(ctx context.Context, query, corpus string) common.ExtractionResult {
	parent := ctx
	ctx, span := tracer.Start(ctx, "Extract")
	defer span.End()
	span.SetAttributes(
		attribute.Int("corpus_chars", len(corpus)),
		attribute.String("query", query),
	)

	if strings.TrimSpace(corpus) == "" {
		e.metrics.IncExtraction("empty")
		return EmptyResult(DataTypeUnknown, "No page content was available to extract data from.")
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	reply, err := e.completer.Complete(ctx, BuildMessages(query, corpus, e.corpusChars))
	if err != nil && parent.Err() != nil {
		e.logger.Warn("extraction interrupted", "err", parent.Err())
		e.metrics.IncExtraction("canceled")
		span.SetStatus(codes.Error, "canceled")
		return EmptyResult(DataTypeUnknown, "Extraction was interrupted before the language model replied.")
	}
	if err != nil {
		e.logger.Error("extraction request failed", "err", err)
		e.metrics.IncExtraction("llm_error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return EmptyResult(DataTypeUnknown,
			"No structured data could be extracted because the language model service did not respond successfully.")
	}

	res, err := parseReply(reply)
	if err != nil {
		e.logger.Warn("could not parse model reply", "err", err, "reply_chars", len(reply))
		e.metrics.IncExtraction("parse_error")
		span.RecordError(err)
		return parseFailure(err)
	}

	outcome := "ok"
	if len(res.Items) == 0 {
		outcome = "no_items"
	}
	e.metrics.IncExtraction(outcome)
	span.SetAttributes(
		attribute.Int("items", len(res.Items)),
		attribute.String("data_type", res.DataType),
	)
	e.logger.Debug("extraction finished", "items", len(res.Items), "data_type", res.DataType)
	return res
}
