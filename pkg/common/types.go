package common

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	DefaultMaxDepth = 2
	DefaultMaxLinks = 5
)

// CrawlTarget describes one crawl-and-extract invocation. It is built once
// and passed by value.
type CrawlTarget struct {
	URL      string `json:"url"`
	Query    string `json:"query"`
	MaxDepth int    `json:"max_depth"`
	MaxLinks int    `json:"max_links"`
}

// NewCrawlTarget returns a target with the default depth and link limits.
func NewCrawlTarget(rawURL, query string) CrawlTarget {
	return CrawlTarget{
		URL:      strings.TrimSpace(rawURL),
		Query:    strings.TrimSpace(query),
		MaxDepth: DefaultMaxDepth,
		MaxLinks: DefaultMaxLinks,
	}
}

// Validate reports whether the target can be crawled.
func (t CrawlTarget) Validate() error {
	if t.URL == "" {
		return errors.New("url cannot be empty")
	}
	u, err := url.Parse(t.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url must include a host")
	}
	if strings.TrimSpace(t.Query) == "" {
		return errors.New("query cannot be empty")
	}
	if t.MaxDepth < 0 {
		return errors.New("max depth cannot be negative")
	}
	if t.MaxLinks < 0 {
		return errors.New("max links cannot be negative")
	}
	return nil
}

// Page is what a single fetch produces before it is added to the corpus.
type Page struct {
	URL          string   `json:"url"`
	Title        string   `json:"title"`
	Text         string   `json:"text"`
	Links        []string `json:"links"`
	FallbackUsed bool     `json:"fallback_used"`
}

// VisitRecord is one fetched page as it appears in the corpus.
type VisitRecord struct {
	URL          string `json:"url"`
	Title        string `json:"title,omitempty"`
	Content      string `json:"content"`
	Depth        int    `json:"depth"`
	FallbackUsed bool   `json:"fallback_used"`
}

// ExtractionResult is the validated reply of the extraction step. Items is
// never nil and Summary is never empty once the engine has normalized it.
type ExtractionResult struct {
	Items    []Record `json:"items"`
	Summary  string   `json:"summary"`
	DataType string   `json:"data_type"`
	Columns  []string `json:"columns"`
}

// CrawlResult is the only value returned across the pipeline boundary.
type CrawlResult struct {
	Success       bool              `json:"success"`
	URL           string            `json:"url"`
	Query         string            `json:"query"`
	ExtractedData *ExtractionResult `json:"extracted_data,omitempty"`
	TableHTML     *string           `json:"table_html"`
	TableData     []Record          `json:"table_data"`
	Summary       string            `json:"summary"`
	TotalPages    int               `json:"total_pages"`
	Links         []string          `json:"links"`
	FallbackUsed  bool              `json:"fallback_used"`
	CrawlID       string            `json:"crawl_id,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// FailedResult builds a well-formed failure envelope.
func FailedResult(target CrawlTarget, msg string) *CrawlResult {
	return &CrawlResult{
		Success:   false,
		URL:       target.URL,
		Query:     target.Query,
		TableData: []Record{},
		Links:     []string{},
		Summary:   msg,
		Error:     msg,
	}
}
