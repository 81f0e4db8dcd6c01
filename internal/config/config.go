package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Duration is a time.Duration that reads "30s"-style strings or plain
// nanosecond numbers from config files.
type Duration struct {
	time.Duration
}

func D(d time.Duration) Duration { return Duration{d} }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case float64:
		d.Duration = time.Duration(t)
	case string:
		parsed, err := time.ParseDuration(t)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", t, err)
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

// Config holds every tunable of the pipeline.
type Config struct {
	Crawl   CrawlConfig   `json:"crawl"`
	Render  RenderConfig  `json:"render"`
	LLM     LLMConfig     `json:"llm"`
	Extract ExtractConfig `json:"extract"`

	// PipelineTimeout bounds one whole crawl-and-extract call.
	PipelineTimeout Duration `json:"pipeline_timeout"`
}

type CrawlConfig struct {
	MaxDepth     int      `json:"max_depth"`
	MaxLinks     int      `json:"max_links"`
	MaxPageChars int      `json:"max_page_chars"`
	ExcludePaths []string `json:"exclude_paths"`
}

type RenderConfig struct {
	DisableRender  bool              `json:"disable_render"`
	ChromePath     string            `json:"chrome_path"`
	UserAgent      string            `json:"user_agent"`
	ViewportWidth  int               `json:"viewport_width"`
	ViewportHeight int               `json:"viewport_height"`
	AcceptLanguage string            `json:"accept_language"`
	Currency       string            `json:"currency"`
	Headers        map[string]string `json:"headers"`
	PageTimeout    Duration          `json:"page_timeout"`
	SettleDelay    Duration          `json:"settle_delay"`
	WaitPolls      int               `json:"wait_polls"`
	WaitInterval   Duration          `json:"wait_interval"`
	WaitKeywords   []string          `json:"wait_keywords"`
	ScrollStep     int               `json:"scroll_step"`
	ScrollPause    Duration          `json:"scroll_pause"`
	// PlainTransport skips the TLS fingerprint softening on the fallback fetch.
	PlainTransport bool     `json:"plain_transport"`
	CacheSize      int      `json:"cache_size"`
	CacheTTL       Duration `json:"cache_ttl"`
}

type LLMConfig struct {
	Endpoint          string   `json:"endpoint"`
	APIKey            string   `json:"api_key"`
	Model             string   `json:"model"`
	Temperature       float64  `json:"temperature"`
	ReasoningEffort   string   `json:"reasoning_effort"`
	Timeout           Duration `json:"timeout"`
	MaxRetries        int      `json:"max_retries"`
	RetryWait         Duration `json:"retry_wait"`
	RetryMaxWait      Duration `json:"retry_max_wait"`
	RequestsPerSecond float64  `json:"requests_per_second"`
	Burst             int      `json:"burst"`
}

type ExtractConfig struct {
	CorpusChars int      `json:"corpus_chars"`
	Timeout     Duration `json:"timeout"`
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// DefaultWaitKeywords are the markers the renderer polls for before it
// considers dynamic content loaded.
var DefaultWaitKeywords = []string{
	"USD", "EUR", "GBP", "JPY", "$", "€", "£", "price", "rate", "exchange",
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() *Config {
	return &Config{
		Crawl: CrawlConfig{
			MaxDepth:     2,
			MaxLinks:     5,
			MaxPageChars: 10000,
		},
		Render: RenderConfig{
			UserAgent:      defaultUserAgent,
			ViewportWidth:  1920,
			ViewportHeight: 1080,
			AcceptLanguage: "en-US,en;q=0.9",
			Currency:       "USD",
			PageTimeout:    D(30 * time.Second),
			SettleDelay:    D(1500 * time.Millisecond),
			WaitPolls:      10,
			WaitInterval:   D(500 * time.Millisecond),
			WaitKeywords:   append([]string(nil), DefaultWaitKeywords...),
			ScrollStep:     400,
			ScrollPause:    D(100 * time.Millisecond),
			CacheTTL:       D(5 * time.Minute),
		},
		LLM: LLMConfig{
			Endpoint:          "http://localhost:8080/v1/chat/completions",
			Temperature:       0.1,
			Timeout:           D(60 * time.Second),
			MaxRetries:        2,
			RetryWait:         D(1 * time.Second),
			RetryMaxWait:      D(10 * time.Second),
			RequestsPerSecond: 2,
			Burst:             2,
		},
		Extract: ExtractConfig{
			CorpusChars: 15000,
			Timeout:     D(90 * time.Second),
		},
		PipelineTimeout: D(5 * time.Minute),
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.Crawl.MaxDepth < 0 {
		return errors.New("crawl max depth cannot be negative")
	}
	if c.Crawl.MaxLinks < 0 {
		return errors.New("crawl max links cannot be negative")
	}
	if c.Crawl.MaxPageChars <= 0 {
		return errors.New("crawl max page chars must be positive")
	}
	if c.Render.ViewportWidth <= 0 || c.Render.ViewportHeight <= 0 {
		return errors.New("render viewport must be positive")
	}
	if c.Render.PageTimeout.Duration <= 0 {
		return errors.New("render page timeout must be positive")
	}
	if c.Render.SettleDelay.Duration < 0 {
		return errors.New("render settle delay cannot be negative")
	}
	if c.Render.WaitPolls < 0 {
		return errors.New("render wait polls cannot be negative")
	}
	if c.Render.CacheSize < 0 {
		return errors.New("render cache size cannot be negative")
	}
	if c.LLM.Endpoint == "" {
		return errors.New("llm endpoint cannot be empty")
	}
	u, err := url.Parse(c.LLM.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid llm endpoint: %w", err)
	}
	if u.Host == "" {
		return errors.New("llm endpoint must include a host")
	}
	if c.LLM.Timeout.Duration <= 0 {
		return errors.New("llm timeout must be positive")
	}
	if c.LLM.MaxRetries < 0 {
		return errors.New("llm max retries cannot be negative")
	}
	if c.LLM.RequestsPerSecond < 0 {
		return errors.New("llm requests per second cannot be negative")
	}
	if c.Extract.CorpusChars <= 0 {
		return errors.New("extract corpus chars must be positive")
	}
	if c.Extract.Timeout.Duration <= 0 {
		return errors.New("extract timeout must be positive")
	}
	if c.PipelineTimeout.Duration <= 0 {
		return errors.New("pipeline timeout must be positive")
	}
	return nil
}

// ApplyEnv overrides values from SITEEXTRACT_* environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("SITEEXTRACT_LLM_ENDPOINT"); v != "" {
		c.LLM.Endpoint = v
	}
	if v := getenv("SITEEXTRACT_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := getenv("SITEEXTRACT_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := getenv("SITEEXTRACT_CHROME_PATH"); v != "" {
		c.Render.ChromePath = v
	}
	if v := getenv("SITEEXTRACT_DISABLE_RENDER"); v != "" {
		c.Render.DisableRender = envBool(v, c.Render.DisableRender)
	}
	c.Crawl.MaxDepth = envInt(getenv("SITEEXTRACT_MAX_DEPTH"), c.Crawl.MaxDepth)
	c.Crawl.MaxLinks = envInt(getenv("SITEEXTRACT_MAX_LINKS"), c.Crawl.MaxLinks)
}

func envInt(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func envBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

// FromEnv returns the defaults with environment overrides applied.
func FromEnv() *Config {
	cfg := DefaultConfig()
	cfg.ApplyEnv(os.Getenv)
	return cfg
}
