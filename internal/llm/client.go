package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/go-scripts/siteextract/internal/config"
)

// Message represents a single chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the OpenAI-compatible chat completion payload.
type ChatRequest struct {
	Model           string    `json:"model,omitempty"`
	Messages        []Message `json:"messages"`
	Stream          bool      `json:"stream"`
	Temperature     float64   `json:"temperature"`
	ReasoningEffort string    `json:"reasoning_effort,omitempty"`
}

type chatChoice struct {
	FinishReason string  `json:"finish_reason"`
	Index        int     `json:"index"`
	Message      Message `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// ErrEmptyChoices is returned when the service answers without a choice.
var ErrEmptyChoices = errors.New("llm returned empty choices array")

// StatusError is a non-2xx reply from the completion service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm returned status %d: %s", e.StatusCode, e.Body)
}

// Client talks to a chat completion endpoint.
type Client struct {
	http   *resty.Client
	cfg    config.LLMConfig
	logger *log.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithHTTPClient swaps the underlying http.Client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = resty.NewWithClient(hc)
	}
}

// New creates a Client with retries on 429 and 5xx replies and a request
// rate limit.
func New(cfg config.LLMConfig, opts ...Option) *Client {
	c := &Client{
		http:   resty.New(),
		cfg:    cfg,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.http.SetTimeout(cfg.Timeout.Duration)
	c.http.SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		c.http.SetAuthToken(cfg.APIKey)
	}

	c.http.SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryWait.Duration).
		SetRetryMaxWaitTime(cfg.RetryMaxWait.Duration).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		}).
		AddRetryHook(func(r *resty.Response, err error) {
			if r == nil {
				return
			}
			c.logger.Debug("retrying llm request",
				"status", r.StatusCode(),
				"attempt", r.Request.Attempt,
				"err", err)
		})

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(limit, burst)
	c.http.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})

	return c
}

// NewRequest builds the payload for messages using the configured model
// settings.
func (c *Client) NewRequest(messages []Message) ChatRequest {
	return ChatRequest{
		Model:           c.cfg.Model,
		Messages:        messages,
		Stream:          false,
		Temperature:     c.cfg.Temperature,
		ReasoningEffort: c.cfg.ReasoningEffort,
	}
}

// Complete sends messages and returns the content of the first choice.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(c.NewRequest(messages)).
		Post(c.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to send request to llm: %w", err)
	}

	if resp.IsError() {
		body := strings.TrimSpace(resp.String())
		if len(body) > 512 {
			body = body[:512] + "..."
		}
		c.logger.Error("llm returned non-OK status",
			"status", resp.StatusCode(),
			"response", body,
			"attempts", resp.Request.Attempt)
		return "", &StatusError{StatusCode: resp.StatusCode(), Body: body}
	}

	var out chatResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("failed to decode llm response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyChoices
	}

	content := out.Choices[0].Message.Content
	c.logger.Debug("llm response",
		"chars", len(content),
		"finish_reason", out.Choices[0].FinishReason,
		"duration", resp.Time())
	return content, nil
}
