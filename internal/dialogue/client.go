package dialogue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// maxErrorBody bounds how much of a failed response body ends up in errors and logs
	maxErrorBody = 512
	// maxResponseBody bounds how much of a reply body is read
	maxResponseBody = 1 << 20
)

// Client posts user text to a dialogue webhook and decodes the reply array
type Client struct {
	url        string
	sender     string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	duration   metric.Float64Histogram
}

// Option configures a Client
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSender sets the sender id sent with every message. Defaults to "user".
func WithSender(sender string) Option {
	return func(c *Client) {
		if sender != "" {
			c.sender = sender
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) { c.tracer = tracer }
}

// WithMeter records request durations on the given meter
func WithMeter(meter metric.Meter) Option {
	return func(c *Client) {
		h, err := meter.Float64Histogram(
			"http.client.request.duration",
			metric.WithDescription("HTTP request duration in milliseconds"),
		)
		if err == nil {
			c.duration = h
		}
	}
}

// NewClient creates a webhook client for the given absolute http(s) URL
func NewClient(webhookURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("invalid webhook url %q: must be an absolute http(s) url", webhookURL)
	}

	c := &Client{
		url:        webhookURL,
		sender:     "user",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		tracer:     otel.Tracer("webhookchat"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL returns the webhook endpoint
func (c *Client) URL() string {
	return c.url
}

// Send posts one message and returns the decoded replies. A JSON null body is
// treated as an empty reply list. Every error wraps ErrUnavailable.
func (c *Client) Send(ctx context.Context, text string) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "dialogue_webhook_call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", c.url)),
	)
	defer span.End()

	start := time.Now()
	resp, err := c.send(ctx, text)
	elapsed := time.Since(start)

	if c.duration != nil {
		c.duration.Record(ctx, float64(elapsed.Milliseconds()))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("webhook call failed", "url", c.url, "duration_ms", elapsed.Milliseconds(), "error", err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.Int("dialogue.reply_count", len(resp.Replies)),
	)
	c.logger.Debug("webhook call succeeded", "url", c.url, "status", resp.StatusCode, "replies", len(resp.Replies), "duration_ms", elapsed.Milliseconds())
	return resp, nil
}

func (c *Client) send(ctx context.Context, text string) (*Response, error) {
	jsonData, err := json.Marshal(Request{Sender: c.sender, Message: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w: %w", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w: %w", ErrUnavailable, err)
	}
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w: %w", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: truncate(body, maxErrorBody)}
	}

	if len(body) > maxResponseBody {
		return nil, fmt.Errorf("response exceeds %d bytes: %w", maxResponseBody, ErrUnavailable)
	}

	var replies []Reply
	if err := json.Unmarshal(body, &replies); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w: %w", ErrUnavailable, err)
	}

	return &Response{StatusCode: resp.StatusCode, Replies: replies}, nil
}

// truncate cuts b to at most n bytes without splitting a UTF-8 sequence
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	for n > 0 && !utf8.RuneStart(b[n]) {
		n--
	}
	return string(b[:n])
}
