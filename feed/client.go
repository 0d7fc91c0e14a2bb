// Package feed pulls visitor-traffic records from the analytics API and
// hands them to the globe engine on a fixed cadence.
package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/signalsfoundry/visitor-globe/internal/logging"
	"github.com/signalsfoundry/visitor-globe/internal/observability"
	"github.com/signalsfoundry/visitor-globe/model"
)

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 8 << 20

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("feed: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("feed: unexpected status %d: %s", e.Code, e.Body)
}

// ErrMalformed reports a response body that is neither a record array nor
// an object with a "results" array.
var ErrMalformed = errors.New("feed: malformed response")

// Config describes the analytics endpoint.
type Config struct {
	URL    string
	Method string
	// Token is sent as "Authorization: Bearer <token>" when set.
	Token string
	// Body is sent verbatim as the JSON request body when set.
	Body    string
	Timeout time.Duration

	// RateLimit is requests per second; Burst the bucket size.
	RateLimit float64
	Burst     int

	// MaxFailures consecutive failures open the breaker for BreakerTimeout.
	MaxFailures    uint32
	BreakerTimeout time.Duration
}

// Metrics receives feed counters. *observability.FeedCollector implements
// it.
type Metrics interface {
	ObserveFetch(result string, d time.Duration)
	AddRecords(accepted, invalid int)
	SetBreakerState(state int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveFetch(string, time.Duration) {}
func (noopMetrics) AddRecords(int, int)                {}
func (noopMetrics) SetBreakerState(int)                {}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithClientLogger sets the client logger.
func WithClientLogger(l logging.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// WithClientMetrics sets the metrics sink.
func WithClientMetrics(m Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// Client fetches traffic records. It is safe for concurrent use.
type Client struct {
	cfg      Config
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[[]model.TrafficEvent]
	validate *validator.Validate
	tracer   trace.Tracer
	metrics  Metrics
	log      logging.Logger
}

// NewClient validates cfg and builds a client.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("feed: url is required")
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	cfg.Method = strings.ToUpper(cfg.Method)
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	c := &Client{
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		validate: validator.New(),
		tracer:   otel.Tracer(observability.TracerName),
		metrics:  noopMetrics{},
		log:      logging.Noop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: cfg.Timeout}
	}
	c.log = c.log.With(logging.String("component", "feed"))

	c.metrics.SetBreakerState(observability.BreakerClosed)
	c.breaker = gobreaker.NewCircuitBreaker[[]model.TrafficEvent](gobreaker.Settings{
		Name:        "analytics-feed",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.metrics.SetBreakerState(breakerState(to))
			c.log.Warn(context.Background(), "circuit breaker state change",
				logging.String("breaker", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()),
			)
		},
	})
	return c, nil
}

// Fetch retrieves one batch of records. Invalid records are dropped and
// counted; transport, status and decode failures are returned as errors.
func (c *Client) Fetch(ctx context.Context) ([]model.TrafficEvent, error) {
	ctx, span := c.tracer.Start(ctx, "feed.Fetch", trace.WithAttributes(
		attribute.String("http.method", c.cfg.Method),
		attribute.String("http.url", c.cfg.URL),
	))
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("feed: rate limit: %w", err)
	}

	start := time.Now()
	events, err := c.breaker.Execute(func() ([]model.TrafficEvent, error) {
		return c.fetch(ctx)
	})
	elapsed := time.Since(start)

	if err != nil {
		result := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result = "rejected"
		}
		c.metrics.ObserveFetch(result, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		return nil, err
	}

	c.metrics.ObserveFetch("ok", elapsed)
	span.SetAttributes(attribute.Int("feed.records", len(events)))
	return events, nil
}

func (c *Client) fetch(ctx context.Context) ([]model.TrafficEvent, error) {
	var body io.Reader = http.NoBody
	if c.cfg.Body != "" {
		body = bytes.NewBufferString(c.cfg.Body)
	}
	req, err := http.NewRequestWithContext(ctx, c.cfg.Method, c.cfg.URL, body)
	if err != nil {
		return nil, fmt.Errorf("feed: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("feed: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(raw)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(snippet)}
	}

	records, err := decodeRecords(raw)
	if err != nil {
		return nil, err
	}
	return c.keepValid(ctx, records), nil
}

type envelope struct {
	Results []model.TrafficEvent `json:"results"`
}

// decodeRecords accepts a bare array or {"results": [...]}.
func decodeRecords(raw []byte) ([]model.TrafficEvent, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformed)
	}
	switch trimmed[0] {
	case '[':
		var records []model.TrafficEvent
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return records, nil
	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return env.Results, nil
	default:
		return nil, fmt.Errorf("%w: unexpected leading %q", ErrMalformed, trimmed[0])
	}
}

func (c *Client) keepValid(ctx context.Context, records []model.TrafficEvent) []model.TrafficEvent {
	kept := records[:0]
	invalid := 0
	for _, r := range records {
		if err := c.validate.Struct(r); err != nil {
			invalid++
			c.log.Debug(ctx, "dropping feed record", logging.String("key", r.Key()), logging.Err(err))
			continue
		}
		kept = append(kept, r)
	}
	c.metrics.AddRecords(len(kept), invalid)
	if invalid > 0 {
		c.log.Warn(ctx, "feed records dropped", logging.Int("invalid", invalid), logging.Int("kept", len(kept)))
	}
	return kept
}

// BreakerState returns the current breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func breakerState(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return observability.BreakerHalfOpen
	case gobreaker.StateOpen:
		return observability.BreakerOpen
	default:
		return observability.BreakerClosed
	}
}
