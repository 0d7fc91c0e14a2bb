package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Circuit breaker states as exported by globe_feed_breaker_state.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

// FeedCollector exposes analytics-feed metrics.
type FeedCollector struct {
	gatherer prometheus.Gatherer

	Polls         *prometheus.CounterVec
	Records       *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	BreakerState  prometheus.Gauge
}

// NewFeedCollector registers feed metrics against the provided registerer.
func NewFeedCollector(reg prometheus.Registerer) (*FeedCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	polls, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_feed_polls_total",
		Help: "Feed fetch attempts, labeled by result (ok, error, rejected).",
	}, []string{"result"}), "globe_feed_polls_total")
	if err != nil {
		return nil, err
	}

	records, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_feed_records_total",
		Help: "Feed records seen, labeled by outcome (accepted, invalid).",
	}, []string{"outcome"}), "globe_feed_records_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "globe_feed_fetch_duration_seconds",
		Help:    "Latency of analytics feed fetches.",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}), "globe_feed_fetch_duration_seconds")
	if err != nil {
		return nil, err
	}

	breaker, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "globe_feed_breaker_state",
		Help: "Feed circuit breaker state: 0 closed, 1 half-open, 2 open.",
	}), "globe_feed_breaker_state")
	if err != nil {
		return nil, err
	}

	return &FeedCollector{
		gatherer:      gatherer,
		Polls:         polls,
		Records:       records,
		FetchDuration: duration,
		BreakerState:  breaker,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *FeedCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveFetch records one fetch attempt and its latency.
func (c *FeedCollector) ObserveFetch(result string, d time.Duration) {
	if c == nil {
		return
	}
	if c.Polls != nil {
		c.Polls.WithLabelValues(result).Inc()
	}
	if c.FetchDuration != nil {
		c.FetchDuration.Observe(d.Seconds())
	}
}

// AddRecords counts accepted and invalid records from one batch.
func (c *FeedCollector) AddRecords(accepted, invalid int) {
	if c == nil || c.Records == nil {
		return
	}
	c.Records.WithLabelValues("accepted").Add(float64(accepted))
	c.Records.WithLabelValues("invalid").Add(float64(invalid))
}

// SetBreakerState updates the breaker gauge; see the Breaker* constants.
func (c *FeedCollector) SetBreakerState(state int) {
	if c == nil || c.BreakerState == nil {
		return
	}
	c.BreakerState.Set(float64(state))
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
