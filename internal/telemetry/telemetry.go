// Package telemetry reports rendered arcs to PostHog so the product side can
// see which routes the globe actually showed.
package telemetry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/posthog/posthog-go"
	"github.com/signalsfoundry/visitor-globe/internal/logging"
)

// EventArcRendered is the PostHog event name for a completed reveal.
const EventArcRendered = "arc_rendered"

// Config selects the PostHog project. An empty APIKey disables reporting.
type Config struct {
	APIKey     string `koanf:"api_key"`
	Endpoint   string `koanf:"endpoint" validate:"omitempty,url"`
	DistinctID string `koanf:"distinct_id"`
}

// ArcRendered describes one arc that finished its reveal.
type ArcRendered struct {
	Key      string
	Label    string
	Metric   float64
	Kind     string
	Altitude float64
	Policy   string
}

// Reporter captures product analytics events.
type Reporter interface {
	ArcRendered(ctx context.Context, ev ArcRendered)
	Close() error
}

// enqueuer is the part of posthog.Client the reporter uses.
type enqueuer interface {
	Enqueue(posthog.Message) error
	Close() error
}

type posthogReporter struct {
	client     enqueuer
	distinctID string
	log        logging.Logger
}

// New returns a PostHog-backed Reporter, or Noop when cfg.APIKey is empty.
func New(cfg Config, log logging.Logger) (Reporter, error) {
	if cfg.APIKey == "" {
		return Noop(), nil
	}
	client, err := posthog.NewWithConfig(cfg.APIKey, posthog.Config{Endpoint: cfg.Endpoint})
	if err != nil {
		return nil, fmt.Errorf("telemetry: init posthog: %w", err)
	}
	return newReporter(client, cfg.DistinctID, log), nil
}

func newReporter(client enqueuer, distinctID string, log logging.Logger) *posthogReporter {
	if distinctID == "" {
		distinctID = "globe-" + uuid.NewString()
	}
	if log == nil {
		log = logging.Noop()
	}
	return &posthogReporter{client: client, distinctID: distinctID, log: log}
}

func (r *posthogReporter) ArcRendered(ctx context.Context, ev ArcRendered) {
	props := posthog.NewProperties().
		Set("key", ev.Key).
		Set("label", ev.Label).
		Set("metric", ev.Metric).
		Set("kind", ev.Kind).
		Set("altitude", ev.Altitude).
		Set("policy", ev.Policy)
	err := r.client.Enqueue(posthog.Capture{
		DistinctId: r.distinctID,
		Event:      EventArcRendered,
		Properties: props,
	})
	if err != nil {
		r.log.Warn(ctx, "telemetry enqueue failed", logging.Err(err))
	}
}

func (r *posthogReporter) Close() error {
	return r.client.Close()
}

// Noop returns a Reporter that discards everything.
func Noop() Reporter { return noopReporter{} }

type noopReporter struct{}

func (noopReporter) ArcRendered(context.Context, ArcRendered) {}
func (noopReporter) Close() error                             { return nil }
