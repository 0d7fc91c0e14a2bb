package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/signalsfoundry/visitor-globe/internal/logging"
	"github.com/signalsfoundry/visitor-globe/model"
)

// Fetcher returns one batch of traffic records.
type Fetcher interface {
	Fetch(ctx context.Context) ([]model.TrafficEvent, error)
}

// Sink receives each non-empty batch. The globe engine's SubmitBatch fits.
type Sink func(ctx context.Context, events []model.TrafficEvent)

// PollerOption customises a Poller.
type PollerOption func(*Poller)

// WithPollerLogger sets the poller logger.
func WithPollerLogger(l logging.Logger) PollerOption {
	return func(p *Poller) { p.log = l }
}

// Poller runs a Fetcher on a fixed interval and forwards batches to a Sink.
// Fetch failures are logged and never reach the sink.
type Poller struct {
	fetcher  Fetcher
	sink     Sink
	interval time.Duration
	log      logging.Logger

	scheduler gocron.Scheduler
	cancel    context.CancelFunc
}

// NewPoller builds a stopped poller.
func NewPoller(f Fetcher, sink Sink, interval time.Duration, opts ...PollerOption) (*Poller, error) {
	if f == nil || sink == nil {
		return nil, errors.New("feed: fetcher and sink are required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("feed: poll interval must be positive, got %v", interval)
	}
	p := &Poller{fetcher: f, sink: sink, interval: interval, log: logging.Noop()}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With(logging.String("component", "feed_poller"))
	return p, nil
}

// Start schedules the first poll immediately and then every interval. A
// slow poll delays the next one rather than overlapping it.
func (p *Poller) Start(ctx context.Context) error {
	if p.scheduler != nil {
		return errors.New("feed: poller already started")
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("feed: create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)

	_, err = s.NewJob(
		gocron.DurationJob(p.interval),
		gocron.NewTask(func() { p.PollOnce(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithName("analytics-feed"),
	)
	if err != nil {
		cancel()
		_ = s.Shutdown()
		return fmt.Errorf("feed: schedule poll: %w", err)
	}

	p.scheduler = s
	p.cancel = cancel
	s.Start()
	p.log.Info(ctx, "feed poller started", logging.Duration("interval", p.interval))
	return nil
}

// PollOnce runs a single fetch and returns how many records reached the
// sink.
func (p *Poller) PollOnce(ctx context.Context) int {
	ctx, _ = logging.EnsurePollID(ctx)
	events, err := p.fetcher.Fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn(ctx, "feed poll failed", logging.Err(err))
		}
		return 0
	}
	if len(events) == 0 {
		p.log.Debug(ctx, "feed poll returned no records")
		return 0
	}
	p.sink(ctx, events)
	p.log.Debug(ctx, "feed batch delivered", logging.Int("records", len(events)))
	return len(events)
}

// Stop cancels any in-flight poll and shuts the scheduler down.
func (p *Poller) Stop() error {
	if p.scheduler == nil {
		return nil
	}
	p.cancel()
	err := p.scheduler.Shutdown()
	p.scheduler = nil
	return err
}
