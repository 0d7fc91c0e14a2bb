// Command globe-demo runs the visitor-traffic globe headless: markers are
// placed, traffic arcs are revealed and retired on the frame clock, and
// metrics and traces are exported as configured.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/signalsfoundry/visitor-globe/core"
	"github.com/signalsfoundry/visitor-globe/feed"
	"github.com/signalsfoundry/visitor-globe/globe"
	"github.com/signalsfoundry/visitor-globe/internal/config"
	"github.com/signalsfoundry/visitor-globe/internal/logging"
	"github.com/signalsfoundry/visitor-globe/internal/observability"
	"github.com/signalsfoundry/visitor-globe/internal/telemetry"
	"github.com/signalsfoundry/visitor-globe/model"
	"github.com/signalsfoundry/visitor-globe/reveal"
	"github.com/signalsfoundry/visitor-globe/scene"
	"github.com/signalsfoundry/visitor-globe/timectrl"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (defaults to $GLOBE_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "globe-demo: %v\n", err)
		os.Exit(2)
	}
	log := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(context.Background(), "globe-demo exited", logging.Err(err))
		os.Exit(1)
	}
}

// run wires the globe and blocks until ctx is cancelled or the configured
// loop duration elapses.
func run(ctx context.Context, cfg *config.Config, log logging.Logger) (err error) {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		err = multierr.Append(err, observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log))
	}()

	reg := prometheus.NewRegistry()
	globeMetrics, err := observability.NewGlobeCollector(reg)
	if err != nil {
		return fmt.Errorf("globe metrics: %w", err)
	}
	feedMetrics, err := observability.NewFeedCollector(reg)
	if err != nil {
		return fmt.Errorf("feed metrics: %w", err)
	}
	if cfg.Metrics.Enabled {
		srv := serveMetrics(cfg.Metrics.Addr, globeMetrics, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = multierr.Append(err, srv.Shutdown(shutdownCtx))
		}()
	}

	reporter, err := telemetry.New(cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { err = multierr.Append(err, reporter.Close()) }()

	engineCfg, err := engineConfig(cfg)
	if err != nil {
		return err
	}
	mode := timectrl.RealTime
	if cfg.Loop.Mode == "accelerated" {
		mode = timectrl.Accelerated
	}
	tc := timectrl.NewTimeController(time.Now(), cfg.Loop.Tick, mode)
	group := scene.NewGroup()
	engine, err := globe.New(engineCfg, timectrl.NewEventScheduler(tc), group,
		globe.WithLogger(log),
		globe.WithMetrics(globeMetrics),
		globe.WithReporter(reporter),
	)
	if err != nil {
		return fmt.Errorf("globe engine: %w", err)
	}

	specs := markerSpecs(cfg.Markers.Static)
	if _, err := engine.PlaceMarkers(ctx, specs); err != nil {
		log.Warn(ctx, "some static markers were skipped", logging.Err(err))
	}

	if cfg.Feed.Enabled {
		poller, err := newPoller(cfg.Feed, engine, feedMetrics, log)
		if err != nil {
			return err
		}
		if err := poller.Start(ctx); err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, poller.Stop()) }()
	} else {
		demo := demoEvents(specs)
		engine.SubmitBatch(ctx, demo)
		log.Info(ctx, "feed disabled, replaying demo routes", logging.Int("routes", len(demo)))
	}

	tc.AddListener(engine.Step)
	done := tc.Start(cfg.Loop.Duration, ctx.Done())
	log.Info(ctx, "globe running",
		logging.String("mode", mode.String()),
		logging.Duration("tick", cfg.Loop.Tick),
		logging.Int("nodes", group.Len()),
	)
	<-done

	engine.Shutdown(context.Background())
	return nil
}

// engineConfig maps the file/env configuration onto the engine's.
func engineConfig(cfg *config.Config) (globe.Config, error) {
	policy, err := reveal.ParsePolicy(cfg.Reveal.Policy)
	if err != nil {
		return globe.Config{}, err
	}
	dedupe, err := globe.ParseDedupe(cfg.Reveal.Dedupe)
	if err != nil {
		return globe.Config{}, err
	}
	return globe.Config{
		Radius:            cfg.Globe.Radius,
		AutoAltitude:      cfg.Arc.AltitudeMode != "fixed",
		Altitude:          cfg.Arc.Altitude,
		AltitudeAutoScale: cfg.Arc.AltitudeAutoScale,
		TubularSegments:   cfg.Arc.TubularSegments,
		RadialSegments:    cfg.Arc.RadialSegments,
		TubeRadius:        cfg.Arc.TubeRadius,
		Reveal: reveal.Config{
			Delay:    cfg.Reveal.Delay,
			Duration: cfg.Reveal.Duration,
			Ease:     reveal.EaseByName(cfg.Reveal.Ease),
		},
		Policy:   policy,
		Cooldown: cfg.Reveal.Cooldown,
		Dedupe:   dedupe,
		MarkerSize: core.MarkerSize{
			Width:  cfg.Markers.Width,
			Height: cfg.Markers.Height,
			Depth:  cfg.Markers.Depth,
		},
		MarkerPulse: cfg.Markers.Pulse,
	}, nil
}

func markerSpecs(static []config.StaticMarker) []globe.MarkerSpec {
	specs := make([]globe.MarkerSpec, 0, len(static))
	for _, m := range static {
		specs = append(specs, globe.MarkerSpec{
			Label:     m.Label,
			Latitude:  m.Latitude,
			Longitude: m.Longitude,
			Metric:    m.Metric,
		})
	}
	return specs
}

// demoEvents links each marker to the next one, closing the ring.
func demoEvents(specs []globe.MarkerSpec) []model.TrafficEvent {
	if len(specs) < 2 {
		return nil
	}
	out := make([]model.TrafficEvent, 0, len(specs))
	for i, from := range specs {
		to := specs[(i+1)%len(specs)]
		out = append(out, model.TrafficEvent{
			StartLatitude:  from.Latitude,
			StartLongitude: from.Longitude,
			EndLatitude:    to.Latitude,
			EndLongitude:   to.Longitude,
			Label:          from.Label + " -> " + to.Label,
			Metric:         from.Metric,
		})
	}
	return out
}

func newPoller(fc config.FeedConfig, engine *globe.Engine, metrics *observability.FeedCollector, log logging.Logger) (*feed.Poller, error) {
	client, err := feed.NewClient(feed.Config{
		URL:            fc.URL,
		Method:         fc.Method,
		Token:          fc.Token,
		Body:           fc.Body,
		Timeout:        fc.Timeout,
		RateLimit:      fc.RateLimit,
		Burst:          fc.Burst,
		MaxFailures:    fc.MaxFailures,
		BreakerTimeout: fc.BreakerTimeout,
	}, feed.WithClientLogger(log), feed.WithClientMetrics(metrics))
	if err != nil {
		return nil, err
	}
	return feed.NewPoller(client, engine.SubmitBatch, fc.Interval, feed.WithPollerLogger(log))
}

func serveMetrics(addr string, collector *observability.GlobeCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()
	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
