package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/haukened/exfil-watch/internal/dns/common/clock"
	"github.com/haukened/exfil-watch/internal/dns/common/log"
	"github.com/haukened/exfil-watch/internal/dns/common/metrics"
	"github.com/haukened/exfil-watch/internal/dns/config"
	"github.com/haukened/exfil-watch/internal/dns/domain"
	"github.com/haukened/exfil-watch/internal/dns/gateways/alertlog"
	"github.com/haukened/exfil-watch/internal/dns/gateways/capture"
	"github.com/haukened/exfil-watch/internal/dns/gateways/httpapi"
	"github.com/haukened/exfil-watch/internal/dns/gateways/wire"
	"github.com/haukened/exfil-watch/internal/dns/repos/frequency"
	"github.com/haukened/exfil-watch/internal/dns/repos/whitelist"
	"github.com/haukened/exfil-watch/internal/dns/repos/whitelist/bloom"
	"github.com/haukened/exfil-watch/internal/dns/repos/whitelist/bolt"
	"github.com/haukened/exfil-watch/internal/dns/repos/whitelist/lru"
	"github.com/haukened/exfil-watch/internal/dns/repos/whitelist/memory"
	"github.com/haukened/exfil-watch/internal/dns/repos/whitelist/parsers"
	"github.com/haukened/exfil-watch/internal/dns/services/detector"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "exfild"

	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the detector process.
type Application struct {
	config    *config.AppConfig
	queue     chan domain.QueryEvent
	detector  *detector.Detector
	sources   []capture.Source
	replay    *capture.ReplaySource
	sink      *alertlog.FileSink
	publisher *alertlog.NATSPublisher
	whitelist whitelist.Repository
	http      *httpapi.Server
	metrics   *metrics.Metrics
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Configure(cfg.Env, cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":       version,
		"env":           cfg.Env,
		"log_level":     cfg.Log.Level,
		"alerts":        cfg.Alerts.Path,
		"udp":           cfg.Capture.UDPAddr,
		"dnstap":        cfg.Capture.DnstapSocket,
		"replay":        cfg.Capture.ReplayFile,
		"http":          cfg.HTTP.Addr,
		"window":        cfg.Detector.Window.String(),
		"whitelist_len": len(cfg.Whitelist.Domains),
	}, "Starting "+appName)

	app, err := buildApplication(cfg, os.Stdout)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := app.Run(ctx)
	if runErr != nil {
		log.Error(map[string]any{"error": runErr}, "Detector stopped with errors")
	} else {
		log.Info(nil, appName+" stopped gracefully")
	}
	_ = log.Sync()
	if runErr != nil {
		os.Exit(1)
	}
}

// buildApplication constructs all components and wires them together.
// Console alerts are written to console.
func buildApplication(cfg *config.AppConfig, console io.Writer) (app *Application, err error) {
	clk := clock.RealClock{}
	logger := log.GetLogger()
	m := metrics.New()

	wl, err := buildWhitelist(cfg, logger, clk.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to build whitelist: %w", err)
	}
	defer func() {
		if err != nil {
			_ = wl.Close()
		}
	}()

	tracker, err := frequency.New(frequency.Options{
		Window:     cfg.Detector.Window,
		MaxDomains: cfg.Frequency.MaxDomains,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build frequency tracker: %w", err)
	}

	sink := alertlog.NewFileSink(cfg.Alerts.Path)

	opts := detector.Options{
		Policy:        cfg.ToPolicy(),
		Whitelist:     wl,
		Tracker:       tracker,
		Sink:          sink,
		Metrics:       m,
		Clock:         clk,
		Logger:        logger,
		PruneInterval: cfg.Frequency.PruneInterval,
	}
	if cfg.Alerts.Console {
		opts.Notifier = alertlog.NewConsoleNotifier(console)
	}

	var publisher *alertlog.NATSPublisher
	if cfg.Alerts.NATSURL != "" {
		publisher, err = alertlog.NewNATSPublisher(cfg.Alerts.NATSURL, cfg.Alerts.NATSSubject)
		if err != nil {
			return nil, err
		}
		opts.Publisher = publisher
		log.Info(map[string]any{
			"url":     cfg.Alerts.NATSURL,
			"subject": publisher.Subject(),
		}, "Alert publisher connected")
	}
	defer func() {
		if err != nil && publisher != nil {
			_ = publisher.Close()
		}
	}()

	det, err := detector.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build detector: %w", err)
	}

	sources, replay, err := buildSources(cfg, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build capture sources: %w", err)
	}

	if err := watch(m, tracker, wl, sources); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	var server *httpapi.Server
	if cfg.HTTP.Addr != "" {
		server = httpapi.New(httpapi.Options{
			Addr:       cfg.HTTP.Addr,
			AlertsPath: cfg.Alerts.Path,
			Metrics:    m.Handler(),
			Whitelist:  wl,
			Logger:     logger,
		})
	}

	return &Application{
		config:    cfg,
		queue:     make(chan domain.QueryEvent, cfg.Detector.QueueSize),
		detector:  det,
		sources:   sources,
		replay:    replay,
		sink:      sink,
		publisher: publisher,
		whitelist: wl,
		http:      server,
		metrics:   m,
	}, nil
}

// buildWhitelist merges configured domains with any list files and indexes
// them in memory or, when a database path is set, in bbolt.
func buildWhitelist(cfg *config.AppConfig, logger log.Logger, now time.Time) (whitelist.Repository, error) {
	rules := whitelist.RulesFromNames(cfg.Whitelist.Domains, whitelist.SourceConfig, now)
	if cfg.Whitelist.Dir != "" {
		fileRules, err := parsers.LoadDir(cfg.Whitelist.Dir, logger, now)
		if err != nil {
			return nil, err
		}
		rules = whitelist.Merge(rules, fileRules)
	}

	var store whitelist.Store
	if cfg.Whitelist.DB != "" {
		s, err := bolt.New(cfg.Whitelist.DB)
		if err != nil {
			return nil, err
		}
		store = s
	} else {
		store = memory.New()
	}

	cache, err := lru.New(cfg.Whitelist.CacheSize)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	repo := whitelist.NewRepository(store, cache, bloom.NewFactory(), cfg.Whitelist.FPRate)
	if err := repo.UpdateAll(rules, uint64(now.Unix()), now.Unix()); err != nil {
		_ = repo.Close()
		return nil, err
	}

	logger.Info(map[string]any{
		"rules":      len(rules),
		"dir":        cfg.Whitelist.Dir,
		"db":         cfg.Whitelist.DB,
		"cache_size": cfg.Whitelist.CacheSize,
	}, "Whitelist loaded")
	return repo, nil
}

// buildSources creates one source per enabled capture setting.
func buildSources(cfg *config.AppConfig, clk clock.Clock, logger log.Logger) ([]capture.Source, *capture.ReplaySource, error) {
	decoder := wire.NewQueryDecoder()
	enabled := []struct {
		kind capture.SourceType
		addr string
	}{
		{capture.SourceUDP, cfg.Capture.UDPAddr},
		{capture.SourceDnstap, cfg.Capture.DnstapSocket},
		{capture.SourceReplay, cfg.Capture.ReplayFile},
	}

	var (
		sources []capture.Source
		replay  *capture.ReplaySource
	)
	for _, e := range enabled {
		if e.addr == "" {
			continue
		}
		src, err := capture.NewSource(e.kind, e.addr, decoder, clk, logger)
		if err != nil {
			return nil, nil, err
		}
		if r, ok := src.(*capture.ReplaySource); ok {
			replay = r
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return nil, nil, config.ErrNoCaptureSource
	}
	return sources, replay, nil
}

// watch exports component counters through m.
func watch(m *metrics.Metrics, tracker *frequency.Tracker, wl whitelist.Repository, sources []capture.Source) error {
	err := m.WatchTracker(func() metrics.TrackerStats {
		s := tracker.Stats()
		return metrics.TrackerStats{Domains: s.Domains, Evictions: s.Evictions, Pruned: s.Pruned}
	})
	err = multierr.Append(err, m.WatchWhitelist(func() metrics.WhitelistStats {
		s := wl.Stats()
		return metrics.WhitelistStats{
			Rules:        s.Store.Rules,
			CacheHits:    s.Cache.Hits,
			CacheMisses:  s.Cache.Misses,
			BloomRejects: s.BloomRejects,
		}
	}))
	for _, src := range sources {
		err = multierr.Append(err, m.WatchSource(sourceKind(src), func() metrics.SourceStats {
			s := src.Stats()
			return metrics.SourceStats{Received: s.Received, Dropped: s.Dropped, Malformed: s.Malformed}
		}))
	}
	return err
}

func sourceKind(src capture.Source) string {
	switch src.(type) {
	case *capture.UDPSource:
		return string(capture.SourceUDP)
	case *capture.DnstapSource:
		return string(capture.SourceDnstap)
	case *capture.ReplaySource:
		return string(capture.SourceReplay)
	default:
		return "unknown"
	}
}

// Run starts every source and the detector, then blocks until ctx is
// cancelled or, when replay is the only source, the replay file is exhausted.
func (app *Application) Run(ctx context.Context) error {
	if app.http != nil {
		if err := app.http.Start(); err != nil {
			return app.closeAll(err)
		}
	}

	started := make([]capture.Source, 0, len(app.sources))
	for _, src := range app.sources {
		if err := src.Start(ctx, app.queue); err != nil {
			err = fmt.Errorf("failed to start %s source: %w", sourceKind(src), err)
			for _, s := range started {
				err = multierr.Append(err, s.Stop())
			}
			if app.http != nil {
				err = multierr.Append(err, app.http.Shutdown(context.Background()))
			}
			return app.closeAll(err)
		}
		started = append(started, src)
		log.Info(map[string]any{
			"source":  sourceKind(src),
			"address": src.Address(),
		}, "Capture source listening")
	}

	detectorDone := make(chan struct{})
	go func() {
		defer close(detectorDone)
		app.detector.Run(ctx, app.queue)
	}()

	var replayDone <-chan struct{}
	if app.replay != nil && len(app.sources) == 1 {
		replayDone = app.replay.Done()
	}

	select {
	case <-ctx.Done():
		log.Info(nil, "Shutdown initiated")
	case <-replayDone:
		log.Info(map[string]any{"file": app.replay.Address()}, "Replay complete, shutting down")
	}

	return app.shutdown(detectorDone)
}

// shutdown stops capture, lets the detector drain the queue, then closes
// outputs. Sources must be stopped before the queue is closed.
func (app *Application) shutdown(detectorDone <-chan struct{}) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	var err error
	for _, src := range app.sources {
		err = multierr.Append(err, src.Stop())
	}
	close(app.queue)

	select {
	case <-detectorDone:
	case <-shutdownCtx.Done():
		log.Warn(map[string]any{"timeout": defaultShutdownTimeout}, "Shutdown timeout exceeded")
		err = multierr.Append(err, fmt.Errorf("shutdown timeout: %d events left in queue", len(app.queue)))
	}

	if app.http != nil {
		err = multierr.Append(err, app.http.Shutdown(shutdownCtx))
	}
	return app.closeAll(err)
}

// closeAll releases outputs and stores, folding their errors into err.
func (app *Application) closeAll(err error) error {
	err = multierr.Append(err, app.sink.Close())
	if app.publisher != nil {
		err = multierr.Append(err, app.publisher.Close())
	}
	err = multierr.Append(err, app.whitelist.Close())

	if err == nil {
		log.Info(nil, "Graceful shutdown completed")
	}
	return err
}
