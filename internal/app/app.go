// Package app wires all livenote subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the overlay and drives the session until the
// context ends, Reload applies hot-reloadable config changes, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithFetcher,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/livenote/internal/config"
	"github.com/MrWong99/livenote/internal/engine"
	"github.com/MrWong99/livenote/internal/entity"
	"github.com/MrWong99/livenote/internal/health"
	"github.com/MrWong99/livenote/internal/info"
	"github.com/MrWong99/livenote/internal/keyword"
	"github.com/MrWong99/livenote/internal/mcpserver"
	"github.com/MrWong99/livenote/internal/observe"
	"github.com/MrWong99/livenote/internal/overlay"
	"github.com/MrWong99/livenote/internal/resilience"
	"github.com/MrWong99/livenote/internal/session"
	"github.com/MrWong99/livenote/internal/transcript"
	"github.com/MrWong99/livenote/pkg/audio"
	"github.com/MrWong99/livenote/pkg/provider/asr"
	"github.com/MrWong99/livenote/pkg/provider/nlp"
)

// Providers holds the externally constructed backends. Populated by main.go
// via the config registry.
type Providers struct {
	ASR       asr.Provider
	Source    audio.Source
	Annotator nlp.Annotator

	// Vocabulary holds the user's known names. May be nil.
	Vocabulary *entity.Vocabulary
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	version        string
	metrics        *observe.Metrics
	metricsHandler http.Handler
	logLevel       *slog.LevelVar
	fetcher        info.Fetcher

	// Subsystems, initialised in New and torn down in Shutdown.
	corrector  *transcript.Corrector
	engine     *engine.Engine
	session    *session.Session
	runner     *info.Runner
	presenter  *info.Presenter
	controller *session.Controller
	health     *health.Handler
	mcp        *mcpserver.Server
	overlay    *overlay.Server
	breakers   func() map[string]resilience.State

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithVersion sets the version reported by health endpoints and MCP.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithMetrics records metrics to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h at /metrics when telemetry.prometheus is set.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogLevel lets Reload adjust the process log level.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithFetcher injects a keyword-info fetcher instead of the public-source
// aggregator.
func WithFetcher(f info.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. It starts the info
// workers but does not start capture; that happens through the overlay.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.ASR == nil || providers.Source == nil || providers.Annotator == nil {
		return nil, errors.New("app: providers ASR, Source and Annotator are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		metrics:   observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Transcription ─────────────────────────────────────────────────
	a.initCorrector()
	a.initEngine()

	// ── 2. Session ───────────────────────────────────────────────────────
	a.initSession()

	// ── 3. Keyword info ──────────────────────────────────────────────────
	a.initInfo()

	// ── 4. Controller ────────────────────────────────────────────────────
	a.controller = session.NewController(a.session, a.engine,
		session.WithPollInterval(cfg.UI.PollInterval),
		session.WithLatestSentences(cfg.UI.LatestSentences),
		session.WithInfo(a.presenter),
		session.WithControllerMetrics(a.metrics),
	)

	// ── 5. MCP ───────────────────────────────────────────────────────────
	if cfg.MCP.Enabled {
		a.mcp = mcpserver.New(a.session, a.runner,
			mcpserver.WithVersion(a.version),
			mcpserver.WithDefaultLanguage(cfg.Info.Lang),
			mcpserver.WithMetrics(a.metrics),
		)
	}

	// ── 6. Overlay ───────────────────────────────────────────────────────
	if err := a.initOverlay(); err != nil {
		return nil, fmt.Errorf("app: init overlay: %w", err)
	}

	if c, ok := providers.ASR.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	slog.Info("application initialised",
		"source", providers.Source.Name(),
		"asr", providers.ASR.Name(),
		"annotator", providers.Annotator.Language(),
		"mcp", cfg.MCP.Enabled,
	)
	return a, nil
}

// initCorrector builds the vocabulary corrector when phonetic correction is
// enabled and names are known.
func (a *App) initCorrector() {
	if !a.cfg.Transcript.PhoneticCorrection || a.providers.Vocabulary == nil {
		return
	}
	names := entity.Names(a.providers.Vocabulary.All())
	if len(names) == 0 {
		return
	}
	a.corrector = transcript.NewCorrector(names)
	slog.Info("phonetic correction enabled", "names", len(names))
}

func (a *App) initEngine() {
	ac := a.cfg.Audio
	opts := []engine.Option{
		engine.WithSampleRate(ac.SampleRate),
		engine.WithWindow(ac.RecordDuration, ac.Overlap),
		engine.WithEnergyThreshold(ac.EnergyThreshold),
		engine.WithLanguage(a.cfg.Transcript.Language),
		engine.WithPrompt(a.cfg.Transcript.Prompt),
		engine.WithMetrics(a.metrics),
	}
	if a.corrector != nil {
		opts = append(opts, engine.WithCorrector(a.corrector))
	}
	a.engine = engine.New(a.providers.Source, a.providers.ASR, opts...)
}

func (a *App) initSession() {
	tc, kc := a.cfg.Transcript, a.cfg.Keywords
	merger := transcript.NewMerger(
		transcript.WithSimilarityThreshold(tc.SimilarityThreshold),
		transcript.WithOverlapThreshold(tc.OverlapThreshold),
		transcript.WithMaxBufferSize(tc.MaxBufferSize),
		transcript.WithDuplicateWindow(tc.DuplicateWindow),
		transcript.WithMinDuplicateLength(tc.MinDuplicateLength),
	)
	extractor := keyword.New(a.providers.Annotator,
		keyword.WithMinChars(kc.MinChars),
		keyword.WithProperNounWeight(kc.WeightPropn),
		keyword.WithNamedEntityWeight(kc.WeightNER),
		keyword.WithNounChunks(kc.UseNounChunks),
		keyword.WithNamedEntities(kc.UseNER),
		keyword.WithLemmas(kc.UseLemma),
	)
	a.session = session.New(merger, extractor, session.WithMaxHistory(kc.MaxDisplayed))
	a.closers = append(a.closers, a.session.Close)
}

func (a *App) initInfo() {
	ic := a.cfg.Info
	if a.fetcher == nil {
		agg := info.New(
			info.WithUserAgent(ic.UserAgent),
			info.WithMaxImages(ic.MaxImages),
			info.WithMaxNews(ic.MaxNews),
			info.WithNewsWindow(ic.NewsWindow),
			info.WithCache(ic.CacheSize, ic.CacheTTL),
			info.WithRequestTimeout(ic.RequestTimeout),
			info.WithMetrics(a.metrics),
		)
		a.fetcher = agg
		a.breakers = agg.Health
	}

	a.runner = info.NewRunner(a.fetcher, ic.Workers)
	a.runner.Start()

	a.presenter = info.NewPresenter(a.runner, func(u info.Update) {
		// The controller is assigned right after the presenter; clicks
		// only arrive once both exist.
		a.controller.Publish(session.Event{Type: session.EventInfo, Data: u})
	},
		info.WithLanguage(ic.Lang),
		info.WithPresenterMetrics(a.metrics),
	)

	// Stop the workers first so pending lookups fail fast, then wait for
	// the presenter goroutines that were blocked on them.
	a.closers = append(a.closers, func() error {
		a.runner.Stop()
		a.presenter.Wait()
		return nil
	})
}

func (a *App) initOverlay() error {
	a.health = health.New(
		health.WithVersion(a.version),
		health.WithChecks(a.checks()...),
	)

	opts := []overlay.Option{
		overlay.WithAddr(a.cfg.Server.ListenAddr),
		overlay.WithHealth(a.health),
		overlay.WithMetrics(a.metrics),
		overlay.WithOriginPatterns(a.cfg.Server.OriginPatterns...),
	}
	if a.cfg.Telemetry.Prometheus && a.metricsHandler != nil {
		opts = append(opts, overlay.WithMetricsHandler(a.metricsHandler))
	}
	if a.mcp != nil && a.cfg.MCP.Transport == config.MCPTransportHTTP {
		opts = append(opts, overlay.WithExtraRoute("/mcp", a.mcp.Handler()))
	}
	a.overlay = overlay.New(a.controller, opts...)
	a.closers = append([]func() error{a.overlay.Close}, a.closers...)
	return nil
}

// checks returns the readiness checks. Capture failures and open ASR or
// info breakers degrade readiness; a closed session fails it.
func (a *App) checks() []health.Checker {
	cs := []health.Checker{
		{
			Name:     "session",
			Critical: true,
			Check: func(context.Context) error {
				if a.session.Closed() {
					return session.ErrClosed
				}
				return nil
			},
		},
		{
			Name: "capture",
			Check: func(context.Context) error {
				return a.engine.Err()
			},
		},
	}
	if fb, ok := a.providers.ASR.(interface{ Health() map[string]resilience.State }); ok {
		cs = append(cs, health.Checker{
			Name:  "asr",
			Check: func(context.Context) error { return openBreakers(fb.Health()) },
		})
	}
	if a.breakers != nil {
		cs = append(cs, health.Checker{
			Name: "info_sources",
			Check: func(context.Context) error { return openBreakers(a.breakers()) },
		})
	}
	return cs
}

// openBreakers returns an error naming every open breaker in states.
func openBreakers(states map[string]resilience.State) error {
	var open []string
	for name, st := range states {
		if st == resilience.StateOpen {
			open = append(open, name)
		}
	}
	if len(open) == 0 {
		return nil
	}
	slices.Sort(open)
	return fmt.Errorf("circuit open: %s", strings.Join(open, ", "))
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Controller returns the session controller.
func (a *App) Controller() *session.Controller { return a.controller }

// Handler returns the overlay's root HTTP handler.
func (a *App) Handler() http.Handler { return a.overlay.Handler() }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the overlay, drives the session and, when configured, serves
// MCP over stdio. It blocks until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.controller.Run(ctx) })
	g.Go(func() error { return a.overlay.ListenAndServe(ctx) })
	if a.mcp != nil && a.cfg.MCP.Transport == config.MCPTransportStdio {
		g.Go(func() error {
			if err := a.mcp.RunStdio(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("app: mcp stdio: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable differences between old and new and
// logs the sections that need a restart.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.WeightsChanged {
		a.session.SetWeights(d.WeightPropn, d.WeightNER)
		slog.Info("keyword weights changed", "propn", d.WeightPropn, "ner", d.WeightNER)
	}
	if d.MaxDisplayedChanged {
		a.session.SetMaxHistory(d.NewMaxDisplayed)
		slog.Info("keyword history size changed", "max", d.NewMaxDisplayed)
	}
	if d.InfoLangChanged {
		a.presenter.SetLanguage(d.NewInfoLang)
		slog.Info("info language changed", "lang", d.NewInfoLang)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// SlogLevel maps a config log level to its slog level.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops capture and tears down all subsystems in order. It respects
// the context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		var errs []error
		if e := a.engine.Stop(); e != nil {
			errs = append(errs, e)
		}
		for i, closer := range a.closers {
			if ctx.Err() != nil {
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				errs = append(errs, ctx.Err())
				break
			}
			if e := closer(); e != nil {
				errs = append(errs, e)
			}
		}
		err = errors.Join(errs...)
	})
	return err
}
