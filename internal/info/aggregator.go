package info

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/livenote/internal/observe"
	"github.com/MrWong99/livenote/internal/resilience"
)

// Compile-time assertion that Aggregator implements Fetcher.
var _ Fetcher = (*Aggregator)(nil)

// Option is a functional option for configuring an Aggregator.
type Option func(*Aggregator)

// WithHTTPClient replaces the HTTP client shared by all sources.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Aggregator) {
		if c != nil {
			a.c.http = c
		}
	}
}

// WithEndpoints overrides upstream base URLs. Empty fields keep their
// defaults.
func WithEndpoints(e Endpoints) Option {
	return func(a *Aggregator) { a.end = e }
}

// WithUserAgent sets the User-Agent sent upstream.
func WithUserAgent(ua string) Option {
	return func(a *Aggregator) {
		if ua != "" {
			a.c.userAgent = ua
		}
	}
}

// WithMaxImages caps the number of images per result. Default: 6.
func WithMaxImages(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxImages = n
		}
	}
}

// WithMaxNews caps the number of news items per result. Default: 6.
func WithMaxNews(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxNews = n
		}
	}
}

// WithNewsWindow limits news to items published within d. Default: 14 days.
func WithNewsWindow(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.newsWindow = d
		}
	}
}

// WithCache sets the news cache size and entry lifetime. Defaults: 4096
// entries, 10 minutes.
func WithCache(size int, ttl time.Duration) Option {
	return func(a *Aggregator) {
		if size > 0 {
			a.cacheSize = size
		}
		if ttl > 0 {
			a.cacheTTL = ttl
		}
	}
}

// WithRequestTimeout bounds each upstream lookup. Default: 10s.
func WithRequestTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithDefinitionSources replaces the built-in definition sources. Sources are
// listed in preference order.
func WithDefinitionSources(srcs ...DefinitionSource) Option {
	return func(a *Aggregator) { a.sources = srcs }
}

// WithBreakerConfig sets the template for the per-source circuit breakers.
// Name and OnStateChange are filled in per source.
func WithBreakerConfig(cfg resilience.CircuitBreakerConfig) Option {
	return func(a *Aggregator) { a.breakerCfg = cfg }
}

// WithMetrics records metrics to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Aggregator) {
		if m != nil {
			a.metrics = m
		}
	}
}

// Aggregator gathers keyword information from public reference services.
// It is safe for concurrent use.
type Aggregator struct {
	c          *client
	end        Endpoints
	sources    []DefinitionSource
	maxImages  int
	maxNews    int
	newsWindow time.Duration
	cacheSize  int
	cacheTTL   time.Duration
	timeout    time.Duration
	breakerCfg resilience.CircuitBreakerConfig
	metrics    *observe.Metrics
	now        func() time.Time

	breakers  map[string]*resilience.CircuitBreaker
	newsCache *expirable.LRU[string, []NewsItem]
	flight    singleflight.Group
}

// New creates an Aggregator querying, in preference order, Wikipedia,
// Wikidata, DuckDuckGo and Wiktionary for definitions.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		c: &client{
			http:      &http.Client{Timeout: DefaultRequestTimeout + 5*time.Second},
			userAgent: DefaultUserAgent,
		},
		maxImages:  DefaultMaxImages,
		maxNews:    DefaultMaxNews,
		newsWindow: DefaultNewsWindow,
		cacheSize:  DefaultCacheSize,
		cacheTTL:   DefaultCacheTTL,
		timeout:    DefaultRequestTimeout,
		breakerCfg: resilience.CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Minute},
		metrics:    observe.DefaultMetrics(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	a.end = a.end.withDefaults()
	if a.sources == nil {
		a.sources = []DefinitionSource{
			&wikipedia{c: a.c, end: a.end},
			&wikidata{c: a.c, end: a.end},
			&duckDuckGo{c: a.c, end: a.end},
			&wiktionary{c: a.c, end: a.end},
		}
	}
	a.newsCache = expirable.NewLRU[string, []NewsItem](a.cacheSize, nil, a.cacheTTL)

	names := []string{SourceWikipedia, SourceCommons, SourceOpenverse, SourceGoogleNews}
	for _, s := range a.sources {
		names = append(names, s.Name())
	}
	a.breakers = make(map[string]*resilience.CircuitBreaker, len(names))
	for _, name := range names {
		if _, ok := a.breakers[name]; ok {
			continue
		}
		cfg := a.breakerCfg
		cfg.Name = "info." + name
		cfg.OnStateChange = a.breakerChanged
		a.breakers[name] = resilience.NewCircuitBreaker(cfg)
	}
	return a
}

// Health reports the circuit breaker state of every upstream source.
func (a *Aggregator) Health() map[string]resilience.State {
	out := make(map[string]resilience.State, len(a.breakers))
	for name, cb := range a.breakers {
		out[name] = cb.State()
	}
	return out
}

// Fetch gathers the definition, images and news for keyword. It never fails:
// sources that error or time out simply contribute nothing. A blank keyword
// returns an empty result without touching the network.
func (a *Aggregator) Fetch(ctx context.Context, keyword, lang string) Result {
	kw := strings.TrimSpace(keyword)
	if lang == "" {
		lang = DefaultLang
	}
	res := Result{
		Keyword:   kw,
		Lang:      lang,
		FetchedAt: a.now().UTC().Truncate(time.Second),
		Images:    []Image{},
		News:      []NewsItem{},
	}
	if kw == "" {
		res.Keyword = keyword
		return res
	}

	ctx, span := observe.StartSpan(ctx, observe.SpanInfoFetch,
		trace.WithAttributes(attribute.String("keyword", kw), attribute.String("lang", lang)))
	defer span.End()
	start := time.Now()

	var g errgroup.Group
	g.Go(func() error {
		res.News = a.news(ctx, kw, lang)
		return nil
	})

	def, canonical := a.define(ctx, kw, lang)
	if !def.Empty() {
		res.Definition = def
		if canonical == "" {
			canonical = def.Title
		}
	}
	res.CanonicalTitle = canonical

	if canonical != "" {
		res.Images = append(res.Images, a.wikiImages(ctx, canonical, lang)...)
	}
	if len(res.Images) < a.maxImages {
		res.Images = append(res.Images, a.openverseImages(ctx, firstNonEmpty(canonical, kw))...)
	}
	res.Images = pickFirst(res.Images, a.maxImages)

	_ = g.Wait()

	a.metrics.InfoDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.Bool("empty", res.Empty())))
	span.SetAttributes(
		attribute.Bool("info.definition", res.Definition != nil),
		attribute.Int("info.images", len(res.Images)),
		attribute.Int("info.news", len(res.News)),
	)
	return res
}

// define races every definition source and waits on them in preference
// order: the first non-empty answer from the most preferred source wins and
// the remaining lookups are cancelled. The canonical title is whatever the
// Wikipedia source resolved, even when its own definition was empty.
func (a *Aggregator) define(ctx context.Context, keyword, lang string) (*Definition, string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		def *Definition
		err error
	}
	results := make([]chan outcome, len(a.sources))
	for i, src := range a.sources {
		ch := make(chan outcome, 1)
		results[i] = ch
		go func() {
			def, err := callBreaker(ctx, a, src.Name(), func(ctx context.Context) (*Definition, error) {
				return src.Define(ctx, keyword, lang)
			})
			ch <- outcome{def: def, err: err}
		}()
	}

	var canonical string
	for i, ch := range results {
		name := a.sources[i].Name()
		select {
		case o := <-ch:
			if o.err != nil {
				a.sourceFailed(ctx, name, o.err)
				continue
			}
			if o.def == nil {
				continue
			}
			if name == SourceWikipedia && canonical == "" {
				canonical = o.def.Title
			}
			if !o.def.Empty() {
				return o.def, canonical
			}
		case <-ctx.Done():
			return nil, canonical
		}
	}
	return nil, canonical
}

// callBreaker runs fn under the named source's circuit breaker with the
// per-request timeout applied.
func callBreaker[R any](ctx context.Context, a *Aggregator, name string, fn func(context.Context) (R, error)) (R, error) {
	ctx, span := observe.StartSpan(ctx, observe.SpanInfoSource,
		trace.WithAttributes(attribute.String("source", name)))
	cb, ok := a.breakers[name]
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var (
		res R
		err error
	)
	if ok {
		res, err = resilience.Call(cb, func() (R, error) { return fn(ctx) })
	} else {
		res, err = fn(ctx)
	}
	observe.EndSpan(span, err)
	return res, err
}

// sourceFailed logs and counts a source error. Cancellations caused by a
// winning source or by the caller are not failures.
func (a *Aggregator) sourceFailed(ctx context.Context, name string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	level := slog.LevelWarn
	if errors.Is(err, resilience.ErrCircuitOpen) {
		level = slog.LevelDebug
	}
	observe.Logger(ctx, "source", name).Log(ctx, level, "info source failed", "err", err)
	a.metrics.RecordSourceError(ctx, name)
}

func (a *Aggregator) breakerChanged(name string, from, to resilience.State) {
	slog.Info("info source breaker changed", "breaker", name, "from", from.String(), "to", to.String())
	a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
}
