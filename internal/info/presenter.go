package info

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/livenote/internal/observe"
)

// State describes what an [Update] shows.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// Update is one display change produced by a [Presenter].
type Update struct {
	Keyword    string `json:"keyword"`
	HTML       string `json:"html"`
	State      State  `json:"state"`
	Generation uint64 `json:"generation"`
}

// Doer performs a rendered lookup. [*Runner] implements it.
type Doer interface {
	Do(ctx context.Context, keyword, lang string) (string, error)
}

var _ Doer = (*Runner)(nil)

// PresenterOption configures a Presenter.
type PresenterOption func(*Presenter)

// WithLanguage sets the lookup language. Default: "en".
func WithLanguage(lang string) PresenterOption {
	return func(p *Presenter) {
		if lang != "" {
			p.lang = lang
		}
	}
}

// WithPresenterMetrics records stale results to m.
func WithPresenterMetrics(m *observe.Metrics) PresenterOption {
	return func(p *Presenter) {
		if m != nil {
			p.metrics = m
		}
	}
}

// Presenter turns keyword clicks into display updates. Each click supersedes
// the previous one: a result that arrives after a newer click is discarded,
// so the display always converges on the most recent keyword.
type Presenter struct {
	doer    Doer
	publish func(Update)
	metrics *observe.Metrics

	mu   sync.Mutex // orders generation checks with publishing
	gen  uint64
	lang string
	wg   sync.WaitGroup
}

// NewPresenter creates a Presenter that resolves clicks through d and hands
// every update to publish. publish is called from the clicking goroutine for
// the loading state and from a background goroutine for the result; calls
// never overlap.
func NewPresenter(d Doer, publish func(Update), opts ...PresenterOption) *Presenter {
	p := &Presenter{
		doer:    d,
		publish: publish,
		metrics: observe.DefaultMetrics(),
		lang:    DefaultLang,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SetLanguage changes the language used for subsequent clicks.
func (p *Presenter) SetLanguage(lang string) {
	if lang == "" {
		return
	}
	p.mu.Lock()
	p.lang = lang
	p.mu.Unlock()
}

// Show publishes the loading state for keyword and starts the lookup. It
// returns the generation assigned to this click.
func (p *Presenter) Show(ctx context.Context, keyword string) uint64 {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	lang := p.lang
	p.publish(Update{Keyword: keyword, HTML: RenderLoading(keyword), State: StateLoading, Generation: gen})
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		html, err := p.doer.Do(ctx, keyword, lang)

		p.mu.Lock()
		defer p.mu.Unlock()
		if gen != p.gen {
			p.metrics.InfoStale.Add(ctx, 1)
			return
		}
		switch {
		case err == nil:
			p.publish(Update{Keyword: keyword, HTML: html, State: StateReady, Generation: gen})
		case errors.Is(err, context.Canceled):
		default:
			p.publish(Update{Keyword: keyword, HTML: RenderError(), State: StateError, Generation: gen})
		}
	}()
	return gen
}

// Generation returns the generation of the most recent click.
func (p *Presenter) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

// Wait blocks until every lookup started by Show has finished.
func (p *Presenter) Wait() {
	p.wg.Wait()
}
