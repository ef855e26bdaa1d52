package info

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrRunnerStopped is returned by [Runner.Do] after [Runner.Stop].
var ErrRunnerStopped = errors.New("info: runner stopped")

// ErrRunnerNotStarted is returned by [Runner.Do] before [Runner.Start].
var ErrRunnerNotStarted = errors.New("info: runner not started")

// DefaultWorkers is the number of lookups a Runner performs in parallel.
const DefaultWorkers = 2

type job struct {
	ctx     context.Context
	keyword string
	lang    string
	reply   chan Result
}

// Runner owns the background goroutines that perform keyword lookups, so
// callers on latency-sensitive paths only hand off work. Workers live for
// the lifetime of the Runner; no per-call setup happens in [Runner.Do].
//
// All methods are safe for concurrent use.
type Runner struct {
	fetcher Fetcher
	workers int

	mu      sync.RWMutex
	started bool
	stopped bool
	jobs    chan job
	wg      sync.WaitGroup
}

// NewRunner creates a Runner that resolves lookups through f with the given
// number of workers (DefaultWorkers when workers <= 0).
func NewRunner(f Fetcher, workers int) *Runner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Runner{
		fetcher: f,
		workers: workers,
		jobs:    make(chan job, workers),
	}
}

// Start launches the workers. Calling Start more than once, or after Stop,
// has no effect.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true
	for range r.workers {
		r.wg.Add(1)
		go r.work()
	}
	slog.Debug("info runner started", "workers", r.workers)
}

// Do looks keyword up and returns the rendered fragment. It blocks until a
// worker has finished the lookup or ctx is done. Cancelling ctx abandons the
// wait; the lookup itself sees the same ctx.
func (r *Runner) Do(ctx context.Context, keyword, lang string) (string, error) {
	res, err := r.Lookup(ctx, keyword, lang)
	if err != nil {
		return "", err
	}
	return Render(res), nil
}

// Lookup is Do without rendering.
func (r *Runner) Lookup(ctx context.Context, keyword, lang string) (Result, error) {
	j := job{ctx: ctx, keyword: keyword, lang: lang, reply: make(chan Result, 1)}

	if err := r.enqueue(ctx, j); err != nil {
		return Result{}, err
	}
	select {
	case res := <-j.reply:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (r *Runner) enqueue(ctx context.Context, j job) error {
	// The read lock keeps Stop from closing jobs while a send is pending.
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch {
	case r.stopped:
		return ErrRunnerStopped
	case !r.started:
		return ErrRunnerNotStarted
	}
	select {
	case r.jobs <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop rejects further work, lets the workers finish every queued job and
// waits for them to exit. It is idempotent.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	close(r.jobs)
	r.mu.Unlock()

	if started {
		r.wg.Wait()
	}
	slog.Debug("info runner stopped")
}

func (r *Runner) work() {
	defer r.wg.Done()
	for j := range r.jobs {
		if j.ctx.Err() != nil {
			continue
		}
		j.reply <- r.fetcher.Fetch(j.ctx, j.keyword, j.lang)
	}
}
