// Package mock provides a test double for [asr.Provider].
//
// Results are returned in order from Results; once exhausted the last entry
// repeats. Errs is consulted by call index and, when non-nil, wins.
//
//	p := &mock.Provider{Results: []asr.Result{{Text: "hello world", Language: "en"}}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/livenote/pkg/provider/asr"
)

var _ asr.Provider = (*Provider)(nil)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	Samples int
	Opts    asr.Options
}

// Provider is a mock implementation of [asr.Provider].
type Provider struct {
	mu sync.Mutex

	// NameResult is returned by Name. Defaults to "mock".
	NameResult string

	// Results are returned in call order; the last one repeats.
	Results []asr.Result

	// Errs are returned by call index when non-nil.
	Errs []error

	// Hook, if set, runs at the start of every call (e.g. to block or
	// observe the context).
	Hook func(ctx context.Context)

	// Calls records every Transcribe invocation.
	Calls []TranscribeCall
}

// Transcribe implements [asr.Provider].
func (p *Provider) Transcribe(ctx context.Context, samples []float32, opts asr.Options) (*asr.Result, error) {
	p.mu.Lock()
	idx := len(p.Calls)
	p.Calls = append(p.Calls, TranscribeCall{Samples: len(samples), Opts: opts})
	hook := p.Hook
	var err error
	if idx < len(p.Errs) {
		err = p.Errs[idx]
	}
	var res asr.Result
	if n := len(p.Results); n > 0 {
		res = p.Results[min(idx, n-1)]
	}
	p.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Name implements [asr.Provider].
func (p *Provider) Name() string {
	if p.NameResult == "" {
		return "mock"
	}
	return p.NameResult
}

// CallCount returns the number of Transcribe calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
