package resilience

import (
	"context"

	"github.com/MrWong99/livenote/pkg/provider/asr"
)

// ASRFallback implements [asr.Provider] with automatic failover across
// several recognisers. Each backend has its own circuit breaker, so a dead
// local server stops costing a timeout per window once its breaker opens.
type ASRFallback struct {
	group *FallbackGroup[asr.Provider]
	name  string
}

var _ asr.Provider = (*ASRFallback)(nil)

// NewASRFallback creates an [ASRFallback] with primary as the preferred
// backend.
func NewASRFallback(primary asr.Provider, cfg FallbackConfig) *ASRFallback {
	return &ASRFallback{
		group: NewFallbackGroup(primary, primary.Name(), cfg),
		name:  primary.Name(),
	}
}

// AddFallback registers another recogniser, tried after those already added.
func (f *ASRFallback) AddFallback(p asr.Provider) {
	f.group.AddFallback(p.Name(), p)
}

// Transcribe runs the first healthy provider. The returned error wraps
// [ErrAllFailed] when every provider failed or was skipped.
func (f *ASRFallback) Transcribe(ctx context.Context, samples []float32, opts asr.Options) (*asr.Result, error) {
	return Try(f.group, func(p asr.Provider) (*asr.Result, error) {
		return p.Transcribe(ctx, samples, opts)
	})
}

// Name returns the primary provider's name.
func (f *ASRFallback) Name() string { return f.name }

// Active returns the name of the recogniser that served the last window.
func (f *ASRFallback) Active() string { return f.group.Active() }

// Health reports each recogniser's breaker state.
func (f *ASRFallback) Health() map[string]State { return f.group.Health() }
