// Package asr defines the Provider interface for batch speech recognition.
//
// The transcription engine cuts captured audio into overlapping windows and
// hands each window to a Provider. A Provider is a pure function from a
// buffer of mono float32 samples to text plus the detected language; it keeps
// no per-stream state, so one Provider may serve many windows concurrently.
package asr

import (
	"context"
	"time"
)

// Options carries per-call recognition hints.
type Options struct {
	// SampleRate of the supplied samples in Hz. Zero means 16000.
	SampleRate int

	// Language is an ISO-639-1 code ("en", "vi"). Empty or "auto" asks the
	// provider to detect the language.
	Language string

	// Prompt is optional context text that some providers use to bias
	// recognition toward known vocabulary.
	Prompt string
}

// Result is the outcome of one transcription call.
type Result struct {
	// Text is the recognised speech, trimmed. May be empty when the window
	// held no intelligible speech.
	Text string

	// Language is the detected (or forced) language code. May be empty if
	// the provider does not report it.
	Language string

	// LanguageConfidence is the detection probability in [0, 1]. Zero when
	// the provider does not report it.
	LanguageConfidence float64

	// Duration is the wall-clock time the provider took.
	Duration time.Duration
}

// Provider is the abstraction over any batch ASR backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Transcribe recognises speech in samples. Returning an error does not
	// invalidate the provider; the caller logs it and moves on to the next
	// window.
	Transcribe(ctx context.Context, samples []float32, opts Options) (*Result, error)

	// Name identifies the backend in logs and metrics.
	Name() string
}

// DefaultSampleRate is assumed when [Options.SampleRate] is zero.
const DefaultSampleRate = 16000

// SampleRateOrDefault returns opts.SampleRate or [DefaultSampleRate].
func (o Options) SampleRateOrDefault() int {
	if o.SampleRate > 0 {
		return o.SampleRate
	}
	return DefaultSampleRate
}

// AutoDetect reports whether the language should be detected by the provider.
func (o Options) AutoDetect() bool {
	return o.Language == "" || o.Language == "auto"
}
