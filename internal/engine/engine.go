// Package engine runs the capture side of a transcription session.
//
// An [Engine] reads mono frames from an [audio.Source], cuts them into
// overlapping windows, drops windows below the energy gate, sends the rest
// to an [asr.Provider] and publishes non-empty transcripts as [Fragment]
// values on a buffered channel. A consumer (the session controller) drains
// that channel at its own pace.
//
// Transcription errors never stop the loop: they are logged, counted and the
// next window is processed. Only setup failures of the audio source are
// fatal and are returned from [Engine.Start].
//
// This package lives under internal/ because it encapsulates application-private
// processing logic and is not intended to be imported by external code.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/livenote/internal/observe"
	"github.com/MrWong99/livenote/internal/transcript"
	"github.com/MrWong99/livenote/pkg/audio"
	"github.com/MrWong99/livenote/pkg/provider/asr"
)

// Defaults.
const (
	DefaultSampleRate      = 16000
	DefaultWindowDuration  = 3 * time.Second
	DefaultOverlap         = 0.5
	DefaultEnergyThreshold = 0.01
	DefaultQueueSize       = 256
	DefaultStopTimeout     = 2 * time.Second
)

var (
	// ErrRunning is returned by Start while a capture loop is active.
	ErrRunning = errors.New("engine: already running")

	// ErrStopTimeout is returned by Stop when the capture loop did not exit
	// in time. The loop still exits once its in-flight transcription returns.
	ErrStopTimeout = errors.New("engine: stop timed out")

	// ErrSourceEnded is reported by Err when the audio source closed its
	// channel without the engine being stopped.
	ErrSourceEnded = errors.New("engine: audio source ended")
)

// Fragment is one transcribed window.
type Fragment struct {
	// Text is the recognised speech after optional vocabulary correction.
	Text string

	// Language and LanguageConfidence are as reported by the ASR provider.
	Language           string
	LanguageConfidence float64

	// Offset is the stream position of the window the text came from.
	Offset time.Duration

	// Corrections lists the vocabulary substitutions applied to Text.
	Corrections []transcript.Correction

	// At is the wall-clock time the fragment was produced.
	At time.Time
}

// Corrector rewrites recognised text against a known vocabulary.
// [*transcript.Corrector] implements it.
type Corrector interface {
	Correct(text string) (string, []transcript.Correction)
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithSampleRate sets the rate windows are cut and transcribed at. Frames at
// other rates are resampled. Default: 16000.
func WithSampleRate(hz int) Option {
	return func(e *Engine) {
		if hz > 0 {
			e.sampleRate = hz
		}
	}
}

// WithWindow sets the window length and the fraction of each window that is
// carried into the next. Defaults: 3s, 0.5.
func WithWindow(d time.Duration, overlap float64) Option {
	return func(e *Engine) {
		if d > 0 {
			e.window = d
		}
		if overlap >= 0 && overlap < 1 {
			e.overlap = overlap
		}
	}
}

// WithEnergyThreshold sets the mean absolute amplitude below which a window
// is treated as silence. Default: 0.01.
func WithEnergyThreshold(t float64) Option {
	return func(e *Engine) {
		if t >= 0 {
			e.threshold = t
		}
	}
}

// WithLanguage forces the recognition language. Empty or "auto" lets the
// provider detect it.
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.language = lang }
}

// WithPrompt biases recognition toward the given context text.
func WithPrompt(prompt string) Option {
	return func(e *Engine) { e.prompt = prompt }
}

// WithCorrector applies c to every transcript before it is published.
func WithCorrector(c Corrector) Option {
	return func(e *Engine) { e.corrector = c }
}

// WithQueueSize sets the capacity of the fragment channel. Default: 256.
func WithQueueSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

// WithStopTimeout bounds how long Stop waits for the loop. Default: 2s.
func WithStopTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.stopTimeout = d
		}
	}
}

// WithMetrics records metrics to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// Engine couples an audio source to an ASR provider.
//
// Start, Stop and Err are safe for concurrent use. The fragment channel
// returned by [Engine.Fragments] lives as long as the Engine and is never
// closed, so a consumer may keep draining it across restarts.
type Engine struct {
	src  audio.Source
	asr  asr.Provider
	text chan Fragment

	sampleRate  int
	window      time.Duration
	overlap     float64
	threshold   float64
	language    string
	prompt      string
	corrector   Corrector
	queueSize   int
	stopTimeout time.Duration
	metrics     *observe.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// New creates an Engine. Capture does not begin until Start is called.
func New(src audio.Source, p asr.Provider, opts ...Option) *Engine {
	e := &Engine{
		src:         src,
		asr:         p,
		sampleRate:  DefaultSampleRate,
		window:      DefaultWindowDuration,
		overlap:     DefaultOverlap,
		threshold:   DefaultEnergyThreshold,
		queueSize:   DefaultQueueSize,
		stopTimeout: DefaultStopTimeout,
		metrics:     observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(e)
	}
	e.text = make(chan Fragment, e.queueSize)
	return e
}

// Fragments returns the channel transcripts are published on.
func (e *Engine) Fragments() <-chan Fragment {
	return e.text
}

// Start opens the audio source and launches the capture loop. A source
// setup failure is returned as is, so callers can test for
// [audio.ErrNoDevice]. The loop runs until Stop is called, ctx is cancelled
// or the source ends.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done != nil {
		select {
		case <-e.done:
		default:
			return ErrRunning
		}
	}

	// A loop that ended on its own leaves its context uncancelled.
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}

	ctx, cancel := context.WithCancel(ctx)
	frames, err := e.src.Start(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("engine: start %s: %w", e.src.Name(), err)
	}

	e.cancel = cancel
	e.done = make(chan struct{})
	e.err = nil
	done := e.done

	slog.Info("transcription engine started",
		"source", e.src.Name(),
		"asr", e.asr.Name(),
		"window", e.window,
		"overlap", e.overlap,
	)
	e.metrics.ActiveSessions.Add(ctx, 1)
	go e.run(ctx, frames, done)
	return nil
}

// Stop cancels the capture loop, closes the source and waits up to the
// configured timeout for the loop to exit. A transcription in flight may
// still complete after Stop returns [ErrStopTimeout]; its result is dropped.
// Calling Stop on a stopped engine returns nil.
func (e *Engine) Stop() error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel = nil
	e.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	closeErr := e.src.Close()

	select {
	case <-done:
	case <-time.After(e.stopTimeout):
		slog.Warn("transcription engine did not stop in time", "timeout", e.stopTimeout)
		return errors.Join(ErrStopTimeout, closeErr)
	}
	slog.Info("transcription engine stopped")
	if closeErr != nil {
		return fmt.Errorf("engine: close source: %w", closeErr)
	}
	return nil
}

// Running reports whether the capture loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// Done returns a channel closed when the current capture loop exits, or nil
// if the engine was never started.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Err returns why the last capture loop ended on its own, or nil when it was
// stopped or is still running.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Engine) run(ctx context.Context, frames <-chan audio.Frame, done chan struct{}) {
	defer close(done)
	defer e.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	defer audio.Drain(frames)

	w := audio.NewWindower(e.sampleRate,
		audio.WithWindowDuration(e.window),
		audio.WithOverlap(e.overlap),
		audio.WithEnergyThreshold(e.threshold),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				if ctx.Err() == nil {
					e.mu.Lock()
					e.err = ErrSourceEnded
					e.mu.Unlock()
					slog.Warn("audio source ended", "source", e.src.Name())
				}
				return
			}
			samples := f.Samples
			if f.SampleRate > 0 && f.SampleRate != e.sampleRate {
				samples = audio.Resample(samples, f.SampleRate, e.sampleRate)
			}
			for _, win := range w.Push(samples) {
				if !e.handle(ctx, win) {
					return
				}
			}
		}
	}
}

// handle transcribes one window and publishes the result. It returns false
// once ctx is done.
func (e *Engine) handle(ctx context.Context, win audio.Window) bool {
	if win.Silent {
		e.metrics.RecordWindow(ctx, "silent")
		slog.Debug("skipping silent window", "offset", win.Offset, "energy", win.Energy)
		return ctx.Err() == nil
	}

	ctx, span := observe.StartSpan(ctx, observe.SpanTranscribe, trace.WithAttributes(
		attribute.String("asr.provider", e.asr.Name()),
		attribute.Float64("audio.energy", win.Energy),
	))
	start := time.Now()
	res, err := e.asr.Transcribe(ctx, win.Samples, asr.Options{
		SampleRate: win.SampleRate,
		Language:   e.language,
		Prompt:     e.prompt,
	})
	e.metrics.ASRDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", e.asr.Name())))
	observe.EndSpan(span, err)

	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		observe.Logger(ctx, "provider", e.asr.Name()).Error("transcription failed", "offset", win.Offset, "err", err)
		e.metrics.RecordASRError(ctx, e.asr.Name())
		return true
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		e.metrics.RecordWindow(ctx, "empty")
		return true
	}
	e.metrics.RecordWindow(ctx, "transcribed")

	frag := Fragment{
		Text:               text,
		Language:           res.Language,
		LanguageConfidence: res.LanguageConfidence,
		Offset:             win.Offset,
		At:                 time.Now(),
	}
	if e.corrector != nil {
		frag.Text, frag.Corrections = e.corrector.Correct(text)
	}
	slog.Debug("window transcribed", "offset", win.Offset, "lang", frag.Language, "text", frag.Text)

	select {
	case e.text <- frag:
		return true
	case <-ctx.Done():
		return false
	}
}
