package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/livenote/internal/engine"
	"github.com/MrWong99/livenote/internal/keyword"
	"github.com/MrWong99/livenote/internal/observe"
	"github.com/MrWong99/livenote/pkg/audio"
)

// Controller defaults.
const (
	DefaultPollInterval    = 100 * time.Millisecond
	DefaultLatestSentences = 2
)

// EventType names a kind of [Event].
type EventType string

const (
	EventTranscript EventType = "transcript"
	EventKeywords   EventType = "keywords"
	EventInfo       EventType = "info"
	EventStatus     EventType = "status"
	EventError      EventType = "error"
)

// Event is one update pushed to listeners. Data is one of the *Data types
// below, or an info update for [EventInfo].
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// TranscriptData carries the displayed tail of the transcript.
type TranscriptData struct {
	Latest    []string `json:"latest"`
	Sentences int      `json:"sentences"`
	Kind      string   `json:"kind,omitempty"`
	Delta     string   `json:"delta,omitempty"`
	Language  string   `json:"language,omitempty"`
}

// KeywordsData carries the keyword history, newest first, and the phrases
// that triggered the update.
type KeywordsData struct {
	Keywords []keyword.Record `json:"keywords"`
	New      []string         `json:"new"`
}

// StatusData describes the capture state. StartEnabled is false once the audio
// source reported that no device exists.
type StatusData struct {
	Running      bool   `json:"running"`
	StartEnabled bool   `json:"startEnabled"`
	Message      string `json:"message,omitempty"`
}

// ErrorData is a user-facing error message.
type ErrorData struct {
	Message      string `json:"message"`
	StartEnabled bool   `json:"startEnabled"`
}

// Capture produces transcript fragments. [*engine.Engine] implements it.
type Capture interface {
	Start(ctx context.Context) error
	Stop() error
	Running() bool
	Err() error
	Fragments() <-chan engine.Fragment
}

var _ Capture = (*engine.Engine)(nil)

// InfoShower starts a keyword lookup whose result is published
// asynchronously. [*info.Presenter] implements it.
type InfoShower interface {
	Show(ctx context.Context, keyword string) uint64
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithPollInterval sets how often the fragment channel is drained.
// Default: 100ms.
func WithPollInterval(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.poll = d
		}
	}
}

// WithLatestSentences sets how many sentences transcript events carry.
// Default: 2.
func WithLatestSentences(n int) ControllerOption {
	return func(c *Controller) {
		if n > 0 {
			c.latest = n
		}
	}
}

// WithInfo routes keyword clicks to s.
func WithInfo(s InfoShower) ControllerOption {
	return func(c *Controller) { c.info = s }
}

// WithControllerMetrics records metrics to m instead of
// [observe.DefaultMetrics].
func WithControllerMetrics(m *observe.Metrics) ControllerOption {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// Controller feeds a Session from a Capture and fans session changes out to
// listeners. The Session is only ever written from Poll, Clear and
// StartCapture; the capture goroutine never touches it.
type Controller struct {
	sess    *Session
	capture Capture
	info    InfoShower
	poll    time.Duration
	latest  int
	metrics *observe.Metrics

	mu        sync.Mutex
	listeners map[int]func(Event)
	nextID    int
	base      context.Context
	running   bool
	noDevice  bool
	lastError string
}

// NewController returns a Controller for sess fed by capture.
func NewController(sess *Session, capture Capture, opts ...ControllerOption) *Controller {
	c := &Controller{
		sess:      sess,
		capture:   capture,
		poll:      DefaultPollInterval,
		latest:    DefaultLatestSentences,
		metrics:   observe.DefaultMetrics(),
		listeners: make(map[int]func(Event)),
		base:      context.Background(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Session returns the controlled session.
func (c *Controller) Session() *Session { return c.sess }

// Subscribe registers fn for every future event and returns a function that
// removes it. fn is called synchronously from the publishing goroutine and
// must not block.
func (c *Controller) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Publish sends ev to every listener.
func (c *Controller) Publish(ev Event) {
	c.mu.Lock()
	fns := make([]func(Event), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Run drains fragments every poll interval until ctx is cancelled, then
// stops the capture. Captures started through the Controller live within
// ctx.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	c.base = ctx
	c.mu.Unlock()

	t := time.NewTicker(c.poll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := c.capture.Stop(); err != nil {
				slog.Warn("stopping capture on shutdown", "err", err)
			}
			return nil
		case <-t.C:
			c.Poll(ctx)
		}
	}
}

// Poll processes every fragment currently queued without waiting for more,
// publishes the resulting events, and reports capture state changes. It
// returns the number of fragments consumed.
func (c *Controller) Poll(ctx context.Context) int {
	n := 0
	frags := c.capture.Fragments()
drain:
	for {
		select {
		case f := <-frags:
			c.ingest(ctx, f)
			n++
		default:
			break drain
		}
	}
	c.checkStatus()
	return n
}

func (c *Controller) ingest(ctx context.Context, f engine.Fragment) {
	change, err := c.sess.Ingest(ctx, f.Text)
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return
		}
		slog.Warn("keyword extraction failed", "err", err)
	}
	c.metrics.RecordFragment(ctx, change.Outcome.Kind.String())
	if !change.Outcome.Accepted() {
		slog.Debug("fragment rejected", "text", f.Text)
		return
	}

	c.Publish(Event{Type: EventTranscript, Data: TranscriptData{
		Latest:    c.sess.Latest(c.latest),
		Sentences: c.sess.Len(),
		Kind:      change.Outcome.Kind.String(),
		Delta:     change.Outcome.Delta,
		Language:  f.Language,
	}})

	if len(change.Keywords) == 0 {
		return
	}
	c.metrics.NewKeywords.Add(ctx, int64(len(change.Keywords)))
	names := make([]string, len(change.Keywords))
	for i, r := range change.Keywords {
		names[i] = r.Text
	}
	slog.Debug("new keywords", "keywords", names)
	c.Publish(Event{Type: EventKeywords, Data: KeywordsData{
		Keywords: c.sess.History(),
		New:      names,
	}})
}

// checkStatus publishes a status event when the capture stopped on its own.
func (c *Controller) checkStatus() {
	running := c.capture.Running()
	c.mu.Lock()
	changed := running != c.running
	c.running = running
	c.mu.Unlock()
	if !changed {
		return
	}
	if !running {
		if err := c.capture.Err(); err != nil {
			c.Publish(Event{Type: EventError, Data: ErrorData{Message: err.Error(), StartEnabled: c.Status().StartEnabled}})
		}
	}
	c.Publish(Event{Type: EventStatus, Data: c.Status()})
}

// Status returns the current capture state.
func (c *Controller) Status() StatusData {
	running := c.capture.Running()
	c.mu.Lock()
	defer c.mu.Unlock()
	return StatusData{
		Running:      running,
		StartEnabled: !running && !c.noDevice,
		Message:      c.lastError,
	}
}

// StartCapture clears the session and starts the capture. When no audio
// device exists the error is published and starting stays disabled.
func (c *Controller) StartCapture() error {
	c.mu.Lock()
	base := c.base
	c.mu.Unlock()

	if c.capture.Running() {
		return engine.ErrRunning
	}
	c.Clear()
	if err := c.capture.Start(base); err != nil {
		msg := "Could not start transcription."
		if errors.Is(err, audio.ErrNoDevice) {
			msg = "No suitable microphone found."
		}
		c.mu.Lock()
		c.noDevice = c.noDevice || errors.Is(err, audio.ErrNoDevice)
		c.lastError = msg
		c.mu.Unlock()
		slog.Error("start capture", "err", err)
		c.Publish(Event{Type: EventError, Data: ErrorData{Message: msg, StartEnabled: c.Status().StartEnabled}})
		c.Publish(Event{Type: EventStatus, Data: c.Status()})
		return fmt.Errorf("session: start capture: %w", err)
	}

	c.mu.Lock()
	c.running = true
	c.lastError = ""
	c.mu.Unlock()
	c.Publish(Event{Type: EventStatus, Data: c.Status()})
	return nil
}

// StopCapture stops the capture. Fragments already queued are still
// processed by the next Poll.
func (c *Controller) StopCapture() error {
	err := c.capture.Stop()
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.Publish(Event{Type: EventStatus, Data: c.Status()})
	if err != nil {
		return fmt.Errorf("session: stop capture: %w", err)
	}
	return nil
}

// Clear resets the session and publishes empty transcript and keyword
// views.
func (c *Controller) Clear() {
	c.sess.Reset()
	c.Publish(Event{Type: EventTranscript, Data: TranscriptData{Latest: []string{}}})
	c.Publish(Event{Type: EventKeywords, Data: KeywordsData{Keywords: []keyword.Record{}, New: []string{}}})
}

// Click starts an info lookup for keyword. It returns false when no info
// presenter is configured or the keyword is blank.
func (c *Controller) Click(keyword string) bool {
	if c.info == nil || keyword == "" {
		return false
	}
	c.mu.Lock()
	base := c.base
	c.mu.Unlock()
	c.info.Show(base, keyword)
	return true
}
