// Package mock provides an in-memory capture double with the same surface as
// [engine.Engine], for tests of code that drives a capture.
//
// Fragments are pushed by the test with [Capture.Send]; the capture ending on
// its own is simulated with [Capture.End]. It is safe for concurrent use.
//
// Example:
//
//	c := mock.New()
//	c.Send(engine.Fragment{Text: "Hello there."})
//	err := c.Start(ctx)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/livenote/internal/engine"
)

// DefaultBuffer is the fragment channel capacity used by [New].
const DefaultBuffer = 16

// Capture is a controllable capture. Exported fields configure return
// values; call counters are read through accessor methods.
type Capture struct {
	mu sync.Mutex

	// StartError is returned by [Capture.Start] when non-nil; the capture
	// then stays stopped.
	StartError error

	// StopError is returned by [Capture.Stop].
	StopError error

	frags   chan engine.Fragment
	running bool
	err     error
	starts  int
	stops   int
}

// New returns a stopped Capture with a buffered fragment channel.
func New() *Capture {
	return &Capture{frags: make(chan engine.Fragment, DefaultBuffer)}
}

// Start marks the capture running unless StartError is set.
func (c *Capture) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	if c.StartError != nil {
		return c.StartError
	}
	c.running = true
	c.err = nil
	return nil
}

// Stop marks the capture stopped and returns StopError.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	c.running = false
	return c.StopError
}

// Running reports whether the capture was started and has not ended.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Err returns the error passed to the last [Capture.End].
func (c *Capture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Fragments returns the channel fed by [Capture.Send].
func (c *Capture) Fragments() <-chan engine.Fragment { return c.frags }

// Send queues f. It blocks once the buffer is full.
func (c *Capture) Send(f engine.Fragment) { c.frags <- f }

// End simulates the capture loop exiting on its own with err.
func (c *Capture) End(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.err = err
}

// StartCalls returns how many times Start was called.
func (c *Capture) StartCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}

// StopCalls returns how many times Stop was called.
func (c *Capture) StopCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}
