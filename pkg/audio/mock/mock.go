// Package mock provides an in-memory [audio.Source] for unit tests.
//
// The mock is safe for concurrent use. It records every method call so tests
// can assert on call counts, and it exposes exported fields that control
// return values.
//
// Typical usage:
//
//	src := &mock.Source{Frames: []audio.Frame{{Samples: pcm, SampleRate: 16000}}}
//	ch, err := src.Start(ctx)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/livenote/pkg/audio"
)

var _ audio.Source = (*Source)(nil)

// Source is a mock implementation of [audio.Source]. Start emits Frames in
// order and then either closes the channel or, when HoldOpen is set, keeps it
// open until the context is cancelled or Close is called.
type Source struct {
	mu sync.Mutex

	// Frames are delivered by Start in order.
	Frames []audio.Frame

	// HoldOpen keeps the channel open after Frames are exhausted.
	HoldOpen bool

	// StartError is returned by Start.
	StartError error

	// CloseError is returned by Close.
	CloseError error

	// NameResult is returned by Name. Defaults to "mock".
	NameResult string

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	// Contexts records the context passed to every Start call.
	Contexts []context.Context

	done chan struct{}
}

// Start implements [audio.Source].
func (s *Source) Start(ctx context.Context) (<-chan audio.Frame, error) {
	s.mu.Lock()
	s.CallCountStart++
	s.Contexts = append(s.Contexts, ctx)
	if s.StartError != nil {
		err := s.StartError
		s.mu.Unlock()
		return nil, err
	}
	frames := append([]audio.Frame(nil), s.Frames...)
	hold := s.HoldOpen
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	ch := make(chan audio.Frame)
	go func() {
		defer close(ch)
		for _, f := range frames {
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
		if hold {
			select {
			case <-ctx.Done():
			case <-done:
			}
		}
	}()
	return ch, nil
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	if s.done != nil {
		select {
		case <-s.done:
		default:
			close(s.done)
		}
	}
	return s.CloseError
}

// Name implements [audio.Source].
func (s *Source) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.NameResult == "" {
		return "mock"
	}
	return s.NameResult
}
