// Package session ties the text side of a transcription session together.
//
// A [Session] owns one transcript merger, one keyword extractor and the
// bounded keyword history shown to the user. Its lifecycle is explicit:
// create it with [New], wipe it with [Session.Reset], and drop it with
// [Session.Close]; no package-level state exists, so several sessions can run
// side by side.
//
// A [Controller] drives a Session from an engine's fragment channel on a
// fixed polling interval and publishes [Event] values to listeners such as
// the overlay feed.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/livenote/internal/keyword"
	"github.com/MrWong99/livenote/internal/transcript"
)

// DefaultMaxHistory is the number of keywords kept for display.
const DefaultMaxHistory = 15

// ErrClosed is returned by Ingest after Close.
var ErrClosed = errors.New("session: closed")

// Change describes what one ingested fragment did to the session.
type Change struct {
	Outcome transcript.Outcome

	// Keywords lists the phrases seen for the first time, in appearance order.
	Keywords []keyword.Record
}

// Snapshot is a consistent read-only view of a session.
type Snapshot struct {
	Sentences []string         `json:"sentences"`
	FullText  string           `json:"full_text"`
	History   []keyword.Record `json:"keywords"`
	Fragments int              `json:"fragments"`
	StartedAt time.Time        `json:"started_at"`
	UpdatedAt time.Time        `json:"updated_at,omitzero"`
}

// Latest returns up to n of the most recent sentences, oldest first.
func (s Snapshot) Latest(n int) []string {
	if n <= 0 {
		return nil
	}
	if n > len(s.Sentences) {
		n = len(s.Sentences)
	}
	return s.Sentences[len(s.Sentences)-n:]
}

// Option configures a Session.
type Option func(*Session)

// WithMaxHistory bounds the keyword history. Default: 15.
func WithMaxHistory(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxHistory = n
		}
	}
}

// Session is one transcription session. All methods are safe for concurrent
// use; ingestion is serialised and readers never observe a half-applied
// fragment.
type Session struct {
	merger    *transcript.Merger
	extractor *keyword.Extractor

	// ingestMu serialises writers (Ingest, Reset) so a reset cannot
	// interleave with a fragment's extraction.
	ingestMu sync.Mutex

	mu         sync.RWMutex // guards everything below and merger reads
	maxHistory int
	history    []keyword.Record // newest first
	fragments  int
	startedAt  time.Time
	updatedAt  time.Time
	closed     bool
}

// New creates a Session around m and x. The Session takes ownership of both.
func New(m *transcript.Merger, x *keyword.Extractor, opts ...Option) *Session {
	s := &Session{
		merger:     m,
		extractor:  x,
		maxHistory: DefaultMaxHistory,
		startedAt:  time.Now(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ingest merges one raw transcript fragment and, when it changed the
// transcript, extracts keywords from the words it added. An annotation failure
// leaves the transcript change in place and is returned wrapped.
func (s *Session) Ingest(ctx context.Context, raw string) (Change, error) {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Change{}, ErrClosed
	}
	out := s.merger.Apply(raw)
	s.fragments++
	if out.Accepted() {
		s.updatedAt = time.Now()
	}
	s.mu.Unlock()

	change := Change{Outcome: out}
	if !out.Accepted() || out.Delta == "" {
		return change, nil
	}

	// A merge re-annotates the whole sentence so phrases that began in the
	// overlap are seen whole. Only the delta counts as new text.
	recs, err := s.extractor.UpdateFrom(ctx, out.Text, len(out.Text)-len(out.Delta))
	if err != nil {
		return change, fmt.Errorf("session: extract keywords: %w", err)
	}
	change.Keywords = recs

	if len(recs) > 0 {
		s.mu.Lock()
		s.pushHistory(recs)
		s.mu.Unlock()
	}
	return change, nil
}

// pushHistory adds recs newest first and evicts the oldest entries. Must be
// called with s.mu held.
func (s *Session) pushHistory(recs []keyword.Record) {
	next := make([]keyword.Record, 0, min(len(recs)+len(s.history), s.maxHistory))
	for i := len(recs) - 1; i >= 0 && len(next) < s.maxHistory; i-- {
		next = append(next, recs[i])
	}
	for _, r := range s.history {
		if len(next) >= s.maxHistory {
			break
		}
		next = append(next, r)
	}
	s.history = next
}

// History returns the displayed keywords, newest first.
func (s *Session) History() []keyword.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]keyword.Record(nil), s.history...)
}

// Top ranks the keywords seen this session and returns up to k of them.
// [keyword.All] returns every one.
func (s *Session) Top(k int, order keyword.Order) []keyword.Scored {
	return s.extractor.TopRecords(k, order)
}

// Latest returns up to n of the most recent consolidated sentences, oldest
// first.
func (s *Session) Latest(n int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.merger.LatestSentences(n)
}

// Len returns the number of consolidated sentences.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.merger.Len()
}

// Snapshot returns a copy of the session's current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Sentences: s.merger.Sentences(),
		FullText:  s.merger.FullText(),
		History:   append([]keyword.Record(nil), s.history...),
		Fragments: s.fragments,
		StartedAt: s.startedAt,
		UpdatedAt: s.updatedAt,
	}
}

// SetMaxHistory changes the history bound, trimming the oldest entries if
// it shrank.
func (s *Session) SetMaxHistory(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxHistory = n
	if len(s.history) > n {
		s.history = s.history[:n]
	}
}

// SetWeights forwards new ranking weights to the extractor.
func (s *Session) SetWeights(propn, ner float64) {
	s.extractor.SetWeights(propn, ner)
}

// Reset wipes the transcript, keyword state and history. A keyword seen
// before the reset counts as new when it reappears.
func (s *Session) Reset() {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.merger.Clear()
	s.extractor.Reset()
	s.history = nil
	s.fragments = 0
	s.startedAt = time.Now()
	s.updatedAt = time.Time{}
	slog.Debug("session reset")
}

// Close releases the session. Further Ingest calls return [ErrClosed].
func (s *Session) Close() error {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.history = nil
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
