package transcript

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultSimilarityThreshold = 0.7
	defaultOverlapThreshold    = 0.6
	defaultMaxBufferSize       = 50
	defaultDuplicateWindow     = 10
)

// Option is a functional option for [NewMerger].
type Option func(*Merger)

// WithSimilarityThreshold sets the similarity ratio at or above which a
// fragment counts as a duplicate of a recent sentence. Default: 0.7.
func WithSimilarityThreshold(v float64) Option {
	return func(m *Merger) { m.similarity = v }
}

// WithOverlapThreshold sets the minimum ratio of overlapping words to the
// shorter side for a fragment to be merged into the last sentence.
// Default: 0.6.
func WithOverlapThreshold(v float64) Option {
	return func(m *Merger) { m.overlap = v }
}

// WithMaxBufferSize caps the raw fragment buffer. Default: 50.
func WithMaxBufferSize(n int) Option {
	return func(m *Merger) {
		if n > 0 {
			m.maxBuffer = n
		}
	}
}

// WithDuplicateWindow sets how many recent sentences are compared when
// looking for duplicates. Default: 10.
func WithDuplicateWindow(n int) Option {
	return func(m *Merger) {
		if n > 0 {
			m.window = n
		}
	}
}

// WithMinDuplicateLength skips the duplicate check for cleaned fragments
// shorter than n characters. Short interjections ("yes", "okay") are then
// accepted even when they repeat. Default: 0 (always check).
func WithMinDuplicateLength(n int) Option {
	return func(m *Merger) { m.minDupLen = max(n, 0) }
}

// Merger turns raw fragments into a sequence of consolidated sentences.
//
// Only the last sentence is ever modified; earlier ones are final. Merger is
// not safe for concurrent use: it is owned by the single goroutine that
// consumes recogniser output.
type Merger struct {
	similarity float64
	overlap    float64
	maxBuffer  int
	window     int
	minDupLen  int

	sentences []string
	raw       []string
}

// NewMerger returns an empty Merger configured with opts.
func NewMerger(opts ...Option) *Merger {
	m := &Merger{
		similarity: defaultSimilarityThreshold,
		overlap:    defaultOverlapThreshold,
		maxBuffer:  defaultMaxBufferSize,
		window:     defaultDuplicateWindow,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Process consumes one fragment and returns the affected sentence and
// whether the fragment was accepted. Rejected fragments return ("", false)
// and leave the merger untouched.
func (m *Merger) Process(raw string) (string, bool) {
	out := m.Apply(raw)
	return out.Text, out.Accepted()
}

// Apply is [Merger.Process] with the full [Outcome].
func (m *Merger) Apply(raw string) Outcome {
	cleaned := Clean(raw)
	if cleaned == "" {
		return Outcome{Kind: Rejected}
	}
	if m.isDuplicate(cleaned) {
		return Outcome{Kind: Rejected}
	}

	m.raw = append(m.raw, cleaned)
	if over := len(m.raw) - m.maxBuffer; over > 0 {
		m.raw = append(m.raw[:0:0], m.raw[over:]...)
	}

	if n := len(m.sentences); n > 0 {
		prev := strings.Fields(m.sentences[n-1])
		next := strings.Fields(cleaned)
		k := overlapWords(prev, next)
		if k > 0 && float64(k)/float64(min(len(prev), len(next))) >= m.overlap {
			delta := next[k:]
			merged := strings.Join(append(prev, delta...), " ")
			m.sentences[n-1] = merged
			return Outcome{Kind: Merged, Text: merged, Delta: strings.Join(delta, " ")}
		}
	}

	m.sentences = append(m.sentences, cleaned)
	return Outcome{Kind: Appended, Text: cleaned, Delta: cleaned}
}

func (m *Merger) isDuplicate(cleaned string) bool {
	if utf8.RuneCountInString(cleaned) < m.minDupLen {
		return false
	}
	recent := m.sentences[max(0, len(m.sentences)-m.window):]
	for _, s := range recent {
		if Similarity(cleaned, s) >= m.similarity {
			return true
		}
	}
	return false
}

// Similarity returns 1 - levenshtein(a, b) / max(len(a), len(b)), computed
// over runes and ignoring case. Two empty strings are identical.
func Similarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(matchr.Levenshtein(a, b))/float64(longest)
}

// overlapWords returns the largest k such that the last k words of prev
// equal the first k words of next, ignoring case.
func overlapWords(prev, next []string) int {
	for k := min(len(prev), len(next)); k > 0; k-- {
		if equalWords(prev[len(prev)-k:], next[:k]) {
			return k
		}
	}
	return 0
}

func equalWords(a, b []string) bool {
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

// FullText joins all sentences with single spaces.
func (m *Merger) FullText() string { return strings.Join(m.sentences, " ") }

// LatestSentences returns up to n of the most recent sentences, oldest
// first.
func (m *Merger) LatestSentences(n int) []string {
	if n <= 0 {
		return nil
	}
	return append([]string(nil), m.sentences[max(0, len(m.sentences)-n):]...)
}

// Sentences returns a copy of all sentences.
func (m *Merger) Sentences() []string { return append([]string(nil), m.sentences...) }

// RawBuffer returns a copy of the buffered cleaned fragments, oldest first.
func (m *Merger) RawBuffer() []string { return append([]string(nil), m.raw...) }

// Len returns the number of sentences.
func (m *Merger) Len() int { return len(m.sentences) }

// Clear drops all sentences and buffered fragments.
func (m *Merger) Clear() {
	m.sentences = nil
	m.raw = nil
}
