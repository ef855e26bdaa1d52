package transcript

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/MrWong99/livenote/internal/transcript/phonetic"
)

const defaultMinWordLength = 3

// Correction is one substitution made by a [Corrector].
type Correction struct {
	// Original is the phrase as produced by the recogniser.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Confidence is the matcher's similarity score (0.0–1.0).
	Confidence float64

	// Method names the stage that produced the substitution. Currently
	// always "phonetic".
	Method string
}

// CorrectorOption is a functional option for [NewCorrector].
type CorrectorOption func(*Corrector)

// WithMatcher replaces the default phonetic matcher.
func WithMatcher(m *phonetic.Matcher) CorrectorOption {
	return func(c *Corrector) {
		if m != nil {
			c.matcher = m
		}
	}
}

// WithMinWordLength ignores single-word phrases shorter than n letters.
// Default: 3.
func WithMinWordLength(n int) CorrectorOption {
	return func(c *Corrector) { c.minLen = n }
}

// Corrector snaps misheard names in a fragment onto a known vocabulary
// (people, products, places the user expects to hear). It tries n-gram
// windows from the longest vocabulary term down to single words so that
// multi-word names win over partial matches.
//
// Corrector is safe for concurrent use; the vocabulary can be swapped at
// runtime with [Corrector.SetVocabulary].
type Corrector struct {
	matcher *phonetic.Matcher
	minLen  int

	mu    sync.RWMutex
	vocab *phonetic.Vocabulary
}

// NewCorrector returns a Corrector for the given vocabulary.
func NewCorrector(vocabulary []string, opts ...CorrectorOption) *Corrector {
	c := &Corrector{
		matcher: phonetic.New(),
		minLen:  defaultMinWordLength,
		vocab:   phonetic.NewVocabulary(vocabulary),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetVocabulary replaces the vocabulary.
func (c *Corrector) SetVocabulary(vocabulary []string) {
	v := phonetic.NewVocabulary(vocabulary)
	c.mu.Lock()
	c.vocab = v
	c.mu.Unlock()
}

// Correct returns text with vocabulary substitutions applied and the list of
// substitutions in order. Punctuation attached to a replaced phrase is kept.
// When nothing matches, text is returned unchanged with an empty, non-nil
// slice.
func (c *Corrector) Correct(text string) (string, []Correction) {
	c.mu.RLock()
	vocab := c.vocab
	c.mu.RUnlock()

	corrections := []Correction{}
	tokens := strings.Fields(text)
	if len(tokens) == 0 || vocab.Len() == 0 {
		return text, corrections
	}

	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		n, repl, corr, ok := c.matchAt(tokens, i, vocab)
		if !ok {
			out = append(out, tokens[i])
			i++
			continue
		}
		out = append(out, repl)
		if corr != nil {
			corrections = append(corrections, *corr)
		}
		i += n
	}
	if len(corrections) == 0 {
		return text, corrections
	}
	return strings.Join(out, " "), corrections
}

// matchAt finds the longest window starting at tokens[i] that matches the
// vocabulary. An exact match consumes the window without a correction.
func (c *Corrector) matchAt(tokens []string, i int, vocab *phonetic.Vocabulary) (int, string, *Correction, bool) {
	for n := min(vocab.MaxWords(), len(tokens)-i); n >= 1; n-- {
		window := tokens[i : i+n]
		lead := leadingPunct(window[0])
		trail := trailingPunct(window[n-1])
		words := make([]string, n)
		for j, w := range window {
			words[j] = core(w)
		}
		phrase := strings.TrimSpace(strings.Join(words, " "))
		if phrase == "" {
			continue
		}
		if n == 1 && utf8.RuneCountInString(phrase) < c.minLen {
			continue
		}
		// Punctuation inside the window means it spans a clause boundary.
		if n > 1 && innerPunct(window) {
			continue
		}
		if term, ok := vocab.Lookup(phrase); ok {
			if term == phrase {
				return n, strings.Join(window, " "), nil, true
			}
			return n, lead + term + trail, &Correction{
				Original: phrase, Corrected: term, Confidence: 1, Method: "phonetic",
			}, true
		}
		m, ok := c.matcher.Match(phrase, vocab)
		if !ok {
			continue
		}
		return n, lead + m.Term + trail, &Correction{
			Original:   phrase,
			Corrected:  m.Term,
			Confidence: m.Score,
			Method:     "phonetic",
		}, true
	}
	return 0, "", nil, false
}

func leadingPunct(w string) string {
	return w[:len(w)-len(strings.TrimLeftFunc(w, isPunct))]
}

func innerPunct(window []string) bool {
	for j, w := range window {
		if j < len(window)-1 && hasTrailingPunct(w) {
			return true
		}
		if j > 0 && leadingPunct(w) != "" {
			return true
		}
	}
	return false
}
