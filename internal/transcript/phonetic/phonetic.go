// Package phonetic matches misheard transcript phrases against a vocabulary
// of known names using Double Metaphone codes and Jaro-Winkler similarity.
//
// A phrase is compared with every vocabulary term. When the phrase and the
// term share a Double Metaphone code the term is a phonetic candidate and
// needs a Jaro-Winkler score of at least the phonetic threshold (0.70).
// Without a shared code the term can still win on spelling alone, but only
// above the stricter fuzzy threshold (0.85). Phonetic candidates always beat
// fuzzy ones.
package phonetic

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a term that
// shares a phonetic code with the phrase. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a term that
// shares no phonetic code with the phrase. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher scores phrases against a [Vocabulary]. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match is the result of a successful [Matcher.Match].
type Match struct {
	// Term is the vocabulary entry in its original casing.
	Term string

	// Score is the Jaro-Winkler similarity in [0, 1].
	Score float64

	// Phonetic is true when the phrase and term shared a phonetic code.
	Phonetic bool
}

// Match returns the vocabulary term closest to phrase, if any clears the
// thresholds.
func (m *Matcher) Match(phrase string, v *Vocabulary) (Match, bool) {
	if v == nil || len(v.terms) == 0 {
		return Match{}, false
	}
	lower := strings.ToLower(strings.TrimSpace(phrase))
	if lower == "" {
		return Match{}, false
	}
	in := newTerm(phrase, lower)

	var best Match
	for i := range v.terms {
		t := &v.terms[i]
		if !comparableLength(&in, t) {
			continue
		}
		score := similarity(&in, t)
		if codesOverlap(in.codes, t.codes) {
			if score >= m.phoneticThreshold && (!best.Phonetic || score > best.Score) {
				best = Match{Term: t.name, Score: score, Phonetic: true}
			}
		} else if !best.Phonetic && score >= m.fuzzyThreshold && score > best.Score {
			best = Match{Term: t.name, Score: score}
		}
	}
	return best, best.Term != ""
}

// Vocabulary is a precomputed set of terms. Building one per phrase is
// wasteful; build it once when the term list changes.
type Vocabulary struct {
	terms    []term
	maxWords int
}

type term struct {
	name   string
	lower  string
	concat string
	words  int
	codes  map[string]struct{}
}

func newTerm(name, lower string) term {
	tokens := strings.Fields(lower)
	return term{
		name:   name,
		lower:  strings.Join(tokens, " "),
		concat: strings.Join(tokens, ""),
		words:  len(tokens),
		codes:  codesForTokens(tokens),
	}
}

// NewVocabulary precomputes phonetic codes for names. Blank and duplicate
// (case-insensitive) names are skipped.
func NewVocabulary(names []string) *Vocabulary {
	v := &Vocabulary{}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		lower := strings.ToLower(n)
		if lower == "" {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		t := newTerm(n, lower)
		v.terms = append(v.terms, t)
		v.maxWords = max(v.maxWords, t.words)
	}
	return v
}

// Len returns the number of terms.
func (v *Vocabulary) Len() int { return len(v.terms) }

// MaxWords returns the word count of the longest term, or 0 when empty.
func (v *Vocabulary) MaxWords() int { return v.maxWords }

// Lookup returns the term equal to phrase, ignoring case and spacing.
func (v *Vocabulary) Lookup(phrase string) (string, bool) {
	lower := strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
	for i := range v.terms {
		if v.terms[i].lower == lower {
			return v.terms[i].name, true
		}
	}
	return "", false
}

func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// comparableLength rejects pairs where one side is less than half as long
// as the other. Jaro scores short strings generously against long ones.
func comparableLength(a, b *term) bool {
	la, lb := utf8.RuneCountInString(a.concat), utf8.RuneCountInString(b.concat)
	return 2*min(la, lb) >= max(la, lb)
}

// similarity compares the full phrases and, when either side has several
// words, their space-stripped forms ("elder nacks" vs "eldrinax"). Single
// words are never compared against parts of a longer term, so a stray "of"
// cannot turn into "Tower of Whispers".
func similarity(in, t *term) float64 {
	score := matchr.JaroWinkler(in.lower, t.lower, false)
	if in.words > 1 || t.words > 1 {
		if s := matchr.JaroWinkler(in.concat, t.concat, false); s > score {
			score = s
		}
	}
	return score
}
