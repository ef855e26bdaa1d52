// Package rulebased implements an in-process [nlp.Annotator] without model
// files: a Unicode tokenizer, a lexicon plus suffix part-of-speech tagger,
// a rule lemmatizer, and gazetteer-driven named-entity recognition.
//
// The English annotator is tuned for ASR output, which is often lower-case
// and unpunctuated, so capitalisation is treated as a hint rather than a
// rule. [NewGeneric] serves other languages with tokenisation, sentence
// splitting, capitalised proper-noun runs and the gazetteer only.
//
// Neither annotator produces a dependency parse; consumers fall back to
// part-of-speech patterns for noun phrases.
package rulebased

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/livenote/pkg/provider/nlp"
)

var _ nlp.Annotator = (*Annotator)(nil)

// Option is a functional option for the constructors.
type Option func(*Annotator)

// WithEntries adds gazetteer entries recognised as named entities.
func WithEntries(entries ...Entry) Option {
	return func(a *Annotator) { a.extra = append(a.extra, entries...) }
}

// WithStopwords adds language-specific stopwords.
func WithStopwords(words ...string) Option {
	return func(a *Annotator) {
		for _, w := range words {
			a.stop[strings.ToLower(w)] = struct{}{}
		}
	}
}

// WithoutBuiltinEntries disables the built-in seed gazetteer.
func WithoutBuiltinEntries() Option {
	return func(a *Annotator) { a.builtin = false }
}

// Annotator is a rule-based annotator. It is immutable after construction
// and safe for concurrent use.
type Annotator struct {
	lang    string
	english bool
	builtin bool
	extra   []Entry
	stop    map[string]struct{}
	gaz     *gazetteer
}

// NewEnglish returns the English annotator.
func NewEnglish(opts ...Option) *Annotator {
	return newAnnotator("en", true, opts)
}

// NewGeneric returns a language-agnostic annotator reporting lang.
func NewGeneric(lang string, opts ...Option) *Annotator {
	return newAnnotator(lang, false, opts)
}

func newAnnotator(lang string, english bool, opts []Option) *Annotator {
	a := &Annotator{
		lang:    lang,
		english: english,
		builtin: true,
		stop:    make(map[string]struct{}),
	}
	if english {
		for w := range stopwords {
			a.stop[w] = struct{}{}
		}
	}
	for _, o := range opts {
		o(a)
	}
	a.gaz = newGazetteer()
	if a.builtin {
		for _, e := range builtinEntries {
			a.gaz.add(e)
		}
	}
	for _, e := range a.extra {
		a.gaz.add(e)
	}
	return a
}

// Language implements [nlp.Annotator].
func (a *Annotator) Language() string { return a.lang }

// Annotate implements [nlp.Annotator].
func (a *Annotator) Annotate(ctx context.Context, text string) (*nlp.Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("rulebased: %w", err)
	}
	toks := tokenize(text)
	sents := sentences(toks)
	for _, s := range sents {
		prev := ""
		for i := s.Start; i < s.End; i++ {
			a.tag(&toks[i], prev, i == firstWord(toks, s))
			if !toks[i].IsPunct {
				prev = strings.ToLower(toks[i].Text)
			}
		}
	}
	ents := a.entities(toks)
	return &nlp.Doc{
		Text:      text,
		Tokens:    toks,
		Entities:  ents,
		Sentences: sents,
	}, nil
}

// firstWord returns the index of the first non-punctuation token of s.
func firstWord(toks []nlp.Token, s nlp.Span) int {
	for i := s.Start; i < s.End; i++ {
		if !toks[i].IsPunct {
			return i
		}
	}
	return s.Start
}

// tag sets POS, stop flag and lemma of t. prev is the lower-cased previous
// word of the same sentence, empty at its start.
func (a *Annotator) tag(t *nlp.Token, prev string, sentenceInitial bool) {
	if t.IsPunct || t.POS == nlp.SYM {
		return
	}
	lower := strings.ToLower(t.Text)
	_, t.IsStop = a.stop[lower]

	switch {
	case isNumeric(t.Text):
		t.POS = nlp.NUM
	case a.english:
		t.POS = englishTag(t.Text, lower, prev, sentenceInitial)
	case isCapitalized(t.Text) && !sentenceInitial && !t.IsStop:
		t.POS = nlp.PROPN
	default:
		t.POS = nlp.X
	}

	switch t.POS {
	case nlp.PROPN:
		t.Lemma = t.Text
	case nlp.NUM:
		t.Lemma = lower
	default:
		if a.english {
			t.Lemma = lemmatize(lower, t.POS)
		} else {
			t.Lemma = lower
		}
	}
}

func englishTag(text, lower, prev string, sentenceInitial bool) nlp.POS {
	if lower == "i" {
		return nlp.PRON
	}
	closed, isClosed := closedClass[lower]
	open, isOpen := openClass[lower]
	if isCapitalized(text) {
		if !sentenceInitial && !isClosed {
			return nlp.PROPN
		}
		if sentenceInitial && !isClosed && !isOpen && !knownForm(lower) {
			return nlp.PROPN
		}
	}
	if isClosed {
		return closed
	}
	if verbSlot(prev, lower, open, isOpen) {
		return nlp.VERB
	}
	if isOpen {
		return open
	}
	if knownForm(lower) {
		return nlp.VERB
	}
	if pos, ok := suffixTag(lower); ok {
		return pos
	}
	if base := singular(lower); base != lower {
		if pos, ok := openClass[base]; ok && pos == nlp.NOUN {
			return nlp.NOUN
		}
	}
	return nlp.NOUN
}

// verbSlot reports whether lower sits where a bare verb is expected. Any
// word after a modal qualifies. After "to" or a non-third-person subject
// pronoun only words with no hint for another class do, so "to market" and
// "you guys" stay nouns.
func verbSlot(prev, lower string, open nlp.POS, isOpen bool) bool {
	if pos, ok := suffixTag(lower); ok && pos == nlp.ADV {
		return false
	}
	if _, ok := modals[prev]; ok {
		return true
	}
	if _, ok := verbCues[prev]; !ok {
		return false
	}
	if isOpen {
		return open == nlp.VERB
	}
	if singular(lower) != lower {
		return false
	}
	pos, ok := suffixTag(lower)
	return !ok || pos == nlp.VERB
}

// knownForm reports whether lower is an inflection of a lexicon verb.
func knownForm(lower string) bool {
	if base, ok := irregular[lower]; ok {
		if pos, ok := openClass[base]; ok && pos == nlp.VERB {
			return true
		}
	}
	base := verbBase(lower)
	if base == lower {
		return false
	}
	pos, ok := openClass[base]
	return ok && pos == nlp.VERB
}

// entities runs the gazetteer, then labels capitalised proper-noun runs by
// title or suffix cues. Gazetteer matches promote their capitalised tokens
// to PROPN.
func (a *Annotator) entities(toks []nlp.Token) []nlp.Entity {
	var ents []nlp.Entity
	covered := make([]bool, len(toks))
	for i := 0; i < len(toks); {
		if toks[i].IsPunct {
			i++
			continue
		}
		end, label, ok := a.gaz.match(toks, i)
		if !ok || !anyCapitalized(toks[i:end]) {
			i++
			continue
		}
		for j := i; j < end; j++ {
			covered[j] = true
			if toks[j].IsAlpha && isCapitalized(toks[j].Text) {
				toks[j].POS = nlp.PROPN
				toks[j].Lemma = toks[j].Text
				toks[j].IsStop = false
			}
		}
		ents = append(ents, nlp.Entity{Span: nlp.Span{Start: i, End: end}, Label: label})
		i = end
	}

	for i := 0; i < len(toks); {
		if covered[i] || toks[i].POS != nlp.PROPN {
			i++
			continue
		}
		j := i
		for j < len(toks) && !covered[j] && toks[j].POS == nlp.PROPN {
			j++
		}
		if label := runLabel(toks, i, j); label != "" {
			ents = append(ents, nlp.Entity{Span: nlp.Span{Start: i, End: j}, Label: label})
		}
		i = j
	}
	sortEntities(ents)
	return ents
}

func runLabel(toks []nlp.Token, start, end int) string {
	if start > 0 {
		prev := strings.ToLower(strings.TrimSuffix(toks[start-1].Text, "."))
		if _, ok := personTitles[prev]; ok {
			return "PERSON"
		}
		if start > 1 && toks[start-1].Text == "." {
			prev = strings.ToLower(toks[start-2].Text)
			if _, ok := personTitles[prev]; ok {
				return "PERSON"
			}
		}
	}
	if end-start > 1 {
		last := strings.ToLower(strings.TrimSuffix(toks[end-1].Text, "."))
		if label, ok := runSuffixLabels[last]; ok {
			return label
		}
	}
	return ""
}

func anyCapitalized(toks []nlp.Token) bool {
	for _, t := range toks {
		if isCapitalized(t.Text) {
			return true
		}
	}
	return false
}

func sortEntities(ents []nlp.Entity) {
	slices.SortStableFunc(ents, func(a, b nlp.Entity) int { return cmp.Compare(a.Start, b.Start) })
}
