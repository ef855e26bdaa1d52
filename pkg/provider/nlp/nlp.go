// Package nlp defines the linguistic annotation capability consumed by the
// keyword extractor.
//
// An [Annotator] turns raw text into a [Doc]: tokens carrying a universal
// part-of-speech tag, lemma and lexical flags, labelled named-entity spans,
// sentence boundaries, and (when the backend parses dependencies) noun
// chunks. Implementations are selected per language through a [Registry].
package nlp

import (
	"context"
	"strings"
)

// POS is a Universal Dependencies coarse part-of-speech tag.
type POS string

// Universal POS tags.
const (
	ADJ   POS = "ADJ"
	ADP   POS = "ADP"
	ADV   POS = "ADV"
	AUX   POS = "AUX"
	CCONJ POS = "CCONJ"
	DET   POS = "DET"
	INTJ  POS = "INTJ"
	NOUN  POS = "NOUN"
	NUM   POS = "NUM"
	PART  POS = "PART"
	PRON  POS = "PRON"
	PROPN POS = "PROPN"
	PUNCT POS = "PUNCT"
	SCONJ POS = "SCONJ"
	SYM   POS = "SYM"
	VERB  POS = "VERB"
	X     POS = "X"
	SPACE POS = "SPACE"
)

// Token is one annotated token.
type Token struct {
	// Text is the surface form as it appears in the input.
	Text string `json:"text"`

	// Lemma is the base form. May be empty when the backend does not
	// lemmatise.
	Lemma string `json:"lemma,omitempty"`

	POS POS `json:"pos"`

	// Start is the byte offset of the token in [Doc.Text].
	Start int `json:"start"`

	IsStop  bool `json:"is_stop,omitempty"`
	IsPunct bool `json:"is_punct,omitempty"`
	IsAlpha bool `json:"is_alpha,omitempty"`
	IsSpace bool `json:"is_space,omitempty"`
}

// End returns the byte offset just past the token.
func (t Token) End() int { return t.Start + len(t.Text) }

// Span is a half-open token range [Start, End).
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of tokens in the span.
func (s Span) Len() int { return s.End - s.Start }

// Entity is a labelled named-entity span.
type Entity struct {
	Span
	Label string `json:"label"`
}

// Doc is the annotation of one text.
type Doc struct {
	Text       string   `json:"text"`
	Tokens     []Token  `json:"tokens"`
	Entities   []Entity `json:"entities,omitempty"`
	Sentences  []Span   `json:"sentences,omitempty"`
	NounChunks []Span   `json:"noun_chunks,omitempty"`

	// HasDependencies reports that NounChunks come from a dependency parse.
	// When false, consumers fall back to part-of-speech patterns.
	HasDependencies bool `json:"has_dependencies,omitempty"`
}

// SpanText returns the source text covered by s, or "" for an empty or
// out-of-range span.
func (d *Doc) SpanText(s Span) string {
	if s.Start < 0 || s.End > len(d.Tokens) || s.Start >= s.End {
		return ""
	}
	start, end := d.Tokens[s.Start].Start, d.Tokens[s.End-1].End()
	if start < 0 || end > len(d.Text) || start > end {
		// Tokens that do not index into Text fall back to a space join.
		parts := make([]string, 0, s.Len())
		for _, t := range d.Tokens[s.Start:s.End] {
			parts = append(parts, t.Text)
		}
		return strings.Join(parts, " ")
	}
	return d.Text[start:end]
}

// SentenceIndex returns the index of the sentence containing token i. Docs
// without sentence annotation are one sentence.
func (d *Doc) SentenceIndex(i int) int {
	for si, s := range d.Sentences {
		if i >= s.Start && i < s.End {
			return si
		}
	}
	return 0
}

// LastSentence returns the index of the last sentence, or -1 for a doc with
// no tokens.
func (d *Doc) LastSentence() int {
	if len(d.Tokens) == 0 {
		return -1
	}
	if len(d.Sentences) == 0 {
		return 0
	}
	return len(d.Sentences) - 1
}

// Annotator produces a [Doc] for a text.
//
// Implementations must be deterministic (same input, same output) and safe
// for concurrent use.
type Annotator interface {
	Annotate(ctx context.Context, text string) (*Doc, error)

	// Language is the base language code the annotator was built for, or
	// "*" for language-agnostic fallbacks.
	Language() string
}
