// Package mock provides a test double for [nlp.Annotator] and a small
// builder for hand-annotated documents.
//
//	doc := mock.NewDoc().
//	    Word("Apple", nlp.PROPN).Word("announced", nlp.VERB).
//	    Entity(0, 1, "ORG").Doc()
//	a := &mock.Annotator{Docs: map[string]*nlp.Doc{"Apple announced": doc}}
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/MrWong99/livenote/pkg/provider/nlp"
)

var _ nlp.Annotator = (*Annotator)(nil)

// Annotator is a mock implementation of [nlp.Annotator]. Docs maps exact
// input text to the document returned; unknown text falls back to Fallback
// or, if nil, an error.
type Annotator struct {
	mu sync.Mutex

	// Docs are returned by exact text match. Each call returns a copy.
	Docs map[string]*nlp.Doc

	// Fallback handles text missing from Docs.
	Fallback nlp.Annotator

	// Err, if non-nil, is returned by every call.
	Err error

	// Lang is returned by Language. Defaults to "en".
	Lang string

	// Calls records every annotated text.
	Calls []string
}

// Annotate implements [nlp.Annotator].
func (a *Annotator) Annotate(ctx context.Context, text string) (*nlp.Doc, error) {
	a.mu.Lock()
	a.Calls = append(a.Calls, text)
	err := a.Err
	doc, ok := a.Docs[text]
	fb := a.Fallback
	a.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if ok {
		return clone(doc), nil
	}
	if fb != nil {
		return fb.Annotate(ctx, text)
	}
	return nil, fmt.Errorf("mock: no annotation for %q", text)
}

// Language implements [nlp.Annotator].
func (a *Annotator) Language() string {
	if a.Lang == "" {
		return "en"
	}
	return a.Lang
}

func clone(d *nlp.Doc) *nlp.Doc {
	c := *d
	c.Tokens = append([]nlp.Token(nil), d.Tokens...)
	c.Entities = append([]nlp.Entity(nil), d.Entities...)
	c.Sentences = append([]nlp.Span(nil), d.Sentences...)
	c.NounChunks = append([]nlp.Span(nil), d.NounChunks...)
	return &c
}

// Builder assembles a [nlp.Doc] word by word. Words are joined by single
// spaces; punctuation attaches to the previous word.
type Builder struct {
	doc      nlp.Doc
	sb       strings.Builder
	sentFrom int
}

// NewDoc starts a new document.
func NewDoc() *Builder { return &Builder{} }

// Word appends a token. The lemma defaults to the lower-cased surface;
// punctuation and stopword flags follow the tag.
func (b *Builder) Word(text string, pos nlp.POS) *Builder {
	return b.add(nlp.Token{Text: text, POS: pos})
}

// Stop appends a stopword token.
func (b *Builder) Stop(text string, pos nlp.POS) *Builder {
	return b.add(nlp.Token{Text: text, POS: pos, IsStop: true})
}

// Lemma appends a token with an explicit lemma.
func (b *Builder) Lemma(text, lemma string, pos nlp.POS) *Builder {
	return b.add(nlp.Token{Text: text, Lemma: lemma, POS: pos})
}

func (b *Builder) add(t nlp.Token) *Builder {
	if t.POS == nlp.PUNCT {
		t.IsPunct = true
	} else if b.sb.Len() > 0 {
		b.sb.WriteByte(' ')
	}
	t.Start = b.sb.Len()
	b.sb.WriteString(t.Text)
	if t.Lemma == "" {
		t.Lemma = strings.ToLower(t.Text)
	}
	t.IsAlpha = isAlpha(t.Text)
	b.doc.Tokens = append(b.doc.Tokens, t)
	return b
}

// EndSentence closes the current sentence at the last added token.
func (b *Builder) EndSentence() *Builder {
	if n := len(b.doc.Tokens); n > b.sentFrom {
		b.doc.Sentences = append(b.doc.Sentences, nlp.Span{Start: b.sentFrom, End: n})
		b.sentFrom = n
	}
	return b
}

// Entity labels tokens [start, end).
func (b *Builder) Entity(start, end int, label string) *Builder {
	b.doc.Entities = append(b.doc.Entities, nlp.Entity{Span: nlp.Span{Start: start, End: end}, Label: label})
	return b
}

// Chunk adds a dependency noun chunk and marks the doc as parsed.
func (b *Builder) Chunk(start, end int) *Builder {
	b.doc.NounChunks = append(b.doc.NounChunks, nlp.Span{Start: start, End: end})
	b.doc.HasDependencies = true
	return b
}

// Doc finalises the document, closing any open sentence.
func (b *Builder) Doc() *nlp.Doc {
	b.EndSentence()
	b.doc.Text = b.sb.String()
	d := b.doc
	return &d
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || r > 127) {
			return false
		}
	}
	return true
}
