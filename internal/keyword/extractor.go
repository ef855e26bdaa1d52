package keyword

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"github.com/MrWong99/livenote/pkg/provider/nlp"
)

const (
	defaultMinChars          = 2
	defaultProperNounWeight  = 1.2
	defaultNamedEntityWeight = 1.5

	// lengthBonus slightly favours longer phrases among equal frequencies.
	lengthBonus = 0.1
)

// All passed as k to [Extractor.Top] ranks every keyword.
const All = -1

// Option is a functional option for [New].
type Option func(*Extractor)

// WithMinChars drops phrases shorter than n characters. Default: 2.
func WithMinChars(n int) Option {
	return func(e *Extractor) { e.minChars = n }
}

// WithNamedEntities enables or disables named-entity candidates.
// Default: enabled.
func WithNamedEntities(on bool) Option {
	return func(e *Extractor) { e.useNER = on }
}

// WithNounChunks enables dependency noun chunks when the annotator provides
// them. When disabled, or when the document carries no dependency parse,
// the extractor falls back to the ADJ* (NOUN|PROPN)+ pattern.
// Default: enabled.
func WithNounChunks(on bool) Option {
	return func(e *Extractor) { e.useChunks = on }
}

// WithProperNounWeight sets the score multiplier for phrases containing a
// proper noun. Default: 1.2.
func WithProperNounWeight(w float64) Option {
	return func(e *Extractor) { e.weightPropn = w }
}

// WithNamedEntityWeight sets the score multiplier for named entities.
// Default: 1.5.
func WithNamedEntityWeight(w float64) Option {
	return func(e *Extractor) { e.weightNER = w }
}

// WithLemmas counts token frequencies by lemma rather than surface form.
// Default: enabled.
func WithLemmas(on bool) Option {
	return func(e *Extractor) { e.useLemma = on }
}

// Extractor accumulates keyword state for one session. It is safe for
// concurrent use: [Extractor.Update] and [Extractor.Top] never interleave.
type Extractor struct {
	annotator nlp.Annotator

	minChars  int
	useNER    bool
	useChunks bool
	useLemma  bool

	mu          sync.Mutex
	weightPropn float64
	weightNER   float64
	fold        cases.Caser
	freq        map[string]int
	records     map[string]*Record
	order       []*Record
	tokOffset   int
	sentOffset  int
	charOffset  int
}

// New returns an Extractor that annotates text with annotator.
func New(annotator nlp.Annotator, opts ...Option) *Extractor {
	e := &Extractor{
		annotator:   annotator,
		minChars:    defaultMinChars,
		useNER:      true,
		useChunks:   true,
		useLemma:    true,
		weightPropn: defaultProperNounWeight,
		weightNER:   defaultNamedEntityWeight,
		fold:        cases.Fold(),
		freq:        make(map[string]int),
		records:     make(map[string]*Record),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Update annotates text and returns the keywords seen for the first time,
// in order of appearance.
func (e *Extractor) Update(ctx context.Context, text string) ([]string, error) {
	recs, err := e.UpdateRecords(ctx, text)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Text
	}
	return out, nil
}

// UpdateRecords is [Extractor.Update] returning full records. Blank text is
// a no-op. If annotation fails the error is returned and no state changes.
func (e *Extractor) UpdateRecords(ctx context.Context, text string) ([]Record, error) {
	return e.UpdateFrom(ctx, text, 0)
}

// UpdateFrom annotates all of text but treats only the part starting at byte
// offset from as new. The prefix gives the annotator context, typically the
// start of a sentence that was already fed and has now been extended. Only
// tokens at or after from are counted, and only phrases ending there are
// reported, so a phrase that straddles the boundary is kept whole.
func (e *Extractor) UpdateFrom(ctx context.Context, text string, from int) ([]Record, error) {
	if from < 0 || from > len(text) {
		return nil, fmt.Errorf("keyword: offset %d outside text of length %d", from, len(text))
	}
	if strings.TrimSpace(text[from:]) == "" {
		return nil, nil
	}
	// Annotation is pure, so it runs outside the lock.
	doc, err := e.annotator.Annotate(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("keyword: annotate: %w", err)
	}
	bound := slices.IndexFunc(doc.Tokens, func(t nlp.Token) bool { return t.Start >= from })
	if bound < 0 {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, t := range doc.Tokens[bound:] {
		if countable(t) {
			e.freq[e.tokenKey(t)]++
		}
	}

	// The prefix ends in the last sentence already fed.
	sentBase := e.sentOffset
	if bound > 0 {
		sentBase = max(0, e.sentOffset-1-doc.SentenceIndex(bound-1))
	}

	var fresh []Record
	for _, c := range e.collect(doc) {
		if c.span.End <= bound {
			continue
		}
		text := strings.TrimSpace(doc.SpanText(c.span))
		key := e.normalize(text)
		if key == "" {
			continue
		}
		if _, seen := e.records[key]; seen {
			continue
		}
		rec := &Record{
			Text:           text,
			Key:            key,
			TokenOffset:    e.tokOffset + c.span.Start - bound,
			CharOffset:     max(0, e.charOffset+doc.Tokens[c.span.Start].Start-from),
			SentenceIndex:  sentBase + doc.SentenceIndex(c.span.Start),
			HasNamedEntity: c.kind == KindEntity,
			Kind:           c.kind,
		}
		for _, t := range doc.Tokens[c.span.Start:c.span.End] {
			if t.POS == nlp.PROPN {
				rec.HasProperNoun = true
			}
			if countable(t) {
				rec.Tokens = append(rec.Tokens, e.tokenKey(t))
			}
		}
		e.records[key] = rec
		e.order = append(e.order, rec)
		fresh = append(fresh, *rec)
	}

	e.tokOffset += len(doc.Tokens) - bound
	e.sentOffset = sentBase + doc.LastSentence() + 1
	e.charOffset += len(doc.Text) - from + 1

	slices.SortStableFunc(fresh, func(a, b Record) int {
		return cmp.Compare(a.TokenOffset, b.TokenOffset)
	})
	return fresh, nil
}

// Top returns up to k keyword texts ranked by order. A negative k, such as
// [All], returns every keyword and k == 0 returns none.
func (e *Extractor) Top(k int, order Order) []string {
	scored := e.TopRecords(k, order)
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.Text
	}
	return out
}

// TopRecords is [Extractor.Top] with records and their current scores.
// Ties keep discovery order.
func (e *Extractor) TopRecords(k int, order Order) []Scored {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Scored, len(e.order))
	for i, r := range e.order {
		out[i] = Scored{Record: *r, Score: e.score(r)}
	}
	if order == OrderAppearance {
		slices.SortStableFunc(out, func(a, b Scored) int {
			return cmp.Compare(a.TokenOffset, b.TokenOffset)
		})
	} else {
		slices.SortStableFunc(out, func(a, b Scored) int {
			return cmp.Compare(b.Score, a.Score)
		})
	}
	if k >= 0 && k < len(out) {
		out = out[:k]
	}
	return out
}

// score is (sum of token frequencies) × weights + 0.1 × token count.
// Callers must hold e.mu.
func (e *Extractor) score(r *Record) float64 {
	base := 0.0
	for _, t := range r.Tokens {
		base += float64(e.freq[t])
	}
	if r.HasProperNoun {
		base *= e.weightPropn
	}
	if r.HasNamedEntity {
		base *= e.weightNER
	}
	return base + lengthBonus*float64(len(r.Tokens))
}

// Frequency returns the accumulated count of a normalised token.
func (e *Extractor) Frequency(token string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.freq[e.normalize(token)]
}

// SetWeights replaces the proper-noun and named-entity multipliers. Scores
// are derived on demand, so the next query reflects the change.
func (e *Extractor) SetWeights(propn, ner float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.weightPropn, e.weightNER = propn, ner
}

// Len returns the number of distinct keywords seen.
func (e *Extractor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.order)
}

// Reset clears frequencies, records and offsets.
func (e *Extractor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.freq)
	clear(e.records)
	e.order = nil
	e.tokOffset, e.sentOffset, e.charOffset = 0, 0, 0
}

func (e *Extractor) tokenKey(t nlp.Token) string {
	if e.useLemma && t.Lemma != "" {
		return e.fold.String(t.Lemma)
	}
	return e.fold.String(t.Text)
}

func (e *Extractor) normalize(s string) string {
	return e.fold.String(strings.Join(strings.Fields(s), " "))
}

func countable(t nlp.Token) bool {
	return !t.IsPunct && !t.IsSpace && t.POS != nlp.PUNCT && t.POS != nlp.SPACE
}
