package keyword

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/livenote/pkg/provider/nlp"
)

// entityLabels are the named-entity labels worth surfacing. Dates, numbers,
// money and similar labels are noise in a keyword list.
var entityLabels = map[string]struct{}{
	"PERSON":      {},
	"ORG":         {},
	"GPE":         {},
	"LOC":         {},
	"PRODUCT":     {},
	"EVENT":       {},
	"WORK_OF_ART": {},
	"FAC":         {},
}

// edgePOS are stripped from both ends of every candidate.
var edgePOS = map[nlp.POS]struct{}{
	nlp.DET:   {},
	nlp.ADP:   {},
	nlp.CCONJ: {},
	nlp.SCONJ: {},
	nlp.PART:  {},
	nlp.PRON:  {},
}

type candidate struct {
	kind Kind
	span nlp.Span
}

// collect proposes candidate spans in priority order, trims them, and drops
// short spans and duplicate token ranges. The result is in document order.
func (e *Extractor) collect(doc *nlp.Doc) []candidate {
	var raw []candidate
	if e.useNER {
		for _, ent := range doc.Entities {
			if _, ok := entityLabels[ent.Label]; ok {
				raw = append(raw, candidate{KindEntity, ent.Span})
			}
		}
	}
	for _, s := range properNounRuns(doc.Tokens) {
		raw = append(raw, candidate{KindProperNoun, s})
	}
	if e.useChunks && doc.HasDependencies {
		for _, s := range doc.NounChunks {
			raw = append(raw, candidate{KindNounChunk, s})
		}
	} else {
		for _, s := range nounPhrases(doc.Tokens) {
			raw = append(raw, candidate{KindPattern, s})
		}
	}

	seen := make(map[nlp.Span]struct{}, len(raw))
	out := make([]candidate, 0, len(raw))
	for _, c := range raw {
		c.span = trimEdges(doc.Tokens, c.span)
		if c.span.Len() <= 0 {
			continue
		}
		if utf8.RuneCountInString(strings.TrimSpace(doc.SpanText(c.span))) < e.minChars {
			continue
		}
		if _, dup := seen[c.span]; dup {
			continue
		}
		seen[c.span] = struct{}{}
		out = append(out, c)
	}

	// Priority only decides which kind owns a range; output follows the text.
	slices.SortStableFunc(out, func(a, b candidate) int {
		return a.span.Start - b.span.Start
	})
	return out
}

// properNounRuns returns maximal runs of alphabetic, non-stopword proper
// nouns.
func properNounRuns(toks []nlp.Token) []nlp.Span {
	var spans []nlp.Span
	start := -1
	for i, t := range toks {
		if t.POS == nlp.PROPN && t.IsAlpha && !t.IsStop {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			spans = append(spans, nlp.Span{Start: start, End: i})
			start = -1
		}
	}
	if start >= 0 {
		spans = append(spans, nlp.Span{Start: start, End: len(toks)})
	}
	return spans
}

// nounPhrases matches ADJ* (NOUN|PROPN)+ greedily from the left, which
// yields the longest non-overlapping matches.
func nounPhrases(toks []nlp.Token) []nlp.Span {
	var spans []nlp.Span
	for i := 0; i < len(toks); {
		j := i
		for j < len(toks) && toks[j].POS == nlp.ADJ {
			j++
		}
		k := j
		for k < len(toks) && isNominal(toks[k].POS) {
			k++
		}
		if k > j {
			spans = append(spans, nlp.Span{Start: i, End: k})
			i = k
			continue
		}
		// An adjective run without a noun cannot start a match anywhere
		// inside it either.
		i = max(j, i+1)
	}
	return spans
}

func isNominal(p nlp.POS) bool { return p == nlp.NOUN || p == nlp.PROPN }

// trimEdges drops function words, stopwords and punctuation from both ends.
func trimEdges(toks []nlp.Token, s nlp.Span) nlp.Span {
	if s.Start < 0 || s.End > len(toks) {
		return nlp.Span{}
	}
	for s.Start < s.End && weakEdge(toks[s.Start]) {
		s.Start++
	}
	for s.End > s.Start && weakEdge(toks[s.End-1]) {
		s.End--
	}
	return s
}

func weakEdge(t nlp.Token) bool {
	if t.IsStop || t.IsPunct || t.IsSpace {
		return true
	}
	_, ok := edgePOS[t.POS]
	return ok || t.POS == nlp.PUNCT || t.POS == nlp.SPACE
}
