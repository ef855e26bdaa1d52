package transcript

import (
	"strings"
	"unicode"
)

// fillers are disfluencies stripped from transcripts as whole words.
var fillers = map[string]struct{}{
	"um": {},
	"uh": {},
	"er": {},
	"ah": {},
}

// Clean normalises one ASR fragment: whitespace runs collapse to single
// spaces, immediately repeated words ("the the") collapse to one occurrence
// (case-insensitive), and filler words are removed. Only whole words are
// affected, so "umbrella" and "other" survive.
func Clean(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	out := make([]string, 0, len(words))
	for _, w := range words {
		if n := len(out); n > 0 {
			prev := out[n-1]
			if core(prev) != "" && strings.EqualFold(core(prev), core(w)) && !hasTrailingPunct(prev) {
				// Keep the first spelling and the second word's punctuation.
				out[n-1] = core(prev) + trailingPunct(w)
				continue
			}
		}
		out = append(out, w)
	}

	kept := out[:0]
	for _, w := range out {
		if _, filler := fillers[strings.ToLower(core(w))]; filler {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// core strips leading and trailing punctuation from a word.
func core(w string) string {
	return strings.TrimFunc(w, isPunct)
}

func trailingPunct(w string) string {
	return w[len(strings.TrimRightFunc(w, isPunct)):]
}

func hasTrailingPunct(w string) bool {
	return trailingPunct(w) != ""
}

func isPunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}
