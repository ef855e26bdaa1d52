package rulebased

import (
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/livenote/pkg/provider/nlp"
)

// tokenize splits text into word, number and punctuation tokens. Words may
// contain inner apostrophes, hyphens and dots ("don't", "state-of-the-art",
// "3.5") as long as a letter or digit follows. Every other non-space rune is
// a token of its own.
func tokenize(text string) []nlp.Token {
	var toks []nlp.Token
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			i += size
			continue
		}
		if !isWordRune(r) {
			toks = append(toks, punctToken(text[i:i+size], i, r))
			i += size
			continue
		}
		start := i
		i += size
		for i < len(text) {
			r, size = utf8.DecodeRuneInString(text[i:])
			if isWordRune(r) {
				i += size
				continue
			}
			if isJoiner(r) && i+size < len(text) {
				next, _ := utf8.DecodeRuneInString(text[i+size:])
				if isWordRune(next) {
					i += size
					continue
				}
			}
			break
		}
		toks = append(toks, wordToken(text[start:i], start))
	}
	return toks
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

func isJoiner(r rune) bool {
	switch r {
	case '\'', '’', '-', '.':
		return true
	}
	return false
}

func punctToken(s string, start int, r rune) nlp.Token {
	t := nlp.Token{Text: s, Lemma: s, Start: start}
	if unicode.IsPunct(r) {
		t.POS = nlp.PUNCT
		t.IsPunct = true
	} else {
		t.POS = nlp.SYM
	}
	return t
}

func wordToken(s string, start int) nlp.Token {
	alpha := true
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.Is(unicode.Mn, r) {
			alpha = false
			break
		}
	}
	return nlp.Token{Text: s, Start: start, IsAlpha: alpha}
}

// sentences groups tokens into sentences ending at terminal punctuation.
func sentences(toks []nlp.Token) []nlp.Span {
	var out []nlp.Span
	start := 0
	for i, t := range toks {
		if t.IsPunct && isTerminal(t.Text) {
			out = append(out, nlp.Span{Start: start, End: i + 1})
			start = i + 1
		}
	}
	if start < len(toks) {
		out = append(out, nlp.Span{Start: start, End: len(toks)})
	}
	return out
}

func isTerminal(s string) bool {
	switch s {
	case ".", "!", "?", "…", "。", "？", "！":
		return true
	}
	return false
}

func isCapitalized(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

func isNumeric(s string) bool {
	hasDigit := false
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case r == '.' || r == ',' || r == '-':
		default:
			return false
		}
	}
	return hasDigit
}
