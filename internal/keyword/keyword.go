// Package keyword extracts keyword phrases from a stream of transcript text.
//
// An [Extractor] is fed text incrementally. Each [Extractor.Update] annotates
// only the new text, accumulates token frequencies across the session, and
// returns the phrases it has never seen before, in the order they appear.
// [Extractor.Top] ranks everything seen so far on demand, so the ranking
// reflects the latest frequencies without rescanning history.
package keyword

// Kind identifies the strategy that proposed a keyword.
type Kind string

// Candidate kinds, in decreasing priority. When two strategies propose the
// same token range the higher-priority kind wins.
const (
	KindEntity     Kind = "ner"
	KindProperNoun Kind = "propn"
	KindNounChunk  Kind = "chunk"
	KindPattern    Kind = "match"
)

// Record is the first-occurrence metadata of one keyword. Records are never
// modified after creation; the score is derived on demand from the
// extractor's frequency table.
type Record struct {
	// Text is the phrase as it first appeared, original casing.
	Text string `json:"text"`

	// Key is the case-folded, whitespace-normalised lookup key.
	Key string `json:"key"`

	// TokenOffset is the session-global index of the phrase's first token.
	TokenOffset int `json:"tok_i"`

	// CharOffset is the session-global byte offset of the phrase, counting
	// each update's text as joined by a single space.
	CharOffset int `json:"start_char"`

	// SentenceIndex is the session-global index of the owning sentence.
	SentenceIndex int `json:"sent_id"`

	HasProperNoun  bool `json:"has_propn"`
	HasNamedEntity bool `json:"has_ner"`

	Kind Kind `json:"kind"`

	// Tokens are the normalised constituent tokens used for scoring.
	Tokens []string `json:"-"`
}

// Scored is a record with its score at the time of the query.
type Scored struct {
	Record
	Score float64 `json:"score"`
}

// Order selects the ranking used by [Extractor.Top].
type Order int

const (
	// OrderScore ranks by descending relevance score.
	OrderScore Order = iota

	// OrderAppearance ranks by first appearance.
	OrderAppearance
)

// String returns "score" or "appearance".
func (o Order) String() string {
	if o == OrderAppearance {
		return "appearance"
	}
	return "score"
}

// ParseOrder maps "appearance" to [OrderAppearance] and anything else,
// including the empty string, to [OrderScore].
func ParseOrder(s string) Order {
	if s == "appearance" {
		return OrderAppearance
	}
	return OrderScore
}
