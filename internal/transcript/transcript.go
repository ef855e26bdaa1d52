// Package transcript consolidates the fragment stream produced by a
// sliding-window recogniser into clean, non-redundant sentences.
//
// Consecutive audio windows overlap by half, so the recogniser tends to
// repeat the tail of one fragment at the head of the next, or to re-emit a
// window verbatim. A [Merger] cleans each fragment, rejects near-duplicates
// of recent sentences, and either extends the last sentence across a word
// overlap or appends a new one. An optional [Corrector] runs before the
// merger and snaps misheard names onto a known vocabulary.
package transcript

// Kind classifies what [Merger.Apply] did with a fragment.
type Kind int

const (
	// Rejected fragments were empty after cleaning or near-duplicates of a
	// recent sentence. State is unchanged.
	Rejected Kind = iota

	// Appended fragments became a new sentence.
	Appended

	// Merged fragments extended the last sentence.
	Merged
)

// String returns the lower-case name of k.
func (k Kind) String() string {
	switch k {
	case Appended:
		return "appended"
	case Merged:
		return "merged"
	default:
		return "rejected"
	}
}

// Outcome is the result of [Merger.Apply].
type Outcome struct {
	Kind Kind

	// Text is the affected sentence after the call: the new sentence for
	// Appended, the extended sentence for Merged, empty for Rejected.
	Text string

	// Delta holds only the words this fragment contributed. For an append it
	// equals Text; for a merge it is the part after the overlap and may be
	// empty when the fragment was entirely contained in the overlap.
	Delta string
}

// Accepted reports whether the fragment changed the sentence sequence.
func (o Outcome) Accepted() bool { return o.Kind != Rejected }
