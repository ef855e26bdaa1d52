package transcript_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/livenote/internal/transcript"
)

func TestClean(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "fillers", in: "um so this is uh a test", want: "so this is a test"},
		{name: "whitespace", in: "  Hello \t  world\n", want: "Hello world"},
		{name: "repeated words", in: "the the the cat", want: "the cat"},
		{name: "repeat ignores case", in: "The the end.", want: "The end."},
		{name: "filler with comma", in: "Um, so we start", want: "so we start"},
		{name: "whole words only", in: "umbrella and other errands", want: "umbrella and other errands"},
		{name: "filler only", in: "uh um", want: ""},
		{name: "empty", in: "", want: ""},
		{name: "punctuation breaks repeat", in: "fox. Fox", want: "fox. Fox"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := transcript.Clean(tt.in); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want float64
	}{
		{a: "the quick brown fox", b: "the quick brown fox", want: 1},
		{a: "ABC", b: "abc", want: 1},
		{a: "", b: "", want: 1},
		{a: "abc", b: "", want: 0},
		{a: "abcd", b: "abce", want: 0.75},
	}
	for _, tt := range tests {
		if got := transcript.Similarity(tt.a, tt.b); got != tt.want {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestMerger_RejectsEmpty(t *testing.T) {
	t.Parallel()

	m := transcript.NewMerger()
	m.Process("hello there")
	for _, in := range []string{"", "   ", "um uh"} {
		text, ok := m.Process(in)
		if ok || text != "" {
			t.Errorf("Process(%q) = (%q, %v), want rejected", in, text, ok)
		}
	}
	if m.Len() != 1 || len(m.RawBuffer()) != 1 {
		t.Errorf("state mutated: Len=%d raw=%d", m.Len(), len(m.RawBuffer()))
	}
}

func TestMerger_RejectsDuplicate(t *testing.T) {
	t.Parallel()

	m := transcript.NewMerger()
	if _, ok := m.Process("the quick brown fox"); !ok {
		t.Fatal("first fragment rejected")
	}
	if text, ok := m.Process("The quick brown fox"); ok {
		t.Fatalf("duplicate accepted: %q", text)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
	if got := m.RawBuffer(); len(got) != 1 {
		t.Errorf("RawBuffer = %v, want one entry", got)
	}
}

func TestMerger_OverlapMerge(t *testing.T) {
	t.Parallel()

	m := transcript.NewMerger(transcript.WithOverlapThreshold(0.6))
	m.Process("we are testing the system")

	out := m.Apply("the system today")
	if out.Kind != transcript.Merged {
		t.Fatalf("Kind = %v, want merged", out.Kind)
	}
	if want := "we are testing the system today"; out.Text != want {
		t.Errorf("Text = %q, want %q", out.Text, want)
	}
	if out.Delta != "today" {
		t.Errorf("Delta = %q, want %q", out.Delta, "today")
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1 (merge must not append)", m.Len())
	}
	if got := m.FullText(); got != out.Text {
		t.Errorf("FullText = %q, want %q", got, out.Text)
	}
}

func TestMerger_BelowOverlapThresholdAppends(t *testing.T) {
	t.Parallel()

	m := transcript.NewMerger()
	m.Process("we are testing the whole system")
	// One shared word out of min(6, 4) is 0.25.
	out := m.Apply("system failures happen often")
	if out.Kind != transcript.Appended {
		t.Fatalf("Kind = %v, want appended", out.Kind)
	}
	if out.Delta != out.Text {
		t.Errorf("Delta = %q, want full text %q", out.Delta, out.Text)
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}
}

func TestMerger_SentenceCountGrowsByAtMostOne(t *testing.T) {
	t.Parallel()

	m := transcript.NewMerger()
	fragments := []string{
		"red apples fall", "apples fall from trees", "quick dogs bark loudly",
		"quick dogs bark loudly", "", "seven ships sailed home", "sailed home at dawn",
	}
	for _, f := range fragments {
		before := m.Len()
		m.Process(f)
		if d := m.Len() - before; d < 0 || d > 1 {
			t.Fatalf("Process(%q) changed Len by %d", f, d)
		}
	}
}

func TestMerger_BoundedRawBuffer(t *testing.T) {
	t.Parallel()

	m := transcript.NewMerger(transcript.WithMaxBufferSize(3))
	fragments := []string{
		"red apples fall", "quick dogs bark loudly", "seven ships sailed home",
		"winter came early", "jazz plays tonight",
	}
	for _, f := range fragments {
		if _, ok := m.Process(f); !ok {
			t.Fatalf("Process(%q) rejected", f)
		}
		if n := len(m.RawBuffer()); n > 3 {
			t.Fatalf("RawBuffer grew to %d", n)
		}
	}
	if got, want := m.RawBuffer(), fragments[2:]; !slices.Equal(got, want) {
		t.Errorf("RawBuffer = %v, want %v", got, want)
	}
}

func TestMerger_DuplicateWindow(t *testing.T) {
	t.Parallel()

	m := transcript.NewMerger(transcript.WithDuplicateWindow(1))
	m.Process("red apples fall")
	m.Process("quick dogs bark loudly")
	if _, ok := m.Process("red apples fall"); !ok {
		t.Fatal("fragment outside the duplicate window was rejected")
	}
	if m.Len() != 3 {
		t.Errorf("Len = %d, want 3", m.Len())
	}
}

func TestMerger_MinDuplicateLength(t *testing.T) {
	t.Parallel()

	m := transcript.NewMerger(transcript.WithMinDuplicateLength(10))
	m.Process("yes")
	out := m.Apply("yes")
	if !out.Accepted() {
		t.Fatal("short repeat rejected despite MinDuplicateLength")
	}
	// The whole fragment overlaps the previous sentence.
	if out.Kind != transcript.Merged || out.Delta != "" || out.Text != "yes" {
		t.Errorf("Apply = %+v, want merged with empty delta", out)
	}
}

func TestMerger_LatestSentencesAndClear(t *testing.T) {
	t.Parallel()

	m := transcript.NewMerger()
	for _, f := range []string{"red apples fall", "quick dogs bark loudly", "seven ships sailed home"} {
		m.Process(f)
	}
	if got, want := m.LatestSentences(2), []string{"quick dogs bark loudly", "seven ships sailed home"}; !slices.Equal(got, want) {
		t.Errorf("LatestSentences(2) = %v, want %v", got, want)
	}
	if got := m.LatestSentences(10); len(got) != 3 {
		t.Errorf("LatestSentences(10) returned %d sentences, want 3", len(got))
	}
	if got := m.LatestSentences(0); got != nil {
		t.Errorf("LatestSentences(0) = %v, want nil", got)
	}
	want := "red apples fall quick dogs bark loudly seven ships sailed home"
	if got := m.FullText(); got != want {
		t.Errorf("FullText = %q, want %q", got, want)
	}

	m.Clear()
	if m.Len() != 0 || len(m.RawBuffer()) != 0 || m.FullText() != "" {
		t.Error("Clear left state behind")
	}
	if _, ok := m.Process("red apples fall"); !ok {
		t.Error("fragment rejected after Clear")
	}
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	for k, want := range map[transcript.Kind]string{
		transcript.Rejected: "rejected",
		transcript.Appended: "appended",
		transcript.Merged:   "merged",
	} {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", k, got, want)
		}
	}
}
