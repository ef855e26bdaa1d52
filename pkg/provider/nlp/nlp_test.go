package nlp_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/livenote/pkg/provider/nlp"
)

type stubAnnotator struct{ lang string }

func (s stubAnnotator) Annotate(context.Context, string) (*nlp.Doc, error) { return &nlp.Doc{}, nil }
func (s stubAnnotator) Language() string                                   { return s.lang }

func TestBaseLanguage(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"en", "en"},
		{"en-US", "en"},
		{"vi_VN", "vi"},
		{"EN", "en"},
		{"", "und"},
		{"  de-AT ", "de"},
	}
	for _, tc := range tests {
		if got := nlp.BaseLanguage(tc.in); got != tc.want {
			t.Errorf("BaseLanguage(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRegistry_CachesPerLanguage(t *testing.T) {
	t.Parallel()
	var builds atomic.Int32
	r := nlp.NewRegistry()
	r.Register("en", func(lang string) (nlp.Annotator, error) {
		builds.Add(1)
		return stubAnnotator{lang: lang}, nil
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Get("en-GB"); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	wg.Wait()
	if builds.Load() != 1 {
		t.Errorf("factory called %d times, want 1", builds.Load())
	}
	a, _ := r.Get("en")
	if a.Language() != "en" {
		t.Errorf("Language() = %q, want en", a.Language())
	}
}

func TestRegistry_Fallback(t *testing.T) {
	t.Parallel()
	r := nlp.NewRegistry()
	if _, err := r.Get("fr"); !errors.Is(err, nlp.ErrNoAnnotator) {
		t.Fatalf("err = %v, want ErrNoAnnotator", err)
	}
	r.SetFallback(func(lang string) (nlp.Annotator, error) { return stubAnnotator{lang: "*"}, nil })
	a, err := r.Get("fr")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.Language() != "*" {
		t.Errorf("Language() = %q, want *", a.Language())
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	r := nlp.NewRegistry()
	boom := errors.New("boom")
	r.Register("en", func(string) (nlp.Annotator, error) { return nil, boom })
	if _, err := r.Get("en"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
}

func TestDoc_SpanText(t *testing.T) {
	t.Parallel()
	d := &nlp.Doc{
		Text: "New York, baby",
		Tokens: []nlp.Token{
			{Text: "New", Start: 0},
			{Text: "York", Start: 4},
			{Text: ",", Start: 8},
			{Text: "baby", Start: 10},
		},
	}
	if got := d.SpanText(nlp.Span{Start: 0, End: 2}); got != "New York" {
		t.Errorf("SpanText = %q, want %q", got, "New York")
	}
	if got := d.SpanText(nlp.Span{Start: 2, End: 2}); got != "" {
		t.Errorf("empty span = %q", got)
	}
	if got := d.SpanText(nlp.Span{Start: 3, End: 9}); got != "" {
		t.Errorf("out-of-range span = %q", got)
	}
}

func TestDoc_Sentences(t *testing.T) {
	t.Parallel()
	d := &nlp.Doc{
		Tokens:    make([]nlp.Token, 5),
		Sentences: []nlp.Span{{Start: 0, End: 2}, {Start: 2, End: 5}},
	}
	if got := d.SentenceIndex(3); got != 1 {
		t.Errorf("SentenceIndex(3) = %d, want 1", got)
	}
	if got := d.LastSentence(); got != 1 {
		t.Errorf("LastSentence() = %d, want 1", got)
	}
	empty := &nlp.Doc{}
	if got := empty.LastSentence(); got != -1 {
		t.Errorf("empty LastSentence() = %d, want -1", got)
	}
}
