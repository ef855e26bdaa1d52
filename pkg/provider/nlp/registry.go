package nlp

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

// ErrNoAnnotator is returned by [Registry.Get] when no factory covers a
// language and no fallback is set.
var ErrNoAnnotator = errors.New("nlp: no annotator for language")

// Factory builds an annotator for a base language code.
type Factory func(lang string) (Annotator, error)

// Registry selects annotators by language code and caches constructed
// instances, so each language's pipeline is built at most once.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	fallback  Factory
	cache     map[string]Annotator
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		cache:     make(map[string]Annotator),
	}
}

// Register binds f to lang. Registering a language again replaces the
// factory and evicts any cached instance.
func (r *Registry) Register(lang string, f Factory) {
	key := BaseLanguage(lang)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key] = f
	delete(r.cache, key)
}

// SetFallback sets the factory used for languages without a registration.
func (r *Registry) SetFallback(f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = f
	r.cache = make(map[string]Annotator)
}

// Get returns the annotator for lang, constructing and caching it on first
// use. lang may be any BCP-47 tag; only its base language is used.
func (r *Registry) Get(lang string) (Annotator, error) {
	key := BaseLanguage(lang)
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.cache[key]; ok {
		return a, nil
	}
	f, ok := r.factories[key]
	if !ok {
		f = r.fallback
	}
	if f == nil {
		return nil, fmt.Errorf("%w %q", ErrNoAnnotator, lang)
	}
	a, err := f(key)
	if err != nil {
		return nil, fmt.Errorf("nlp: build annotator for %q: %w", key, err)
	}
	r.cache[key] = a
	return a, nil
}

// Languages returns the explicitly registered base languages.
func (r *Registry) Languages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	return out
}

// BaseLanguage reduces a BCP-47 tag to its lower-case base language
// ("en-US" → "en", "vi_VN" → "vi"). Unparseable input is lower-cased and
// cut at the first separator.
func BaseLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "und"
	}
	if t, err := language.Parse(strings.ReplaceAll(tag, "_", "-")); err == nil {
		if base, conf := t.Base(); conf != language.No {
			return base.String()
		}
	}
	tag = strings.ToLower(tag)
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return tag
}
