package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/livenote/internal/entity"
	"github.com/MrWong99/livenote/pkg/provider/asr"
	"github.com/MrWong99/livenote/pkg/provider/nlp"
)

// ErrProviderNotRegistered is returned when a config entry names a provider
// nobody registered.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// ASRFactory builds a recogniser from its config entry.
type ASRFactory func(entry ProviderEntry) (asr.Provider, error)

// NLPFactory builds an annotator for a base language code from entry. vocab
// holds the user's known names; backends that cannot use them ignore it.
type NLPFactory func(entry ProviderEntry, lang string, vocab []entity.Definition) (nlp.Annotator, error)

// factories is a named set of constructors of one kind.
type factories[F any] struct {
	kind string
	byID map[string]F
}

func (f factories[F]) lookup(name string) (F, error) {
	fn, ok := f.byID[name]
	if !ok {
		return fn, fmt.Errorf("%w: %s/%q (registered: %v)", ErrProviderNotRegistered, f.kind, name, slices.Sorted(maps.Keys(f.byID)))
	}
	return fn, nil
}

// Registry maps the provider names used in the config file to constructors.
// The zero value is not usable; call [NewRegistry]. Safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	asr factories[ASRFactory]
	nlp factories[NLPFactory]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		asr: factories[ASRFactory]{kind: "asr", byID: map[string]ASRFactory{}},
		nlp: factories[NLPFactory]{kind: "nlp", byID: map[string]NLPFactory{}},
	}
}

// RegisterASR registers a recogniser under name, replacing any earlier one.
func (r *Registry) RegisterASR(name string, factory ASRFactory) {
	r.mu.Lock()
	r.asr.byID[name] = factory
	r.mu.Unlock()
}

// RegisterNLP registers an annotation backend under name, replacing any
// earlier one.
func (r *Registry) RegisterNLP(name string, factory NLPFactory) {
	r.mu.Lock()
	r.nlp.byID[name] = factory
	r.mu.Unlock()
}

// CreateASR builds the recogniser entry.Name refers to.
func (r *Registry) CreateASR(entry ProviderEntry) (asr.Provider, error) {
	r.mu.RLock()
	build, err := r.asr.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return build(entry)
}

// CreateNLP binds entry and vocab to the backend entry.Name refers to. The
// result builds one annotator per language and is meant for
// [nlp.Registry.SetFallback].
func (r *Registry) CreateNLP(entry ProviderEntry, vocab []entity.Definition) (nlp.Factory, error) {
	r.mu.RLock()
	build, err := r.nlp.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return func(lang string) (nlp.Annotator, error) {
		return build(entry, lang, vocab)
	}, nil
}
