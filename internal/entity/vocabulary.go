package entity

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// ErrConflict is returned by [Vocabulary.Add] when a name or alias is
// already claimed by a different entry.
var ErrConflict = errors.New("entity: conflicting definition")

// Vocabulary is a set of definitions addressable by name or alias, ignoring
// case. Adding a name that is already known merges the aliases, so several
// files may describe the same person. Safe for concurrent use.
type Vocabulary struct {
	mu    sync.RWMutex
	defs  []Definition
	index map[string]int // folded name or alias -> defs index
}

// NewVocabulary returns an empty vocabulary.
func NewVocabulary() *Vocabulary {
	return &Vocabulary{index: make(map[string]int)}
}

// key folds case and collapses whitespace. A Caser is stateful, so each
// call gets its own.
func key(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

// Add validates def and stores it, merging into an existing entry with the
// same name. A different label for the same name, or an alias that belongs
// to another entry, fails with [ErrConflict] and leaves v unchanged.
func (v *Vocabulary) Add(def Definition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("entity: %q: %w", def.Name, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	idx, known := v.index[key(def.Name)]
	if !known {
		idx = len(v.defs)
	} else if cur := v.defs[idx]; cur.Label != def.Label {
		return fmt.Errorf("%w: %q is %s, not %s", ErrConflict, cur.Name, cur.Label, def.Label)
	}
	for _, a := range def.Aliases {
		if other, ok := v.index[key(a)]; ok && other != idx {
			return fmt.Errorf("%w: alias %q already names %q", ErrConflict, a, v.defs[other].Name)
		}
	}

	if !known {
		v.defs = append(v.defs, Definition{Name: def.Name, Label: def.Label})
		v.index[key(def.Name)] = idx
	}
	cur := &v.defs[idx]
	if cur.Description == "" {
		cur.Description = def.Description
	}
	for _, a := range def.Aliases {
		k := key(a)
		if _, ok := v.index[k]; ok {
			continue
		}
		v.index[k] = idx
		cur.Aliases = append(cur.Aliases, strings.TrimSpace(a))
	}
	return nil
}

// Lookup finds the entry whose name or alias matches name.
func (v *Vocabulary) Lookup(name string) (Definition, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	idx, ok := v.index[key(name)]
	if !ok {
		return Definition{}, false
	}
	return clone(v.defs[idx]), true
}

// All returns copies of every entry ordered by name.
func (v *Vocabulary) All() []Definition {
	v.mu.RLock()
	out := make([]Definition, 0, len(v.defs))
	for _, d := range v.defs {
		out = append(out, clone(d))
	}
	v.mu.RUnlock()
	slices.SortFunc(out, func(a, b Definition) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Len returns the number of entries.
func (v *Vocabulary) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.defs)
}

func clone(d Definition) Definition {
	d.Aliases = slices.Clone(d.Aliases)
	return d
}
