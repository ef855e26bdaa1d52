// Package entity holds the names a user expects to hear, such as colleagues,
// products and places. The vocabulary is loaded from YAML before a session
// starts. The rule-based annotator tags the names as entities and the
// transcript corrector snaps misheard spellings onto them.
package entity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/livenote/pkg/provider/nlp/rulebased"
)

// Definition is one known name.
type Definition struct {
	// Name is the canonical spelling.
	Name string `yaml:"name" json:"name"`

	// Label is the named-entity category.
	Label Label `yaml:"label" json:"label"`

	// Aliases are alternative spellings or abbreviations ("NYC").
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`

	// Description is a free-text note shown when the name is looked up.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Validate reports every problem with d: a blank name, an unknown label or
// a blank alias.
func (d Definition) Validate() error {
	var errs []error
	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if !d.Label.IsValid() {
		errs = append(errs, fmt.Errorf("label %q is not a recognised entity label", d.Label))
	}
	for i, a := range d.Aliases {
		if strings.TrimSpace(a) == "" {
			errs = append(errs, fmt.Errorf("aliases[%d] must not be blank", i))
		}
	}
	return errors.Join(errs...)
}

// Label is a named-entity category, using the OntoNotes label names that
// the keyword extractor recognises.
type Label string

const (
	LabelPerson   Label = "PERSON"
	LabelOrg      Label = "ORG"
	LabelGPE      Label = "GPE"
	LabelLocation Label = "LOC"
	LabelProduct  Label = "PRODUCT"
	LabelEvent    Label = "EVENT"
	LabelWork     Label = "WORK_OF_ART"
	LabelFacility Label = "FAC"
)

// IsValid reports whether l is a recognised label.
func (l Label) IsValid() bool {
	switch l {
	case LabelPerson, LabelOrg, LabelGPE, LabelLocation, LabelProduct, LabelEvent, LabelWork, LabelFacility:
		return true
	}
	return false
}

// Entries converts definitions to gazetteer entries for the rule-based
// annotator.
func Entries(defs []Definition) []rulebased.Entry {
	out := make([]rulebased.Entry, 0, len(defs))
	for _, d := range defs {
		out = append(out, rulebased.Entry{Name: d.Name, Label: string(d.Label), Aliases: d.Aliases})
	}
	return out
}

// Names returns every name and alias in defs, for the transcript corrector.
func Names(defs []Definition) []string {
	var out []string
	for _, d := range defs {
		out = append(out, d.Name)
		out = append(out, d.Aliases...)
	}
	return out
}
