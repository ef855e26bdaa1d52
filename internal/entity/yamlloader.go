package entity

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// VocabularyFile is the top-level structure of a vocabulary YAML file.
//
// Example:
//
//	name: "Team standup"
//	entities:
//	  - name: "Kubernetes"
//	    label: PRODUCT
//	    aliases: ["k8s"]
//	  - name: "Priya Raman"
//	    label: PERSON
type VocabularyFile struct {
	Name     string       `yaml:"name"`
	Entities []Definition `yaml:"entities"`
}

// LoadFile reads and parses a vocabulary YAML file from disk.
func LoadFile(path string) (*VocabularyFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("entity: open vocabulary file %q: %w", path, err)
	}
	defer f.Close()

	vf, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("entity: parse vocabulary file %q: %w", path, err)
	}
	return vf, nil
}

// LoadFromReader parses vocabulary YAML and validates every definition.
func LoadFromReader(r io.Reader) (*VocabularyFile, error) {
	var vf VocabularyFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&vf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("entity: decode vocabulary yaml: %w", err)
	}
	for i, d := range vf.Entities {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("entity: entities[%d] (%q): %w", i, d.Name, err)
		}
	}
	return &vf, nil
}

// LoadFiles merges every file into one [Vocabulary], in order.
func LoadFiles(paths ...string) (*Vocabulary, error) {
	v := NewVocabulary()
	for _, p := range paths {
		vf, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		for _, d := range vf.Entities {
			if err := v.Add(d); err != nil {
				return nil, fmt.Errorf("entity: %s: %w", p, err)
			}
		}
	}
	return v, nil
}
