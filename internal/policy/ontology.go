// Package policy is the deterministic compliance arbiter. It loads the
// governance ontology and compares required validations against what the
// SQL scanner actually observed. The semantic oracle is never consulted
// here; semantic type labels arrive as plain input.
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"datasteward/internal/logging"
)

// OntologyEntry describes the governance requirements for one semantic type.
type OntologyEntry struct {
	RequiredValidations      []string `yaml:"required_validations"`
	ForbiddenTransformations []string `yaml:"forbidden_transformations"`
}

// Ontology maps semantic type to its requirements. Loaded once per run and
// read-only afterwards.
type Ontology map[string]OntologyEntry

// LoadOntology reads the ontology YAML from disk. A missing file falls back
// to the built-in default so a fresh workspace works out of the box.
func LoadOntology(path string) (Ontology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Policy("ontology %s not found, using built-in default", path)
			return DefaultOntology(), nil
		}
		return nil, fmt.Errorf("reading ontology %s: %w", path, err)
	}

	var ont Ontology
	if err := yaml.Unmarshal(data, &ont); err != nil {
		return nil, fmt.Errorf("parsing ontology %s: %w", path, err)
	}
	logging.Policy("loaded ontology from %s: %d semantic types", path, len(ont))
	return ont, nil
}

// DefaultOntology returns the built-in governance requirements for the four
// policy-bearing semantic types. Types without an entry (text, date) carry
// no requirements.
func DefaultOntology() Ontology {
	return Ontology{
		"email": {
			RequiredValidations:      []string{"not_null", "format"},
			ForbiddenTransformations: []string{"coalesce"},
		},
		"amount": {
			RequiredValidations:      []string{"not_null", "numeric", "range"},
			ForbiddenTransformations: []string{"cast_integer", "coalesce"},
		},
		"id": {
			RequiredValidations:      []string{"not_null", "uniqueness", "format"},
			ForbiddenTransformations: []string{"coalesce", "concat_fallback"},
		},
		"pii": {
			RequiredValidations:      []string{"masking"},
			ForbiddenTransformations: []string{"concat_pii", "lower"},
		},
	}
}

// WriteDefaultOntology materialises the built-in ontology to disk, used by
// workspace initialisation.
func WriteDefaultOntology(path string) error {
	data, err := yaml.Marshal(DefaultOntology())
	if err != nil {
		return fmt.Errorf("marshaling default ontology: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing ontology %s: %w", path, err)
	}
	return nil
}

// contains reports whether list holds s. Requirement lists are tiny so a
// linear scan beats building a set per call.
func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
