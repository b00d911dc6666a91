// Package seed loads the three startup documents named in spec.md §6
// config (seed_kb_path, seed_rules_path, shapes_path) into a freshly
// constructed engine and shape registry before the service bridge opens
// for traffic.
package seed

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"noetic/internal/apperr"
	"noetic/internal/compiler"
	"noetic/internal/engine"
	"noetic/internal/logging"
	"noetic/internal/shape"
	"noetic/internal/store"
	"noetic/internal/term"
)

// Document is the declarative seed-KB shape: a flat list of assertions
// (spec.md §6 seed_kb_path "File to preload as initial asserted
// facts").
type Document struct {
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion mirrors the HTTP bridge's assert body shape (spec.md §6 HTTP
// surface); toTerm builds the same predicate(subject, object) term the
// HTTP bridge's assert handler builds.
type Assertion struct {
	Subject    string  `yaml:"subject"`
	Predicate  string  `yaml:"predicate"`
	Object     string  `yaml:"object"`
	Confidence float64 `yaml:"confidence"`
	Source     string  `yaml:"source"`
}

func (a Assertion) toTerm() term.Term {
	return term.NewCompound(a.Predicate, term.Atom(a.Subject), term.Atom(a.Object))
}

// LoadKB reads a seed-KB YAML document at path and asserts every entry
// into eng as an asserted (not derived) fact. A missing path is not an
// error — startup proceeds with an empty store (spec.md §6 lists the
// path as optional configuration).
func LoadKB(eng *engine.Engine, path string) (loaded int, err error) {
	if path == "" {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.New(apperr.BadRequest, "seed: cannot read kb file %s: %v", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, apperr.New(apperr.BadRequest, "seed: invalid kb document %s: %v", path, err)
	}

	for _, a := range doc.Assertions {
		meta := store.Meta{Asserted: true, Confidence: a.Confidence}
		if a.Source != "" {
			meta.Provenance = &store.Provenance{Source: a.Source}
		}
		if _, _, err := eng.Assert(a.toTerm(), meta); err != nil {
			return loaded, apperr.New(apperr.BadRequest, "seed: kb assertion %d rejected: %v", loaded, err)
		}
		loaded++
	}
	logging.Get(logging.CategoryBoot).Infow("seed kb loaded", "path", path, "count", loaded)
	return loaded, nil
}

// LoadRules reads a seed rule-pack document at path, compiles it, and
// installs every compiled rule into eng (spec.md §6 seed_rules_path). A
// missing path is not an error.
func LoadRules(eng *engine.Engine, path string) (compiler.Report, error) {
	if path == "" {
		return compiler.Report{}, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return compiler.Report{}, nil
	}
	if err != nil {
		return compiler.Report{}, apperr.New(apperr.BadRequest, "seed: cannot read rules file %s: %v", path, err)
	}

	rpt, err := compiler.CompilePack(data, "seed")
	if err != nil {
		return compiler.Report{}, err
	}
	eng.LoadRules(rpt.Rules, nil)
	logging.Get(logging.CategoryBoot).Infow("seed rules loaded", "path", path, "installed", len(rpt.Rules), "rejected", len(rpt.Rejected))
	return rpt, nil
}

// LoadShapes reads a shape catalog document at path into registry
// (spec.md §6 shapes_path). A missing path is not an error.
func LoadShapes(registry *shape.Registry, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return apperr.New(apperr.BadRequest, "seed: cannot read shapes file %s: %v", path, err)
	}
	if err := registry.Load(data); err != nil {
		return fmt.Errorf("seed: shapes file %s: %w", path, err)
	}
	logging.Get(logging.CategoryBoot).Infow("shape catalog loaded", "path", path)
	return nil
}
