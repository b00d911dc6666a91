// Package shape implements the shape validator (spec.md §4.H): a
// SHACL-like catalog of per-class property constraints, loaded from a
// declarative YAML document and evaluated as an admission gate before
// facts reach the engine. Violation aggregation (each with focus, path,
// message, severity) is modeled on the undefined-predicate reporting in
// codenerd's internal/mangle.SchemaValidator.ValidateRule.
package shape

import (
	"fmt"
	"regexp"
	"sync"

	"noetic/internal/apperr"
	"noetic/internal/store"
	"noetic/internal/term"

	"gopkg.in/yaml.v3"
)

// ConstraintKind enumerates the property-constraint kinds spec.md §4.H
// requires shapes to support.
type ConstraintKind string

const (
	ConstraintCardinality ConstraintKind = "cardinality"
	ConstraintDatatype    ConstraintKind = "datatype"
	ConstraintClass       ConstraintKind = "class"
	ConstraintRange       ConstraintKind = "range"
	ConstraintPattern     ConstraintKind = "pattern"
	ConstraintConditional ConstraintKind = "conditional"
)

// Constraint is one property constraint within a Shape.
type Constraint struct {
	Kind ConstraintKind `yaml:"kind"`
	Path string         `yaml:"path"` // the predicate name used as the object-side argument position

	MinCount *int    `yaml:"min_count,omitempty"`
	MaxCount *int    `yaml:"max_count,omitempty"`
	Datatype string  `yaml:"datatype,omitempty"` // "string", "number", "atom"
	Class    string  `yaml:"class,omitempty"`
	Min      float64 `yaml:"min,omitempty"`
	Max      float64 `yaml:"max,omitempty"`
	Pattern  string  `yaml:"pattern,omitempty"`

	// Conditional: IfPath present on the subject implies ThenPath must
	// also be present.
	IfPath   string `yaml:"if_path,omitempty"`
	ThenPath string `yaml:"then_path,omitempty"`

	Severity string `yaml:"severity,omitempty"` // defaults to "violation"
}

// Shape targets one class and lists its property constraints.
type Shape struct {
	Name        string       `yaml:"name"`
	TargetClass string       `yaml:"target_class"`
	Properties  []Constraint `yaml:"properties"`
}

// Catalog is a YAML document of Shapes (spec.md §4.H "parsed from a
// declarative file at startup and may be reloaded via an administrative
// endpoint").
type Catalog struct {
	Shapes []Shape `yaml:"shapes"`
}

// Registry holds the live catalog behind an atomically-swapped pointer
// (spec.md §5 "the shape catalog is read-mostly; reloads swap the
// catalog pointer atomically").
type Registry struct {
	mu      sync.RWMutex
	catalog *Catalog
}

func NewRegistry() *Registry {
	return &Registry{catalog: &Catalog{}}
}

// Load parses a YAML document and installs it as the active catalog.
func (r *Registry) Load(data []byte) error {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return apperr.New(apperr.BadRequest, "shape: invalid catalog document: %v", err)
	}
	r.mu.Lock()
	r.catalog = &c
	r.mu.Unlock()
	return nil
}

func (r *Registry) current() *Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalog
}

// Violation is one failed constraint (spec.md §4.H Result).
type Violation struct {
	Focus    string
	Path     string
	Message  string
	Severity string
}

// Report is the validator's decision (spec.md §4.H Result).
type Report struct {
	Conforms       bool
	ViolationCount int
	Violations     []Violation
}

// Validate maps t (a ground subject-predicate-object Compound, conceptually)
// to its declared type via isa(subject, Class) facts in st, and evaluates
// every shape whose target class matches against the full set of live
// facts already admitted for that subject plus the candidate t itself
// (spec.md §4.H Operation).
func (r *Registry) Validate(st *store.Store, subject term.Term, t term.Term) Report {
	classes := subjectClasses(st, subject)
	var violations []Violation

	for _, sh := range r.current().Shapes {
		if !classes[sh.TargetClass] {
			continue
		}
		for _, c := range sh.Properties {
			if v, ok := evaluateConstraint(st, subject, t, c); !ok {
				violations = append(violations, v)
			}
		}
	}

	return Report{
		Conforms:       len(violations) == 0,
		ViolationCount: len(violations),
		Violations:     violations,
	}
}

func subjectClasses(st *store.Store, subject term.Term) map[string]bool {
	out := map[string]bool{}
	for _, f := range st.LookupByArg("isa", 0, subject) {
		if f.Term.Arity() == 2 {
			out[f.Term.Args()[1].String()] = true
		}
	}
	return out
}

// evaluateConstraint checks one property constraint for subject, counting
// t itself as a pending candidate so cardinality constraints see the
// state *after* the candidate assertion (spec.md S6: rejecting the
// second serialNumber requires seeing the would-be count of 2).
func evaluateConstraint(st *store.Store, subject, candidate term.Term, c Constraint) (Violation, bool) {
	severity := c.Severity
	if severity == "" {
		severity = "violation"
	}

	switch c.Kind {
	case ConstraintCardinality:
		count := countPropertyValues(st, subject, c.Path)
		if candidate.IsCompound() && candidate.Functor() == c.Path && len(candidate.Args()) > 0 && candidate.Args()[0].Equal(subject) {
			count++
		}
		if c.MinCount != nil && count < *c.MinCount {
			return Violation{Focus: subject.String(), Path: c.Path, Severity: severity,
				Message: fmt.Sprintf("minCount=%d not met on path %s (found %d)", *c.MinCount, c.Path, count)}, false
		}
		if c.MaxCount != nil && count > *c.MaxCount {
			return Violation{Focus: subject.String(), Path: c.Path, Severity: severity,
				Message: fmt.Sprintf("maxCount=%d exceeded on path %s", *c.MaxCount, c.Path)}, false
		}
	case ConstraintDatatype:
		if candidate.Functor() == c.Path {
			if ok := matchesDatatype(candidate, c.Datatype); !ok {
				return Violation{Focus: subject.String(), Path: c.Path, Severity: severity,
					Message: fmt.Sprintf("value on path %s is not of datatype %s", c.Path, c.Datatype)}, false
			}
		}
	case ConstraintClass:
		if candidate.Functor() == c.Path && len(candidate.Args()) > 1 {
			obj := candidate.Args()[len(candidate.Args())-1]
			if !subjectClasses(st, obj)[c.Class] {
				return Violation{Focus: subject.String(), Path: c.Path, Severity: severity,
					Message: fmt.Sprintf("object on path %s is not a member of class %s", c.Path, c.Class)}, false
			}
		}
	case ConstraintRange:
		if candidate.Functor() == c.Path && len(candidate.Args()) > 1 {
			v, ok := numericValue(candidate.Args()[len(candidate.Args())-1])
			if ok && (v < c.Min || v > c.Max) {
				return Violation{Focus: subject.String(), Path: c.Path, Severity: severity,
					Message: fmt.Sprintf("value on path %s out of range [%g, %g]", c.Path, c.Min, c.Max)}, false
			}
		}
	case ConstraintPattern:
		if candidate.Functor() == c.Path && len(candidate.Args()) > 1 {
			re, err := regexp.Compile(c.Pattern)
			if err == nil {
				obj := candidate.Args()[len(candidate.Args())-1]
				if obj.IsAtom() && !re.MatchString(obj.Name()) {
					return Violation{Focus: subject.String(), Path: c.Path, Severity: severity,
						Message: fmt.Sprintf("value on path %s does not match pattern %s", c.Path, c.Pattern)}, false
				}
			}
		}
	case ConstraintConditional:
		ifCount := countPropertyValues(st, subject, c.IfPath)
		if ifCount > 0 {
			thenCount := countPropertyValues(st, subject, c.ThenPath)
			if thenCount == 0 {
				return Violation{Focus: subject.String(), Path: c.ThenPath, Severity: severity,
					Message: fmt.Sprintf("path %s required when %s is present", c.ThenPath, c.IfPath)}, false
			}
		}
	}
	return Violation{}, true
}

func countPropertyValues(st *store.Store, subject term.Term, path string) int {
	return len(st.LookupByArg(path, 0, subject))
}

func matchesDatatype(t term.Term, datatype string) bool {
	if !t.IsCompound() || len(t.Args()) == 0 {
		return true
	}
	obj := t.Args()[len(t.Args())-1]
	switch datatype {
	case "number":
		_, ok := numericValue(obj)
		return ok
	default:
		return obj.IsAtom()
	}
}

func numericValue(t term.Term) (float64, bool) {
	if !t.IsAtom() {
		return 0, false
	}
	var f float64
	_, err := fmt.Sscanf(t.Name(), "%g", &f)
	return f, err == nil
}
