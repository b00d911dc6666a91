// Package term implements the canonical term representation shared by the
// fact store, rule store, and inference engine: atoms, variables, compounds,
// bindings, substitution, and unification.
package term

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind distinguishes the three term shapes.
type Kind int

const (
	KindAtom Kind = iota
	KindVariable
	KindCompound
)

// Term is a representation of an Atom, Variable, or Compound, compared
// structurally with Equal (it holds a slice, so it is not usable with ==
// or as a map key; String gives a canonical key). The zero value is not a
// valid Term; use the constructors.
type Term struct {
	kind    Kind
	name    string // Atom identifier or Variable name
	functor string // Compound functor
	args    []Term // Compound arguments
}

// Atom constructs an atomic term from an interned identifier.
func Atom(name string) Term {
	return Term{kind: KindAtom, name: intern(name)}
}

// Variable constructs a binding-target term. By convention variable names
// begin with "?" in their textual form but the model itself only requires
// that Variable and Atom identifiers not collide structurally; callers
// pass the bare name (without "?").
func Variable(name string) Term {
	return Term{kind: KindVariable, name: intern(name)}
}

// NewCompound constructs an ordered functor+argument term.
func NewCompound(functor string, args ...Term) Term {
	return Term{kind: KindCompound, functor: intern(functor), args: args}
}

func (t Term) Kind() Kind { return t.kind }

func (t Term) IsAtom() bool     { return t.kind == KindAtom }
func (t Term) IsVariable() bool { return t.kind == KindVariable }
func (t Term) IsCompound() bool { return t.kind == KindCompound }

// Name returns the Atom or Variable identifier; it panics on a Compound.
func (t Term) Name() string {
	if t.kind == KindCompound {
		panic("term: Name() called on a Compound")
	}
	return t.name
}

// Functor returns the Compound's functor; it panics on non-Compounds.
func (t Term) Functor() string {
	if t.kind != KindCompound {
		panic("term: Functor() called on a non-Compound")
	}
	return t.functor
}

// Args returns the Compound's arguments (empty for non-Compounds).
func (t Term) Args() []Term {
	if t.kind != KindCompound {
		return nil
	}
	return t.args
}

// Arity returns len(Args()).
func (t Term) Arity() int { return len(t.Args()) }

// Ground reports whether the term contains no Variables.
func (t Term) Ground() bool {
	switch t.kind {
	case KindVariable:
		return false
	case KindAtom:
		return true
	default:
		for _, a := range t.args {
			if !a.Ground() {
				return false
			}
		}
		return true
	}
}

// Variables returns the set of distinct Variable names appearing in t, in
// first-occurrence order.
func (t Term) Variables() []string {
	seen := map[string]bool{}
	var out []string
	var walk func(Term)
	walk = func(x Term) {
		switch x.kind {
		case KindVariable:
			if !seen[x.name] {
				seen[x.name] = true
				out = append(out, x.name)
			}
		case KindCompound:
			for _, a := range x.args {
				walk(a)
			}
		}
	}
	walk(t)
	return out
}

// Equal is structural equality.
func (t Term) Equal(o Term) bool {
	if t.kind != o.kind {
		return false
	}
	switch t.kind {
	case KindAtom, KindVariable:
		return t.name == o.name
	default:
		if t.functor != o.functor || len(t.args) != len(o.args) {
			return false
		}
		for i := range t.args {
			if !t.args[i].Equal(o.args[i]) {
				return false
			}
		}
		return true
	}
}

// Less gives a total order over terms: Atom < Variable < Compound, then
// lexicographic within a kind. It exists solely to produce deterministic
// output orderings (spec.md §3 Invariants).
func (t Term) Less(o Term) bool {
	if t.kind != o.kind {
		return t.kind < o.kind
	}
	switch t.kind {
	case KindAtom, KindVariable:
		return t.name < o.name
	default:
		if t.functor != o.functor {
			return t.functor < o.functor
		}
		if len(t.args) != len(o.args) {
			return len(t.args) < len(o.args)
		}
		for i := range t.args {
			if !t.args[i].Equal(o.args[i]) {
				return t.args[i].Less(o.args[i])
			}
		}
		return false
	}
}

// String renders the canonical Datalog-ish textual form used in logs,
// justification summaries, and the substring target for `search`.
func (t Term) String() string {
	switch t.kind {
	case KindAtom:
		return t.name
	case KindVariable:
		return "?" + t.name
	default:
		if len(t.args) == 0 {
			return t.functor
		}
		parts := make([]string, len(t.args))
		for i, a := range t.args {
			parts[i] = a.String()
		}
		return fmt.Sprintf("%s(%s)", t.functor, strings.Join(parts, ", "))
	}
}

// Binding is a finite map from Variable name to ground Term.
type Binding map[string]Term

// Clone returns a shallow copy safe for independent extension.
func (b Binding) Clone() Binding {
	out := make(Binding, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Sorted returns the binding's variable names in ascending order, for
// deterministic rendering.
func (b Binding) Sorted() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Substitute replaces every Variable in t with its image under b. A
// Variable absent from b is left unsubstituted (callers that require a
// ground result must check Ground() afterward).
func Substitute(t Term, b Binding) Term {
	switch t.kind {
	case KindVariable:
		if v, ok := b[t.name]; ok {
			return v
		}
		return t
	case KindCompound:
		args := make([]Term, len(t.args))
		changed := false
		for i, a := range t.args {
			args[i] = Substitute(a, b)
			if !args[i].Equal(a) {
				changed = true
			}
		}
		if !changed {
			return t
		}
		return Term{kind: KindCompound, functor: t.functor, args: args}
	default:
		return t
	}
}

// Unify attempts to extend binding `in` so that Substitute(pattern, out)
// equals ground. ground must be a ground term (no Variables); pattern may
// contain Variables. Returns the extended binding and true on success, or
// a zero Binding and false on failure. `in` is not mutated.
func Unify(pattern, ground Term, in Binding) (Binding, bool) {
	if !ground.Ground() {
		return nil, false
	}
	out := in.Clone()
	if unify(pattern, ground, out) {
		return out, true
	}
	return nil, false
}

func unify(pattern, ground Term, b Binding) bool {
	switch pattern.kind {
	case KindVariable:
		if existing, ok := b[pattern.name]; ok {
			return existing.Equal(ground)
		}
		b[pattern.name] = ground
		return true
	case KindAtom:
		return ground.kind == KindAtom && pattern.name == ground.name
	default: // Compound
		if ground.kind != KindCompound || pattern.functor != ground.functor || len(pattern.args) != len(ground.args) {
			return false
		}
		for i := range pattern.args {
			if !unify(pattern.args[i], ground.args[i], b) {
				return false
			}
		}
		return true
	}
}

// Rename returns a copy of t with every Variable renamed by appending
// suffix to its name, so that distinct rule-activation attempts never collide
// (spec.md §4.A: "the engine renames rule variables per activation
// attempt").
func Rename(t Term, suffix string) Term {
	switch t.kind {
	case KindVariable:
		return Variable(t.name + suffix)
	case KindCompound:
		args := make([]Term, len(t.args))
		for i, a := range t.args {
			args[i] = Rename(a, suffix)
		}
		return Term{kind: KindCompound, functor: t.functor, args: args}
	default:
		return t
	}
}

var (
	internMu    sync.Mutex
	internTable = make(map[string]string)
)

// intern returns a canonical string value so equal identifiers share
// backing storage, reducing allocation pressure on hot comparison paths.
func intern(s string) string {
	internMu.Lock()
	defer internMu.Unlock()
	if v, ok := internTable[s]; ok {
		return v
	}
	internTable[s] = s
	return s
}
