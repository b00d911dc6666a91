// Package query implements the query evaluator (spec.md §4.F): parsing
// the compact textual pattern forms, dispatching to the head/argument
// indices, and applying post-filters. Pattern parsing is modeled on
// codenerd's internal/core.Query / factMatchesPattern predicate-pattern
// matching (bare predicate, or `predicate(args)` with Variables acting
// as wildcards).
package query

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"noetic/internal/apperr"
	"noetic/internal/justify"
	"noetic/internal/rules"
	"noetic/internal/store"
	"noetic/internal/term"
)

// cancelCheckInterval is how many candidates Evaluate examines between
// cooperative deadline checks (spec.md §5 "Queries ... honor the
// deadline cooperatively (checked between result batches)").
const cancelCheckInterval = 256

// Filters narrows a query beyond pattern matching (spec.md §4.F input).
type Filters struct {
	MaxResults           int
	MinConfidence        float64
	SourceAllowList      []string
	IncludeJustification bool
}

// Match is one query hit.
type Match struct {
	FactID               int64
	Term                 term.Term
	Binding              term.Binding
	Confidence           float64
	JustificationSummary []string // rule names of the first justification record, by rule name order
}

// Result is the evaluator's complete response.
type Result struct {
	Matches []Match
	Count   int
}

// ParsePattern accepts the three compact textual forms of spec.md §6:
// `Functor(?x, atom)`, `[?x pred obj]`, `(?x pred obj)`. A bare token
// with no delimiters is treated as a functor name with no arguments
// (spec.md §4.F "For variable-free patterns the evaluator is an
// existence check" extends naturally to a bare-functor pattern: match
// every arity for that functor).
func ParsePattern(s string) (term.Term, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return term.Term{}, apperr.New(apperr.BadRequest, "query: empty pattern")
	}

	switch {
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		return parseTripleForm(s[1 : len(s)-1])
	case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"):
		return parseTripleForm(s[1 : len(s)-1])
	case strings.Contains(s, "("):
		return parseFunctorForm(s)
	default:
		return term.NewCompound(s), nil
	}
}

func parseFunctorForm(s string) (term.Term, error) {
	open := strings.Index(s, "(")
	if open < 0 || !strings.HasSuffix(s, ")") {
		return term.Term{}, apperr.New(apperr.BadRequest, "query: malformed pattern %q", s)
	}
	functor := strings.TrimSpace(s[:open])
	if functor == "" {
		return term.Term{}, apperr.New(apperr.BadRequest, "query: missing functor in %q", s)
	}
	inner := s[open+1 : len(s)-1]
	args := splitArgs(inner)
	terms := make([]term.Term, len(args))
	for i, a := range args {
		terms[i] = parseArg(a)
	}
	return term.NewCompound(functor, terms...), nil
}

// parseTripleForm handles `subject predicate object` (whitespace
// separated), producing predicate(subject, object) so it matches the
// canonical fact shape admitted by the bridge.
func parseTripleForm(inner string) (term.Term, error) {
	fields := strings.Fields(inner)
	if len(fields) != 3 {
		return term.Term{}, apperr.New(apperr.BadRequest, "query: triple pattern must have exactly 3 fields, got %q", inner)
	}
	subject := parseArg(fields[0])
	predicate := fields[1]
	object := parseArg(fields[2])
	return term.NewCompound(predicate, subject, object), nil
}

func splitArgs(inner string) []string {
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return nil
	}
	parts := strings.Split(inner, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

func parseArg(tok string) term.Term {
	tok = strings.TrimSpace(tok)
	if strings.HasPrefix(tok, "?") {
		return term.Variable(strings.TrimPrefix(tok, "?"))
	}
	if len(tok) >= 2 && tok[0] == '"' && tok[len(tok)-1] == '"' {
		return term.Atom(tok[1 : len(tok)-1])
	}
	return term.Atom(tok)
}

// Evaluate runs pattern against st, applying filters and, optionally,
// justification summaries from graph (spec.md §4.F steps 1-5). It
// honors ctx's deadline cooperatively, checked between batches of
// candidates rather than per-candidate (spec.md §5 Cancellation and
// timeouts): a cancellation returns a Cancelled error with no partial
// results, matching "return a cancelled error with partial results
// disallowed".
func Evaluate(ctx context.Context, st *store.Store, graph *justify.Graph, pattern term.Term, f Filters) (Result, error) {
	var candidates []store.Fact
	if pattern.IsCompound() && pattern.Arity() == 0 {
		// A bare functor matches that functor's live facts at every arity.
		for _, fact := range st.AllLive() {
			if fact.Term.Functor() == pattern.Functor() {
				candidates = append(candidates, fact)
			}
		}
	} else if pattern.IsCompound() {
		candidates = st.Lookup(pattern.Functor(), pattern.Arity())
		if pos, val, ok := firstGroundArg(pattern); ok {
			// spec.md §4.F step 1: "if any argument is a ground Term,
			// intersect with the corresponding argument index." The index
			// is created lazily here, on first use by the evaluator
			// itself (a query is as much a "first use" as a rule compiler
			// hint — spec.md §4.B).
			st.WantArgIndex(pattern.Functor(), pos)
			candidates = st.LookupByArg(pattern.Functor(), pos, val)
		}
	}

	var matches []Match
	for i, fact := range candidates {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, apperr.New(apperr.Cancelled, "query: deadline exceeded")
			}
		}
		binding := term.Binding{}
		if pattern.Arity() > 0 {
			b, ok := term.Unify(pattern, fact.Term, term.Binding{})
			if !ok {
				continue
			}
			binding = b
		}
		if fact.Confidence < f.MinConfidence {
			continue
		}
		if len(f.SourceAllowList) > 0 && !sourceAllowed(fact, f.SourceAllowList) {
			continue
		}
		m := Match{FactID: fact.ID, Term: fact.Term, Binding: binding, Confidence: fact.Confidence}
		if f.IncludeJustification && graph != nil {
			m.JustificationSummary = firstJustificationSummary(graph, fact.ID)
		}
		matches = append(matches, m)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].FactID < matches[j].FactID })

	if f.MaxResults == 0 {
		return Result{}, nil // spec.md §8 boundary: limit=0 yields empty results, count=0
	}
	if len(matches) > f.MaxResults {
		matches = matches[:f.MaxResults]
	}
	return Result{Matches: matches, Count: len(matches)}, nil
}

// firstGroundArg returns the position and value of the first non-Variable
// argument of a compound pattern, if any.
func firstGroundArg(pattern term.Term) (int, term.Term, bool) {
	for i, arg := range pattern.Args() {
		if arg.Ground() {
			return i, arg, true
		}
	}
	return 0, term.Term{}, false
}

func sourceAllowed(fact store.Fact, allow []string) bool {
	if fact.Provenance == nil {
		return false
	}
	for _, s := range allow {
		if fact.Provenance.Source == s {
			return true
		}
	}
	return false
}

// firstJustificationSummary returns the rule names cited by the first
// (by rule-name order) Justification Record of id — spec.md §4.F step 4.
func firstJustificationSummary(graph *justify.Graph, id int64) []string {
	recs := graph.Justifications(id)
	if len(recs) == 0 {
		return nil
	}
	return []string{recs[0].Rule}
}

// RuleCountsByKind reports rule totals by kind (GET /rules/stat, spec.md
// §6).
func RuleCountsByKind(rs *rules.Store) map[string]int {
	stats := rs.Stats()
	out := make(map[string]int, len(stats.ByKind))
	for k, v := range stats.ByKind {
		out[string(k)] = v
	}
	return out
}

// ParseLimit parses a possibly-empty limit query parameter, defaulting
// to def when empty.
func ParseLimit(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, apperr.New(apperr.BadRequest, "query: invalid limit %q", s)
	}
	return n, nil
}
