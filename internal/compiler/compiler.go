// Package compiler implements the rule compiler (spec.md §4.I): it
// accepts a declarative rule-pack document (inverse pairs, property
// chains, transitive/symmetric properties, equivalent/disjoint class
// pairs, subclass and domain/range axioms, plus free-form implication
// rules) and expands each construct into one or more rules.Rule
// entries, using fresh Variables per construct and validating that
// every conclusion variable is bound in the condition.
package compiler

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"noetic/internal/apperr"
	"noetic/internal/query"
	"noetic/internal/rules"
	"noetic/internal/term"
)

// Pack is the declarative rule-pack document shape (spec.md §4.I
// Accepts).
type Pack struct {
	Inverse     []InversePair  `yaml:"inverse"`
	Chain       []ChainDecl    `yaml:"chain"`
	Transitive  []string       `yaml:"transitive"`
	Symmetric   []string       `yaml:"symmetric"`
	Equivalent  []ClassPair    `yaml:"equivalent"`
	Disjoint    []ClassPair    `yaml:"disjoint"`
	SubClass    []ClassPair    `yaml:"subClass"`
	Domain      []PropClass    `yaml:"domain"`
	Range       []PropClass    `yaml:"range"`
	Implication []Implication  `yaml:"implication"`
}

type InversePair struct {
	P string `yaml:"p"`
	Q string `yaml:"q"`
}

type ChainDecl struct {
	Name       string   `yaml:"name"`
	Properties []string `yaml:"properties"`
	Result     string   `yaml:"result"`
}

type ClassPair struct {
	A string `yaml:"a"`
	B string `yaml:"b"`
}

type PropClass struct {
	Property string `yaml:"property"`
	Class    string `yaml:"class"`
}

// Implication is a free-form rule: a list of textual triple patterns
// `predicate(subject, object)` forming the condition, and one for the
// conclusion.
type Implication struct {
	Name      string   `yaml:"name"`
	Condition []string `yaml:"condition"`
	Conclusion string  `yaml:"conclusion"`
	Priority  int      `yaml:"priority"`
}

// Rejection records one rejected construct (unknown key, or a
// conclusion-variable-closure failure).
type Rejection struct {
	Construct string `json:"construct"`
	Key       string `json:"key"`
	Reason    string `json:"reason"`
}

// Report is the compiler's output alongside the compiled rules (spec.md
// §4.I Output form).
type Report struct {
	Rules      []*rules.Rule
	Rejected   []Rejection
	LoadedCount int
}

// CompilePack parses a YAML document and compiles every construct,
// continuing past individual rejections so the caller sees the full
// rejection list (spec.md §4.I "unknown constructs are rejected with a
// list of unsupported keys").
func CompilePack(data []byte, origin string) (Report, error) {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Report{}, apperr.New(apperr.BadRequest, "compiler: invalid rule-pack document: %v", err)
	}

	known := map[string]bool{
		"inverse": true, "chain": true, "transitive": true, "symmetric": true,
		"equivalent": true, "disjoint": true, "subClass": true, "domain": true,
		"range": true, "implication": true,
	}

	var rpt Report
	for key := range raw {
		if !known[key] {
			rpt.Rejected = append(rpt.Rejected, Rejection{Construct: key, Key: key, Reason: "unsupported construct"})
		}
	}

	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return Report{}, apperr.New(apperr.BadRequest, "compiler: invalid rule-pack document: %v", err)
	}

	seq := 0
	fresh := func() string { seq++; return "v" + strconv.Itoa(seq) }

	for _, ip := range pack.Inverse {
		r1, r2 := compileInverse(ip, fresh, origin)
		rpt.Rules = append(rpt.Rules, r1, r2)
	}
	for _, c := range pack.Chain {
		if r, rej, ok := compileChain(c, fresh, origin); ok {
			rpt.Rules = append(rpt.Rules, r)
		} else {
			rpt.Rejected = append(rpt.Rejected, rej)
		}
	}
	for _, p := range pack.Transitive {
		rpt.Rules = append(rpt.Rules, compileTransitive(p, fresh, origin))
	}
	for _, p := range pack.Symmetric {
		rpt.Rules = append(rpt.Rules, compileSymmetric(p, fresh, origin))
	}
	for _, cp := range pack.Equivalent {
		r1, r2 := compileEquivalent(cp, fresh, origin)
		rpt.Rules = append(rpt.Rules, r1, r2)
	}
	for _, cp := range pack.Disjoint {
		rpt.Rules = append(rpt.Rules, compileDisjoint(cp, fresh, origin))
	}
	for _, cp := range pack.SubClass {
		rpt.Rules = append(rpt.Rules, compileSubClass(cp, fresh, origin))
	}
	for _, pc := range pack.Domain {
		rpt.Rules = append(rpt.Rules, compileDomain(pc, fresh, origin))
	}
	for _, pc := range pack.Range {
		rpt.Rules = append(rpt.Rules, compileRange(pc, fresh, origin))
	}
	for _, imp := range pack.Implication {
		if r, rej, ok := compileImplication(imp, origin); ok {
			rpt.Rules = append(rpt.Rules, r)
		} else {
			rpt.Rejected = append(rpt.Rejected, rej)
		}
	}

	rpt.LoadedCount = len(rpt.Rules)
	return rpt, nil
}

func compileInverse(p InversePair, fresh func() string, origin string) (*rules.Rule, *rules.Rule) {
	x, y := term.Variable(fresh()), term.Variable(fresh())
	forward := &rules.Rule{
		Name:          fmt.Sprintf("inverse_%s_%s_fwd", p.P, p.Q),
		Kind:          rules.KindInverse,
		Condition:     []term.Term{term.NewCompound(p.P, x, y)},
		Conclusion:    term.NewCompound(p.Q, y, x),
		Bidirectional: true,
		Origin:        origin,
	}
	x2, y2 := term.Variable(fresh()), term.Variable(fresh())
	backward := &rules.Rule{
		Name:          fmt.Sprintf("inverse_%s_%s_bwd", p.P, p.Q),
		Kind:          rules.KindInverse,
		Condition:     []term.Term{term.NewCompound(p.Q, x2, y2)},
		Conclusion:    term.NewCompound(p.P, y2, x2),
		Bidirectional: true,
		Origin:        origin,
	}
	return forward, backward
}

func compileChain(c ChainDecl, fresh func() string, origin string) (*rules.Rule, Rejection, bool) {
	if len(c.Properties) == 0 || c.Result == "" {
		return nil, Rejection{Construct: "chain", Key: "chain:" + c.Name, Reason: "chain requires at least one property and a result predicate"}, false
	}
	vars := make([]term.Term, len(c.Properties)+1)
	for i := range vars {
		vars[i] = term.Variable(fresh())
	}
	cond := make([]term.Term, len(c.Properties))
	for i, p := range c.Properties {
		cond[i] = term.NewCompound(p, vars[i], vars[i+1])
	}
	name := c.Name
	if name == "" {
		name = "chain_" + c.Result
	}
	r := &rules.Rule{
		Name:       name,
		Kind:       rules.KindChain,
		Condition:  cond,
		Conclusion: term.NewCompound(c.Result, vars[0], vars[len(vars)-1]),
		Origin:     origin,
	}
	if ok, unbound := rules.ConclusionVariablesBound(r.Condition, r.Conclusion); !ok {
		return nil, Rejection{Construct: "chain", Key: "chain:" + c.Name, Reason: fmt.Sprintf("unbound conclusion variables: %v", unbound)}, false
	}
	return r, Rejection{}, true
}

func compileTransitive(p string, fresh func() string, origin string) *rules.Rule {
	x, y, z := term.Variable(fresh()), term.Variable(fresh()), term.Variable(fresh())
	return &rules.Rule{
		Name:       "transitive_" + p,
		Kind:       rules.KindTransitivity,
		Condition:  []term.Term{term.NewCompound(p, x, y), term.NewCompound(p, y, z)},
		Conclusion: term.NewCompound(p, x, z),
		Origin:     origin,
	}
}

func compileSymmetric(p string, fresh func() string, origin string) *rules.Rule {
	x, y := term.Variable(fresh()), term.Variable(fresh())
	return &rules.Rule{
		Name:          "symmetric_" + p,
		Kind:          rules.KindSymmetry,
		Condition:     []term.Term{term.NewCompound(p, x, y)},
		Conclusion:    term.NewCompound(p, y, x),
		Bidirectional: true,
		Origin:        origin,
	}
}

func compileEquivalent(cp ClassPair, fresh func() string, origin string) (*rules.Rule, *rules.Rule) {
	x := term.Variable(fresh())
	forward := &rules.Rule{
		Name:       fmt.Sprintf("equivalent_%s_%s_fwd", cp.A, cp.B),
		Kind:       rules.KindEquivalence,
		Condition:  []term.Term{term.NewCompound("isa", x, term.Atom(cp.A))},
		Conclusion: term.NewCompound("isa", x, term.Atom(cp.B)),
		Origin:     origin,
	}
	x2 := term.Variable(fresh())
	backward := &rules.Rule{
		Name:       fmt.Sprintf("equivalent_%s_%s_bwd", cp.A, cp.B),
		Kind:       rules.KindEquivalence,
		Condition:  []term.Term{term.NewCompound("isa", x2, term.Atom(cp.B))},
		Conclusion: term.NewCompound("isa", x2, term.Atom(cp.A)),
		Origin:     origin,
	}
	return forward, backward
}

func compileDisjoint(cp ClassPair, fresh func() string, origin string) *rules.Rule {
	x := term.Variable(fresh())
	return &rules.Rule{
		Name: fmt.Sprintf("disjoint_%s_%s", cp.A, cp.B),
		Kind: rules.KindDisjointConstraint,
		Condition: []term.Term{
			term.NewCompound("isa", x, term.Atom(cp.A)),
			term.NewCompound("isa", x, term.Atom(cp.B)),
		},
		Origin: origin,
	}
}

func compileSubClass(cp ClassPair, fresh func() string, origin string) *rules.Rule {
	x := term.Variable(fresh())
	return &rules.Rule{
		Name:       fmt.Sprintf("subclass_%s_%s", cp.A, cp.B),
		Kind:       rules.KindSubsumption,
		Condition:  []term.Term{term.NewCompound("isa", x, term.Atom(cp.A))},
		Conclusion: term.NewCompound("isa", x, term.Atom(cp.B)),
		Origin:     origin,
	}
}

func compileDomain(pc PropClass, fresh func() string, origin string) *rules.Rule {
	x, y := term.Variable(fresh()), term.Variable(fresh())
	return &rules.Rule{
		Name:       fmt.Sprintf("domain_%s_%s", pc.Property, pc.Class),
		Kind:       rules.KindDomain,
		Condition:  []term.Term{term.NewCompound(pc.Property, x, y)},
		Conclusion: term.NewCompound("isa", x, term.Atom(pc.Class)),
		Origin:     origin,
	}
}

func compileRange(pc PropClass, fresh func() string, origin string) *rules.Rule {
	x, y := term.Variable(fresh()), term.Variable(fresh())
	return &rules.Rule{
		Name:       fmt.Sprintf("range_%s_%s", pc.Property, pc.Class),
		Kind:       rules.KindRange,
		Condition:  []term.Term{term.NewCompound(pc.Property, x, y)},
		Conclusion: term.NewCompound("isa", y, term.Atom(pc.Class)),
		Origin:     origin,
	}
}

// compileImplication parses each textual triple-pattern condition and
// the conclusion via the same compact "predicate(subject, object)" form
// the query evaluator accepts, then validates variable closure (spec.md
// §4.I free implication row, §4.I Validation).
func compileImplication(imp Implication, origin string) (*rules.Rule, Rejection, bool) {
	if imp.Conclusion == "" || len(imp.Condition) == 0 {
		return nil, Rejection{Construct: "implication", Key: "implication:" + imp.Name, Reason: "implication requires a non-empty condition and conclusion"}, false
	}
	cond := make([]term.Term, 0, len(imp.Condition))
	for _, c := range imp.Condition {
		t, err := parseTriple(c)
		if err != nil {
			return nil, Rejection{Construct: "implication", Key: "implication:" + imp.Name, Reason: err.Error()}, false
		}
		cond = append(cond, t)
	}
	concl, err := parseTriple(imp.Conclusion)
	if err != nil {
		return nil, Rejection{Construct: "implication", Key: "implication:" + imp.Name, Reason: err.Error()}, false
	}
	r := &rules.Rule{
		Name:       imp.Name,
		Kind:       rules.KindImplication,
		Condition:  cond,
		Conclusion: concl,
		Priority:   imp.Priority,
		Origin:     origin,
	}
	if ok, unbound := rules.ConclusionVariablesBound(r.Condition, r.Conclusion); !ok {
		return nil, Rejection{Construct: "implication", Key: "implication:" + imp.Name, Reason: fmt.Sprintf("unbound conclusion variables: %v", unbound)}, false
	}
	return r, Rejection{}, true
}

// parseTriple accepts the same compact textual forms as the query
// evaluator's pattern parser (spec.md §4.I condition/conclusion entries
// are textual triples like the query surface's `[?x pred obj]`).
func parseTriple(s string) (term.Term, error) {
	return query.ParsePattern(s)
}
