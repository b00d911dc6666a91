// Package engine implements the forward-chaining inference engine
// (spec.md §4.A, §4.E): the single authority that admits facts, fires
// rules to fixed point, and retracts facts through the justification
// graph. It composes store.Store, rules.Store, justify.Graph, and
// contradiction.Log behind one facade so that exactly one goroutine
// mutates knowledge-graph state at a time (spec.md §5 Concurrency
// model), the same ownership pattern codenerd's internal/mangle.Engine
// uses around its own predicateIndex.
package engine

import (
	"sort"
	"sync"
	"time"

	"noetic/internal/apperr"
	"noetic/internal/contradiction"
	"noetic/internal/justify"
	"noetic/internal/logging"
	"noetic/internal/rules"
	"noetic/internal/store"
	"noetic/internal/term"
)

// Limits bounds the engine's resource usage (spec.md §6 Config).
type Limits struct {
	MaxFacts         int
	MaxQueryResults  int
	MaxRadius        int
	MaxSubgraphNodes int
	MaxRulePackBytes int
}

// Engine owns the fact store, rule store, justification graph, and
// contradiction log, and drives forward chaining between them.
type Engine struct {
	mu sync.RWMutex

	store          *store.Store
	ruleStore      *rules.Store
	graph          *justify.Graph
	contradictions *contradiction.Log

	limits    Limits
	startedAt time.Time

	// emptyConditionRules holds rules with no condition patterns at all —
	// a degenerate "always true" rule whose conclusion is re-derived the
	// instant it is retracted. Tracked separately because they never
	// trigger from a premise fact's admission (spec.md §4.E edge case:
	// empty condition list).
	emptyConditionRules map[string]*rules.Rule
}

// New returns an empty Engine ready to accept facts and rules.
func New(limits Limits) *Engine {
	return &Engine{
		store:               store.New(),
		ruleStore:           rules.New(),
		graph:               justify.New(),
		contradictions:      contradiction.New(),
		limits:              limits,
		startedAt:           time.Now(),
		emptyConditionRules: make(map[string]*rules.Rule),
	}
}

// Store, Rules, Graph, Contradictions, and RuleLimits expose the engine's
// components to read-only collaborators (query, subgraph, bridges) that
// must hold a ReadLease while using them.
func (e *Engine) Store() *store.Store                { return e.store }
func (e *Engine) Rules() *rules.Store                { return e.ruleStore }
func (e *Engine) Graph() *justify.Graph              { return e.graph }
func (e *Engine) Contradictions() *contradiction.Log { return e.contradictions }
func (e *Engine) RuleLimits() Limits                 { return e.limits }

// ReadLease grants a consistent, concurrent-safe read-only view onto the
// engine's components. Read leases run concurrently with each other; a
// lease waits for any Assert, Retract, or LoadRules in progress to finish,
// and holds those mutations off until it is released. Callers must invoke
// the returned release function exactly once.
func (e *Engine) ReadLease() func() {
	e.mu.RLock()
	return e.mu.RUnlock
}

// assertedOriginRule is the justify.Record.Rule sentinel recorded for a
// fact's direct assertion, standing alongside any derivation the same
// fact may also carry. Its zero Premises mean the truth-maintenance walk
// in justify.Graph.Retract never cascade-retracts an asserted fact on
// premise loss (spec.md §3 Lifecycle: "An asserted fact does not retract
// on premise loss; it has no premises").
const assertedOriginRule = "__asserted__"

// triggerFact is one newly live fact awaiting forward-chaining
// propagation.
type triggerFact struct {
	id int64
	t  term.Term
}

// joinResult is one satisfying binding for a rule's condition list, with
// the ordered premise fact_ids that produced it.
type joinResult struct {
	binding  term.Binding
	premises []int64
}

// Assert admits t as a fact (spec.md §4.E step 1) and, if newly
// admitted, forward-chains to fixed point (steps 2-6). It returns the
// fact_id, whether admission was new, and any error (capacity exceeded,
// non-ground term).
func (e *Engine) Assert(t term.Term, meta store.Meta) (int64, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.limits.MaxFacts > 0 {
		if st := e.store.Stats(); st.TotalFacts >= e.limits.MaxFacts {
			return 0, false, apperr.New(apperr.CapacityExhausted, "engine: fact store at capacity (%d facts)", e.limits.MaxFacts)
		}
	}

	id, isNew, err := e.store.Admit(t, meta)
	if err != nil {
		return 0, false, err
	}
	if isNew {
		if meta.Asserted {
			_ = e.graph.Add(id, justify.Record{Rule: assertedOriginRule})
		}
		e.propagate([]triggerFact{{id: id, t: t}})
		return id, isNew, nil
	}
	if meta.Asserted {
		// The fact already existed, possibly as a derivation only. Record
		// a standing asserted-origin justification alongside it so later
		// retraction of that derivation's premises does not cascade into
		// retracting a fact the caller independently asserted.
		_ = e.graph.Add(id, justify.Record{Rule: assertedOriginRule})
	}
	return id, isNew, nil
}

// Retract tombstones fact_id and cascades truth maintenance through the
// justification graph (spec.md §4.D).
func (e *Engine) Retract(id int64) ([]int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	retracted, err := e.graph.Retract(e.store, id)
	if err != nil {
		return nil, err
	}
	e.reassertEmptyConditionRules(retracted)
	return retracted, nil
}

// reassertEmptyConditionRules re-derives the conclusions of any
// always-true rule whose conclusion was just retracted, since such a
// rule's condition is vacuously satisfied and the engine would otherwise
// never re-fire it (spec.md §4.E edge case: rule with an empty condition
// list).
func (e *Engine) reassertEmptyConditionRules(retractedIDs []int64) {
	if len(e.emptyConditionRules) == 0 || len(retractedIDs) == 0 {
		return
	}
	retracted := make(map[int64]bool, len(retractedIDs))
	for _, id := range retractedIDs {
		retracted[id] = true
	}
	var queue []triggerFact
	for _, r := range e.emptyConditionRules {
		if !r.Conclusion.Ground() {
			continue
		}
		id, ok := e.store.FindID(r.Conclusion)
		if ok && !retracted[id] {
			continue // still live under some other justification path
		}
		newID, isNew, err := e.store.Admit(r.Conclusion, store.Meta{})
		if err != nil {
			continue
		}
		if isNew {
			_ = e.graph.Add(newID, justify.Record{Rule: r.Name, Premises: nil})
			queue = append(queue, triggerFact{id: newID, t: r.Conclusion})
		}
	}
	if len(queue) > 0 {
		e.propagate(queue)
	}
}

// propagate runs forward chaining to fixed point starting from a queue
// of newly live facts, using the semi-naive join: each dequeued fact is
// tried only against the rule condition patterns whose (functor, arity)
// it matches, pinned at that pattern index (spec.md §4.A "semi-naive
// evaluation: only rule activations touching a newly derived fact are
// retried").
func (e *Engine) propagate(queue []triggerFact) {
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if !cur.t.IsCompound() {
			continue
		}
		candidates := e.ruleStore.RulesForHead(cur.t.Functor(), cur.t.Arity())
		for _, r := range candidates {
			for pinIdx, pat := range r.Condition {
				if !pat.IsCompound() || pat.Functor() != cur.t.Functor() || pat.Arity() != cur.t.Arity() {
					continue
				}
				for _, jr := range e.joinRule(r, pinIdx, store.Fact{ID: cur.id, Term: cur.t}) {
					if produced, ok := e.fire(r, jr); ok {
						queue = append(queue, produced)
					}
				}
			}
		}
	}
}

// coldJoin runs a rule's join against every live fact with no pinned
// premise, used when a rule is newly installed (spec.md §4.E step 4:
// "a newly installed rule is evaluated once against all existing
// facts").
func (e *Engine) coldJoin(r *rules.Rule) []joinResult {
	return e.joinRule(r, -1, store.Fact{})
}

// joinRule performs an ordered backtracking join over r.Condition. When
// pinIdx >= 0, that condition index is unified only against pinned
// (rather than scanned from the store), which is what makes semi-naive
// propagation linear in the number of newly derived facts rather than
// re-scanning the whole join on every assertion.
func (e *Engine) joinRule(r *rules.Rule, pinIdx int, pinned store.Fact) []joinResult {
	var results []joinResult
	var rec func(i int, b term.Binding, premises []int64)
	rec = func(i int, b term.Binding, premises []int64) {
		if i == len(r.Condition) {
			results = append(results, joinResult{binding: b, premises: append([]int64(nil), premises...)})
			return
		}
		pat := r.Condition[i]
		if i == pinIdx {
			nb, ok := term.Unify(pat, pinned.Term, b)
			if !ok {
				return
			}
			rec(i+1, nb, append(premises, pinned.ID))
			return
		}
		if !pat.IsCompound() {
			return
		}
		for _, f := range e.store.Lookup(pat.Functor(), pat.Arity()) {
			nb, ok := term.Unify(pat, f.Term, b)
			if !ok {
				continue
			}
			rec(i+1, nb, append(premises, f.ID))
		}
	}
	rec(0, term.Binding{}, nil)
	return results
}

// fire applies one satisfying join result of rule r: disjointness
// constraints record a contradiction event and never produce a fact
// (spec.md §3 Contradiction, §7); every other kind substitutes the
// conclusion, admits it, and records its justification, returning the
// newly produced fact for further propagation.
func (e *Engine) fire(r *rules.Rule, jr joinResult) (triggerFact, bool) {
	if r.Kind == rules.KindDisjointConstraint {
		ev := e.contradictions.Record(r.Name, jr.binding, jr.premises, time.Now())
		logging.Get(logging.CategoryInference).Infow("contradiction", "rule", r.Name, "event_id", ev.ID, "facts", jr.premises)
		return triggerFact{}, false
	}

	concl := term.Substitute(r.Conclusion, jr.binding)
	if !concl.Ground() {
		logging.Get(logging.CategoryInference).Warnw("rule conclusion not ground after substitution, skipping", "rule", r.Name)
		return triggerFact{}, false
	}

	id, isNew, err := e.store.Admit(concl, store.Meta{})
	if err != nil {
		logging.Get(logging.CategoryInference).Warnw("rule firing could not admit conclusion", "rule", r.Name, "error", err)
		return triggerFact{}, false
	}
	if err := e.graph.Add(id, justify.Record{Rule: r.Name, Premises: jr.premises, Binding: jr.binding}); err != nil {
		logging.Get(logging.CategoryInference).Warnw("justification rejected", "rule", r.Name, "fact_id", id, "error", err)
	}
	if !isNew {
		return triggerFact{}, false // fixed point already reached for this derivation
	}
	return triggerFact{id: id, t: concl}, true
}

// RuleOutcome is one rule's disposition within a LoadRules call.
type RuleOutcome struct {
	Construct string // the rule's compiled construct kind, e.g. "chain", "implication"
	Name      string
	Status    string // "installed", "replaced", "rejected"
	Reason    string // populated when Status == "rejected"
}

// RuleLoadReport summarizes a LoadRules call (SPEC_FULL.md §9 rules/load
// report field, supplementing spec.md's rules/load operation).
type RuleLoadReport struct {
	Outcomes        []RuleOutcome
	Removed         []string
	RetractedByLoad []int64
}

// LoadRules installs new, replaces existing, and removes named rules in
// a single transaction (spec.md §4.C). Newly installed or replaced rules
// are cold-joined against all live facts; removed rules cascade through
// the justification graph via DropRule.
func (e *Engine) LoadRules(install []*rules.Rule, remove []string) RuleLoadReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	var report RuleLoadReport

	for _, name := range remove {
		if r, ok := e.ruleStore.Remove(name); ok {
			delete(e.emptyConditionRules, name)
			retracted, _ := e.graph.DropRule(e.store, name)
			report.Removed = append(report.Removed, name)
			report.RetractedByLoad = append(report.RetractedByLoad, retracted...)
			_ = r
		}
	}

	var queue []triggerFact
	for _, r := range install {
		if ok, unbound := rules.ConclusionVariablesBound(r.Condition, r.Conclusion); r.Kind != rules.KindDisjointConstraint && !ok {
			report.Outcomes = append(report.Outcomes, RuleOutcome{Construct: string(r.Kind), Name: r.Name, Status: "rejected", Reason: "unbound conclusion variables: " + joinNames(unbound)})
			continue
		}

		previous := e.ruleStore.Put(r)
		status := "installed"
		if previous != nil {
			status = "replaced"
		}
		report.Outcomes = append(report.Outcomes, RuleOutcome{Construct: string(r.Kind), Name: r.Name, Status: status})

		if len(r.Condition) == 0 {
			e.emptyConditionRules[r.Name] = r
			if r.Conclusion.Ground() {
				id, isNew, err := e.store.Admit(r.Conclusion, store.Meta{})
				if err == nil {
					_ = e.graph.Add(id, justify.Record{Rule: r.Name})
					if isNew {
						queue = append(queue, triggerFact{id: id, t: r.Conclusion})
					}
				}
			}
			continue
		}

		for _, jr := range e.coldJoin(r) {
			if produced, ok := e.fire(r, jr); ok {
				queue = append(queue, produced)
			}
		}
	}

	if len(queue) > 0 {
		e.propagate(queue)
	}
	return report
}

func joinNames(names []string) string {
	sort.Strings(names)
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

// Snapshot is the engine's instantaneous statistics (SPEC_FULL.md health
// and rules/stat endpoints).
type Snapshot struct {
	Facts          store.Stats
	Rules          rules.Stats
	Contradictions int
	UptimeSeconds  float64
}

// Snapshot returns a consistent snapshot of engine state under a read
// lease.
func (e *Engine) Snapshot() Snapshot {
	release := e.ReadLease()
	defer release()
	return Snapshot{
		Facts:          e.store.Stats(),
		Rules:          e.ruleStore.Stats(),
		Contradictions: e.contradictions.Count(),
		UptimeSeconds:  time.Since(e.startedAt).Seconds(),
	}
}
