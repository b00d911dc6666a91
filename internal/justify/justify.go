// Package justify implements the justification graph (spec.md §4.D) and
// truth maintenance. Its Record type is a narrowed form of the DerivationNode
// concept in codenerd's internal/mangle/proof_tree.go (rule, premises,
// binding) without that file's tracer/cache machinery, which existed to
// visualize a single query's proof tree rather than to persist the
// justification of every derived fact for later retraction.
package justify

import (
	"sort"
	"sync"

	"noetic/internal/apperr"
	"noetic/internal/logging"
	"noetic/internal/store"
	"noetic/internal/term"
)

// Record is the (rule, ordered premises, binding) triple witnessing one
// derivation of a fact (spec.md §3 Justification Record).
type Record struct {
	Rule     string
	Premises []int64
	Binding  term.Binding
}

// Graph maps a derived fact_id to every justification recorded for it, and
// maintains the reverse "dependents" index used by truth maintenance.
type Graph struct {
	mu             sync.RWMutex
	justifications map[int64][]Record
	dependents     map[int64]map[int64]bool // premise fact_id -> set of dependent fact_ids
}

func New() *Graph {
	return &Graph{
		justifications: make(map[int64][]Record),
		dependents:     make(map[int64]map[int64]bool),
	}
}

// Add records a new justification for derivedID. Self-support (a premise
// list containing derivedID itself) is rejected (spec.md §4.E Edge-case
// policies).
func (g *Graph) Add(derivedID int64, rec Record) error {
	for _, p := range rec.Premises {
		if p == derivedID {
			return apperr.New(apperr.Internal, "justify: self-support rejected for fact_id %d via rule %s", derivedID, rec.Rule)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, existing := range g.justifications[derivedID] {
		if sameJustification(existing, rec) {
			return nil // duplicate derivation of an already-recorded justification
		}
	}

	g.justifications[derivedID] = append(g.justifications[derivedID], rec)
	for _, p := range rec.Premises {
		set := g.dependents[p]
		if set == nil {
			set = make(map[int64]bool)
			g.dependents[p] = set
		}
		set[derivedID] = true
	}
	return nil
}

func sameJustification(a, b Record) bool {
	if a.Rule != b.Rule || len(a.Premises) != len(b.Premises) {
		return false
	}
	for i := range a.Premises {
		if a.Premises[i] != b.Premises[i] {
			return false
		}
	}
	return true
}

// Justifications returns every recorded justification for id, in a
// deterministic order (by rule name, then by premise sequence).
func (g *Graph) Justifications(id int64) []Record {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := append([]Record(nil), g.justifications[id]...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rule != out[j].Rule {
			return out[i].Rule < out[j].Rule
		}
		for k := 0; k < len(out[i].Premises) && k < len(out[j].Premises); k++ {
			if out[i].Premises[k] != out[j].Premises[k] {
				return out[i].Premises[k] < out[j].Premises[k]
			}
		}
		return len(out[i].Premises) < len(out[j].Premises)
	})
	return out
}

// HasJustification reports whether id currently has at least one recorded
// justification (spec.md §8 Invariant 1).
func (g *Graph) HasJustification(id int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.justifications[id]) > 0
}

// Dependents returns the fact_ids whose justifications include id as a
// premise.
func (g *Graph) Dependents(id int64) []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	set := g.dependents[id]
	out := make([]int64, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// dropJustificationsContaining removes every justification record of id
// that names premise as one of its premises, returning the remaining
// count.
func (g *Graph) dropJustificationsContaining(id, premise int64) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	list := g.justifications[id]
	out := list[:0]
	for _, rec := range list {
		contains := false
		for _, p := range rec.Premises {
			if p == premise {
				contains = true
				break
			}
		}
		if !contains {
			out = append(out, rec)
		}
	}
	g.justifications[id] = out
	delete(g.dependents[premise], id)
	return len(out)
}

// forget removes all bookkeeping for a retracted fact: its own
// justifications (and their premise->dependents edges) are dropped, and
// it is removed from the dependents set of anything that names it as a
// premise-dependent elsewhere. Called once id itself has been retracted.
func (g *Graph) forget(id int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, rec := range g.justifications[id] {
		for _, p := range rec.Premises {
			delete(g.dependents[p], id)
		}
	}
	delete(g.justifications, id)
	delete(g.dependents, id)
}

// DropRule invalidates every justification that names ruleName (spec.md
// §4.C: "Removing a rule invalidates all justifications that name it:
// facts solely justified by that rule are retracted."). Facts that retain
// at least one other justification survive; facts left with none (and
// not asserted) are retracted, cascading through Retract.
func (g *Graph) DropRule(st *store.Store, ruleName string) ([]int64, error) {
	g.mu.Lock()
	var affected []int64
	for id, recs := range g.justifications {
		kept := recs[:0]
		changed := false
		for _, r := range recs {
			if r.Rule == ruleName {
				changed = true
				for _, p := range r.Premises {
					delete(g.dependents[p], id)
				}
				continue
			}
			kept = append(kept, r)
		}
		if changed {
			g.justifications[id] = kept
			affected = append(affected, id)
		}
	}
	g.mu.Unlock()

	sort.Slice(affected, func(i, j int) bool { return affected[i] < affected[j] })

	var retracted []int64
	for _, id := range affected {
		if g.HasJustification(id) {
			continue
		}
		f, ok := st.Get(id)
		if !ok || f.Retracted || f.Asserted {
			continue
		}
		ids, err := g.Retract(st, id)
		if err != nil {
			continue
		}
		retracted = append(retracted, ids...)
	}
	return retracted, nil
}

// Retract tombstones rootID in st, then performs truth maintenance: for
// every dependent g of a retracted fact, justifications naming the
// retracted fact as a premise are dropped; once g has no remaining
// justification and is not itself asserted, g is retracted and the
// process recurses (spec.md §4.D, §3 Lifecycle, §8 Invariant 3). An
// asserted fact never cascades away from premise loss — it has none.
//
// Returns every fact_id retracted by this call, in the order retracted
// (rootID first).
func (g *Graph) Retract(st *store.Store, rootID int64) ([]int64, error) {
	if err := st.Retract(rootID); err != nil {
		return nil, err
	}

	var retracted []int64
	queue := []int64{rootID}
	queued := map[int64]bool{rootID: true}
	retracted = append(retracted, rootID)

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		dependents := g.Dependents(cur)
		g.forget(cur)

		for _, dep := range dependents {
			remaining := g.dropJustificationsContaining(dep, cur)
			if remaining > 0 {
				continue
			}
			f, ok := st.Get(dep)
			if !ok || f.Retracted || f.Asserted {
				continue
			}
			if err := st.Retract(dep); err != nil {
				continue
			}
			logging.Get(logging.CategoryJustification).Debugw("truth maintenance cascade", "retracted", dep, "cause", cur)
			retracted = append(retracted, dep)
			if !queued[dep] {
				queued[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	return retracted, nil
}
