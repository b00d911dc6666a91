// Package subgraph implements the bounded BFS subgraph extractor
// (spec.md §4.G): resolve a focus, expand outward by shared-argument
// adjacency up to a radius, cap node count, and collapse edges once the
// cap is hit.
package subgraph

import (
	"context"
	"sort"
	"strings"
	"time"

	"noetic/internal/apperr"
	"noetic/internal/store"
	"noetic/internal/term"
)

// NodeKind is the heuristic classification of a subgraph node (spec.md
// §4.G step 5).
type NodeKind string

const (
	KindRule        NodeKind = "rule"
	KindFrame       NodeKind = "frame"
	KindProposition NodeKind = "proposition"
	KindConcept     NodeKind = "concept"
	KindIndividual  NodeKind = "individual"
)

// Node is one vertex of the subgraph envelope.
type Node struct {
	ID         string // "fact:<id>"; every node is a fact node, no atom nodes are synthesized
	Kind       NodeKind
	Term       term.Term
	Asserted   bool
	Confidence float64
}

// Edge connects two nodes; Collapsed marks an edge whose far endpoint
// was not expanded because the node cap was reached.
type Edge struct {
	From      string
	To        string
	Label     string
	Collapsed bool
}

// Envelope is the extractor's result (spec.md §3 Subgraph Envelope).
type Envelope struct {
	Focus     string
	Nodes     []Node
	Edges     []Edge
	NodeCount int
	Timestamp time.Time
}

// Options configures one extraction (spec.md §4.G input).
type Options struct {
	Radius       int
	IncludeEdges []string // if non-empty, only these edge labels are traversed
	ExcludeEdges []string
	MaxNodes     int
	Collapse     bool
}

// namespacePrefixes classifies fact nodes whose functor looks like a
// rule/frame name rather than an ordinary proposition (spec.md §4.G step
// 5: "facts whose functor names match the rule/context namespace").
var namespacePrefixes = []string{"rule_", "frame_"}

// Extract resolves focus (either "fact:<id>" or a bare Atom name) and
// BFS-expands up to opts.Radius hops over st's live facts. It honors
// ctx's deadline cooperatively, checked once per hop (spec.md §5
// Cancellation and timeouts), returning a Cancelled error with no
// partial envelope.
func Extract(ctx context.Context, st *store.Store, focus string, opts Options) (Envelope, error) {
	if opts.Radius < 0 {
		return Envelope{}, apperr.New(apperr.BadRequest, "subgraph: radius must be non-negative, got %d", opts.Radius)
	}
	if err := ctx.Err(); err != nil {
		return Envelope{}, apperr.New(apperr.Cancelled, "subgraph: deadline exceeded")
	}

	frontier, err := resolveFocus(st, focus)
	if err != nil {
		return Envelope{}, err
	}

	env := Envelope{Focus: focus, Timestamp: time.Now()}
	visited := map[string]Node{}
	order := []string{}

	addNode := func(n Node) bool {
		if _, ok := visited[n.ID]; ok {
			return true
		}
		if opts.MaxNodes > 0 && len(visited) >= opts.MaxNodes {
			return false
		}
		visited[n.ID] = n
		order = append(order, n.ID)
		return true
	}

	for _, id := range frontier {
		f, ok := st.Get(id)
		if !ok || f.Retracted {
			continue
		}
		addNode(factNode(f))
	}

	current := append([]string(nil), order...)
	var edges []Edge

	for hop := 0; hop < opts.Radius && len(current) > 0; hop++ {
		if err := ctx.Err(); err != nil {
			return Envelope{}, apperr.New(apperr.Cancelled, "subgraph: deadline exceeded")
		}
		var next []string
		for _, nid := range current {
			n := visited[nid]
			if !n.Term.IsCompound() {
				continue
			}
			neighbors := neighborsOf(st, n.Term, nid)
			for _, nb := range neighbors {
				if !edgeAllowed(nb.label, opts) {
					continue
				}
				if _, already := visited[nb.node.ID]; !already && opts.MaxNodes > 0 && len(visited) >= opts.MaxNodes {
					edges = append(edges, Edge{From: nid, To: nb.node.ID, Label: nb.label, Collapsed: true})
					continue
				}
				isNew := !nodeSeen(visited, nb.node.ID)
				if !addNode(nb.node) {
					edges = append(edges, Edge{From: nid, To: nb.node.ID, Label: nb.label, Collapsed: true})
					continue
				}
				edges = append(edges, Edge{From: nid, To: nb.node.ID, Label: nb.label})
				if isNew {
					next = append(next, nb.node.ID)
				}
			}
		}
		current = dedupStrings(next)
	}

	env.Nodes = make([]Node, 0, len(order))
	for _, id := range order {
		env.Nodes = append(env.Nodes, visited[id])
	}
	sort.Slice(env.Nodes, func(i, j int) bool { return env.Nodes[i].ID < env.Nodes[j].ID })
	env.Edges = dedupEdges(edges)
	env.NodeCount = len(env.Nodes)
	return env, nil
}

func nodeSeen(visited map[string]Node, id string) bool {
	_, ok := visited[id]
	return ok
}

func resolveFocus(st *store.Store, focus string) ([]int64, error) {
	if id, ok := strings.CutPrefix(focus, "fact:"); ok {
		n, err := parseFactID(id)
		if err != nil {
			return nil, err
		}
		return []int64{n}, nil
	}

	var ids []int64
	for _, f := range st.AllLive() {
		if mentionsAtom(f.Term, focus) {
			ids = append(ids, f.ID)
		}
	}
	if len(ids) == 0 {
		return nil, apperr.New(apperr.NotFound, "subgraph: focus %q matches no live facts", focus)
	}
	return ids, nil
}

func mentionsAtom(t term.Term, name string) bool {
	if t.IsCompound() {
		if t.Functor() == name {
			return true
		}
		for _, a := range t.Args() {
			if mentionsAtom(a, name) {
				return true
			}
		}
	}
	if t.IsAtom() && t.Name() == name {
		return true
	}
	return false
}

func parseFactID(s string) (int64, error) {
	var n int64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, apperr.New(apperr.BadRequest, "subgraph: malformed focus fact id %q", s)
		}
		n = n*10 + int64(c-'0')
	}
	if s == "" {
		return 0, apperr.New(apperr.BadRequest, "subgraph: malformed focus fact id %q", s)
	}
	return n, nil
}

func factNode(f store.Fact) Node {
	return Node{
		ID:         factNodeID(f.ID),
		Kind:       classify(f.Term),
		Term:       f.Term,
		Asserted:   f.Asserted,
		Confidence: f.Confidence,
	}
}

func factNodeID(id int64) string {
	return "fact:" + itoa(id)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func classify(t term.Term) NodeKind {
	if !t.IsCompound() {
		return KindProposition
	}
	for _, prefix := range namespacePrefixes {
		if strings.HasPrefix(t.Functor(), prefix) {
			if strings.HasPrefix(t.Functor(), "rule_") {
				return KindRule
			}
			return KindFrame
		}
	}
	return KindProposition
}

type neighbor struct {
	node  Node
	label string
}

// neighborsOf finds every other live fact sharing an Atom argument with
// t, labeling each edge with the connecting predicate (spec.md §4.G step
// 2-3).
func neighborsOf(st *store.Store, t term.Term, selfID string) []neighbor {
	var out []neighbor
	seenArgs := map[string]bool{}
	for _, arg := range t.Args() {
		if !arg.IsAtom() || seenArgs[arg.Name()] {
			continue
		}
		seenArgs[arg.Name()] = true
		for _, f := range st.AllLive() {
			if factNodeID(f.ID) == selfID {
				continue
			}
			if !mentionsAtom(f.Term, arg.Name()) {
				continue
			}
			label := f.Term.Functor()
			if label == "" {
				label = t.Functor()
			}
			out = append(out, neighbor{node: factNode(f), label: label})
		}
	}
	return out
}

func edgeAllowed(label string, opts Options) bool {
	if len(opts.IncludeEdges) > 0 && !contains(opts.IncludeEdges, label) {
		return false
	}
	if contains(opts.ExcludeEdges, label) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func dedupStrings(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func dedupEdges(in []Edge) []Edge {
	seen := map[Edge]bool{}
	var out []Edge
	for _, e := range in {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}
