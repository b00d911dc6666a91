package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noetic/internal/engine"
	"noetic/internal/rules"
	"noetic/internal/store"
	"noetic/internal/term"
)

func TestCompilePackRejectsUnknownKey(t *testing.T) {
	doc := []byte(`
bogusConstruct:
  - a: X
transitive:
  - partOf
`)
	rpt, err := CompilePack(doc, "test")
	require.NoError(t, err)
	require.Len(t, rpt.Rejected, 1)
	assert.Equal(t, "bogusConstruct", rpt.Rejected[0].Key)
	assert.Len(t, rpt.Rules, 1)
}

func TestCompilePackChainProducesUsableRule(t *testing.T) {
	doc := []byte(`
chain:
  - name: chain_contains
    properties: [hasComponent, partOf]
    result: contains
`)
	rpt, err := CompilePack(doc, "test")
	require.NoError(t, err)
	require.Len(t, rpt.Rules, 1)
	r := rpt.Rules[0]
	assert.Equal(t, rules.KindChain, r.Kind)
	assert.Len(t, r.Condition, 2)
}

// S1 end-to-end: compile a chain rule pack and drive it through the engine.
func TestCompilePackS1ChainEndToEnd(t *testing.T) {
	doc := []byte(`
chain:
  - name: chain_contains
    properties: [hasComponent, partOf]
    result: contains
`)
	rpt, err := CompilePack(doc, "test")
	require.NoError(t, err)

	e := engine.New(engine.Limits{MaxFacts: 1000})
	e.LoadRules(rpt.Rules, nil)

	_, _, _ = e.Assert(term.NewCompound("hasComponent", term.Atom("a"), term.Atom("b")), store.Meta{Asserted: true})
	_, _, _ = e.Assert(term.NewCompound("partOf", term.Atom("b"), term.Atom("c")), store.Meta{Asserted: true})

	_, ok := e.Store().FindID(term.NewCompound("contains", term.Atom("a"), term.Atom("c")))
	assert.True(t, ok)
}

// S2 end-to-end: inverse + transitive compiled, then driven to fixed point.
func TestCompilePackS2InverseTransitiveEndToEnd(t *testing.T) {
	doc := []byte(`
inverse:
  - p: parentOf
    q: childOf
transitive:
  - parentOf
`)
	rpt, err := CompilePack(doc, "test")
	require.NoError(t, err)
	require.Len(t, rpt.Rules, 3) // inverse fwd+bwd, transitive

	e := engine.New(engine.Limits{MaxFacts: 1000})
	e.LoadRules(rpt.Rules, nil)

	_, _, _ = e.Assert(term.NewCompound("parentOf", term.Atom("a"), term.Atom("b")), store.Meta{Asserted: true})
	_, _, _ = e.Assert(term.NewCompound("parentOf", term.Atom("b"), term.Atom("c")), store.Meta{Asserted: true})

	for _, want := range []term.Term{
		term.NewCompound("parentOf", term.Atom("a"), term.Atom("c")),
		term.NewCompound("childOf", term.Atom("b"), term.Atom("a")),
		term.NewCompound("childOf", term.Atom("c"), term.Atom("b")),
		term.NewCompound("childOf", term.Atom("c"), term.Atom("a")),
	} {
		_, ok := e.Store().FindID(want)
		assert.True(t, ok, "expected %s", want.String())
	}
}

// S3 end-to-end: disjoint compiled into a constraint rule.
func TestCompilePackS3DisjointEndToEnd(t *testing.T) {
	doc := []byte(`
disjoint:
  - a: Cat
    b: Dog
`)
	rpt, err := CompilePack(doc, "test")
	require.NoError(t, err)
	require.Len(t, rpt.Rules, 1)
	assert.Equal(t, rules.KindDisjointConstraint, rpt.Rules[0].Kind)

	e := engine.New(engine.Limits{MaxFacts: 1000})
	e.LoadRules(rpt.Rules, nil)
	_, _, _ = e.Assert(term.NewCompound("isa", term.Atom("x"), term.Atom("Cat")), store.Meta{Asserted: true})
	_, isNew, _ := e.Assert(term.NewCompound("isa", term.Atom("x"), term.Atom("Dog")), store.Meta{Asserted: true})
	assert.True(t, isNew)
	assert.Equal(t, 1, e.Contradictions().Count())
}

func TestCompileChainRejectsEmptyProperties(t *testing.T) {
	doc := []byte(`
chain:
  - name: bad
    properties: []
    result: contains
`)
	rpt, err := CompilePack(doc, "test")
	require.NoError(t, err)
	require.Len(t, rpt.Rejected, 1)
	assert.Empty(t, rpt.Rules)
}

func TestCompileImplicationRejectsUnboundConclusionVariable(t *testing.T) {
	doc := []byte(`
implication:
  - name: bad_impl
    condition: ["[?x p ?y]"]
    conclusion: "[?x q ?z]"
`)
	rpt, err := CompilePack(doc, "test")
	require.NoError(t, err)
	require.Len(t, rpt.Rejected, 1)
	assert.Contains(t, rpt.Rejected[0].Reason, "unbound")
}
