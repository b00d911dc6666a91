package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noetic/internal/logging"
	"noetic/internal/rules"
	"noetic/internal/store"
	"noetic/internal/term"
)

func init() {
	_ = logging.Init("error", false)
}

func testLimits() Limits {
	return Limits{MaxFacts: 10000, MaxQueryResults: 1000, MaxRadius: 6, MaxSubgraphNodes: 2000, MaxRulePackBytes: 1 << 20}
}

func v(name string) term.Term { return term.Variable(name) }
func a(name string) term.Term { return term.Atom(name) }

// S1: chain rule — contains(x,z) from hasComponent(x,y), partOf(y,z).
func chainPack() *rules.Rule {
	return &rules.Rule{
		Name: "chain_contains",
		Kind: rules.KindChain,
		Condition: []term.Term{
			term.NewCompound("hasComponent", v("x"), v("y")),
			term.NewCompound("partOf", v("y"), v("z")),
		},
		Conclusion: term.NewCompound("contains", v("x"), v("z")),
		Priority:   10,
		Origin:     "test",
	}
}

func TestS1ChainRuleDerivesContainsWithJustification(t *testing.T) {
	e := New(testLimits())
	e.LoadRules([]*rules.Rule{chainPack()}, nil)

	idAB, _, err := e.Assert(term.NewCompound("hasComponent", a("a"), a("b")), store.Meta{Asserted: true})
	require.NoError(t, err)
	idBC, _, err := e.Assert(term.NewCompound("partOf", a("b"), a("c")), store.Meta{Asserted: true})
	require.NoError(t, err)

	release := e.ReadLease()
	defer release()

	wantContains := term.NewCompound("contains", a("a"), a("c"))
	id, ok := e.Store().FindID(wantContains)
	require.True(t, ok, "contains(a,c) should have been derived")

	f, _ := e.Store().Get(id)
	assert.False(t, f.Asserted)

	recs := e.Graph().Justifications(id)
	require.Len(t, recs, 1)
	assert.Equal(t, "chain_contains", recs[0].Rule)
	assert.ElementsMatch(t, []int64{idAB, idBC}, recs[0].Premises)
}

// S2: inverse (parentOf -> childOf direction only) + transitivity, as two
// hand-built single-condition-list rules.
func inverseAndTransitivePack() []*rules.Rule {
	inverse := &rules.Rule{
		Name:       "inverse_parentOf_childOf",
		Kind:       rules.KindInverse,
		Condition:  []term.Term{term.NewCompound("parentOf", v("x"), v("y"))},
		Conclusion: term.NewCompound("childOf", v("y"), v("x")),
		Origin:     "test",
	}
	transitive := &rules.Rule{
		Name: "transitive_parentOf",
		Kind: rules.KindTransitivity,
		Condition: []term.Term{
			term.NewCompound("parentOf", v("x"), v("y")),
			term.NewCompound("parentOf", v("y"), v("z")),
		},
		Conclusion: term.NewCompound("parentOf", v("x"), v("z")),
		Origin:     "test",
	}
	return []*rules.Rule{inverse, transitive}
}

func TestS2InverseAndTransitivity(t *testing.T) {
	e := New(testLimits())
	e.LoadRules(inverseAndTransitivePack(), nil)

	_, _, err := e.Assert(term.NewCompound("parentOf", a("a"), a("b")), store.Meta{Asserted: true})
	require.NoError(t, err)
	_, _, err = e.Assert(term.NewCompound("parentOf", a("b"), a("c")), store.Meta{Asserted: true})
	require.NoError(t, err)

	release := e.ReadLease()
	defer release()

	for _, want := range []term.Term{
		term.NewCompound("parentOf", a("a"), a("c")),
		term.NewCompound("childOf", a("b"), a("a")),
		term.NewCompound("childOf", a("c"), a("b")),
		term.NewCompound("childOf", a("c"), a("a")),
	} {
		_, ok := e.Store().FindID(want)
		assert.True(t, ok, "expected derived fact %s", want.String())
	}

	var xs []string
	for _, f := range e.Store().LookupByArg("childOf", 1, a("a")) {
		xs = append(xs, f.Term.Args()[0].String())
	}
	assert.ElementsMatch(t, []string{"b", "c"}, xs)
}

// S3: disjointness contradiction — second assertion still admits, no
// spurious conclusion fact is produced, an event is recorded.
func TestS3DisjointnessRecordsContradictionWithoutBlocking(t *testing.T) {
	e := New(testLimits())
	disjoint := &rules.Rule{
		Name: "disjoint_cat_dog",
		Kind: rules.KindDisjointConstraint,
		Condition: []term.Term{
			term.NewCompound("isa", v("x"), a("Cat")),
			term.NewCompound("isa", v("x"), a("Dog")),
		},
		Origin: "test",
	}
	e.LoadRules([]*rules.Rule{disjoint}, nil)

	_, isNew1, err := e.Assert(term.NewCompound("isa", a("x"), a("Cat")), store.Meta{Asserted: true})
	require.NoError(t, err)
	assert.True(t, isNew1)

	_, isNew2, err := e.Assert(term.NewCompound("isa", a("x"), a("Dog")), store.Meta{Asserted: true})
	require.NoError(t, err)
	assert.True(t, isNew2, "second assertion must still be admitted")

	snap := e.Snapshot()
	assert.Equal(t, 1, snap.Contradictions)

	events := e.Contradictions().All()
	require.Len(t, events, 1)
	assert.Equal(t, "disjoint_cat_dog", events[0].RuleName)
	assert.Equal(t, a("x"), events[0].Binding["x"])
}

// S4: retraction cascade — retracting hasComponent(a,b) retracts the
// derived contains(a,c) but leaves partOf(b,c) untouched.
func TestS4RetractionCascade(t *testing.T) {
	e := New(testLimits())
	e.LoadRules([]*rules.Rule{chainPack()}, nil)

	idAB, _, err := e.Assert(term.NewCompound("hasComponent", a("a"), a("b")), store.Meta{Asserted: true})
	require.NoError(t, err)
	idBC, _, err := e.Assert(term.NewCompound("partOf", a("b"), a("c")), store.Meta{Asserted: true})
	require.NoError(t, err)

	containsID, ok := e.Store().FindID(term.NewCompound("contains", a("a"), a("c")))
	require.True(t, ok)

	retracted, err := e.Retract(idAB)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{idAB, containsID}, retracted)

	fBC, _ := e.Store().Get(idBC)
	assert.False(t, fBC.Retracted, "partOf(b,c) must remain live")

	fContains, _ := e.Store().Get(containsID)
	assert.True(t, fContains.Retracted)
	assert.False(t, e.Graph().HasJustification(containsID))
}

// A fact first reached only by derivation, then independently asserted,
// is promoted to Asserted and survives the loss of its derivation's
// premises (spec.md §3: "An asserted fact does not retract on premise
// loss").
func TestAssertPromotesDerivedFactAndSurvivesPremiseLoss(t *testing.T) {
	e := New(testLimits())
	e.LoadRules([]*rules.Rule{chainPack()}, nil)

	idAB, _, err := e.Assert(term.NewCompound("hasComponent", a("a"), a("b")), store.Meta{Asserted: true})
	require.NoError(t, err)
	_, _, err = e.Assert(term.NewCompound("partOf", a("b"), a("c")), store.Meta{Asserted: true})
	require.NoError(t, err)

	containsTerm := term.NewCompound("contains", a("a"), a("c"))
	containsID, ok := e.Store().FindID(containsTerm)
	require.True(t, ok)

	fBefore, _ := e.Store().Get(containsID)
	assert.False(t, fBefore.Asserted)

	prov := &store.Provenance{Source: "analyst"}
	gotID, isNew, err := e.Assert(containsTerm, store.Meta{Asserted: true, Confidence: 0.9, Provenance: prov})
	require.NoError(t, err)
	assert.False(t, isNew, "re-asserting an existing derived fact must not mint a new fact_id")
	assert.Equal(t, containsID, gotID)

	fAfter, _ := e.Store().Get(containsID)
	assert.True(t, fAfter.Asserted)
	assert.Equal(t, 0.9, fAfter.Confidence)
	assert.Equal(t, prov, fAfter.Provenance)

	recs := e.Graph().Justifications(containsID)
	require.Len(t, recs, 2)

	retracted, err := e.Retract(idAB)
	require.NoError(t, err)
	assert.NotContains(t, retracted, containsID, "asserted fact must not cascade-retract on premise loss")

	fFinal, _ := e.Store().Get(containsID)
	assert.False(t, fFinal.Retracted)
}

func TestLoadRulesRejectsUnboundConclusionVariable(t *testing.T) {
	e := New(testLimits())
	bad := &rules.Rule{
		Name:       "bad",
		Kind:       rules.KindImplication,
		Condition:  []term.Term{term.NewCompound("p", v("x"))},
		Conclusion: term.NewCompound("q", v("y")),
		Origin:     "test",
	}
	report := e.LoadRules([]*rules.Rule{bad}, nil)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, "rejected", report.Outcomes[0].Status)
	_, ok := e.Rules().Get("bad")
	assert.False(t, ok)
}

func TestLoadRulesColdJoinsAgainstExistingFacts(t *testing.T) {
	e := New(testLimits())
	_, _, err := e.Assert(term.NewCompound("hasComponent", a("a"), a("b")), store.Meta{Asserted: true})
	require.NoError(t, err)
	_, _, err = e.Assert(term.NewCompound("partOf", a("b"), a("c")), store.Meta{Asserted: true})
	require.NoError(t, err)

	e.LoadRules([]*rules.Rule{chainPack()}, nil)

	_, ok := e.Store().FindID(term.NewCompound("contains", a("a"), a("c")))
	assert.True(t, ok, "cold join must fire the newly installed rule against pre-existing facts")
}

func TestLoadRulesRemovalCascadesRetraction(t *testing.T) {
	e := New(testLimits())
	e.LoadRules([]*rules.Rule{chainPack()}, nil)
	_, _, _ = e.Assert(term.NewCompound("hasComponent", a("a"), a("b")), store.Meta{Asserted: true})
	_, _, _ = e.Assert(term.NewCompound("partOf", a("b"), a("c")), store.Meta{Asserted: true})

	containsID, ok := e.Store().FindID(term.NewCompound("contains", a("a"), a("c")))
	require.True(t, ok)

	report := e.LoadRules(nil, []string{"chain_contains"})
	assert.Equal(t, []string{"chain_contains"}, report.Removed)
	assert.Contains(t, report.RetractedByLoad, containsID)

	f, _ := e.Store().Get(containsID)
	assert.True(t, f.Retracted)
}

func TestAssertEnforcesMaxFacts(t *testing.T) {
	e := New(Limits{MaxFacts: 1})
	_, _, err := e.Assert(term.NewCompound("p", a("1")), store.Meta{Asserted: true})
	require.NoError(t, err)
	_, _, err = e.Assert(term.NewCompound("p", a("2")), store.Meta{Asserted: true})
	require.Error(t, err)
}
