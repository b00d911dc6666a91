package justify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noetic/internal/logging"
	"noetic/internal/store"
	"noetic/internal/term"
)

func init() {
	_ = logging.Init("error", false)
}

func TestAddRejectsSelfSupport(t *testing.T) {
	g := New()
	err := g.Add(5, Record{Rule: "r", Premises: []int64{5}})
	assert.Error(t, err)
}

func TestAddAndJustifications(t *testing.T) {
	g := New()
	require.NoError(t, g.Add(3, Record{Rule: "chain", Premises: []int64{1, 2}, Binding: term.Binding{"x": term.Atom("a")}}))
	recs := g.Justifications(3)
	require.Len(t, recs, 1)
	assert.Equal(t, "chain", recs[0].Rule)
	assert.True(t, g.HasJustification(3))
	assert.False(t, g.HasJustification(99))
}

func TestDependentsIndex(t *testing.T) {
	g := New()
	require.NoError(t, g.Add(3, Record{Rule: "chain", Premises: []int64{1, 2}}))
	assert.ElementsMatch(t, []int64{3}, g.Dependents(1))
	assert.ElementsMatch(t, []int64{3}, g.Dependents(2))
}

func TestDuplicateJustificationIsNotAppendedTwice(t *testing.T) {
	g := New()
	rec := Record{Rule: "chain", Premises: []int64{1, 2}}
	require.NoError(t, g.Add(3, rec))
	require.NoError(t, g.Add(3, rec))
	assert.Len(t, g.Justifications(3), 1)
}

// S1 scenario: chain rule, two premises, one derived fact.
func TestRetractCascadesThroughSinglePremise(t *testing.T) {
	st := store.New()
	a, _, _ := st.Admit(term.NewCompound("hasComponent", term.Atom("a"), term.Atom("b")), store.Meta{Asserted: true})
	b, _, _ := st.Admit(term.NewCompound("partOf", term.Atom("b"), term.Atom("c")), store.Meta{Asserted: true})
	c, _, _ := st.Admit(term.NewCompound("contains", term.Atom("a"), term.Atom("c")), store.Meta{Asserted: false})

	g := New()
	require.NoError(t, g.Add(c, Record{Rule: "chain_contains", Premises: []int64{a, b}}))

	retracted, err := g.Retract(st, a)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{a, c}, retracted)

	fb, _ := st.Get(b)
	assert.False(t, fb.Retracted, "partOf(b,c) must remain (S4)")
	assert.False(t, g.HasJustification(c))
}

// S2-ish: a fact derived from two justifications only fully retracts
// when both are gone.
func TestRetractRequiresAllJustificationsGone(t *testing.T) {
	st := store.New()
	p1, _, _ := st.Admit(term.NewCompound("p", term.Atom("1")), store.Meta{Asserted: true})
	p2, _, _ := st.Admit(term.NewCompound("p", term.Atom("2")), store.Meta{Asserted: true})
	d, _, _ := st.Admit(term.NewCompound("d", term.Atom("x")), store.Meta{Asserted: false})

	g := New()
	require.NoError(t, g.Add(d, Record{Rule: "r1", Premises: []int64{p1}}))
	require.NoError(t, g.Add(d, Record{Rule: "r2", Premises: []int64{p2}}))

	retracted, err := g.Retract(st, p1)
	require.NoError(t, err)
	assert.Equal(t, []int64{p1}, retracted)

	fd, _ := st.Get(d)
	assert.False(t, fd.Retracted)
	assert.Len(t, g.Justifications(d), 1)
}

func TestAssertedFactDoesNotCascadeFromItsOwnRetraction(t *testing.T) {
	st := store.New()
	a, _, _ := st.Admit(term.NewCompound("p", term.Atom("x")), store.Meta{Asserted: true})
	retracted, err := g().Retract(st, a)
	require.NoError(t, err)
	assert.Equal(t, []int64{a}, retracted)
}

func g() *Graph { return New() }
