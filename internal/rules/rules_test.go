package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noetic/internal/term"
)

func chainRule() *Rule {
	x, y, z := term.Variable("x"), term.Variable("y"), term.Variable("z")
	return &Rule{
		Name: "chain_contains",
		Kind: KindChain,
		Condition: []term.Term{
			term.NewCompound("hasComponent", x, y),
			term.NewCompound("partOf", y, z),
		},
		Conclusion: term.NewCompound("contains", x, z),
		Priority:   10,
	}
}

func TestPutAndGet(t *testing.T) {
	s := New()
	r := chainRule()
	prev := s.Put(r)
	assert.Nil(t, prev)

	got, ok := s.Get("chain_contains")
	require.True(t, ok)
	assert.Equal(t, r, got)
}

func TestReplaceReturnsPrevious(t *testing.T) {
	s := New()
	r1 := chainRule()
	s.Put(r1)
	r2 := chainRule()
	r2.Priority = 99
	prev := s.Put(r2)
	require.NotNil(t, prev)
	assert.Equal(t, 10, prev.Priority)

	got, _ := s.Get("chain_contains")
	assert.Equal(t, 99, got.Priority)
}

func TestRulesForHeadIndexesEveryConditionPattern(t *testing.T) {
	s := New()
	s.Put(chainRule())
	has := s.RulesForHead("hasComponent", 2)
	require.Len(t, has, 1)
	partOf := s.RulesForHead("partOf", 2)
	require.Len(t, partOf, 1)
	assert.Empty(t, s.RulesForHead("contains", 2))
}

func TestRemoveUnindexes(t *testing.T) {
	s := New()
	s.Put(chainRule())
	removed, ok := s.Remove("chain_contains")
	require.True(t, ok)
	assert.Equal(t, "chain_contains", removed.Name)
	assert.Empty(t, s.RulesForHead("hasComponent", 2))

	_, ok = s.Remove("chain_contains")
	assert.False(t, ok)
}

func TestPriorityThenNameOrdering(t *testing.T) {
	s := New()
	low := &Rule{Name: "b", Priority: 1, Condition: []term.Term{term.NewCompound("p", term.Variable("x"))}, Conclusion: term.NewCompound("q", term.Variable("x"))}
	high := &Rule{Name: "a", Priority: 5, Condition: []term.Term{term.NewCompound("p", term.Variable("x"))}, Conclusion: term.NewCompound("r", term.Variable("x"))}
	sameHigh := &Rule{Name: "z", Priority: 5, Condition: []term.Term{term.NewCompound("p", term.Variable("x"))}, Conclusion: term.NewCompound("s", term.Variable("x"))}
	s.Put(low)
	s.Put(high)
	s.Put(sameHigh)

	list := s.RulesForHead("p", 1)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"a", "z", "b"}, []string{list[0].Name, list[1].Name, list[2].Name})
}

func TestConclusionVariablesBound(t *testing.T) {
	cond := []term.Term{term.NewCompound("p", term.Variable("x"))}
	ok, unbound := ConclusionVariablesBound(cond, term.NewCompound("q", term.Variable("x")))
	assert.True(t, ok)
	assert.Empty(t, unbound)

	ok, unbound = ConclusionVariablesBound(cond, term.NewCompound("q", term.Variable("y")))
	assert.False(t, ok)
	assert.Equal(t, []string{"y"}, unbound)
}

func TestStatsByKindAndOrigin(t *testing.T) {
	s := New()
	r := chainRule()
	r.Origin = "seed"
	s.Put(r)
	st := s.Stats()
	assert.Equal(t, 1, st.Total)
	assert.Equal(t, 1, st.ByKind[KindChain])
	assert.Equal(t, 1, st.ByOrigin["seed"])
}
