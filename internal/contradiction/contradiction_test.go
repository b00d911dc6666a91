package contradiction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noetic/internal/term"
)

func TestRecordAssignsMonotonicIDs(t *testing.T) {
	l := New()
	e1 := l.Record("disjoint_cat_dog", term.Binding{"x": term.Atom("x")}, []int64{1, 2}, time.Unix(0, 0))
	e2 := l.Record("disjoint_cat_dog", term.Binding{"x": term.Atom("y")}, []int64{3, 4}, time.Unix(0, 0))
	assert.Equal(t, int64(1), e1.ID)
	assert.Equal(t, int64(2), e2.ID)
	assert.Equal(t, 2, l.Count())
}

func TestRecordClonesBindingAndFacts(t *testing.T) {
	l := New()
	b := term.Binding{"x": term.Atom("x")}
	facts := []int64{1, 2}
	ev := l.Record("r", b, facts, time.Now())

	b["x"] = term.Atom("mutated")
	facts[0] = 99

	require.Contains(t, ev.Binding, "x")
	assert.Equal(t, term.Atom("x"), ev.Binding["x"])
	assert.Equal(t, []int64{1, 2}, ev.Facts)
}

func TestAllReturnsOldestFirst(t *testing.T) {
	l := New()
	l.Record("a", nil, nil, time.Now())
	l.Record("b", nil, nil, time.Now())
	all := l.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].RuleName)
	assert.Equal(t, "b", all[1].RuleName)
}
