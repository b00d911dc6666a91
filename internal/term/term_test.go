package term

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqualityAndGround(t *testing.T) {
	a := NewCompound("parentOf", Atom("alice"), Atom("bob"))
	b := NewCompound("parentOf", Atom("alice"), Atom("bob"))
	assert.True(t, a.Equal(b))
	assert.True(t, a.Ground())

	withVar := NewCompound("parentOf", Variable("x"), Atom("bob"))
	assert.False(t, withVar.Equal(a))
	assert.False(t, withVar.Ground())
	assert.Equal(t, []string{"x"}, withVar.Variables())
}

func TestSubstitute(t *testing.T) {
	pattern := NewCompound("contains", Variable("x"), Variable("z"))
	b := Binding{"x": Atom("a"), "z": Atom("c")}
	got := Substitute(pattern, b)
	want := NewCompound("contains", Atom("a"), Atom("c"))
	assert.True(t, got.Equal(want))
	assert.True(t, got.Ground())
}

func TestUnify(t *testing.T) {
	pattern := NewCompound("parentOf", Variable("x"), Variable("y"))
	ground := NewCompound("parentOf", Atom("alice"), Atom("bob"))

	b, ok := Unify(pattern, ground, Binding{})
	require.True(t, ok)
	assert.Equal(t, Atom("alice"), b["x"])
	assert.Equal(t, Atom("bob"), b["y"])
}

func TestUnifyConflictingBindingFails(t *testing.T) {
	pattern := NewCompound("sameAs", Variable("x"), Variable("x"))
	ground := NewCompound("sameAs", Atom("alice"), Atom("bob"))
	_, ok := Unify(pattern, ground, Binding{})
	assert.False(t, ok)
}

func TestUnifyRejectsNonGroundTarget(t *testing.T) {
	pattern := NewCompound("p", Variable("x"))
	notGround := NewCompound("p", Variable("y"))
	_, ok := Unify(pattern, notGround, Binding{})
	assert.False(t, ok)
}

func TestUnifyRespectsExistingBinding(t *testing.T) {
	pattern := NewCompound("p", Variable("x"), Variable("x"))
	ground := NewCompound("p", Atom("a"), Atom("a"))
	b, ok := Unify(pattern, ground, Binding{})
	require.True(t, ok)
	assert.Equal(t, Atom("a"), b["x"])

	groundMismatch := NewCompound("p", Atom("a"), Atom("b"))
	_, ok = Unify(pattern, groundMismatch, Binding{})
	assert.False(t, ok)
}

func TestTotalOrderingIsDeterministic(t *testing.T) {
	terms := []Term{
		NewCompound("b", Atom("x")),
		Atom("a"),
		Variable("z"),
		NewCompound("a", Atom("x")),
	}
	// Atom < Variable < Compound by kind, then lexicographic.
	assert.True(t, terms[1].Less(terms[2]))
	assert.True(t, terms[2].Less(terms[0]))
	assert.True(t, terms[3].Less(terms[0]))
}

func TestRenameAvoidsVariableCollision(t *testing.T) {
	rule := NewCompound("p", Variable("x"), Variable("y"))
	renamed := Rename(rule, "#1")
	assert.ElementsMatch(t, []string{"x#1", "y#1"}, renamed.Variables())
	assert.False(t, rule.Equal(renamed))
}

func TestStringRendering(t *testing.T) {
	assert.Equal(t, "alice", Atom("alice").String())
	assert.Equal(t, "?x", Variable("x").String())
	assert.Equal(t, "parentOf(alice, ?x)", NewCompound("parentOf", Atom("alice"), Variable("x")).String())
}
