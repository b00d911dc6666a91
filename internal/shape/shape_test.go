package shape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noetic/internal/store"
	"noetic/internal/term"
)

func robotCatalogYAML() []byte {
	return []byte(`
shapes:
  - name: RobotShape
    target_class: Robot
    properties:
      - kind: cardinality
        path: serialNumber
        max_count: 1
`)
}

func TestLoadParsesYAMLCatalog(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Load(robotCatalogYAML()))
	require.Len(t, r.current().Shapes, 1)
	assert.Equal(t, "Robot", r.current().Shapes[0].TargetClass)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	r := NewRegistry()
	err := r.Load([]byte("not: [valid"))
	assert.Error(t, err)
}

// S6: Robot individuals must have exactly one serialNumber.
func TestS6ShapeValidationGate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Load(robotCatalogYAML()))
	st := store.New()

	robot := term.Atom("r")
	isaRobot := term.NewCompound("isa", robot, term.Atom("Robot"))
	rep := r.Validate(st, robot, isaRobot)
	assert.True(t, rep.Conforms, "isa(r,Robot) has no applicable shape yet and must be admitted")
	st.Admit(isaRobot, store.Meta{Asserted: true})

	serialA := term.NewCompound("serialNumber", robot, term.Atom("A"))
	rep = r.Validate(st, robot, serialA)
	assert.True(t, rep.Conforms)
	st.Admit(serialA, store.Meta{Asserted: true})

	serialB := term.NewCompound("serialNumber", robot, term.Atom("B"))
	rep = r.Validate(st, robot, serialB)
	require.False(t, rep.Conforms)
	require.Len(t, rep.Violations, 1)
	assert.Equal(t, "maxCount=1 exceeded on path serialNumber", rep.Violations[0].Message)

	assert.True(t, st.Exists(serialA))
	assert.True(t, st.Exists(isaRobot))
	assert.False(t, st.Exists(term.NewCompound("serialNumber", robot, term.Atom("B"))))
}

func TestValidateIgnoresSubjectsWithNoMatchingShape(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Load(robotCatalogYAML()))
	st := store.New()
	dog := term.Atom("fido")
	st.Admit(term.NewCompound("isa", dog, term.Atom("Dog")), store.Meta{Asserted: true})

	rep := r.Validate(st, dog, term.NewCompound("serialNumber", dog, term.Atom("X")))
	assert.True(t, rep.Conforms)
}
