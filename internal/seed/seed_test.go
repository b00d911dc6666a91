package seed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noetic/internal/engine"
	"noetic/internal/logging"
	"noetic/internal/shape"
	"noetic/internal/term"
)

func init() {
	_ = logging.Init("error", false)
}

func TestLoadKBMissingPathIsNotAnError(t *testing.T) {
	e := engine.New(engine.Limits{MaxFacts: 100})
	n, err := LoadKB(e, "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = LoadKB(e, filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLoadKBAssertsEveryEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
assertions:
  - subject: a
    predicate: hasComponent
    object: b
  - subject: b
    predicate: partOf
    object: c
`), 0o644))

	e := engine.New(engine.Limits{MaxFacts: 100})
	n, err := LoadKB(e, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok := e.Store().FindID(term.NewCompound("hasComponent", term.Atom("a"), term.Atom("b")))
	assert.True(t, ok)
}

func TestLoadRulesCompilesAndInstalls(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transitive:
  - partOf
`), 0o644))

	e := engine.New(engine.Limits{MaxFacts: 100})
	rpt, err := LoadRules(e, path)
	require.NoError(t, err)
	require.Len(t, rpt.Rules, 1)
	_, ok := e.Rules().Get("transitive_partOf")
	assert.True(t, ok)
}

func TestLoadShapesInstallsCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shapes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
shapes:
  - name: RobotShape
    target_class: Robot
    properties:
      - kind: cardinality
        path: serialNumber
        max_count: 1
`), 0o644))

	r := shape.NewRegistry()
	require.NoError(t, LoadShapes(r, path))
}
