package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitRejectsUnknownLevel(t *testing.T) {
	err := Init("not-a-level", false)
	assert.Error(t, err)
}

func TestGetReturnsDistinctLoggersPerCategory(t *testing.T) {
	require.NoError(t, Init("debug", false))
	store := Get(CategoryStore)
	inference := Get(CategoryInference)
	require.NotNil(t, store)
	require.NotNil(t, inference)
	assert.NotSame(t, store, inference)
	// Re-fetching the same category returns the cached logger.
	assert.Same(t, store, Get(CategoryStore))
}

func TestDefaultLevelIsInfo(t *testing.T) {
	assert.NoError(t, Init("", true))
	core := Get(CategoryBoot).Desugar().Core()
	assert.True(t, core.Enabled(zapcore.InfoLevel))
	assert.False(t, core.Enabled(zapcore.DebugLevel))
}
