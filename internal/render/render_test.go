package render

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSVGRejectsEmptyCommand(t *testing.T) {
	r := New("")
	_, err := r.RenderSVG(context.Background(), []byte("{}"))
	assert.Error(t, err)
}

func TestRenderSVGPipesStdinToStdout(t *testing.T) {
	r := New("cat")
	out, err := r.RenderSVG(context.Background(), []byte("<svg/>"))
	require.NoError(t, err)
	assert.Equal(t, "<svg/>", string(out))
}

func TestRenderSVGFailsOnNonZeroExit(t *testing.T) {
	r := New("false")
	_, err := r.RenderSVG(context.Background(), []byte("{}"))
	assert.Error(t, err)
}
