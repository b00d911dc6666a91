// Package render invokes the external SVG renderer subprocess named by
// the `renderer_command` config option, piping subgraph JSON to its
// stdin and returning its stdout (spec.md §4.J render operation, §5
// "external renderer subprocess (for SVG)" as a named suspension
// point). Subprocess invocation follows the shell-out pattern in
// codenerd's cmd/nerd/dom_utils.go (runGoFmtFiles): CommandContext, with
// stdout and stderr captured separately (not CombinedOutput) since stdout
// here is binary SVG; stderr is included in the error on failure.
package render

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"noetic/internal/apperr"
)

// Renderer shells out to an external command that reads subgraph JSON
// on stdin and writes SVG on stdout.
type Renderer struct {
	// Command is a whitespace-split command-line template (spec.md §6
	// renderer_command); the first token is the executable.
	Command string
}

func New(command string) *Renderer {
	return &Renderer{Command: command}
}

// RenderSVG runs the configured renderer against subgraphJSON and
// returns its stdout bytes.
func (r *Renderer) RenderSVG(ctx context.Context, subgraphJSON []byte) ([]byte, error) {
	if strings.TrimSpace(r.Command) == "" {
		return nil, apperr.New(apperr.Unsupported, "render: no renderer_command configured")
	}
	fields := strings.Fields(r.Command)
	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Stdin = bytes.NewReader(subgraphJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, apperr.New(apperr.Internal, "render: renderer command failed: %v: %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, apperr.New(apperr.Internal, "render: renderer produced no output")
	}
	return stdout.Bytes(), nil
}
