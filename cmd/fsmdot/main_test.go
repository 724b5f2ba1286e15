package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const definition = `
name: door
start: closed
states:
  - id: closed
  - id: open
transitions:
  - {from: closed, event: open, to: open, action: unlock}
  - {from: open, event: close, to: closed}
timeouts:
  - {state: open, event: close, after: 30s}
`

func writeDefinition(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "door.yaml")
	require.NoError(t, os.WriteFile(path, []byte(definition), 0o600))
	return path
}

func TestRunToStdout(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"-i", writeDefinition(t), "--active", "open"}, &out))

	dot := out.String()
	assert.Contains(t, dot, `digraph "door" {`)
	assert.Contains(t, dot, `"closed" -> "open" [label="open /"];`)
	assert.Contains(t, dot, `"open" -> "closed" [label="close [30s]", color=darkslategray, fontcolor=darkslategray];`)
	assert.NotContains(t, dot, "cluster___key")
	assert.Contains(t, dot, `"open" [label="open", style="rounded,filled", fillcolor=lightgreen];`)
}

func TestRunToFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "door.dot")
	var out bytes.Buffer
	require.NoError(t, run([]string{"--input", writeDefinition(t), "-o", target, "--key"}, &out))

	assert.Empty(t, out.String())
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), `__start -> "closed";`)
	assert.Contains(t, string(data), `label="Key";`)
}

func TestRunRequiresInput(t *testing.T) {
	assert.Error(t, run(nil, &bytes.Buffer{}))
	assert.Error(t, run([]string{"-i", filepath.Join(t.TempDir(), "nope.yaml")}, &bytes.Buffer{}))
}
