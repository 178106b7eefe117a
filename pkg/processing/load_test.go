package processing

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStacks_BuiltinAndFile(t *testing.T) {
	dir := t.TempDir()
	file := writeTestFile(t, dir, "edge.stack.yaml", edgeStack)

	list, err := LoadStacks([]string{"model-armor", file})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "model-armor", list[0].Name)
	assert.Equal(t, "edge", list[1].Name)
}

func TestLoadStacks_Errors(t *testing.T) {
	dir := t.TempDir()
	file := writeTestFile(t, dir, "edge.stack.yaml", edgeStack)

	_, err := LoadStacks([]string{file, file})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `stack "edge" given more than once`)

	_, err = LoadStacks([]string{"no-such-stack"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown builtin stack")

	_, err = LoadStacks([]string{filepath.Join(dir, "missing.stack.yaml")})
	require.Error(t, err)
}

func TestLoadDeployment_RenamesAndMergesContext(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, filepath.Join("stacks", "edge.stack.yaml"), edgeStack)
	f := writeTestFile(t, dir, "stackctl.yaml", `
context:
  domain: api.example.com
stacks:
  - name: armor-eu
    builtin: model-armor
    context:
      region: eu
  - name: edge
    file: stacks/edge.stack.yaml
`)

	list, global, err := LoadDeployment(f)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "armor-eu", list[0].Name)
	assert.Equal(t, "eu", list[0].Context["region"])
	assert.Equal(t, "edge", list[1].Name)
	assert.Equal(t, "api.example.com", global["domain"])
}

func TestLoadDeployment_InvalidName(t *testing.T) {
	f := writeTestFile(t, t.TempDir(), "stackctl.yaml", `
stacks:
  - name: Bad Name
    builtin: iam
`)

	_, _, err := LoadDeployment(f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must match")
}
