package llm

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPromptsRender(t *testing.T) {
	p := DefaultPrompts()

	rag := p.RenderRAG("doc one\n\ndoc two")
	assert.Contains(t, rag, "doc one")
	assert.Contains(t, rag, "blocks")

	dec := p.RenderDecomposition("some context", "what is X?")
	assert.Contains(t, dec, "some context")
	assert.Contains(t, dec, "what is X?")
	assert.Contains(t, dec, "sufficient")
}

func TestLoadPromptsOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("general: custom general prompt\n"), 0o644))

	p, err := LoadPrompts(path)
	require.NoError(t, err)

	assert.Equal(t, "custom general prompt", p.General)
	// untouched fields keep defaults
	assert.True(t, strings.Contains(p.RAG, "Context:"))
}

func TestLoadPromptsMissingFile(t *testing.T) {
	_, err := LoadPrompts("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestLoadPromptsEmptyPath(t *testing.T) {
	p, err := LoadPrompts("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPrompts(), p)
}
