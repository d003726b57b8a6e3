package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 1024, cfg.Embedding.Dimension)
	assert.Equal(t, 100, cfg.Embedding.CacheSize)
	assert.Equal(t, 0.5, cfg.Retrieval.SimilarityThreshold)
	assert.Equal(t, 1, cfg.Retrieval.MaxHops)
	assert.Equal(t, 6, cfg.Retrieval.ConversationWindow)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("RAG_SIMILARITY_THRESHOLD", "0.72")
	t.Setenv("MAX_HOPS", "3")
	t.Setenv("PINECONE_API_KEY", "pk-test")
	t.Setenv("PINECONE_HOST", "https://idx.svc.pinecone.io")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.InDelta(t, 0.72, cfg.Retrieval.SimilarityThreshold, 1e-9)
	assert.Equal(t, 3, cfg.Retrieval.MaxHops)
	assert.True(t, cfg.Pinecone.Configured())
}

func TestLoadFileThenEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hopline.yaml")
	data := []byte("server:\n  port: 7070\nretrieval:\n  similarity_threshold: 0.3\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	t.Setenv("PORT", "6060")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 6060, cfg.Server.Port)
	assert.InDelta(t, 0.3, cfg.Retrieval.SimilarityThreshold, 1e-9)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.Retrieval.SimilarityThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Database.Driver = "oracle"
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Retrieval.ConversationWindow = 0
	assert.Error(t, cfg.Validate())
}

func TestPineconeConfigured(t *testing.T) {
	p := PineconeConfig{}
	assert.False(t, p.Configured())
	p.APIKey = "k"
	assert.False(t, p.Configured())
	p.Host = "https://h"
	assert.True(t, p.Configured())
}
