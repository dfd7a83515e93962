package routing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()

	assert.True(t, reg.Supports(StoreVector, CapVectorSimilarity, CapFullText))
	assert.True(t, reg.Supports(StoreGraph, CapGraphTraversal, CapCommunityDetection))
	assert.True(t, reg.Supports(StoreGraph, CapEntityResolution))
	assert.False(t, reg.Supports(StoreVector, CapGraphTraversal))
	assert.False(t, reg.Supports(StoreGraph, CapVectorSimilarity))
}

func TestParseRegistry_OverridesOnlyNamedStores(t *testing.T) {
	reg, err := ParseRegistry([]byte(`
stores:
  graph: [graph_traversal, vector_similarity]
`))
	require.NoError(t, err)

	assert.True(t, reg.Supports(StoreGraph, CapVectorSimilarity))
	assert.False(t, reg.Supports(StoreGraph, CapCommunityDetection))
	assert.Equal(t, DefaultRegistry().Capabilities(StoreVector), reg.Capabilities(StoreVector))
}

func TestParseRegistry_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown store", "stores:\n  redis: [full_text]\n"},
		{"unknown capability", "stores:\n  graph: [telepathy]\n"},
		{"bad yaml", "stores: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRegistry([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stores:\n  vector: [vector_similarity]\n"), 0o600))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.False(t, reg.Supports(StoreVector, CapFullText))

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStrategyValid(t *testing.T) {
	for _, s := range Strategies {
		assert.True(t, s.Valid())
	}
	assert.False(t, Strategy("graph_then_guess").Valid())
}
