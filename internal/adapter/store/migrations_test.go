package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recall/config"
)

func TestCheckRebuild_FreshStore(t *testing.T) {
	st := newTestStore(t)

	rebuild, _, err := st.CheckRebuild(config.DefaultConfig())
	require.NoError(t, err)
	assert.False(t, rebuild, "a fresh store has nothing to rebuild")
}

func TestCheckRebuild_AfterStamp(t *testing.T) {
	st := newTestStore(t)
	cfg := config.DefaultConfig()

	require.NoError(t, st.StampSchema(cfg))
	rebuild, _, err := st.CheckRebuild(cfg)
	require.NoError(t, err)
	assert.False(t, rebuild)
}

// Changing chunking or scoring parameters invalidates every chunk
// boundary, so the whole index must be rebuilt.
func TestCheckRebuild_ConfigChanged(t *testing.T) {
	st := newTestStore(t)

	cfg := config.DefaultConfig()
	require.NoError(t, st.StampSchema(cfg))

	changed := config.DefaultConfig()
	changed.Chunking.MaxChars = 600
	rebuild, reason, err := st.CheckRebuild(changed)
	require.NoError(t, err)
	assert.True(t, rebuild)
	assert.NotEmpty(t, reason)
}

func TestCheckRebuild_NewerSchema(t *testing.T) {
	st := newTestStore(t)
	cfg := config.DefaultConfig()

	require.NoError(t, st.SetSchemaInfo(&SchemaInfo{
		Version:    CurrentSchemaVersion + 1,
		ConfigHash: ComputeConfigHash(cfg),
	}))
	rebuild, _, err := st.CheckRebuild(cfg)
	require.NoError(t, err)
	assert.True(t, rebuild)
}

func TestComputeConfigHash_IgnoresRetrievalTunables(t *testing.T) {
	a := config.DefaultConfig()
	b := config.DefaultConfig()

	// Query-time knobs do not affect what is stored in the index.
	b.Fusion.BM25Weight = 0.9
	b.BM25.TopK = 200
	b.Embedding.MinScore = 0.7
	assert.Equal(t, ComputeConfigHash(a), ComputeConfigHash(b))

	// Index-time knobs do.
	b.BM25.Stemming = !a.BM25.Stemming
	assert.NotEqual(t, ComputeConfigHash(a), ComputeConfigHash(b))
}
