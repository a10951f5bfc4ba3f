package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/contexta")

	cfg := LoadConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 5, cfg.JobMaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.JobBackoffBase)
	assert.InDelta(t, 0.3, cfg.JobBackoffJitter, 1e-9)
	assert.Equal(t, 2000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, 3072, cfg.EmbedDim)
	assert.Equal(t, 100, cfg.UpsertBatchSize)
	assert.Equal(t, 5, cfg.MaxDocumentsPerChat)
	assert.Equal(t, "pgvector", cfg.VectorBackend)
	assert.Equal(t, 24*time.Hour, cfg.AIRateWindow)
}

func TestLoadConfigOverridesAndFallbacks(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/contexta")
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("CHUNK_OVERLAP", "600")
	t.Setenv("JOB_MAX_ATTEMPTS", "0")
	t.Setenv("RETRIEVAL_TOP_K", "many")
	t.Setenv("JOB_TIMEOUT", "90s")
	t.Setenv("JOB_BACKOFF_JITTER", "abc")

	cfg := LoadConfig()

	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap, "overlap at or above the size is reduced")
	assert.Equal(t, 1, cfg.JobMaxAttempts)
	assert.Equal(t, 3, cfg.RetrievalTopK)
	assert.Equal(t, 90*time.Second, cfg.JobTimeout)
	assert.InDelta(t, 0.3, cfg.JobBackoffJitter, 1e-9)
}

func TestRedisOptions(t *testing.T) {
	cfg := &Config{RedisURL: "localhost:6379", RedisDB: 2}
	assert.False(t, cfg.isRedisURI())
	_, err := cfg.AsynqRedisOpt()
	require.NoError(t, err)

	cfg.RedisURL = "redis://:secret@cache:6380/1"
	assert.True(t, cfg.isRedisURI())
	_, err = cfg.AsynqRedisOpt()
	require.NoError(t, err)
}
