package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-chat/internal/config"
	"github.com/markdave123-py/contexta-chat/internal/logger"
)

func TestEmbeddedWorker(t *testing.T) {
	assert.True(t, embeddedWorker(&config.Config{VectorBackend: "memory"}))
	assert.True(t, embeddedWorker(&config.Config{VectorBackend: "MEMORY"}))
	assert.False(t, embeddedWorker(&config.Config{VectorBackend: "pgvector"}))
	assert.False(t, embeddedWorker(&config.Config{}))
}

func TestNewWorkerApp_RefusesInProcessIndex(t *testing.T) {
	w, err := NewWorkerApp(context.Background(), &config.Config{VectorBackend: "memory"}, logger.Discard())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errEmbeddedOnly))
	assert.Nil(t, w)
}
