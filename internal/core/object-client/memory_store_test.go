package objectclient

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-chat/internal/core"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.UploadFile(ctx, "chats/c1/d1/a.pdf", strings.NewReader("%PDF-1.4"), "application/pdf"))
	assert.True(t, s.Has("chats/c1/d1/a.pdf"))

	b, err := s.GetFile(ctx, "chats/c1/d1/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(b))

	require.NoError(t, s.DeleteFile(ctx, "chats/c1/d1/a.pdf"))
	assert.False(t, s.Has("chats/c1/d1/a.pdf"))
}

func TestMemoryStore_MissingKeyIsNotFound(t *testing.T) {
	_, err := NewMemoryStore().GetFile(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}
