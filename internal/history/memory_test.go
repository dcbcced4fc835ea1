package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAppendAndList(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(1024)
	ctx := context.Background()

	first := Turn{ID: "t1", SessionID: "s1", Kind: "plain", UserText: "hello", Reply: "hi", Language: "en", CreatedAt: time.Now().UTC()}
	second := Turn{ID: "t2", SessionID: "s1", Kind: "plain", UserText: "more", Reply: "sure", Language: "en", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))

	turns, err := store.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "t1", turns[0].ID)
	assert.Equal(t, "t2", turns[1].ID)

	other, err := store.List(ctx, "s2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemoryStoreBudget(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(10)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, Turn{ID: "t1", SessionID: "s1", UserText: "12345", Reply: "1234"}))
	err := store.Append(ctx, Turn{ID: "t2", SessionID: "s1", UserText: "12", Reply: ""})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionFull))

	// Other sessions have their own budget.
	require.NoError(t, store.Append(ctx, Turn{ID: "t3", SessionID: "s2", UserText: "12345", Reply: "1234"}))
}

func TestMemoryStoreClear(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(1024)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, Turn{ID: "t1", SessionID: "s1", UserText: "hello", Reply: "hi"}))
	require.NoError(t, store.Clear(ctx, "s1"))

	turns, err := store.List(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)

	// Clearing frees the budget.
	require.NoError(t, store.Append(ctx, Turn{ID: "t2", SessionID: "s1", UserText: "hello", Reply: "hi"}))
}
