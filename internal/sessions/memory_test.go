package sessions

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencrabs/opencrabs/pkg/models"
)

func textBlocks(text string) models.Blocks {
	return models.Blocks{models.TextBlock{Text: text}}
}

func TestMemoryStoreSessionLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "first")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	got, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Title)

	require.NoError(t, store.UpdateTitle(ctx, sess.ID, "renamed"))
	require.NoError(t, store.UpdateModel(ctx, sess.ID, "anthropic", "claude-sonnet-4-5"))
	got, err = store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Equal(t, "claude-sonnet-4-5", got.Model)
	assert.Equal(t, "anthropic", got.Provider)

	require.NoError(t, store.DeleteSession(ctx, sess.ID))
	_, err = store.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreUnknownSessionErrors(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.AppendMessage(ctx, "missing", models.RoleUser, textBlocks("hi"), 0, 0)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.DeleteSession(ctx, "missing"), ErrNotFound)
	assert.ErrorIs(t, store.UpdateTitle(ctx, "missing", "x"), ErrNotFound)
}

func TestMemoryStoreSequencesAreContiguous(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	sess, err := store.CreateSession(ctx, "seq")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := store.AppendMessage(ctx, sess.ID, models.RoleUser, textBlocks("m"), 0, 0)
		require.NoError(t, err)
	}

	msgs, err := store.ListMessages(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	for i, m := range msgs {
		assert.Equal(t, i+1, m.Sequence, "sequence must be dense from 1 (I3)")
	}
}

func TestMemoryStoreConcurrentAppendsStayContiguous(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	sess, err := store.CreateSession(ctx, "race")
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := store.AppendMessage(ctx, sess.ID, models.RoleUser, textBlocks("x"), 0, 0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs, err := store.ListMessages(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, writers)
	seen := map[int]bool{}
	for _, m := range msgs {
		assert.False(t, seen[m.Sequence], "duplicate sequence %d", m.Sequence)
		seen[m.Sequence] = true
	}
	for i := 1; i <= writers; i++ {
		assert.True(t, seen[i], "missing sequence %d (I8)", i)
	}
}

func TestMemoryStoreListMessagesHonoursHardCap(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	sess, err := store.CreateSession(ctx, "cap")
	require.NoError(t, err)

	for i := 0; i < HardHistoryCap+25; i++ {
		_, err := store.AppendMessage(ctx, sess.ID, models.RoleUser, textBlocks("m"), 0, 0)
		require.NoError(t, err)
	}

	msgs, err := store.ListMessages(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, HardHistoryCap)
	// The cap keeps the most recent messages, oldest-first in the result.
	assert.Equal(t, 26, msgs[0].Sequence)
	assert.Equal(t, HardHistoryCap+25, msgs[len(msgs)-1].Sequence)

	limited, err := store.ListMessages(ctx, sess.ID, 10)
	require.NoError(t, err)
	assert.Len(t, limited, 10)
}

func TestMemoryStoreGetMostRecentAndList(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	a, err := store.CreateSession(ctx, "a")
	require.NoError(t, err)
	b, err := store.CreateSession(ctx, "b")
	require.NoError(t, err)

	// Touch a so it becomes the most recently active.
	_, err = store.AppendMessage(ctx, a.ID, models.RoleUser, textBlocks("ping"), 0, 0)
	require.NoError(t, err)

	recent, err := store.GetMostRecent(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ID, recent.ID)

	all, err := store.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	ids := []string{all[0].ID, all[1].ID}
	assert.Contains(t, ids, a.ID)
	assert.Contains(t, ids, b.ID)

	one, err := store.List(ctx, ListOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, a.ID, one[0].ID)
}
