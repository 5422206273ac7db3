package membership_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"secret-room/internal/apperr"
	"secret-room/internal/membership"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AddMemberIsConditional(t *testing.T) {
	store := membership.NewMemoryStore(clock.NewMock())
	ctx := context.Background()

	_, err := store.AddMember(ctx, "server-1", "fp-a")
	require.NoError(t, err)

	_, err = store.AddMember(ctx, "server-1", "fp-a")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// Membership is per room.
	_, err = store.AddMember(ctx, "server-2", "fp-a")
	assert.NoError(t, err)
}

func TestMemoryStore_ConcurrentAddMember(t *testing.T) {
	store := membership.NewMemoryStore(clock.NewMock())
	ctx := context.Background()

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AddMember(ctx, "server-1", "fp-a")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if assert.ErrorIs(t, err, apperr.ErrConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)
}

func TestMemoryStore_PresenceMirror(t *testing.T) {
	clk := clock.NewMock()
	store := membership.NewMemoryStore(clk)
	ctx := context.Background()

	_, err := store.AddMember(ctx, "server-1", "fp-a")
	require.NoError(t, err)

	require.NoError(t, store.MarkOnline(ctx, "fp-a", "server-1"))
	require.NoError(t, store.SetTyping(ctx, "fp-a", true, "fp-b"))

	id, err := store.GetIdentity(ctx, "fp-a")
	require.NoError(t, err)
	assert.True(t, id.IsOnline)
	require.NotNil(t, id.CurrentRoomID)
	assert.Equal(t, "server-1", *id.CurrentRoomID)
	assert.True(t, id.Typing)
	require.NotNil(t, id.TypingTarget)
	assert.Equal(t, "fp-b", *id.TypingTarget)

	clk.Add(5 * time.Minute)
	require.NoError(t, store.MarkOffline(ctx, "fp-a"))

	id, err = store.GetIdentity(ctx, "fp-a")
	require.NoError(t, err)
	assert.False(t, id.IsOnline)
	assert.Nil(t, id.CurrentRoomID)
	assert.False(t, id.Typing)
	assert.Equal(t, clk.Now().UTC(), id.LastSeenAt)

	members, err := store.ListMembers(ctx, "server-1")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "fp-a", members[0].UserID)
	assert.False(t, members[0].IsOnline)
}

func TestMemoryStore_DeleteByRoom(t *testing.T) {
	store := membership.NewMemoryStore(clock.NewMock())
	ctx := context.Background()

	_, err := store.AddMember(ctx, "server-1", "fp-a")
	require.NoError(t, err)
	require.NoError(t, store.DeleteByRoom(ctx, "server-1"))

	ok, err := store.IsMember(ctx, "server-1", "fp-a")
	require.NoError(t, err)
	assert.False(t, ok)

	// Identities are soft state and survive room deletion.
	_, err = store.GetIdentity(ctx, "fp-a")
	assert.NoError(t, err)

	_, err = store.GetIdentity(ctx, "fp-unknown")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
