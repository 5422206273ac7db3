package presence_test

import (
	"context"
	"testing"

	"secret-room/internal/membership"
	"secret-room/internal/presence"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_MultipleConnections(t *testing.T) {
	tracker := presence.NewTracker(membership.NewMemoryStore(clock.NewMock()))

	tr := tracker.RegisterConnection("fp-a", "conn-1", "server-1")
	assert.True(t, tr.WentOnline)
	assert.True(t, tr.EnteredRoom)

	tr = tracker.RegisterConnection("fp-a", "conn-2", "server-1")
	assert.False(t, tr.WentOnline)
	assert.False(t, tr.EnteredRoom)
	assert.Equal(t, 2, tracker.ConnectionCount("fp-a"))

	tr, ok := tracker.DeregisterConnection("conn-1")
	require.True(t, ok)
	assert.False(t, tr.WentOffline)
	assert.False(t, tr.LeftRoom)
	assert.True(t, tracker.IsOnline("fp-a"))

	tr, ok = tracker.DeregisterConnection("conn-2")
	require.True(t, ok)
	assert.True(t, tr.WentOffline)
	assert.True(t, tr.LeftRoom)
	assert.False(t, tracker.IsOnline("fp-a"))

	_, ok = tracker.DeregisterConnection("conn-2")
	assert.False(t, ok, "deregistering twice is a no-op")
}

func TestTracker_MoveConnectionBetweenRooms(t *testing.T) {
	tracker := presence.NewTracker(membership.NewMemoryStore(clock.NewMock()))

	tracker.RegisterConnection("fp-a", "conn-1", "server-1")
	require.True(t, tracker.SetTyping("fp-a", ""))

	tr := tracker.RegisterConnection("fp-a", "conn-1", "server-2")
	assert.False(t, tr.WentOnline)
	assert.True(t, tr.EnteredRoom)
	assert.Equal(t, "server-1", tr.PreviousRoomID)
	assert.True(t, tr.LeftPreviousRoom)
	assert.True(t, tr.WasTyping)

	assert.False(t, tracker.InRoom("fp-a", "server-1"))
	assert.True(t, tracker.InRoom("fp-a", "server-2"))

	// Registering the same association again changes nothing.
	tr = tracker.RegisterConnection("fp-a", "conn-1", "server-2")
	assert.Equal(t, presence.Transition{UserID: "fp-a", RoomID: "server-2"}, tr)
}

func TestTracker_Typing(t *testing.T) {
	tracker := presence.NewTracker(membership.NewMemoryStore(clock.NewMock()))
	tracker.RegisterConnection("fp-a", "conn-1", "server-1")

	assert.True(t, tracker.SetTyping("fp-a", "fp-b"))
	assert.False(t, tracker.SetTyping("fp-a", "fp-b"))
	assert.True(t, tracker.SetTyping("fp-a", "fp-c"))
	assert.True(t, tracker.ClearTyping("fp-a"))
	assert.False(t, tracker.ClearTyping("fp-a"))

	tracker.SetTyping("fp-a", "")
	tr, ok := tracker.DeregisterConnection("conn-1")
	require.True(t, ok)
	assert.True(t, tr.WasTyping, "disconnect clears typing")
}

func TestTracker_ListOnlineMembers(t *testing.T) {
	ctx := context.Background()
	members := membership.NewMemoryStore(clock.NewMock())
	tracker := presence.NewTracker(members)

	for _, fp := range []string{"fp-a", "fp-b", "fp-c"} {
		_, err := members.AddMember(ctx, "server-1", fp)
		require.NoError(t, err)
	}
	tracker.RegisterConnection("fp-a", "conn-1", "server-1")
	tracker.RegisterConnection("fp-b", "conn-2", "server-2")
	tracker.SetTyping("fp-a", "fp-c")

	list, err := tracker.ListOnlineMembers(ctx, "server-1")
	require.NoError(t, err)
	require.Len(t, list, 3)

	status := map[string]presence.MemberStatus{}
	for _, m := range list {
		status[m.UserID] = m
	}
	assert.True(t, status["fp-a"].Online)
	assert.True(t, status["fp-a"].Typing)
	assert.False(t, status["fp-b"].Online, "connected elsewhere is offline here")
	assert.False(t, status["fp-c"].Online)
}
