package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubRooms(t *testing.T) {
	h := NewHub(zap.NewNop())
	a, b, c := newFakeConn("a", 1), newFakeConn("b", 2), newFakeConn("c", 3)
	h.Add(a)
	h.Add(b)
	h.Add(c)

	room := conversationRoom(10)
	assert.Equal(t, "conversation:10", room)
	require.True(t, h.Join(room, "a"))
	require.True(t, h.Join(room, "b"))
	assert.False(t, h.Join(room, "missing"))

	assert.True(t, h.InRoom(room, "a"))
	assert.False(t, h.InRoom(room, "c"))
	assert.ElementsMatch(t, []string{"a", "b"}, h.Members(room))

	sent := h.Broadcast(room, EventMessageNew, map[string]string{"k": "v"}, "a")
	assert.Equal(t, 1, sent)
	assert.Empty(t, a.types(t))
	assert.Equal(t, []string{EventMessageNew}, b.types(t))
	assert.Empty(t, c.types(t))

	assert.True(t, h.Leave(room, "b"))
	assert.False(t, h.Leave(room, "b"))
	assert.Equal(t, []string{"a"}, h.Members(room))
}

func TestHubLeaveMatchingAndRemove(t *testing.T) {
	h := NewHub(zap.NewNop())
	a := newFakeConn("a", 1)
	h.Add(a)

	h.Join(conversationRoom(1), "a")
	h.Join(conversationRoom(2), "a")
	h.Join("call:xyz", "a")

	left := h.LeaveMatching("a", conversationRoomPrefix)
	assert.ElementsMatch(t, []string{conversationRoom(1), conversationRoom(2)}, left)
	assert.True(t, h.InRoom("call:xyz", "a"))

	rooms := h.Remove("a")
	assert.Equal(t, []string{"call:xyz"}, rooms)
	assert.Equal(t, 0, h.Count())
	assert.Empty(t, h.Members("call:xyz"))
}

func TestHubBroadcastAllAndSendTo(t *testing.T) {
	h := NewHub(zap.NewNop())
	a, b := newFakeConn("a", 1), newFakeConn("b", 2)
	h.Add(a)
	h.Add(b)

	assert.Equal(t, 1, h.BroadcastAll(EventUserOnline, UserPresencePayload{UserID: 1}, "a"))
	assert.Equal(t, []string{EventUserOnline}, b.types(t))

	assert.Equal(t, 1, h.SendTo([]string{"a", "gone"}, EventUsersOnline, OnlineUsersPayload{}))
	assert.Equal(t, []string{EventUsersOnline}, a.types(t))

	events := a.events(t)
	assert.NotEmpty(t, events[0].Timestamp)
}

func TestHubClosesSlowConsumer(t *testing.T) {
	h := NewHub(zap.NewNop())
	slow := newFakeConn("slow", 1)
	slow.full = true
	h.Add(slow)

	assert.Equal(t, 0, h.SendTo([]string{"slow"}, EventError, ErrorPayload{}))
	assert.True(t, slow.isClosed())
}

func TestHubShutdownClosesAll(t *testing.T) {
	h := NewHub(zap.NewNop())
	a, b := newFakeConn("a", 1), newFakeConn("b", 2)
	h.Add(a)
	h.Add(b)

	h.Shutdown()
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
}
