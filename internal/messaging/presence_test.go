package messaging

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imadgeboyega/kiekky-chat/internal/auth"
)

const testGrace = 30 * time.Millisecond

func newTestTracker() (*PresenceTracker, *MemoryLastSeenStore) {
	store := NewMemoryLastSeenStore()
	return NewPresenceTracker(testGrace, store, zap.NewNop()), store
}

func TestPresenceRegisterMultipleHandles(t *testing.T) {
	p, _ := newTestTracker()
	defer p.Close()
	alice := &auth.Profile{ID: 1, Name: "Alice"}

	assert.True(t, p.Register(alice, "h1"))
	assert.False(t, p.Register(alice, "h2"))
	assert.Equal(t, []string{"h1", "h2"}, p.Lookup(1))
	assert.True(t, p.IsOnline(1))

	assert.False(t, p.Deregister(1, "h1"))
	assert.Equal(t, []string{"h2"}, p.Lookup(1))
	assert.True(t, p.IsOnline(1))

	assert.False(t, p.Deregister(1, "unknown"))
	assert.False(t, p.Deregister(99, "h2"))
}

func TestPresenceOfflineAfterGrace(t *testing.T) {
	p, store := newTestTracker()
	defer p.Close()

	var offline atomic.Int64
	p.OnOffline(func(userID int64, profile *auth.Profile, lastSeen time.Time) {
		offline.Store(userID)
	})

	p.Register(&auth.Profile{ID: 7}, "h1")
	assert.True(t, p.Deregister(7, "h1"))

	// still listed while the grace window is open
	assert.True(t, p.IsOnline(7))
	assert.Empty(t, p.Lookup(7))

	assert.Eventually(t, func() bool { return offline.Load() == 7 }, time.Second, 5*time.Millisecond)
	assert.False(t, p.IsOnline(7))

	_, found, err := store.GetLastSeen(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, found)

	at, found, err := p.LastSeen(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, at.IsZero())
}

func TestPresenceReconnectInsideGraceNeverGoesOffline(t *testing.T) {
	p, _ := newTestTracker()
	defer p.Close()

	var calls atomic.Int32
	p.OnOffline(func(int64, *auth.Profile, time.Time) { calls.Add(1) })

	user := &auth.Profile{ID: 3}
	p.Register(user, "h1")
	p.Deregister(3, "h1")
	assert.False(t, p.Register(user, "h2"), "reconnect inside the grace window is not a new arrival")

	time.Sleep(3 * testGrace)
	assert.Equal(t, int32(0), calls.Load())
	assert.True(t, p.IsOnline(3))
	assert.Equal(t, []string{"h2"}, p.Lookup(3))
}

func TestPresenceStaleTimerIgnored(t *testing.T) {
	p, _ := newTestTracker()
	defer p.Close()

	var calls atomic.Int32
	p.OnOffline(func(int64, *auth.Profile, time.Time) { calls.Add(1) })

	user := &auth.Profile{ID: 4}
	p.Register(user, "h1")
	p.Deregister(4, "h1")

	// the first timer's generation is now stale
	p.Register(user, "h2")
	p.expire(4, 1)
	assert.True(t, p.IsOnline(4))

	p.Deregister(4, "h2")
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(2 * testGrace)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPresenceOnlineUsersSorted(t *testing.T) {
	p, _ := newTestTracker()
	defer p.Close()

	for _, id := range []int64{5, 2, 9} {
		p.Register(&auth.Profile{ID: id}, "h"+string(rune('0'+id)))
	}
	p.Register(&auth.Profile{ID: 2}, "extra")

	users := p.OnlineUsers()
	require.Len(t, users, 3)
	assert.Equal(t, int64(2), users[0].UserID)
	assert.Equal(t, 2, users[0].Connections)
	assert.Equal(t, int64(5), users[1].UserID)
	assert.Equal(t, int64(9), users[2].UserID)
}

func TestPresenceCloseStopsTimers(t *testing.T) {
	p, _ := newTestTracker()

	var calls atomic.Int32
	p.OnOffline(func(int64, *auth.Profile, time.Time) { calls.Add(1) })

	p.Register(&auth.Profile{ID: 1}, "h1")
	p.Deregister(1, "h1")
	p.Close()

	time.Sleep(3 * testGrace)
	assert.Equal(t, int32(0), calls.Load())
}

func TestPresenceConcurrentRegisterDeregister(t *testing.T) {
	p, _ := newTestTracker()
	defer p.Close()
	user := &auth.Profile{ID: 1}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handle := "h" + string(rune('A'+i))
			p.Register(user, handle)
			p.Deregister(1, handle)
		}(i)
	}
	wg.Wait()

	p.Register(user, "final")
	assert.Equal(t, []string{"final"}, p.Lookup(1))
}

func TestLastSeenUnknownUser(t *testing.T) {
	p, _ := newTestTracker()
	defer p.Close()

	_, found, err := p.LastSeen(context.Background(), 123)
	require.NoError(t, err)
	assert.False(t, found)
}
