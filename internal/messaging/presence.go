// internal/messaging/presence.go

package messaging

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/imadgeboyega/kiekky-chat/internal/auth"
)

const lastSeenWriteTimeout = 3 * time.Second

// OfflineHandler is called once a user's grace window closes with no
// connection having come back
type OfflineHandler func(userID int64, profile *auth.Profile, lastSeen time.Time)

// PresenceEntry is a snapshot of one online user
type PresenceEntry struct {
	UserID      int64
	Profile     *auth.Profile
	LastSeen    time.Time
	Connections int
}

type presence struct {
	profile  *auth.Profile
	lastSeen time.Time
	handles  map[string]struct{}
	timer    *time.Timer
	// generation is bumped whenever a pending offline timer is replaced or
	// cancelled, so a timer that already fired can tell it is stale
	generation uint64
}

// PresenceTracker maps users to their live connection handles. A user
// whose last connection closes stays listed until the grace period
// passes without a reconnect.
type PresenceTracker struct {
	mu        sync.Mutex
	users     map[int64]*presence
	grace     time.Duration
	store     LastSeenStore
	onOffline OfflineHandler
	closed    bool
	now       func() time.Time
	logger    *zap.Logger
}

func NewPresenceTracker(grace time.Duration, store LastSeenStore, logger *zap.Logger) *PresenceTracker {
	if store == nil {
		store = NewMemoryLastSeenStore()
	}
	return &PresenceTracker{
		users:  make(map[int64]*presence),
		grace:  grace,
		store:  store,
		now:    time.Now,
		logger: logger.Named("presence"),
	}
}

// OnOffline sets the handler run when a user goes offline
func (p *PresenceTracker) OnOffline(handler OfflineHandler) {
	p.mu.Lock()
	p.onOffline = handler
	p.mu.Unlock()
}

// Register adds a live handle for the user. It returns true when the user
// was not online before, false for additional connections and for
// reconnects inside the grace window.
func (p *PresenceTracker) Register(profile *auth.Profile, handle string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.users[profile.ID]
	if !ok {
		entry = &presence{handles: make(map[string]struct{})}
		p.users[profile.ID] = entry
	}
	if entry.timer != nil {
		entry.timer.Stop()
		entry.timer = nil
		entry.generation++
	}

	entry.profile = profile
	entry.lastSeen = p.now()
	entry.handles[handle] = struct{}{}

	SetOnlineUsers(len(p.users))
	return !ok
}

// Deregister removes a handle. It returns true when that was the user's
// last live handle, in which case the offline timer is armed.
func (p *PresenceTracker) Deregister(userID int64, handle string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.users[userID]
	if !ok {
		return false
	}
	if _, ok := entry.handles[handle]; !ok {
		return false
	}
	delete(entry.handles, handle)
	entry.lastSeen = p.now()

	if len(entry.handles) > 0 || p.closed {
		return len(entry.handles) == 0
	}

	entry.generation++
	gen := entry.generation
	entry.timer = time.AfterFunc(p.grace, func() { p.expire(userID, gen) })
	return true
}

func (p *PresenceTracker) expire(userID int64, gen uint64) {
	p.mu.Lock()
	entry, ok := p.users[userID]
	if !ok || entry.generation != gen || len(entry.handles) > 0 || p.closed {
		p.mu.Unlock()
		return
	}
	delete(p.users, userID)
	handler := p.onOffline
	profile, lastSeen := entry.profile, entry.lastSeen
	SetOnlineUsers(len(p.users))
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), lastSeenWriteTimeout)
	defer cancel()
	if err := p.store.SetLastSeen(ctx, userID, lastSeen); err != nil {
		p.logger.Warn("failed to store last seen", zap.Int64("user_id", userID), zap.Error(err))
	}

	p.logger.Debug("user offline", zap.Int64("user_id", userID))
	if handler != nil {
		handler(userID, profile, lastSeen)
	}
}

// Lookup returns the user's live handles
func (p *PresenceTracker) Lookup(userID int64) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.users[userID]
	if !ok {
		return nil
	}
	handles := make([]string, 0, len(entry.handles))
	for h := range entry.handles {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	return handles
}

// IsOnline is true for connected users and for users inside the grace window
func (p *PresenceTracker) IsOnline(userID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.users[userID]
	return ok
}

// OnlineUsers lists online users ordered by id
func (p *PresenceTracker) OnlineUsers() []PresenceEntry {
	p.mu.Lock()
	out := make([]PresenceEntry, 0, len(p.users))
	for id, entry := range p.users {
		out = append(out, PresenceEntry{
			UserID:      id,
			Profile:     entry.profile,
			LastSeen:    entry.lastSeen,
			Connections: len(entry.handles),
		})
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// LastSeen returns when the user was last seen. Online users report their
// latest connection change; offline users fall back to the store.
func (p *PresenceTracker) LastSeen(ctx context.Context, userID int64) (time.Time, bool, error) {
	p.mu.Lock()
	entry, ok := p.users[userID]
	var at time.Time
	if ok {
		at = entry.lastSeen
	}
	p.mu.Unlock()

	if ok {
		return at, true, nil
	}
	return p.store.GetLastSeen(ctx, userID)
}

// Close stops every pending offline timer. Nothing fires afterwards.
func (p *PresenceTracker) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for _, entry := range p.users {
		if entry.timer != nil {
			entry.timer.Stop()
			entry.timer = nil
		}
	}
}
