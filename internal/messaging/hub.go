// internal/messaging/hub.go

package messaging

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/imadgeboyega/kiekky-chat/internal/common/utils"
)

const conversationRoomPrefix = "conversation:"

// Connection is one live realtime transport
type Connection interface {
	ID() string
	UserID() int64
	// Send queues an encoded event. It returns false when the connection
	// cannot accept more output.
	Send(payload []byte) bool
	Close()
}

// Hub tracks live connections and the broadcast groups (rooms) they
// belong to. Join and Leave take effect before they return.
type Hub struct {
	mu          sync.RWMutex
	conns       map[string]Connection
	rooms       map[string]map[string]struct{}
	memberships map[string]map[string]struct{}
	logger      *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		conns:       make(map[string]Connection),
		rooms:       make(map[string]map[string]struct{}),
		memberships: make(map[string]map[string]struct{}),
		logger:      logger.Named("hub"),
	}
}

func conversationRoom(conversationID int64) string {
	return conversationRoomPrefix + strconv.FormatInt(conversationID, 10)
}

// Add registers a connection
func (h *Hub) Add(conn Connection) {
	h.mu.Lock()
	h.conns[conn.ID()] = conn
	h.memberships[conn.ID()] = make(map[string]struct{})
	total := len(h.conns)
	h.mu.Unlock()

	SetActiveConnections(total)
	h.logger.Debug("connection added",
		zap.String("handle", conn.ID()),
		zap.Int64("user_id", conn.UserID()),
		zap.Int("total", total))
}

// Remove drops a connection from the hub and from every room. It returns
// the rooms the connection was in.
func (h *Hub) Remove(handle string) []string {
	h.mu.Lock()
	rooms := h.leaveLocked(handle, "")
	delete(h.memberships, handle)
	delete(h.conns, handle)
	total := len(h.conns)
	h.mu.Unlock()

	SetActiveConnections(total)
	return rooms
}

// Join adds the connection to room. Unknown handles are ignored.
func (h *Hub) Join(room, handle string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined, ok := h.memberships[handle]
	if !ok {
		return false
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[room] = members
	}
	members[handle] = struct{}{}
	joined[room] = struct{}{}
	return true
}

// Leave removes the connection from room, reporting whether it was a member
func (h *Hub) Leave(room, handle string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.memberships[handle][room]; !ok {
		return false
	}
	h.removeMemberLocked(room, handle)
	return true
}

// LeaveMatching removes the connection from every room whose name starts
// with prefix and returns those rooms
func (h *Hub) LeaveMatching(handle, prefix string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(handle, prefix)
}

func (h *Hub) leaveLocked(handle, prefix string) []string {
	var left []string
	for room := range h.memberships[handle] {
		if strings.HasPrefix(room, prefix) {
			left = append(left, room)
		}
	}
	for _, room := range left {
		h.removeMemberLocked(room, handle)
	}
	return left
}

func (h *Hub) removeMemberLocked(room, handle string) {
	delete(h.memberships[handle], room)
	if members, ok := h.rooms[room]; ok {
		delete(members, handle)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// InRoom reports whether handle is a member of room
func (h *Hub) InRoom(room, handle string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][handle]
	return ok
}

// Members lists the handles in room
func (h *Hub) Members(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.rooms[room]))
	for handle := range h.rooms[room] {
		out = append(out, handle)
	}
	return out
}

// Broadcast delivers an event to every member of room except exclude
func (h *Hub) Broadcast(room, eventType string, data interface{}, exclude string) int {
	h.mu.RLock()
	targets := make([]Connection, 0, len(h.rooms[room]))
	for handle := range h.rooms[room] {
		if handle != exclude {
			targets = append(targets, h.conns[handle])
		}
	}
	h.mu.RUnlock()

	return h.deliver(targets, eventType, data)
}

// BroadcastAll delivers an event to every connection except exclude
func (h *Hub) BroadcastAll(eventType string, data interface{}, exclude string) int {
	h.mu.RLock()
	targets := make([]Connection, 0, len(h.conns))
	for handle, conn := range h.conns {
		if handle != exclude {
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()

	return h.deliver(targets, eventType, data)
}

// SendTo delivers an event to the given handles
func (h *Hub) SendTo(handles []string, eventType string, data interface{}) int {
	h.mu.RLock()
	targets := make([]Connection, 0, len(handles))
	for _, handle := range handles {
		if conn, ok := h.conns[handle]; ok {
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()

	return h.deliver(targets, eventType, data)
}

// Count returns the number of live connections
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Shutdown closes every connection
func (h *Hub) Shutdown() {
	h.mu.RLock()
	conns := make([]Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.Close()
	}
}

func (h *Hub) deliver(targets []Connection, eventType string, data interface{}) int {
	if len(targets) == 0 {
		return 0
	}

	payload, err := encodeEvent(eventType, data)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("event", eventType), zap.Error(err))
		return 0
	}

	sent := 0
	for _, conn := range targets {
		if conn.Send(payload) {
			sent++
			continue
		}
		// slow consumer; closing it ends its read loop which deregisters it
		h.logger.Warn("send buffer full, closing connection",
			zap.String("handle", conn.ID()),
			zap.Int64("user_id", conn.UserID()))
		conn.Close()
	}
	return sent
}

func encodeEvent(eventType string, data interface{}) ([]byte, error) {
	return json.Marshal(OutboundEvent{
		Type:      eventType,
		Data:      data,
		Timestamp: utils.Now(),
	})
}
