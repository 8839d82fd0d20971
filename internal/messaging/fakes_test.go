package messaging

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/imadgeboyega/kiekky-chat/internal/auth"
	"github.com/imadgeboyega/kiekky-chat/internal/friends"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type memoryState struct {
	conversations map[int64]Conversation
	messages      map[int64]Message
	reads         map[int64][]ReadReceipt
	tokens        map[string]PushToken
	nextConv      int64
	nextMsg       int64
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		conversations: make(map[int64]Conversation, len(s.conversations)),
		messages:      make(map[int64]Message, len(s.messages)),
		reads:         make(map[int64][]ReadReceipt, len(s.reads)),
		tokens:        make(map[string]PushToken, len(s.tokens)),
		nextConv:      s.nextConv,
		nextMsg:       s.nextMsg,
	}
	for id, c := range s.conversations {
		c.ParticipantIDs = append(c.ParticipantIDs[:0:0], c.ParticipantIDs...)
		out.conversations[id] = c
	}
	for id, m := range s.messages {
		out.messages[id] = m
	}
	for id, r := range s.reads {
		out.reads[id] = append([]ReadReceipt(nil), r...)
	}
	for k, t := range s.tokens {
		out.tokens[k] = t
	}
	return out
}

// memoryRepository implements Repository in memory. WithTx restores the
// previous state when fn fails.
type memoryRepository struct {
	mu    sync.Mutex
	state *memoryState

	// failActivity makes UpdateConversationActivity fail
	failActivity error
	// betweenMisses makes the next N FindConversationBetween calls miss,
	// simulating a concurrent create
	betweenMisses int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{state: &memoryState{
		conversations: make(map[int64]Conversation),
		messages:      make(map[int64]Message),
		reads:         make(map[int64][]ReadReceipt),
		tokens:        make(map[string]PushToken),
	}}
}

func (r *memoryRepository) WithTx(ctx context.Context, fn func(repo Repository) error) error {
	r.mu.Lock()
	snapshot := r.state.clone()
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.state = snapshot
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *memoryRepository) FindConversationByID(ctx context.Context, id int64) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.state.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return copyConversation(c), nil
}

func (r *memoryRepository) FindConversationBetween(ctx context.Context, a, b int64) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.betweenMisses > 0 {
		r.betweenMisses--
		return nil, ErrConversationNotFound
	}
	return r.findBetweenLocked(a, b)
}

func (r *memoryRepository) findBetweenLocked(a, b int64) (*Conversation, error) {
	for _, c := range r.state.conversations {
		if c.Type == ConversationPrivate && c.HasParticipant(a) && c.HasParticipant(b) {
			return copyConversation(c), nil
		}
	}
	return nil, ErrConversationNotFound
}

func (r *memoryRepository) FindConversationsForUser(ctx context.Context, userID int64) ([]*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Conversation
	for _, c := range r.state.conversations {
		if c.IsArchived || !c.HasParticipant(userID) {
			continue
		}
		conv := copyConversation(c)
		if c.LastMessageID != nil {
			if m, ok := r.state.messages[*c.LastMessageID]; ok {
				conv.LastMessage = &MessagePreview{
					ID:        m.ID,
					Content:   m.Content,
					Type:      m.Type,
					SenderID:  m.SenderID,
					CreatedAt: m.CreatedAt,
				}
			}
		}
		out = append(out, conv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out, nil
}

func (r *memoryRepository) CreatePrivateConversation(ctx context.Context, a, b int64) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.findBetweenLocked(a, b); err == nil {
		return nil, ErrDuplicateConversation
	}

	r.state.nextConv++
	c := Conversation{
		ID:             r.state.nextConv,
		Type:           ConversationPrivate,
		ParticipantIDs: []int64{a, b},
		LastActivity:   baseTime,
		CreatedAt:      baseTime,
		UpdatedAt:      baseTime,
	}
	r.state.conversations[c.ID] = c
	return copyConversation(c), nil
}

func (r *memoryRepository) UpdateConversationActivity(ctx context.Context, id int64, lastMessageID *int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failActivity != nil {
		return r.failActivity
	}
	c, ok := r.state.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	if lastMessageID != nil {
		v := *lastMessageID
		c.LastMessageID = &v
	} else {
		c.LastMessageID = nil
	}
	if at.After(c.LastActivity) {
		c.LastActivity = at
	}
	r.state.conversations[id] = c
	return nil
}

func (r *memoryRepository) SetConversationArchived(ctx context.Context, id int64, archived bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.state.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	c.IsArchived = archived
	r.state.conversations[id] = c
	return nil
}

func (r *memoryRepository) CreateMessage(ctx context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.nextMsg++
	msg.ID = r.state.nextMsg
	msg.CreatedAt = baseTime.Add(time.Duration(msg.ID) * time.Second)
	msg.UpdatedAt = msg.CreatedAt
	if msg.ReadBy == nil {
		msg.ReadBy = []ReadReceipt{}
	}
	r.state.messages[msg.ID] = *msg
	return nil
}

func (r *memoryRepository) GetMessage(ctx context.Context, id int64) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.state.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	return r.withReadsLocked(m), nil
}

func (r *memoryRepository) ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	live := r.liveLocked(conversationID)
	if offset >= len(live) {
		return []*Message{}, nil
	}
	end := offset + limit
	if end > len(live) {
		end = len(live)
	}
	return live[offset:end], nil
}

// liveLocked returns non-deleted messages newest first
func (r *memoryRepository) liveLocked(conversationID int64) []*Message {
	var out []*Message
	for _, m := range r.state.messages {
		if m.ConversationID == conversationID && !m.IsDeleted {
			out = append(out, r.withReadsLocked(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (r *memoryRepository) CountMessages(ctx context.Context, conversationID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.liveLocked(conversationID)), nil
}

func (r *memoryRepository) MarkMessageRead(ctx context.Context, messageID, userID int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rr := range r.state.reads[messageID] {
		if rr.UserID == userID {
			return false, nil
		}
	}
	r.state.reads[messageID] = append(r.state.reads[messageID], ReadReceipt{MessageID: messageID, UserID: userID, ReadAt: at})
	return true, nil
}

func (r *memoryRepository) CountUnread(ctx context.Context, conversationID, userID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.liveLocked(conversationID) {
		if m.SenderID != userID && !m.IsReadBy(userID) {
			n++
		}
	}
	return n, nil
}

func (r *memoryRepository) DeleteConversationMessages(ctx context.Context, conversationID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, m := range r.state.messages {
		if m.ConversationID == conversationID {
			delete(r.state.messages, id)
			delete(r.state.reads, id)
			n++
		}
	}
	return n, nil
}

func (r *memoryRepository) UpdateMessageContent(ctx context.Context, id int64, content string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.state.messages[id]
	if !ok || m.IsDeleted {
		return ErrMessageNotFound
	}
	m.Content = content
	m.IsEdited = true
	m.EditedAt = &at
	r.state.messages[id] = m
	return nil
}

func (r *memoryRepository) SoftDeleteMessage(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.state.messages[id]
	if !ok || m.IsDeleted {
		return ErrMessageNotFound
	}
	m.IsDeleted = true
	m.DeletedAt = &at
	r.state.messages[id] = m
	return nil
}

func (r *memoryRepository) LatestMessage(ctx context.Context, conversationID int64) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	live := r.liveLocked(conversationID)
	if len(live) == 0 {
		return nil, ErrMessageNotFound
	}
	return live[0], nil
}

func (r *memoryRepository) SavePushToken(ctx context.Context, userID int64, token, platform string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.tokens[token] = PushToken{UserID: userID, Token: token, Platform: platform, CreatedAt: baseTime}
	return nil
}

func (r *memoryRepository) DeletePushToken(ctx context.Context, userID int64, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.state.tokens[token]; ok && t.UserID == userID {
		delete(r.state.tokens, token)
	}
	return nil
}

func (r *memoryRepository) GetUserPushTokens(ctx context.Context, userID int64) ([]*PushToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*PushToken
	for _, t := range r.state.tokens {
		if t.UserID == userID {
			cp := t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memoryRepository) PurgePushToken(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state.tokens, token)
	return nil
}

func (r *memoryRepository) withReadsLocked(m Message) *Message {
	m.ReadBy = append([]ReadReceipt{}, r.state.reads[m.ID]...)
	return &m
}

func (r *memoryRepository) messageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.messages)
}

func copyConversation(c Conversation) *Conversation {
	c.ParticipantIDs = append(c.ParticipantIDs[:0:0], c.ParticipantIDs...)
	if c.LastMessageID != nil {
		v := *c.LastMessageID
		c.LastMessageID = &v
	}
	return &c
}

// directory is a fixed user directory
type directory map[int64]*auth.Profile

func (d directory) GetProfile(ctx context.Context, userID int64) (*auth.Profile, error) {
	p, ok := d[userID]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return p, nil
}

func newDirectory(ids ...int64) directory {
	d := make(directory)
	for _, id := range ids {
		d[id] = &auth.Profile{ID: id, Name: "User " + string(rune('A'+id-1)), Username: "user" + string(rune('a'+id-1)), Avatar: auth.DefaultAvatar}
	}
	return d
}

// oracle answers friendship status from a map keyed by ordered pair
type oracle struct {
	mu       sync.Mutex
	statuses map[[2]int64]friends.Status
}

func newOracle() *oracle {
	return &oracle{statuses: make(map[[2]int64]friends.Status)}
}

func (o *oracle) set(a, b int64, status friends.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses[orderedKey(a, b)] = status
}

func (o *oracle) FriendshipStatus(ctx context.Context, a, b int64) (friends.Status, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	status, ok := o.statuses[orderedKey(a, b)]
	if !ok {
		return friends.StatusNone, nil
	}
	return status, nil
}

func orderedKey(a, b int64) [2]int64 {
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}

// fakeConn records every frame sent to it
type fakeConn struct {
	id     string
	userID int64

	mu     sync.Mutex
	frames [][]byte
	full   bool
	closed bool
}

func newFakeConn(id string, userID int64) *fakeConn {
	return &fakeConn{id: id, userID: userID}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) UserID() int64 { return c.userID }

func (c *fakeConn) Send(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full || c.closed {
		return false
	}
	c.frames = append(c.frames, payload)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type recordedEvent struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

func (c *fakeConn) events(t *testing.T) []recordedEvent {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]recordedEvent, 0, len(c.frames))
	for _, f := range c.frames {
		var ev recordedEvent
		require.NoError(t, json.Unmarshal(f, &ev))
		out = append(out, ev)
	}
	return out
}

func (c *fakeConn) types(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, ev := range c.events(t) {
		out = append(out, ev.Type)
	}
	return out
}

func (c *fakeConn) count(t *testing.T, eventType string) int {
	t.Helper()
	n := 0
	for _, ev := range c.events(t) {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

// last decodes the data of the most recent event of eventType into v
func (c *fakeConn) last(t *testing.T, eventType string, v interface{}) bool {
	t.Helper()
	events := c.events(t)
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == eventType {
			require.NoError(t, json.Unmarshal(events[i].Data, v))
			return true
		}
	}
	return false
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// recordingPush records offline notifications
type recordingPush struct {
	mu   sync.Mutex
	sent map[int64][]*PushNotification
}

func newRecordingPush() *recordingPush {
	return &recordingPush{sent: make(map[int64][]*PushNotification)}
}

func (p *recordingPush) SendNotification(ctx context.Context, userID int64, n *PushNotification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent[userID] = append(p.sent[userID], n)
	return nil
}

func (p *recordingPush) countFor(userID int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent[userID])
}
