// internal/messaging/session.go

package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/imadgeboyega/kiekky-chat/internal/auth"
	"github.com/imadgeboyega/kiekky-chat/internal/common/apperror"
	"github.com/imadgeboyega/kiekky-chat/internal/common/utils"
)

const pushTimeout = 10 * time.Second

var (
	ErrMissingToken = apperror.New(apperror.KindAuth, "MISSING_TOKEN", "authentication token is required")
	ErrUnknownEvent = apperror.Validation(CodeInvalidEvent, "unknown event type")
	ErrInvalidEvent = apperror.Validation(CodeInvalidEvent, "event payload is malformed")

	ErrInvalidMessageData = apperror.Validation(CodeInvalidMessageData, "message data is malformed")
)

// TokenValidator checks access tokens
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*utils.JWTClaims, error)
}

// Session is an authenticated connection
type Session struct {
	Conn Connection
	User *auth.Profile
}

func (s *Session) UserID() int64 { return s.User.ID }

// SendResult is the outcome of a send, reported back as the ack
type SendResult struct {
	Success   bool     `json:"success"`
	MessageID int64    `json:"messageId,omitempty"`
	Message   *Message `json:"-"`
	Error     string   `json:"error,omitempty"`
}

// SessionManager owns the realtime side: it authenticates connections,
// tracks rooms and presence, and turns inbound events into service calls
// and fan-out.
type SessionManager struct {
	service  Service
	tokens   TokenValidator
	users    UserDirectory
	hub      *Hub
	presence *PresenceTracker
	calls    *CallRelay
	push     PushService
	logger   *zap.Logger

	pushWG sync.WaitGroup
}

func NewSessionManager(
	service Service,
	tokens TokenValidator,
	users UserDirectory,
	hub *Hub,
	presence *PresenceTracker,
	calls *CallRelay,
	push PushService,
	logger *zap.Logger,
) *SessionManager {
	m := &SessionManager{
		service:  service,
		tokens:   tokens,
		users:    users,
		hub:      hub,
		presence: presence,
		calls:    calls,
		push:     push,
		logger:   logger.Named("session"),
	}
	presence.OnOffline(m.broadcastOffline)
	return m
}

func (m *SessionManager) Presence() *PresenceTracker { return m.presence }

func (m *SessionManager) Calls() *CallRelay { return m.calls }

// Authenticate resolves the caller of a websocket upgrade. The token comes
// from the Authorization header or the token query parameter.
func (m *SessionManager) Authenticate(r *http.Request) (*auth.Profile, error) {
	token := auth.ExtractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		return nil, ErrMissingToken
	}

	claims, err := m.tokens.ValidateToken(r.Context(), token)
	if err != nil {
		return nil, err
	}

	profile, err := m.users.GetProfile(r.Context(), claims.UserID)
	if err != nil {
		if apperror.IsKind(err, apperror.KindNotFound) {
			return nil, auth.ErrInvalidToken
		}
		return nil, apperror.Internal("failed to load user", err)
	}
	return profile, nil
}

// Connect registers an authenticated connection, announces the user and
// hands the new connection the current online list
func (m *SessionManager) Connect(conn Connection, user *auth.Profile) *Session {
	s := &Session{Conn: conn, User: user}

	m.hub.Add(conn)
	m.presence.Register(user, conn.ID())

	m.hub.BroadcastAll(EventUserOnline, UserPresencePayload{
		UserID:    user.ID,
		User:      user,
		Timestamp: utils.Now(),
	}, conn.ID())
	m.sendOnlineUsers(s)

	m.logger.Info("user connected",
		zap.Int64("user_id", user.ID),
		zap.String("handle", conn.ID()))
	return s
}

// Disconnect tears down a connection. Offline is announced later by the
// presence tracker if the user does not come back.
func (m *SessionManager) Disconnect(s *Session) {
	for _, room := range m.hub.Remove(s.Conn.ID()) {
		if id, ok := roomConversationID(room); ok {
			m.hub.Broadcast(room, EventUserLeftConversation, ConversationRoomPayload{
				ConversationID: id,
				UserID:         s.UserID(),
				User:           s.User,
				Timestamp:      utils.Now(),
			}, "")
		}
	}

	m.presence.Deregister(s.UserID(), s.Conn.ID())
	m.calls.HandleDisconnect(s.UserID())

	m.logger.Info("user disconnected",
		zap.Int64("user_id", s.UserID()),
		zap.String("handle", s.Conn.ID()))
}

func (m *SessionManager) broadcastOffline(userID int64, profile *auth.Profile, lastSeen time.Time) {
	m.hub.BroadcastAll(EventUserOffline, UserPresencePayload{
		UserID:    userID,
		User:      profile,
		LastSeen:  utils.FormatTime(lastSeen),
		Timestamp: utils.Now(),
	}, "")
}

// HandleEvent decodes and dispatches one inbound frame. Failures become
// error events; the connection stays open.
func (m *SessionManager) HandleEvent(ctx context.Context, s *Session, raw []byte) {
	var event InboundEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		m.sendError(s, EventError, ErrInvalidEvent, CodeInvalidEvent, "")
		return
	}

	var err error
	var messageID int64
	switch event.Type {
	case EventConversationJoin:
		err = m.joinConversation(ctx, s, event.Data)
	case EventConversationLeave:
		err = m.leaveConversation(s, event.Data)
	case EventMessageSend:
		result := m.sendMessage(ctx, s, event.Data)
		messageID = result.MessageID
		if !result.Success {
			err = apperror.New(apperror.KindValidation, CodeSendMessageError, result.Error)
		}
	case EventMessageRead:
		err = m.markRead(ctx, s, event.Data)
	case EventTypingStart:
		err = m.typing(s, event.Data, true)
	case EventTypingStop:
		err = m.typing(s, event.Data, false)
	case EventUsersGetOnline:
		m.sendOnlineUsers(s)
	case EventCallOffer, EventCallAnswer, EventCallICECandidate, EventCallDecline, EventCallEnd:
		err = m.callEvent(s, event.Type, event.Data)
	default:
		err = ErrUnknownEvent
		m.sendError(s, EventError, err, CodeInvalidEvent, "")
	}

	recordEvent(event.Type, err)
	if event.Ack != "" {
		ack := AckPayload{Ack: event.Ack, Success: err == nil, MessageID: messageID, Timestamp: utils.Now()}
		if err != nil {
			ack.Error = publicMessage(err)
		}
		m.emit(s, EventAck, ack)
	}
}

func (m *SessionManager) joinConversation(ctx context.Context, s *Session, data json.RawMessage) error {
	var ref conversationRef
	if err := decodeData(data, &ref); err != nil {
		m.sendError(s, EventError, err, CodeJoinRoomError, "")
		return err
	}
	conversationID, err := utils.ParseID(ref.ConversationID.String(), "conversationId")
	if err != nil {
		m.sendError(s, EventError, err, CodeJoinRoomError, "")
		return err
	}

	if _, err := m.service.GetConversation(ctx, s.UserID(), conversationID); err != nil {
		m.sendError(s, EventError, err, CodeJoinRoomError, "")
		return err
	}

	room := conversationRoom(conversationID)
	for _, left := range m.hub.LeaveMatching(s.Conn.ID(), conversationRoomPrefix) {
		if left == room {
			continue
		}
		if id, ok := roomConversationID(left); ok {
			m.hub.Broadcast(left, EventUserLeftConversation, ConversationRoomPayload{
				ConversationID: id,
				UserID:         s.UserID(),
				User:           s.User,
				Timestamp:      utils.Now(),
			}, s.Conn.ID())
		}
	}
	m.hub.Join(room, s.Conn.ID())

	m.hub.Broadcast(room, EventUserJoinedConversation, ConversationRoomPayload{
		ConversationID: conversationID,
		UserID:         s.UserID(),
		User:           s.User,
		Timestamp:      utils.Now(),
	}, s.Conn.ID())
	m.emit(s, EventConversationJoined, ConversationRoomPayload{
		ConversationID: conversationID,
		Timestamp:      utils.Now(),
	})
	return nil
}

func (m *SessionManager) leaveConversation(s *Session, data json.RawMessage) error {
	var ref conversationRef
	if err := decodeData(data, &ref); err != nil {
		m.sendError(s, EventError, err, CodeInvalidEvent, "")
		return err
	}
	conversationID, err := utils.ParseID(ref.ConversationID.String(), "conversationId")
	if err != nil {
		m.sendError(s, EventError, err, CodeInvalidEvent, "")
		return err
	}

	room := conversationRoom(conversationID)
	if m.hub.Leave(room, s.Conn.ID()) {
		m.hub.Broadcast(room, EventUserLeftConversation, ConversationRoomPayload{
			ConversationID: conversationID,
			UserID:         s.UserID(),
			User:           s.User,
			Timestamp:      utils.Now(),
		}, s.Conn.ID())
	}
	m.emit(s, EventConversationLeft, ConversationRoomPayload{
		ConversationID: conversationID,
		Timestamp:      utils.Now(),
	})
	return nil
}

// SendMessage persists a message from a realtime connection, fans it out
// to the room without echoing it to the sending connection and confirms
// to the sender with message:sent
func (m *SessionManager) SendMessage(ctx context.Context, s *Session, conversationID int64, req *SendMessageRequest) SendResult {
	msg, conv, err := m.service.SendMessage(ctx, s.UserID(), conversationID, req)
	if err != nil {
		m.sendError(s, EventMessageError, err, CodeSendMessageError, "")
		return SendResult{Error: publicMessage(err)}
	}

	recordMessageSent("websocket")
	m.deliverNew(msg, conv, s.Conn.ID())
	m.emit(s, EventMessageSent, MessagePayload{Message: msg, Timestamp: utils.Now()})
	return SendResult{Success: true, MessageID: msg.ID, Message: msg}
}

func (m *SessionManager) sendMessage(ctx context.Context, s *Session, data json.RawMessage) SendResult {
	var payload sendMessagePayload
	if err := decodeData(data, &payload); err != nil {
		m.sendError(s, EventMessageError, ErrInvalidMessageData, CodeInvalidMessageData, "")
		return SendResult{Error: publicMessage(ErrInvalidMessageData)}
	}
	conversationID, err := utils.ParseID(payload.ConversationID.String(), "conversationId")
	if err != nil {
		m.sendError(s, EventMessageError, err, CodeInvalidMessageData, "")
		return SendResult{Error: publicMessage(err)}
	}

	return m.SendMessage(ctx, s, conversationID, &SendMessageRequest{
		Content:    payload.Content,
		Type:       payload.Type,
		SharedPost: payload.SharedPost,
	})
}

func (m *SessionManager) markRead(ctx context.Context, s *Session, data json.RawMessage) error {
	var ref messageRef
	if err := decodeData(data, &ref); err != nil {
		m.sendError(s, EventError, err, CodeInvalidEvent, "")
		return err
	}
	messageID, err := utils.ParseID(ref.MessageID.String(), "messageId")
	if err != nil {
		m.sendError(s, EventError, err, CodeInvalidEvent, "")
		return err
	}

	result, err := m.service.MarkRead(ctx, s.UserID(), messageID)
	if err != nil {
		m.sendError(s, EventError, err, CodeInvalidEvent, "")
		return err
	}
	m.DeliverRead(result, s.User, s.Conn.ID())
	return nil
}

func (m *SessionManager) typing(s *Session, data json.RawMessage, isTyping bool) error {
	var ref conversationRef
	if err := decodeData(data, &ref); err != nil {
		return err
	}
	conversationID, err := utils.ParseID(ref.ConversationID.String(), "conversationId")
	if err != nil {
		return err
	}

	room := conversationRoom(conversationID)
	if !m.hub.InRoom(room, s.Conn.ID()) {
		return nil
	}

	eventType := EventUserStopTyping
	if isTyping {
		eventType = EventUserTyping
	}
	m.hub.Broadcast(room, eventType, TypingPayload{
		UserID:         s.UserID(),
		User:           s.User,
		ConversationID: conversationID,
		Timestamp:      utils.Now(),
	}, s.Conn.ID())
	return nil
}

func (m *SessionManager) callEvent(s *Session, eventType string, data json.RawMessage) error {
	var err error
	var callID string

	switch eventType {
	case EventCallOffer:
		var p callOfferPayload
		if err = decodeData(data, &p); err == nil {
			callID = p.CallID
			var recipientID int64
			recipientID, err = utils.ParseID(p.RecipientID.String(), "recipientId")
			if err == nil {
				_, err = m.calls.Offer(s.User, OfferRequest{
					CallID:      p.CallID,
					RecipientID: recipientID,
					CallType:    p.CallType,
					Offer:       p.Offer,
				})
			}
		}
	default:
		var p callSignalPayload
		if err = decodeData(data, &p); err == nil {
			callID = p.CallID
			switch eventType {
			case EventCallAnswer:
				err = m.calls.Answer(s.UserID(), p.CallID, p.Answer)
			case EventCallICECandidate:
				err = m.calls.IceCandidate(s.UserID(), p.CallID, p.Candidate)
			case EventCallDecline:
				err = m.calls.Decline(s.UserID(), p.CallID)
			case EventCallEnd:
				_, err = m.calls.End(s.UserID(), p.CallID)
			}
		}
	}

	if err != nil {
		m.sendError(s, EventCallError, err, "CALL_ERROR", callID)
	}
	return err
}

// DeliverMessage fans out a message created over REST to its room and
// pushes it to offline participants
func (m *SessionManager) DeliverMessage(msg *Message, conv *Conversation) {
	recordMessageSent("rest")
	m.deliverNew(msg, conv, "")
}

func (m *SessionManager) deliverNew(msg *Message, conv *Conversation, exclude string) {
	m.hub.Broadcast(conversationRoom(msg.ConversationID), EventMessageNew, MessagePayload{
		Message:   msg,
		Timestamp: utils.Now(),
	}, exclude)

	for _, userID := range conv.OtherParticipants(msg.SenderID) {
		if !m.presence.IsOnline(userID) {
			m.notifyOffline(userID, msg)
		}
	}
}

// DeliverRead tells the room a message was read. Own-message reads and
// repeated reads are not announced.
func (m *SessionManager) DeliverRead(result *ReadResult, reader *auth.Profile, exclude string) {
	if result.Own || !result.Recorded {
		return
	}
	m.hub.Broadcast(conversationRoom(result.Message.ConversationID), EventMessageRead, MessageReadPayload{
		MessageID:      result.Message.ID,
		ConversationID: result.Message.ConversationID,
		ReadBy:         reader.ID,
		User:           reader,
		Timestamp:      utils.Now(),
	}, exclude)
}

func (m *SessionManager) DeliverEdit(msg *Message) {
	m.hub.Broadcast(conversationRoom(msg.ConversationID), EventMessageEdited, MessagePayload{
		Message:   msg,
		Timestamp: utils.Now(),
	}, "")
}

func (m *SessionManager) DeliverDelete(msg *Message) {
	m.hub.Broadcast(conversationRoom(msg.ConversationID), EventMessageDeleted, MessageDeletedPayload{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Timestamp:      utils.Now(),
	}, "")
}

func (m *SessionManager) notifyOffline(userID int64, msg *Message) {
	if m.push == nil {
		return
	}
	notification := newMessageNotification(msg)

	m.pushWG.Add(1)
	go func() {
		defer m.pushWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		if err := m.push.SendNotification(ctx, userID, notification); err != nil {
			m.logger.Warn("push notification failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}()
}

func (m *SessionManager) sendOnlineUsers(s *Session) {
	entries := m.presence.OnlineUsers()
	users := make([]*OnlineUser, 0, len(entries))
	for _, e := range entries {
		users = append(users, &OnlineUser{
			UserID:   e.UserID,
			User:     e.Profile,
			LastSeen: utils.FormatTime(e.LastSeen),
		})
	}
	m.emit(s, EventUsersOnline, OnlineUsersPayload{OnlineUsers: users, Timestamp: utils.Now()})
}

// sendError emits an error event. Server errors are reported under
// fallbackCode without their cause.
func (m *SessionManager) sendError(s *Session, eventType string, err error, fallbackCode, callID string) {
	appErr := apperror.From(err)
	code := appErr.Code
	if appErr.Kind == apperror.KindServer {
		code = fallbackCode
		m.logger.Error("event failed",
			zap.String("event", eventType),
			zap.Int64("user_id", s.UserID()),
			zap.Error(err))
	}

	m.emit(s, eventType, ErrorPayload{
		Code:      code,
		Message:   publicMessage(err),
		CallID:    callID,
		Timestamp: utils.Now(),
	})
}

func (m *SessionManager) emit(s *Session, eventType string, data interface{}) {
	m.hub.SendTo([]string{s.Conn.ID()}, eventType, data)
}

// Shutdown closes every connection, stops presence timers and waits for
// in-flight push notifications
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.presence.Close()
	m.hub.Shutdown()

	done := make(chan struct{})
	go func() {
		m.pushWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func decodeData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return ErrInvalidEvent.WithCause(err)
	}
	return nil
}

func roomConversationID(room string) (int64, bool) {
	if !strings.HasPrefix(room, conversationRoomPrefix) {
		return 0, false
	}
	id, err := utils.ParseID(strings.TrimPrefix(room, conversationRoomPrefix), "room")
	return id, err == nil
}

func publicMessage(err error) string {
	appErr := apperror.From(err)
	if appErr.Kind == apperror.KindServer {
		return "internal server error"
	}
	return appErr.Message
}
