// internal/messaging/events.go
// Realtime event names and payloads

package messaging

import (
	"encoding/json"

	"github.com/imadgeboyega/kiekky-chat/internal/auth"
)

// Client to server
const (
	EventConversationJoin  = "conversation:join"
	EventConversationLeave = "conversation:leave"
	EventMessageSend       = "message:send"
	EventMessageRead       = "message:read"
	EventTypingStart       = "typing:start"
	EventTypingStop        = "typing:stop"
	EventUsersGetOnline    = "users:get_online"
	EventCallOffer         = "call:offer"
	EventCallAnswer        = "call:answer"
	EventCallICECandidate  = "call:ice-candidate"
	EventCallDecline       = "call:decline"
	EventCallEnd           = "call:end"
)

// Server to client
const (
	EventConversationJoined     = "conversation:joined"
	EventConversationLeft       = "conversation:left"
	EventUserJoinedConversation = "user:joined_conversation"
	EventUserLeftConversation   = "user:left_conversation"
	EventMessageNew             = "message:new"
	EventMessageSent            = "message:sent"
	EventMessageError           = "message:error"
	EventMessageEdited          = "message:edited"
	EventMessageDeleted         = "message:deleted"
	EventUserTyping             = "user:typing"
	EventUserStopTyping         = "user:stop_typing"
	EventUserOnline             = "user:online"
	EventUserOffline            = "user:offline"
	EventUsersOnline            = "users:online"
	EventCallIncoming           = "call:incoming"
	EventCallError              = "call:error"
	EventError                  = "error"
	EventAck                    = "ack"
)

// Error codes carried on realtime error events
const (
	CodeConversationNotFound = "CONVERSATION_NOT_FOUND"
	CodeAccessDenied         = "ACCESS_DENIED"
	CodeJoinRoomError        = "JOIN_ROOM_ERROR"
	CodeInvalidMessageData   = "INVALID_MESSAGE_DATA"
	CodeMessageTooLong       = "MESSAGE_TOO_LONG"
	CodeSendMessageError     = "SEND_MESSAGE_ERROR"
	CodeMessageNotFound      = "MESSAGE_NOT_FOUND"
	CodeInvalidEvent         = "INVALID_EVENT"
)

// InboundEvent is what clients send
type InboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
	Ack  string          `json:"ack,omitempty"`
}

// OutboundEvent is what the server sends
type OutboundEvent struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// Inbound payloads

type conversationRef struct {
	ConversationID json.Number `json:"conversationId"`
}

type sendMessagePayload struct {
	ConversationID json.Number     `json:"conversationId"`
	Content        string          `json:"content"`
	Type           MessageType     `json:"type"`
	SharedPost     json.RawMessage `json:"sharedPost,omitempty"`
}

type messageRef struct {
	MessageID json.Number `json:"messageId"`
}

type callOfferPayload struct {
	CallID      string          `json:"callId"`
	RecipientID json.Number     `json:"recipientId"`
	CallType    string          `json:"callType"`
	Offer       json.RawMessage `json:"offer"`
}

type callSignalPayload struct {
	CallID    string          `json:"callId"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// Outbound payloads. Every one carries its own timestamp.

type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	CallID    string `json:"callId,omitempty"`
	Timestamp string `json:"timestamp"`
}

type AckPayload struct {
	Ack       string `json:"ack"`
	Success   bool   `json:"success"`
	MessageID int64  `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

type UserPresencePayload struct {
	UserID    int64         `json:"userId"`
	User      *auth.Profile `json:"user,omitempty"`
	LastSeen  string        `json:"lastSeen,omitempty"`
	Timestamp string        `json:"timestamp"`
}

type OnlineUsersPayload struct {
	OnlineUsers []*OnlineUser `json:"onlineUsers"`
	Timestamp   string        `json:"timestamp"`
}

type OnlineUser struct {
	UserID   int64         `json:"userId"`
	User     *auth.Profile `json:"user"`
	LastSeen string        `json:"lastSeen"`
}

type ConversationRoomPayload struct {
	ConversationID int64         `json:"conversationId"`
	UserID         int64         `json:"userId,omitempty"`
	User           *auth.Profile `json:"user,omitempty"`
	Timestamp      string        `json:"timestamp"`
}

type MessagePayload struct {
	Message   *Message `json:"message"`
	Timestamp string   `json:"timestamp"`
}

type MessageDeletedPayload struct {
	MessageID      int64  `json:"messageId"`
	ConversationID int64  `json:"conversationId"`
	Timestamp      string `json:"timestamp"`
}

type MessageReadPayload struct {
	MessageID      int64         `json:"messageId"`
	ConversationID int64         `json:"conversationId"`
	ReadBy         int64         `json:"readBy"`
	User           *auth.Profile `json:"user,omitempty"`
	Timestamp      string        `json:"timestamp"`
}

type TypingPayload struct {
	UserID         int64         `json:"userId"`
	User           *auth.Profile `json:"user"`
	ConversationID int64         `json:"conversationId"`
	Timestamp      string        `json:"timestamp"`
}

type CallIncomingPayload struct {
	CallID    string          `json:"callId"`
	CallType  string          `json:"callType"`
	Offer     json.RawMessage `json:"offer"`
	Caller    *auth.Profile   `json:"caller"`
	Timestamp string          `json:"timestamp"`
}

type CallSignalPayload struct {
	CallID    string          `json:"callId"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	From      int64           `json:"from"`
	Timestamp string          `json:"timestamp"`
}

type CallEndPayload struct {
	CallID    string `json:"callId"`
	From      int64  `json:"from,omitempty"`
	Duration  int64  `json:"duration"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}
