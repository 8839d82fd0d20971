// internal/messaging/models.go

package messaging

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lib/pq"

	"github.com/imadgeboyega/kiekky-chat/internal/auth"
)

// MaxContentLength is counted in characters after trimming
const MaxContentLength = 1000

type ConversationType string

const (
	ConversationPrivate ConversationType = "private"
	ConversationGroup   ConversationType = "group"
)

// Conversation represents a chat conversation
type Conversation struct {
	ID             int64            `json:"id" db:"id"`
	Type           ConversationType `json:"type" db:"type"`
	Name           *string          `json:"name,omitempty" db:"name"`
	ParticipantIDs pq.Int64Array    `json:"participantIds" db:"participant_ids"`
	LastMessageID  *int64           `json:"lastMessageId" db:"last_message_id"`
	LastActivity   time.Time        `json:"lastActivity" db:"last_activity"`
	IsArchived     bool             `json:"isArchived" db:"is_archived"`
	CreatedAt      time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time        `json:"updatedAt" db:"updated_at"`

	// Computed fields
	Participants     []*auth.Profile `json:"participants,omitempty" db:"-"`
	LastMessage      *MessagePreview `json:"lastMessage" db:"-"`
	UnreadCount      int             `json:"unreadCount" db:"-"`
	FriendshipStatus string          `json:"friendshipStatus,omitempty" db:"-"`
}

// HasParticipant reports whether userID belongs to the conversation
func (c *Conversation) HasParticipant(userID int64) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// OtherParticipants returns every participant except userID
func (c *Conversation) OtherParticipants(userID int64) []int64 {
	out := make([]int64, 0, len(c.ParticipantIDs))
	for _, id := range c.ParticipantIDs {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}

// MessagePreview is the denormalized last message shown in conversation lists
type MessagePreview struct {
	ID        int64       `json:"id"`
	SenderID  int64       `json:"senderId"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	CreatedAt time.Time   `json:"createdAt"`
}

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
	MessageShare MessageType = "share"
)

// Message represents a chat message
type Message struct {
	ID             int64            `json:"id" db:"id"`
	ConversationID int64            `json:"conversationId" db:"conversation_id"`
	SenderID       int64            `json:"senderId" db:"sender_id"`
	Content        string           `json:"content" db:"content"`
	Type           MessageType      `json:"type" db:"type"`
	SharedPost     *json.RawMessage `json:"sharedPost,omitempty" db:"shared_post"`
	IsEdited       bool             `json:"isEdited" db:"is_edited"`
	EditedAt       *time.Time       `json:"editedAt,omitempty" db:"edited_at"`
	IsDeleted      bool             `json:"isDeleted" db:"is_deleted"`
	DeletedAt      *time.Time       `json:"deletedAt,omitempty" db:"deleted_at"`
	CreatedAt      time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time        `json:"updatedAt" db:"updated_at"`

	// Computed fields
	ReadBy []ReadReceipt `json:"readBy" db:"-"`
	Sender *auth.Profile `json:"sender,omitempty" db:"-"`
}

// IsReadBy reports whether userID has a receipt on m
func (m *Message) IsReadBy(userID int64) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// ReadReceipt records that a user read a message
type ReadReceipt struct {
	MessageID int64     `json:"-" db:"message_id"`
	UserID    int64     `json:"userId" db:"user_id"`
	ReadAt    time.Time `json:"readAt" db:"read_at"`
}

// Pagination describes a page of messages
type Pagination struct {
	Page          int  `json:"page"`
	Limit         int  `json:"limit"`
	TotalMessages int  `json:"totalMessages"`
	TotalPages    int  `json:"totalPages"`
	HasMore       bool `json:"hasMore"`
}

// MessagePage is one page of history in chronological order
type MessagePage struct {
	Messages   []*Message `json:"messages"`
	Pagination Pagination `json:"pagination"`
}

// PushToken is a device registration for offline notifications
type PushToken struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"userId" db:"user_id"`
	Token     string    `json:"token" db:"token"`
	Platform  string    `json:"platform" db:"platform"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Request DTOs

type CreateConversationRequest struct {
	RecipientID json.Number `json:"recipientId"`
}

type SendMessageRequest struct {
	Content    string          `json:"content"`
	Type       MessageType     `json:"type"`
	SharedPost json.RawMessage `json:"sharedPost,omitempty"`
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

type PushTokenRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"required,oneof=ios android web"`
}

// normalizeContent trims content and enforces the length bounds
func normalizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", ErrContentTooLong
	}
	return content, nil
}

// normalizeType defaults to text and rejects unknown types
func normalizeType(t MessageType) (MessageType, error) {
	switch t {
	case "":
		return MessageText, nil
	case MessageText, MessageImage, MessageFile, MessageShare:
		return t, nil
	default:
		return "", ErrInvalidMessageType
	}
}
