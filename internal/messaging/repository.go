// internal/messaging/repository.go

package messaging

import (
	"context"
	"time"
)

// ConversationRepository persists conversations. Finders return
// ErrConversationNotFound when nothing matches.
type ConversationRepository interface {
	FindConversationByID(ctx context.Context, id int64) (*Conversation, error)
	// FindConversationBetween ignores argument order
	FindConversationBetween(ctx context.Context, a, b int64) (*Conversation, error)
	// FindConversationsForUser returns non-archived conversations, most
	// recent activity first, with LastMessage filled in
	FindConversationsForUser(ctx context.Context, userID int64) ([]*Conversation, error)
	// CreatePrivateConversation returns ErrDuplicateConversation when the
	// pair already has one
	CreatePrivateConversation(ctx context.Context, a, b int64) (*Conversation, error)
	// UpdateConversationActivity sets the last message pointer and moves
	// last activity forward, never backward
	UpdateConversationActivity(ctx context.Context, id int64, lastMessageID *int64, at time.Time) error
	SetConversationArchived(ctx context.Context, id int64, archived bool) error
}

// MessageRepository persists messages and read receipts
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *Message) error
	// GetMessage returns ErrMessageNotFound when missing. Soft-deleted
	// messages are returned with IsDeleted set.
	GetMessage(ctx context.Context, id int64) (*Message, error)
	// ListMessages returns non-deleted messages newest first
	ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]*Message, error)
	CountMessages(ctx context.Context, conversationID int64) (int, error)
	// MarkMessageRead returns false when the receipt already existed
	MarkMessageRead(ctx context.Context, messageID, userID int64, at time.Time) (bool, error)
	CountUnread(ctx context.Context, conversationID, userID int64) (int, error)
	DeleteConversationMessages(ctx context.Context, conversationID int64) (int64, error)
	UpdateMessageContent(ctx context.Context, id int64, content string, at time.Time) error
	SoftDeleteMessage(ctx context.Context, id int64, at time.Time) error
	// LatestMessage returns ErrMessageNotFound for an empty conversation
	LatestMessage(ctx context.Context, conversationID int64) (*Message, error)
}

// PushTokenRepository stores device tokens for offline notifications
type PushTokenRepository interface {
	SavePushToken(ctx context.Context, userID int64, token, platform string) error
	DeletePushToken(ctx context.Context, userID int64, token string) error
	GetUserPushTokens(ctx context.Context, userID int64) ([]*PushToken, error)
	// PurgePushToken drops a token the push provider reported as dead
	PurgePushToken(ctx context.Context, token string) error
}

type Repository interface {
	ConversationRepository
	MessageRepository
	PushTokenRepository

	// WithTx runs fn against a repository bound to one transaction.
	// Everything fn writes is committed together or not at all.
	WithTx(ctx context.Context, fn func(repo Repository) error) error
}
