// internal/messaging/service.go

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/imadgeboyega/kiekky-chat/internal/auth"
	"github.com/imadgeboyega/kiekky-chat/internal/common/apperror"
	"github.com/imadgeboyega/kiekky-chat/internal/common/utils"
	"github.com/imadgeboyega/kiekky-chat/internal/friends"
)

var (
	ErrConversationNotFound    = apperror.NotFound(CodeConversationNotFound, "conversation not found")
	ErrMessageNotFound         = apperror.NotFound(CodeMessageNotFound, "message not found")
	ErrRecipientNotFound       = apperror.NotFound("USER_NOT_FOUND", "recipient not found")
	ErrNotParticipant          = apperror.Forbidden(CodeAccessDenied, "access denied to this conversation")
	ErrNotFriends              = apperror.Forbidden("NOT_FRIENDS", "you can only start conversations with friends")
	ErrConversationUnavailable = apperror.Forbidden("CONVERSATION_UNAVAILABLE", "conversation is no longer available")
	ErrNotSender               = apperror.Forbidden("NOT_SENDER", "only the sender can change this message")
	ErrSelfConversation        = apperror.Validation("SELF_CONVERSATION", "cannot start a conversation with yourself")
	ErrEmptyContent            = apperror.Validation(CodeInvalidMessageData, "message content is required")
	ErrContentTooLong          = apperror.Validation(CodeMessageTooLong, "message cannot exceed 1000 characters")
	ErrInvalidMessageType      = apperror.Validation("INVALID_MESSAGE_TYPE", "type must be one of text, image, file, share")
	ErrInvalidPagination       = apperror.Validation("INVALID_PAGINATION", "page and limit must be positive integers")
	ErrDuplicateConversation   = apperror.Conflict("DUPLICATE_CONVERSATION", "conversation already exists")
)

// UserDirectory resolves user ids to public profiles. Unknown ids yield
// auth.ErrUserNotFound.
type UserDirectory interface {
	GetProfile(ctx context.Context, userID int64) (*auth.Profile, error)
}

// FriendshipOracle reports the relationship between two users
type FriendshipOracle interface {
	FriendshipStatus(ctx context.Context, a, b int64) (friends.Status, error)
}

// ReadResult describes the outcome of a read receipt request
type ReadResult struct {
	Message      *Message
	Conversation *Conversation
	// Own is set when the reader sent the message; nothing is recorded
	Own bool
	// Recorded is false when the receipt already existed
	Recorded bool
}

// Service interface
type Service interface {
	CreateOrGetConversation(ctx context.Context, userID, recipientID int64) (*Conversation, bool, error)
	GetConversation(ctx context.Context, userID, conversationID int64) (*Conversation, error)
	ListConversations(ctx context.Context, userID int64) ([]*Conversation, error)
	SetArchived(ctx context.Context, userID, conversationID int64, archived bool) error

	GetMessages(ctx context.Context, userID, conversationID int64, page, limit int) (*MessagePage, error)
	SendMessage(ctx context.Context, userID, conversationID int64, req *SendMessageRequest) (*Message, *Conversation, error)
	MarkRead(ctx context.Context, userID, messageID int64) (*ReadResult, error)
	UnreadCount(ctx context.Context, userID, conversationID int64) (int, error)
	ClearMessages(ctx context.Context, userID, conversationID int64) (int64, error)
	EditMessage(ctx context.Context, userID, messageID int64, content string) (*Message, error)
	DeleteMessage(ctx context.Context, userID, messageID int64) (*Message, error)

	RegisterPushToken(ctx context.Context, userID int64, req *PushTokenRequest) error
	UnregisterPushToken(ctx context.Context, userID int64, token string) error
}

var _ Service = (*MessageService)(nil)

type MessageService struct {
	repo    Repository
	users   UserDirectory
	friends FriendshipOracle
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(repo Repository, users UserDirectory, friendships FriendshipOracle, logger *zap.Logger) *MessageService {
	return &MessageService{
		repo:    repo,
		users:   users,
		friends: friendships,
		logger:  logger.Named("messaging"),
		now:     time.Now,
	}
}

// CreateOrGetConversation returns the private conversation between userID
// and recipientID, creating it when the two are friends. The bool reports
// whether a new conversation was created.
func (s *MessageService) CreateOrGetConversation(ctx context.Context, userID, recipientID int64) (*Conversation, bool, error) {
	if recipientID == userID {
		return nil, false, ErrSelfConversation
	}

	if _, err := s.users.GetProfile(ctx, recipientID); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return nil, false, ErrRecipientNotFound
		}
		return nil, false, apperror.Internal("failed to load recipient", err)
	}

	status, err := s.friends.FriendshipStatus(ctx, userID, recipientID)
	if err != nil {
		return nil, false, apperror.Internal("failed to check friendship", err)
	}
	if status != friends.StatusAccepted {
		return nil, false, ErrNotFriends
	}

	conv, err := s.repo.FindConversationBetween(ctx, userID, recipientID)
	switch {
	case err == nil:
		return s.enrich(ctx, conv), false, nil
	case !errors.Is(err, ErrConversationNotFound):
		return nil, false, apperror.Internal("failed to find conversation", err)
	}

	conv, err = s.repo.CreatePrivateConversation(ctx, userID, recipientID)
	if errors.Is(err, ErrDuplicateConversation) {
		// lost a race with a concurrent create for the same pair
		conv, err = s.repo.FindConversationBetween(ctx, userID, recipientID)
		if err != nil {
			return nil, false, apperror.Internal("failed to load conversation", err)
		}
		return s.enrich(ctx, conv), false, nil
	}
	if err != nil {
		return nil, false, apperror.Internal("failed to create conversation", err)
	}

	s.logger.Info("conversation created",
		zap.Int64("conversation_id", conv.ID),
		zap.Int64("user_id", userID),
		zap.Int64("recipient_id", recipientID))
	return s.enrich(ctx, conv), true, nil
}

func (s *MessageService) GetConversation(ctx context.Context, userID, conversationID int64) (*Conversation, error) {
	conv, err := s.requireParticipant(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, conv), nil
}

// ListConversations returns the caller's conversations with unread counts
// and the friendship status towards the other participant
func (s *MessageService) ListConversations(ctx context.Context, userID int64) ([]*Conversation, error) {
	convs, err := s.repo.FindConversationsForUser(ctx, userID)
	if err != nil {
		return nil, apperror.Internal("failed to list conversations", err)
	}

	profiles := make(map[int64]*auth.Profile)
	for _, conv := range convs {
		s.attachParticipants(ctx, conv, profiles)

		conv.UnreadCount, err = s.repo.CountUnread(ctx, conv.ID, userID)
		if err != nil {
			return nil, apperror.Internal("failed to count unread messages", err)
		}

		if conv.Type == ConversationPrivate {
			if others := conv.OtherParticipants(userID); len(others) == 1 {
				status, err := s.friends.FriendshipStatus(ctx, userID, others[0])
				if err != nil {
					return nil, apperror.Internal("failed to check friendship", err)
				}
				conv.FriendshipStatus = string(status)
			}
		}
	}
	return convs, nil
}

func (s *MessageService) SetArchived(ctx context.Context, userID, conversationID int64, archived bool) error {
	if _, err := s.requireParticipant(ctx, userID, conversationID); err != nil {
		return err
	}
	if err := s.repo.SetConversationArchived(ctx, conversationID, archived); err != nil {
		return classify(err, "failed to archive conversation")
	}
	return nil
}

// GetMessages pages through history newest first and returns each page
// in chronological order
func (s *MessageService) GetMessages(ctx context.Context, userID, conversationID int64, page, limit int) (*MessagePage, error) {
	if page < 1 || limit < 1 {
		return nil, ErrInvalidPagination
	}
	if limit > utils.MaxPageSize {
		limit = utils.MaxPageSize
	}

	if _, err := s.requireParticipant(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	total, err := s.repo.CountMessages(ctx, conversationID)
	if err != nil {
		return nil, apperror.Internal("failed to count messages", err)
	}

	msgs, err := s.repo.ListMessages(ctx, conversationID, limit, (page-1)*limit)
	if err != nil {
		return nil, apperror.Internal("failed to list messages", err)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	profiles := make(map[int64]*auth.Profile)
	for _, m := range msgs {
		m.Sender = s.profile(ctx, m.SenderID, profiles)
	}

	totalPages := (total + limit - 1) / limit
	return &MessagePage{
		Messages: msgs,
		Pagination: Pagination{
			Page:          page,
			Limit:         limit,
			TotalMessages: total,
			TotalPages:    totalPages,
			HasMore:       page < totalPages,
		},
	}, nil
}

// SendMessage validates and persists a message. The message row and the
// conversation's last-message pointer are written in one transaction.
func (s *MessageService) SendMessage(ctx context.Context, userID, conversationID int64, req *SendMessageRequest) (*Message, *Conversation, error) {
	content, err := normalizeContent(req.Content)
	if err != nil {
		return nil, nil, err
	}
	msgType, err := normalizeType(req.Type)
	if err != nil {
		return nil, nil, err
	}

	conv, err := s.requireParticipant(ctx, userID, conversationID)
	if err != nil {
		return nil, nil, err
	}

	if conv.Type == ConversationPrivate {
		for _, other := range conv.OtherParticipants(userID) {
			status, err := s.friends.FriendshipStatus(ctx, userID, other)
			if err != nil {
				return nil, nil, apperror.Internal("failed to check friendship", err)
			}
			if status != friends.StatusAccepted {
				return nil, nil, ErrConversationUnavailable
			}
		}
	}

	msg := &Message{
		ConversationID: conv.ID,
		SenderID:       userID,
		Content:        content,
		Type:           msgType,
	}
	if msgType == MessageShare && len(req.SharedPost) > 0 {
		post := append(json.RawMessage(nil), req.SharedPost...)
		msg.SharedPost = &post
	}

	err = s.repo.WithTx(ctx, func(repo Repository) error {
		if err := repo.CreateMessage(ctx, msg); err != nil {
			return err
		}
		return repo.UpdateConversationActivity(ctx, conv.ID, &msg.ID, msg.CreatedAt)
	})
	if err != nil {
		return nil, nil, apperror.Internal("failed to send message", err)
	}

	conv.LastMessageID = &msg.ID
	if msg.CreatedAt.After(conv.LastActivity) {
		conv.LastActivity = msg.CreatedAt
	}
	msg.Sender = s.profile(ctx, userID, nil)

	s.logger.Debug("message stored",
		zap.Int64("message_id", msg.ID),
		zap.Int64("conversation_id", conv.ID),
		zap.Int64("sender_id", userID))
	return msg, conv, nil
}

// MarkRead records that userID read messageID. Reading your own message
// and reading twice both succeed without changing anything.
func (s *MessageService) MarkRead(ctx context.Context, userID, messageID int64) (*ReadResult, error) {
	msg, conv, err := s.loadMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	result := &ReadResult{Message: msg, Conversation: conv}
	if msg.SenderID == userID {
		result.Own = true
		return result, nil
	}

	at := s.now()
	recorded, err := s.repo.MarkMessageRead(ctx, messageID, userID, at)
	if err != nil {
		return nil, apperror.Internal("failed to mark message read", err)
	}
	result.Recorded = recorded
	if recorded {
		msg.ReadBy = append(msg.ReadBy, ReadReceipt{MessageID: messageID, UserID: userID, ReadAt: at})
	}
	return result, nil
}

func (s *MessageService) UnreadCount(ctx context.Context, userID, conversationID int64) (int, error) {
	if _, err := s.requireParticipant(ctx, userID, conversationID); err != nil {
		return 0, err
	}
	n, err := s.repo.CountUnread(ctx, conversationID, userID)
	if err != nil {
		return 0, apperror.Internal("failed to count unread messages", err)
	}
	return n, nil
}

// ClearMessages hard-deletes the conversation's history and resets its
// last-message pointer in the same transaction
func (s *MessageService) ClearMessages(ctx context.Context, userID, conversationID int64) (int64, error) {
	if _, err := s.requireParticipant(ctx, userID, conversationID); err != nil {
		return 0, err
	}

	var deleted int64
	err := s.repo.WithTx(ctx, func(repo Repository) error {
		n, err := repo.DeleteConversationMessages(ctx, conversationID)
		if err != nil {
			return err
		}
		deleted = n
		return repo.UpdateConversationActivity(ctx, conversationID, nil, s.now())
	})
	if err != nil {
		return 0, apperror.Internal("failed to clear messages", err)
	}

	s.logger.Info("conversation cleared",
		zap.Int64("conversation_id", conversationID),
		zap.Int64("user_id", userID),
		zap.Int64("deleted", deleted))
	return deleted, nil
}

func (s *MessageService) EditMessage(ctx context.Context, userID, messageID int64, content string) (*Message, error) {
	content, err := normalizeContent(content)
	if err != nil {
		return nil, err
	}

	msg, _, err := s.loadMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, ErrNotSender
	}

	at := s.now()
	if err := s.repo.UpdateMessageContent(ctx, messageID, content, at); err != nil {
		return nil, classify(err, "failed to edit message")
	}

	msg.Content = content
	msg.IsEdited = true
	msg.EditedAt = &at
	msg.Sender = s.profile(ctx, userID, nil)
	return msg, nil
}

// DeleteMessage soft-deletes a message. When it was the conversation's
// last message the pointer moves to the newest remaining one.
func (s *MessageService) DeleteMessage(ctx context.Context, userID, messageID int64) (*Message, error) {
	msg, conv, err := s.loadMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, ErrNotSender
	}

	at := s.now()
	err = s.repo.WithTx(ctx, func(repo Repository) error {
		if err := repo.SoftDeleteMessage(ctx, messageID, at); err != nil {
			return err
		}
		if conv.LastMessageID == nil || *conv.LastMessageID != messageID {
			return nil
		}

		latest, err := repo.LatestMessage(ctx, conv.ID)
		switch {
		case errors.Is(err, ErrMessageNotFound):
			return repo.UpdateConversationActivity(ctx, conv.ID, nil, conv.LastActivity)
		case err != nil:
			return err
		}
		return repo.UpdateConversationActivity(ctx, conv.ID, &latest.ID, latest.CreatedAt)
	})
	if err != nil {
		return nil, classify(err, "failed to delete message")
	}

	msg.IsDeleted = true
	msg.DeletedAt = &at
	return msg, nil
}

func (s *MessageService) RegisterPushToken(ctx context.Context, userID int64, req *PushTokenRequest) error {
	req.Token = strings.TrimSpace(req.Token)
	if err := utils.ValidateStruct(req); err != nil {
		return apperror.Validation("INVALID_PUSH_TOKEN", err.Error())
	}
	if err := s.repo.SavePushToken(ctx, userID, req.Token, req.Platform); err != nil {
		return apperror.Internal("failed to save push token", err)
	}
	return nil
}

func (s *MessageService) UnregisterPushToken(ctx context.Context, userID int64, token string) error {
	if err := s.repo.DeletePushToken(ctx, userID, token); err != nil {
		return apperror.Internal("failed to delete push token", err)
	}
	return nil
}

// requireParticipant loads the conversation and checks membership
func (s *MessageService) requireParticipant(ctx context.Context, userID, conversationID int64) (*Conversation, error) {
	conv, err := s.repo.FindConversationByID(ctx, conversationID)
	if err != nil {
		return nil, classify(err, "failed to load conversation")
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// loadMessage returns a live message the user can see
func (s *MessageService) loadMessage(ctx context.Context, userID, messageID int64) (*Message, *Conversation, error) {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, nil, classify(err, "failed to load message")
	}
	if msg.IsDeleted {
		return nil, nil, ErrMessageNotFound
	}

	conv, err := s.requireParticipant(ctx, userID, msg.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	return msg, conv, nil
}

func (s *MessageService) enrich(ctx context.Context, conv *Conversation) *Conversation {
	s.attachParticipants(ctx, conv, make(map[int64]*auth.Profile))
	return conv
}

func (s *MessageService) attachParticipants(ctx context.Context, conv *Conversation, cache map[int64]*auth.Profile) {
	conv.Participants = make([]*auth.Profile, 0, len(conv.ParticipantIDs))
	for _, id := range conv.ParticipantIDs {
		if p := s.profile(ctx, id, cache); p != nil {
			conv.Participants = append(conv.Participants, p)
		}
	}
}

// profile resolves a user, returning nil when the lookup fails. cache may be nil.
func (s *MessageService) profile(ctx context.Context, userID int64, cache map[int64]*auth.Profile) *auth.Profile {
	if p, ok := cache[userID]; ok {
		return p
	}
	p, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, auth.ErrUserNotFound) {
			s.logger.Warn("profile lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		}
		p = nil
	}
	if cache != nil {
		cache[userID] = p
	}
	return p
}

// classify keeps domain errors and turns everything else into a server error
func classify(err error, message string) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.Internal(message, err)
}
