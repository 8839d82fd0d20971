// internal/friends/service.go
// Friend request workflow and the friendship status oracle used by messaging

package friends

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/imadgeboyega/kiekky-chat/internal/auth"
	"github.com/imadgeboyega/kiekky-chat/internal/common/apperror"
)

var (
	ErrFriendshipNotFound = apperror.NotFound("FRIENDSHIP_NOT_FOUND", "friendship not found")
	ErrRequestNotFound    = apperror.NotFound("REQUEST_NOT_FOUND", "friend request not found")
	ErrUserNotFound       = apperror.NotFound("USER_NOT_FOUND", "user not found")
	ErrSelfRequest        = apperror.Validation("SELF_REQUEST", "you cannot send a friend request to yourself")
	ErrSelfBlock          = apperror.Validation("SELF_BLOCK", "you cannot block yourself")
	ErrAlreadyFriends     = apperror.Conflict("ALREADY_FRIENDS", "you are already friends")
	ErrRequestPending     = apperror.Conflict("REQUEST_PENDING", "a friend request is already pending")
	ErrRelationshipExists = apperror.Conflict("RELATIONSHIP_EXISTS", "a relationship already exists between these users")
	ErrNotPending         = apperror.Conflict("REQUEST_NOT_PENDING", "friend request has already been answered")
	ErrNotFriends         = apperror.Conflict("NOT_FRIENDS", "you are not friends with this user")
	ErrBlocked            = apperror.Forbidden("BLOCKED", "cannot send friend request to this user")
	ErrNotReceiver        = apperror.Forbidden("NOT_RECEIVER", "only the receiver can respond to this request")
	ErrInvalidFilter      = apperror.Validation("INVALID_FILTER", "type must be one of received, sent, both")
)

// UserDirectory resolves profiles
type UserDirectory interface {
	GetProfile(ctx context.Context, userID int64) (*auth.Profile, error)
}

// Service interface
type Service interface {
	SendRequest(ctx context.Context, senderID, receiverID int64) (*Friendship, error)
	Accept(ctx context.Context, userID, requestID int64) (*Friendship, error)
	Reject(ctx context.Context, userID, requestID int64) (*Friendship, error)
	Block(ctx context.Context, blockerID, targetID int64) (*Friendship, error)
	Remove(ctx context.Context, userID, friendID int64) error
	ListFriends(ctx context.Context, userID int64, page, limit int) (*FriendList, error)
	ListRequests(ctx context.Context, userID int64, filter RequestFilter) ([]*FriendView, error)
	Suggestions(ctx context.Context, userID int64, limit int) ([]*Suggestion, error)
	FriendshipStatus(ctx context.Context, a, b int64) (Status, error)
}

type service struct {
	repo   Repository
	users  UserDirectory
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new friends service
func NewService(repo Repository, users UserDirectory, logger *zap.Logger) Service {
	return &service{
		repo:   repo,
		users:  users,
		logger: logger.Named("friends"),
		now:    time.Now,
	}
}

// SendRequest opens a pending request. A previously rejected pair is
// reopened on the same record in the new direction.
func (s *service) SendRequest(ctx context.Context, senderID, receiverID int64) (*Friendship, error) {
	if senderID == receiverID {
		return nil, ErrSelfRequest
	}
	if err := s.ensureUser(ctx, receiverID); err != nil {
		return nil, err
	}

	var result *Friendship
	err := s.repo.WithTx(ctx, func(repo Repository) error {
		existing, err := repo.FindBetween(ctx, senderID, receiverID)
		if err != nil && !errors.Is(err, ErrFriendshipNotFound) {
			return err
		}

		now := s.now()
		if existing == nil {
			f := &Friendship{
				SenderID:    senderID,
				ReceiverID:  receiverID,
				Status:      StatusPending,
				RequestedAt: now,
			}
			if err := repo.Create(ctx, f); err != nil {
				return err
			}
			result = f
			return nil
		}

		switch existing.Status {
		case StatusAccepted:
			return ErrAlreadyFriends
		case StatusPending:
			return ErrRequestPending
		case StatusBlocked:
			return ErrBlocked
		}

		existing.SenderID = senderID
		existing.ReceiverID = receiverID
		existing.Status = StatusPending
		existing.RequestedAt = now
		existing.RespondedAt = nil
		if err := repo.Update(ctx, existing); err != nil {
			return err
		}
		result = existing
		return nil
	})
	if err != nil {
		return nil, classify(err, "failed to send friend request")
	}

	s.logger.Info("friend request sent",
		zap.Int64("request_id", result.ID),
		zap.Int64("sender_id", senderID),
		zap.Int64("receiver_id", receiverID))
	return result, nil
}

func (s *service) Accept(ctx context.Context, userID, requestID int64) (*Friendship, error) {
	return s.respond(ctx, userID, requestID, StatusAccepted)
}

func (s *service) Reject(ctx context.Context, userID, requestID int64) (*Friendship, error) {
	return s.respond(ctx, userID, requestID, StatusRejected)
}

// respond moves a pending request to a terminal answer. Only the receiver
// may answer.
func (s *service) respond(ctx context.Context, userID, requestID int64, status Status) (*Friendship, error) {
	var result *Friendship
	err := s.repo.WithTx(ctx, func(repo Repository) error {
		f, err := repo.FindByID(ctx, requestID)
		if err != nil {
			if errors.Is(err, ErrFriendshipNotFound) {
				return ErrRequestNotFound
			}
			return err
		}
		if f.ReceiverID != userID {
			return ErrNotReceiver
		}
		if f.Status != StatusPending {
			return ErrNotPending
		}

		now := s.now()
		f.Status = status
		f.RespondedAt = &now
		if err := repo.Update(ctx, f); err != nil {
			return err
		}
		result = f
		return nil
	})
	if err != nil {
		return nil, classify(err, "failed to respond to friend request")
	}

	s.logger.Info("friend request answered",
		zap.Int64("request_id", requestID),
		zap.String("status", string(status)))
	return result, nil
}

// Block replaces whatever relationship exists with a blocked one owned by
// the blocker
func (s *service) Block(ctx context.Context, blockerID, targetID int64) (*Friendship, error) {
	if blockerID == targetID {
		return nil, ErrSelfBlock
	}
	if err := s.ensureUser(ctx, targetID); err != nil {
		return nil, err
	}

	var result *Friendship
	err := s.repo.WithTx(ctx, func(repo Repository) error {
		existing, err := repo.FindBetween(ctx, blockerID, targetID)
		if err != nil && !errors.Is(err, ErrFriendshipNotFound) {
			return err
		}
		if existing != nil {
			if err := repo.Delete(ctx, existing.ID); err != nil {
				return err
			}
		}

		now := s.now()
		f := &Friendship{
			SenderID:    blockerID,
			ReceiverID:  targetID,
			Status:      StatusBlocked,
			RequestedAt: now,
			RespondedAt: &now,
		}
		if err := repo.Create(ctx, f); err != nil {
			return err
		}
		result = f
		return nil
	})
	if err != nil {
		return nil, classify(err, "failed to block user")
	}

	s.logger.Info("user blocked", zap.Int64("blocker_id", blockerID), zap.Int64("target_id", targetID))
	return result, nil
}

// Remove deletes an accepted friendship
func (s *service) Remove(ctx context.Context, userID, friendID int64) error {
	err := s.repo.WithTx(ctx, func(repo Repository) error {
		f, err := repo.FindBetween(ctx, userID, friendID)
		if err != nil {
			return err
		}
		if f.Status != StatusAccepted {
			return ErrNotFriends
		}
		return repo.Delete(ctx, f.ID)
	})
	if err != nil {
		return classify(err, "failed to remove friend")
	}

	s.logger.Info("friend removed", zap.Int64("user_id", userID), zap.Int64("friend_id", friendID))
	return nil
}

func (s *service) ListFriends(ctx context.Context, userID int64, page, limit int) (*FriendList, error) {
	total, err := s.repo.CountAccepted(ctx, userID)
	if err != nil {
		return nil, apperror.Internal("failed to count friends", err)
	}

	rows, err := s.repo.ListAccepted(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, apperror.Internal("failed to list friends", err)
	}

	views, err := s.views(ctx, userID, rows)
	if err != nil {
		return nil, err
	}

	totalPages := (total + limit - 1) / limit
	return &FriendList{
		Friends: views,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
			HasMore:    page < totalPages,
		},
	}, nil
}

func (s *service) ListRequests(ctx context.Context, userID int64, filter RequestFilter) ([]*FriendView, error) {
	switch filter {
	case "":
		filter = RequestsReceived
	case RequestsReceived, RequestsSent, RequestsBoth:
	default:
		return nil, ErrInvalidFilter
	}

	rows, err := s.repo.ListPending(ctx, userID, filter)
	if err != nil {
		return nil, apperror.Internal("failed to list friend requests", err)
	}
	return s.views(ctx, userID, rows)
}

// Suggestions returns up to limit friends of friends, most mutual friends
// first. limit is clamped to [1, MaxSuggestionLimit], zero meaning
// DefaultSuggestionLimit.
func (s *service) Suggestions(ctx context.Context, userID int64, limit int) ([]*Suggestion, error) {
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}
	if limit > MaxSuggestionLimit {
		limit = MaxSuggestionLimit
	}

	rows, err := s.repo.ListSuggestions(ctx, userID, limit)
	if err != nil {
		return nil, apperror.Internal("failed to load friend suggestions", err)
	}

	out := make([]*Suggestion, 0, len(rows))
	for _, sg := range rows {
		profile, err := s.users.GetProfile(ctx, sg.UserID)
		if err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				continue
			}
			return nil, apperror.Internal("failed to load profile", err)
		}
		sg.User = profile
		out = append(out, sg)
	}

	s.logger.Debug("friend suggestions generated",
		zap.Int64("user_id", userID),
		zap.Int("count", len(out)))
	return out, nil
}

// FriendshipStatus reports the relationship between a and b, StatusNone
// when there is no record
func (s *service) FriendshipStatus(ctx context.Context, a, b int64) (Status, error) {
	f, err := s.repo.FindBetween(ctx, a, b)
	if err != nil {
		if errors.Is(err, ErrFriendshipNotFound) {
			return StatusNone, nil
		}
		return StatusNone, apperror.Internal("failed to check friendship", err)
	}
	return f.Status, nil
}

func (s *service) views(ctx context.Context, userID int64, rows []*Friendship) ([]*FriendView, error) {
	views := make([]*FriendView, 0, len(rows))
	for _, f := range rows {
		profile, err := s.users.GetProfile(ctx, f.Other(userID))
		if err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				// account removed after the relationship was created
				continue
			}
			return nil, apperror.Internal("failed to load profile", err)
		}
		views = append(views, &FriendView{Friendship: f, User: profile})
	}
	return views, nil
}

func (s *service) ensureUser(ctx context.Context, userID int64) error {
	if _, err := s.users.GetProfile(ctx, userID); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return apperror.Internal("failed to load user", err)
	}
	return nil
}

// classify keeps domain errors and turns everything else into a server error
func classify(err error, message string) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.Internal(message, err)
}
