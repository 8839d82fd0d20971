// internal/friends/models.go

package friends

import (
	"time"

	"github.com/imadgeboyega/kiekky-chat/internal/auth"
)

// Status of a relationship between two users
type Status string

const (
	StatusNone     Status = "none"
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusBlocked  Status = "blocked"
)

// Friendship is the single relationship record for an unordered pair
type Friendship struct {
	ID          int64      `json:"id" db:"id"`
	SenderID    int64      `json:"senderId" db:"sender_id"`
	ReceiverID  int64      `json:"receiverId" db:"receiver_id"`
	Status      Status     `json:"status" db:"status"`
	RequestedAt time.Time  `json:"requestedAt" db:"requested_at"`
	RespondedAt *time.Time `json:"respondedAt,omitempty" db:"responded_at"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
}

// Other returns the id of the participant that is not userID
func (f *Friendship) Other(userID int64) int64 {
	if f.SenderID == userID {
		return f.ReceiverID
	}
	return f.SenderID
}

// Involves reports whether userID is one side of the relationship
func (f *Friendship) Involves(userID int64) bool {
	return f.SenderID == userID || f.ReceiverID == userID
}

// RequestFilter selects which pending requests to list
type RequestFilter string

const (
	RequestsReceived RequestFilter = "received"
	RequestsSent     RequestFilter = "sent"
	RequestsBoth     RequestFilter = "both"
)

// SendRequestBody is the payload for POST /friends/requests
type SendRequestBody struct {
	ReceiverID int64 `json:"receiverId" validate:"required,gt=0"`
}

// FriendView pairs a relationship with the other user's profile
type FriendView struct {
	Friendship *Friendship   `json:"friendship"`
	User       *auth.Profile `json:"user"`
}

// FriendList is one page of accepted friends
type FriendList struct {
	Friends    []*FriendView `json:"friends"`
	Pagination Pagination    `json:"pagination"`
}

// Suggestion is a friend of a friend the user has no relationship with
type Suggestion struct {
	UserID        int64         `json:"-" db:"user_id"`
	MutualFriends int           `json:"mutualFriends" db:"mutual_friends"`
	User          *auth.Profile `json:"user" db:"-"`
}

const (
	DefaultSuggestionLimit = 10
	MaxSuggestionLimit     = 50
)

// Pagination describes a page of results
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasMore    bool `json:"hasMore"`
}
