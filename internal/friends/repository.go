// internal/friends/repository.go

package friends

import "context"

// Repository defines friendship persistence. Finders return
// ErrFriendshipNotFound when nothing matches.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*Friendship, error)
	FindBetween(ctx context.Context, a, b int64) (*Friendship, error)
	Create(ctx context.Context, f *Friendship) error
	Update(ctx context.Context, f *Friendship) error
	Delete(ctx context.Context, id int64) error

	ListAccepted(ctx context.Context, userID int64, limit, offset int) ([]*Friendship, error)
	CountAccepted(ctx context.Context, userID int64) (int, error)
	ListPending(ctx context.Context, userID int64, filter RequestFilter) ([]*Friendship, error)

	// ListSuggestions ranks friends of friends by mutual friend count,
	// skipping userID and anyone with an existing record against userID
	ListSuggestions(ctx context.Context, userID int64, limit int) ([]*Suggestion, error)

	// WithTx runs fn against a transactional repository. Finders inside
	// fn lock the rows they return.
	WithTx(ctx context.Context, fn func(repo Repository) error) error
}
