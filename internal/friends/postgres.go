// internal/friends/postgres.go

package friends

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/imadgeboyega/kiekky-chat/internal/common/database"
)

type postgresRepository struct {
	root *sqlx.DB
	db   database.DBTX
	// set inside transactions so finders take row locks
	locking bool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{root: db, db: db}
}

const friendshipColumns = `id, sender_id, receiver_id, status, requested_at, responded_at, created_at, updated_at`

func (r *postgresRepository) lockClause() string {
	if r.locking {
		return " FOR UPDATE"
	}
	return ""
}

func (r *postgresRepository) get(ctx context.Context, query string, args ...interface{}) (*Friendship, error) {
	var f Friendship
	if err := r.db.GetContext(ctx, &f, query+r.lockClause(), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFriendshipNotFound
		}
		return nil, fmt.Errorf("failed to get friendship: %w", err)
	}
	return &f, nil
}

func (r *postgresRepository) FindByID(ctx context.Context, id int64) (*Friendship, error) {
	return r.get(ctx, `SELECT `+friendshipColumns+` FROM friendships WHERE id = $1`, id)
}

// FindBetween looks up the pair in either direction via the canonical key
func (r *postgresRepository) FindBetween(ctx context.Context, a, b int64) (*Friendship, error) {
	return r.get(ctx, `
		SELECT `+friendshipColumns+` FROM friendships
		WHERE pair_low = LEAST($1::BIGINT, $2::BIGINT) AND pair_high = GREATEST($1::BIGINT, $2::BIGINT)`, a, b)
}

func (r *postgresRepository) Create(ctx context.Context, f *Friendship) error {
	query := `
		INSERT INTO friendships (sender_id, receiver_id, pair_low, pair_high, status, requested_at, responded_at)
		VALUES ($1, $2, LEAST($1::BIGINT, $2::BIGINT), GREATEST($1::BIGINT, $2::BIGINT), $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		f.SenderID, f.ReceiverID, f.Status, f.RequestedAt, f.RespondedAt,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrRelationshipExists
		}
		return fmt.Errorf("failed to create friendship: %w", err)
	}
	return nil
}

func (r *postgresRepository) Update(ctx context.Context, f *Friendship) error {
	query := `
		UPDATE friendships
		SET sender_id = $2, receiver_id = $3, status = $4, requested_at = $5, responded_at = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		f.ID, f.SenderID, f.ReceiverID, f.Status, f.RequestedAt, f.RespondedAt,
	).Scan(&f.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrFriendshipNotFound
		}
		return fmt.Errorf("failed to update friendship: %w", err)
	}
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM friendships WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete friendship: %w", err)
	}
	return nil
}

func (r *postgresRepository) ListAccepted(ctx context.Context, userID int64, limit, offset int) ([]*Friendship, error) {
	query := `
		SELECT ` + friendshipColumns + ` FROM friendships
		WHERE status = 'accepted' AND (sender_id = $1 OR receiver_id = $1)
		ORDER BY responded_at DESC NULLS LAST, id DESC
		LIMIT $2 OFFSET $3`

	var out []*Friendship
	if err := r.db.SelectContext(ctx, &out, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	return out, nil
}

func (r *postgresRepository) CountAccepted(ctx context.Context, userID int64) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM friendships WHERE status = 'accepted' AND (sender_id = $1 OR receiver_id = $1)`
	if err := r.db.GetContext(ctx, &n, query, userID); err != nil {
		return 0, fmt.Errorf("failed to count friends: %w", err)
	}
	return n, nil
}

func (r *postgresRepository) ListPending(ctx context.Context, userID int64, filter RequestFilter) ([]*Friendship, error) {
	var where string
	switch filter {
	case RequestsSent:
		where = `sender_id = $1`
	case RequestsReceived:
		where = `receiver_id = $1`
	default:
		where = `(sender_id = $1 OR receiver_id = $1)`
	}

	query := `SELECT ` + friendshipColumns + ` FROM friendships WHERE status = 'pending' AND ` + where + ` ORDER BY requested_at DESC`

	var out []*Friendship
	if err := r.db.SelectContext(ctx, &out, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	return out, nil
}

func (r *postgresRepository) ListSuggestions(ctx context.Context, userID int64, limit int) ([]*Suggestion, error) {
	query := `
		WITH mine AS (
			SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS friend_id
			FROM friendships
			WHERE status = 'accepted' AND (sender_id = $1 OR receiver_id = $1)
		), candidates AS (
			SELECT CASE WHEN f.sender_id = m.friend_id THEN f.receiver_id ELSE f.sender_id END AS user_id
			FROM friendships f
			JOIN mine m ON f.sender_id = m.friend_id OR f.receiver_id = m.friend_id
			WHERE f.status = 'accepted'
		)
		SELECT c.user_id, COUNT(*) AS mutual_friends
		FROM candidates c
		WHERE c.user_id <> $1
		  AND NOT EXISTS (
		      SELECT 1 FROM friendships x
		      WHERE x.pair_low = LEAST($1::BIGINT, c.user_id) AND x.pair_high = GREATEST($1::BIGINT, c.user_id)
		  )
		GROUP BY c.user_id
		ORDER BY mutual_friends DESC, c.user_id
		LIMIT $2`

	var out []*Suggestion
	if err := r.db.SelectContext(ctx, &out, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	return out, nil
}

func (r *postgresRepository) WithTx(ctx context.Context, fn func(repo Repository) error) error {
	if r.locking {
		return fn(r)
	}
	return database.WithTx(ctx, r.root, func(tx *sqlx.Tx) error {
		return fn(&postgresRepository{root: r.root, db: tx, locking: true})
	})
}
