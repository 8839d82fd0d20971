// internal/messaging/postgres.go

package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/imadgeboyega/kiekky-chat/internal/common/database"
)

type postgresRepository struct {
	root *sqlx.DB
	db   database.DBTX
	inTx bool
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{root: db, db: db}
}

func (r *postgresRepository) WithTx(ctx context.Context, fn func(repo Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	return database.WithTx(ctx, r.root, func(tx *sqlx.Tx) error {
		return fn(&postgresRepository{root: r.root, db: tx, inTx: true})
	})
}

// Conversations

const conversationSelect = `
	SELECT c.id, c.type, c.name, c.participant_ids, c.last_message_id, c.last_activity,
	       c.is_archived, c.created_at, c.updated_at,
	       lm.sender_id AS lm_sender_id, lm.content AS lm_content,
	       lm.type AS lm_type, lm.created_at AS lm_created_at
	FROM conversations c
	LEFT JOIN messages lm ON lm.id = c.last_message_id AND lm.is_deleted = false`

type conversationRow struct {
	Conversation
	LastSenderID  sql.NullInt64  `db:"lm_sender_id"`
	LastContent   sql.NullString `db:"lm_content"`
	LastType      sql.NullString `db:"lm_type"`
	LastCreatedAt sql.NullTime   `db:"lm_created_at"`
}

func (row *conversationRow) toConversation() *Conversation {
	conv := row.Conversation
	if conv.LastMessageID != nil && row.LastSenderID.Valid {
		conv.LastMessage = &MessagePreview{
			ID:        *conv.LastMessageID,
			SenderID:  row.LastSenderID.Int64,
			Content:   row.LastContent.String,
			Type:      MessageType(row.LastType.String),
			CreatedAt: row.LastCreatedAt.Time,
		}
	}
	return &conv
}

func (r *postgresRepository) getConversation(ctx context.Context, where string, args ...interface{}) (*Conversation, error) {
	var row conversationRow
	if err := r.db.GetContext(ctx, &row, conversationSelect+" "+where, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return row.toConversation(), nil
}

func (r *postgresRepository) FindConversationByID(ctx context.Context, id int64) (*Conversation, error) {
	return r.getConversation(ctx, `WHERE c.id = $1`, id)
}

func (r *postgresRepository) FindConversationBetween(ctx context.Context, a, b int64) (*Conversation, error) {
	low, high := orderedPair(a, b)
	return r.getConversation(ctx, `WHERE c.type = 'private' AND c.pair_low = $1 AND c.pair_high = $2`, low, high)
}

func (r *postgresRepository) FindConversationsForUser(ctx context.Context, userID int64) ([]*Conversation, error) {
	query := conversationSelect + `
		WHERE $1 = ANY(c.participant_ids) AND c.is_archived = false
		ORDER BY c.last_activity DESC, c.id DESC`

	var rows []conversationRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	out := make([]*Conversation, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toConversation())
	}
	return out, nil
}

func (r *postgresRepository) CreatePrivateConversation(ctx context.Context, a, b int64) (*Conversation, error) {
	low, high := orderedPair(a, b)
	query := `
		INSERT INTO conversations (type, participant_ids, pair_low, pair_high, last_activity)
		VALUES ('private', $1, $2, $3, NOW())
		RETURNING id, type, name, participant_ids, last_message_id, last_activity, is_archived, created_at, updated_at`

	var conv Conversation
	err := r.db.GetContext(ctx, &conv, query, pq.Int64Array{a, b}, low, high)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrDuplicateConversation
		}
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return &conv, nil
}

func (r *postgresRepository) UpdateConversationActivity(ctx context.Context, id int64, lastMessageID *int64, at time.Time) error {
	query := `
		UPDATE conversations
		SET last_message_id = $2, last_activity = GREATEST(last_activity, $3), updated_at = NOW()
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, lastMessageID, at)
	if err != nil {
		return fmt.Errorf("failed to update conversation activity: %w", err)
	}
	return expectRow(res, ErrConversationNotFound)
}

func (r *postgresRepository) SetConversationArchived(ctx context.Context, id int64, archived bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE conversations SET is_archived = $2, updated_at = NOW() WHERE id = $1`, id, archived)
	if err != nil {
		return fmt.Errorf("failed to archive conversation: %w", err)
	}
	return expectRow(res, ErrConversationNotFound)
}

// Messages

const messageColumns = `id, conversation_id, sender_id, content, type, shared_post,
	is_edited, edited_at, is_deleted, deleted_at, created_at, updated_at`

func (r *postgresRepository) CreateMessage(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO messages (conversation_id, sender_id, content, type, shared_post)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	var shared interface{}
	if msg.SharedPost != nil && len(*msg.SharedPost) > 0 {
		shared = string(*msg.SharedPost)
	}

	err := r.db.QueryRowxContext(ctx, query,
		msg.ConversationID, msg.SenderID, msg.Content, msg.Type, shared,
	).Scan(&msg.ID, &msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	msg.ReadBy = []ReadReceipt{}
	return nil
}

func (r *postgresRepository) GetMessage(ctx context.Context, id int64) (*Message, error) {
	var msg Message
	if err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	if err := r.attachReceipts(ctx, []*Message{&msg}); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *postgresRepository) ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]*Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE conversation_id = $1 AND is_deleted = false
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	var msgs []*Message
	if err := r.db.SelectContext(ctx, &msgs, query, conversationID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	if err := r.attachReceipts(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// attachReceipts loads readBy for msgs in one query
func (r *postgresRepository) attachReceipts(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(msgs))
	byID := make(map[int64]*Message, len(msgs))
	for _, m := range msgs {
		m.ReadBy = []ReadReceipt{}
		ids = append(ids, m.ID)
		byID[m.ID] = m
	}

	var receipts []ReadReceipt
	query := `SELECT message_id, user_id, read_at FROM message_reads WHERE message_id = ANY($1) ORDER BY read_at, user_id`
	if err := r.db.SelectContext(ctx, &receipts, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to load read receipts: %w", err)
	}

	for _, rc := range receipts {
		if m, ok := byID[rc.MessageID]; ok {
			m.ReadBy = append(m.ReadBy, rc)
		}
	}
	return nil
}

func (r *postgresRepository) CountMessages(ctx context.Context, conversationID int64) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM messages WHERE conversation_id = $1 AND is_deleted = false`
	if err := r.db.GetContext(ctx, &n, query, conversationID); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func (r *postgresRepository) MarkMessageRead(ctx context.Context, messageID, userID int64, at time.Time) (bool, error) {
	query := `
		INSERT INTO message_reads (message_id, user_id, read_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id, user_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query, messageID, userID, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark message read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark message read: %w", err)
	}
	return n == 1, nil
}

func (r *postgresRepository) CountUnread(ctx context.Context, conversationID, userID int64) (int, error) {
	query := `
		SELECT COUNT(*) FROM messages m
		WHERE m.conversation_id = $1
		  AND m.sender_id <> $2
		  AND m.is_deleted = false
		  AND NOT EXISTS (
		      SELECT 1 FROM message_reads mr WHERE mr.message_id = m.id AND mr.user_id = $2
		  )`

	var n int
	if err := r.db.GetContext(ctx, &n, query, conversationID, userID); err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return n, nil
}

func (r *postgresRepository) DeleteConversationMessages(ctx context.Context, conversationID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return n, nil
}

func (r *postgresRepository) UpdateMessageContent(ctx context.Context, id int64, content string, at time.Time) error {
	query := `
		UPDATE messages SET content = $2, is_edited = true, edited_at = $3, updated_at = NOW()
		WHERE id = $1 AND is_deleted = false`

	res, err := r.db.ExecContext(ctx, query, id, content, at)
	if err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return expectRow(res, ErrMessageNotFound)
}

func (r *postgresRepository) SoftDeleteMessage(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE messages SET is_deleted = true, deleted_at = $2, updated_at = NOW()
		WHERE id = $1 AND is_deleted = false`

	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return expectRow(res, ErrMessageNotFound)
}

func (r *postgresRepository) LatestMessage(ctx context.Context, conversationID int64) (*Message, error) {
	var msg Message
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE conversation_id = $1 AND is_deleted = false
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	if err := r.db.GetContext(ctx, &msg, query, conversationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get latest message: %w", err)
	}
	return &msg, nil
}

// Push tokens

func (r *postgresRepository) SavePushToken(ctx context.Context, userID int64, token, platform string) error {
	query := `
		INSERT INTO push_tokens (user_id, token, platform)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform`

	if _, err := r.db.ExecContext(ctx, query, userID, token, platform); err != nil {
		return fmt.Errorf("failed to save push token: %w", err)
	}
	return nil
}

func (r *postgresRepository) DeletePushToken(ctx context.Context, userID int64, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM push_tokens WHERE user_id = $1 AND token = $2`, userID, token); err != nil {
		return fmt.Errorf("failed to delete push token: %w", err)
	}
	return nil
}

func (r *postgresRepository) PurgePushToken(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM push_tokens WHERE token = $1`, token); err != nil {
		return fmt.Errorf("failed to purge push token: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetUserPushTokens(ctx context.Context, userID int64) ([]*PushToken, error) {
	var tokens []*PushToken
	query := `SELECT id, user_id, token, platform, created_at FROM push_tokens WHERE user_id = $1 ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &tokens, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get push tokens: %w", err)
	}
	return tokens, nil
}

func orderedPair(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
