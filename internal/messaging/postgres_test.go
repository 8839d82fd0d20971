package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	messageRowColumns = []string{
		"id", "conversation_id", "sender_id", "content", "type", "shared_post",
		"is_edited", "edited_at", "is_deleted", "deleted_at", "created_at", "updated_at",
	}
	conversationRowColumns = []string{
		"id", "type", "name", "participant_ids", "last_message_id", "last_activity",
		"is_archived", "created_at", "updated_at",
		"lm_sender_id", "lm_content", "lm_type", "lm_created_at",
	}
	receiptColumns = []string{"message_id", "user_id", "read_at"}
)

func newMockRepository(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewPostgresRepository(sqlx.NewDb(db, "postgres")), mock
}

func sqlPattern(query string) string {
	return regexp.QuoteMeta(query)
}

func addMessageRow(rows *sqlmock.Rows, id int64, content string, shared interface{}) *sqlmock.Rows {
	return rows.AddRow(id, 4, 1, content, "text", shared, false, nil, false, nil, baseTime, baseTime)
}

func TestGetMessageWithNullSharedPost(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(sqlPattern("FROM messages WHERE id = $1")).
		WithArgs(7).
		WillReturnRows(addMessageRow(sqlmock.NewRows(messageRowColumns), 7, "plain text", nil))
	mock.ExpectQuery(sqlPattern("FROM message_reads WHERE message_id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(receiptColumns).AddRow(7, 2, baseTime))

	msg, err := repo.GetMessage(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "plain text", msg.Content)
	assert.Nil(t, msg.SharedPost)
	require.Len(t, msg.ReadBy, 1)
	assert.Equal(t, int64(2), msg.ReadBy[0].UserID)

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sharedPost")
}

func TestGetMessageNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(sqlPattern("FROM messages WHERE id = $1")).
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows(messageRowColumns))

	_, err := repo.GetMessage(context.Background(), 99)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestListMessagesMixesNullAndSharedPosts(t *testing.T) {
	repo, mock := newMockRepository(t)

	rows := sqlmock.NewRows(messageRowColumns)
	addMessageRow(rows, 11, "look at this", []byte(`{"postId":7}`))
	addMessageRow(rows, 10, "hello", nil)

	mock.ExpectQuery(sqlPattern("FROM messages WHERE conversation_id = $1 AND is_deleted = false ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3")).
		WithArgs(4, 50, 0).
		WillReturnRows(rows)
	mock.ExpectQuery(sqlPattern("FROM message_reads WHERE message_id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(receiptColumns).AddRow(10, 2, baseTime))

	msgs, err := repo.ListMessages(context.Background(), 4, 50, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	require.NotNil(t, msgs[0].SharedPost)
	assert.JSONEq(t, `{"postId":7}`, string(*msgs[0].SharedPost))
	assert.Empty(t, msgs[0].ReadBy)
	assert.NotNil(t, msgs[0].ReadBy)

	assert.Nil(t, msgs[1].SharedPost)
	require.Len(t, msgs[1].ReadBy, 1)
}

func TestLatestMessageWithNullSharedPost(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(sqlPattern("WHERE conversation_id = $1 AND is_deleted = false ORDER BY created_at DESC, id DESC LIMIT 1")).
		WithArgs(4).
		WillReturnRows(addMessageRow(sqlmock.NewRows(messageRowColumns), 12, "latest", nil))

	msg, err := repo.LatestMessage(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, int64(12), msg.ID)
	assert.Nil(t, msg.SharedPost)

	mock.ExpectQuery(sqlPattern("LIMIT 1")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(messageRowColumns))
	_, err = repo.LatestMessage(context.Background(), 5)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestCreateMessageBindsSharedPost(t *testing.T) {
	repo, mock := newMockRepository(t)
	ctx := context.Background()

	mock.ExpectQuery(sqlPattern("INSERT INTO messages")).
		WithArgs(4, 1, "hi", MessageText, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(20, baseTime, baseTime))

	text := &Message{ConversationID: 4, SenderID: 1, Content: "hi", Type: MessageText}
	require.NoError(t, repo.CreateMessage(ctx, text))
	assert.Equal(t, int64(20), text.ID)
	assert.NotNil(t, text.ReadBy)

	post := json.RawMessage(`{"postId":7}`)
	mock.ExpectQuery(sqlPattern("INSERT INTO messages")).
		WithArgs(4, 1, "look", MessageShare, `{"postId":7}`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(21, baseTime, baseTime))

	share := &Message{ConversationID: 4, SenderID: 1, Content: "look", Type: MessageShare, SharedPost: &post}
	require.NoError(t, repo.CreateMessage(ctx, share))
	assert.Equal(t, int64(21), share.ID)
}

func TestConversationLastMessagePreview(t *testing.T) {
	repo, mock := newMockRepository(t)

	rows := sqlmock.NewRows(conversationRowColumns).
		AddRow(4, "private", nil, []byte("{1,2}"), 9, baseTime, false, baseTime, baseTime, 1, "hi", "text", baseTime)
	mock.ExpectQuery(sqlPattern("LEFT JOIN messages lm ON lm.id = c.last_message_id AND lm.is_deleted = false WHERE c.id = $1")).
		WithArgs(4).
		WillReturnRows(rows)

	conv, err := repo.FindConversationByID(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, pq.Int64Array{1, 2}, conv.ParticipantIDs)
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, int64(9), conv.LastMessage.ID)
	assert.Equal(t, int64(1), conv.LastMessage.SenderID)
	assert.Equal(t, "hi", conv.LastMessage.Content)
	assert.Equal(t, MessageText, conv.LastMessage.Type)
}

func TestFindConversationsForUserWithoutLastMessage(t *testing.T) {
	repo, mock := newMockRepository(t)

	rows := sqlmock.NewRows(conversationRowColumns).
		// fresh conversation
		AddRow(5, "private", nil, []byte("{1,3}"), nil, baseTime, false, baseTime, baseTime, nil, nil, nil, nil).
		// last message was soft deleted so the join finds nothing
		AddRow(4, "private", nil, []byte("{1,2}"), 9, baseTime, false, baseTime, baseTime, nil, nil, nil, nil)
	mock.ExpectQuery(sqlPattern("WHERE $1 = ANY(c.participant_ids) AND c.is_archived = false")).
		WithArgs(1).
		WillReturnRows(rows)

	convs, err := repo.FindConversationsForUser(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Nil(t, convs[0].LastMessageID)
	assert.Nil(t, convs[0].LastMessage)
	require.NotNil(t, convs[1].LastMessageID)
	assert.Nil(t, convs[1].LastMessage)
}

func TestFindConversationBetweenUsesCanonicalPair(t *testing.T) {
	repo, mock := newMockRepository(t)
	ctx := context.Background()

	for _, pair := range [][2]int64{{5, 2}, {2, 5}} {
		mock.ExpectQuery(sqlPattern("WHERE c.type = 'private' AND c.pair_low = $1 AND c.pair_high = $2")).
			WithArgs(2, 5).
			WillReturnRows(sqlmock.NewRows(conversationRowColumns).
				AddRow(6, "private", nil, []byte("{5,2}"), nil, baseTime, false, baseTime, baseTime, nil, nil, nil, nil))

		conv, err := repo.FindConversationBetween(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.Equal(t, int64(6), conv.ID)
	}

	mock.ExpectQuery(sqlPattern("c.pair_low = $1")).
		WithArgs(1, 8).
		WillReturnRows(sqlmock.NewRows(conversationRowColumns))
	_, err := repo.FindConversationBetween(ctx, 8, 1)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestCreatePrivateConversationDuplicate(t *testing.T) {
	repo, mock := newMockRepository(t)
	ctx := context.Background()

	mock.ExpectQuery(sqlPattern("INSERT INTO conversations")).
		WithArgs(sqlmock.AnyArg(), 2, 5).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := repo.CreatePrivateConversation(ctx, 5, 2)
	assert.ErrorIs(t, err, ErrDuplicateConversation)

	mock.ExpectQuery(sqlPattern("INSERT INTO conversations")).
		WithArgs(sqlmock.AnyArg(), 2, 5).
		WillReturnError(errors.New("connection reset"))

	_, err = repo.CreatePrivateConversation(ctx, 2, 5)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateConversation)
}

func TestMarkMessageReadIsIdempotent(t *testing.T) {
	repo, mock := newMockRepository(t)
	ctx := context.Background()

	mock.ExpectExec(sqlPattern("ON CONFLICT (message_id, user_id) DO NOTHING")).
		WithArgs(7, 2, baseTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(sqlPattern("ON CONFLICT (message_id, user_id) DO NOTHING")).
		WithArgs(7, 2, baseTime).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.MarkMessageRead(ctx, 7, 2, baseTime)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.MarkMessageRead(ctx, 7, 2, baseTime)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestSoftDeleteMessageMissingRow(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(sqlPattern("UPDATE messages SET is_deleted = true")).
		WithArgs(7, baseTime).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.SoftDeleteMessage(context.Background(), 7, baseTime), ErrMessageNotFound)
}

func TestWithTxRollsBackWhenConversationMissing(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery(sqlPattern("INSERT INTO messages")).
		WithArgs(4, 1, "hi", MessageText, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(20, baseTime, baseTime))
	mock.ExpectExec(sqlPattern("UPDATE conversations SET last_message_id = $2")).
		WithArgs(4, 20, baseTime).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	msg := &Message{ConversationID: 4, SenderID: 1, Content: "hi", Type: MessageText}
	err := repo.WithTx(context.Background(), func(tx Repository) error {
		if err := tx.CreateMessage(context.Background(), msg); err != nil {
			return err
		}
		return tx.UpdateConversationActivity(context.Background(), 4, &msg.ID, msg.CreatedAt)
	})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}
