package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"chirp-dm/internal/domain/conversation"
	chirp_errors "chirp-dm/pkg/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var conversationCols = []string{"id", "participant_low", "participant_high", "last_message_id", "is_active", "created_at", "updated_at"}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestConversationRepository_FindOrCreate_Existing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewConversationRepository(db)

	a, b := uuid.New(), uuid.New()
	low, high := conversation.SortedPair(a, b)
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT id, participant_low").
		WithArgs(low, high).
		WillReturnRows(sqlmock.NewRows(conversationCols).
			AddRow(id.String(), low.String(), high.String(), nil, true, now, now))

	conv, created, err := repo.FindOrCreate(context.Background(), b, a)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, conv.ID)
	assert.False(t, conv.LastMessageID.Valid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_FindOrCreate_Creates(t *testing.T) {
	db, mock := newMock(t)
	repo := NewConversationRepository(db)

	a, b := uuid.New(), uuid.New()
	low, high := conversation.SortedPair(a, b)

	mock.ExpectQuery("SELECT id, participant_low").
		WithArgs(low, high).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO conversations").
		WithArgs(sqlmock.AnyArg(), low, high, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO conversation_participants").
		WithArgs(sqlmock.AnyArg(), low, high).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	conv, created, err := repo.FindOrCreate(context.Background(), a, b)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, low, conv.ParticipantLow)
	assert.Equal(t, high, conv.ParticipantHigh)
	assert.True(t, conv.IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_FindOrCreate_LosesRace(t *testing.T) {
	db, mock := newMock(t)
	repo := NewConversationRepository(db)

	a, b := uuid.New(), uuid.New()
	low, high := conversation.SortedPair(a, b)
	winner := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT id, participant_low").
		WithArgs(low, high).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO conversations").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT id, participant_low").
		WithArgs(low, high).
		WillReturnRows(sqlmock.NewRows(conversationCols).
			AddRow(winner.String(), low.String(), high.String(), nil, true, now, now))

	conv, created, err := repo.FindOrCreate(context.Background(), a, b)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, winner, conv.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_FindOrCreate_ReactivatesInactive(t *testing.T) {
	db, mock := newMock(t)
	repo := NewConversationRepository(db)

	a, b := uuid.New(), uuid.New()
	low, high := conversation.SortedPair(a, b)
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT id, participant_low").
		WithArgs(low, high).
		WillReturnRows(sqlmock.NewRows(conversationCols).
			AddRow(id.String(), low.String(), high.String(), nil, false, now, now))
	mock.ExpectExec("UPDATE conversations SET is_active = TRUE").
		WithArgs(id, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	conv, created, err := repo.FindOrCreate(context.Background(), a, b)
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, conv.IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_GetForParticipant_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewConversationRepository(db)

	convID, userID := uuid.New(), uuid.New()
	mock.ExpectQuery("FROM conversations").
		WithArgs(convID, userID).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetForParticipant(context.Background(), convID, userID)
	assert.ErrorIs(t, err, chirp_errors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_ListForUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewConversationRepository(db)

	me, other, third := uuid.New(), uuid.New(), uuid.New()
	low1, high1 := conversation.SortedPair(me, other)
	low2, high2 := conversation.SortedPair(me, third)
	conv1, conv2, msgID := uuid.New(), uuid.New(), uuid.New()
	now := time.Now()

	cols := append(append([]string{}, conversationCols...),
		"unread_count", "m_id", "seq", "sender_id", "recipient_id", "content", "status", "is_read",
		"m_created_at", "delivered_at", "m_updated_at")
	rows := sqlmock.NewRows(cols).
		AddRow(conv1.String(), low1.String(), high1.String(), msgID.String(), true, now, now,
			2, msgID.String(), int64(7), other.String(), me.String(), "hi", "sent", false, now, nil, now).
		AddRow(conv2.String(), low2.String(), high2.String(), nil, true, now, now.Add(-time.Hour),
			0, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil)

	mock.ExpectQuery("FROM conversation_participants p").
		WithArgs(me).
		WillReturnRows(rows)

	list, err := repo.ListForUser(context.Background(), me)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, other, list[0].OtherParticipantID)
	assert.Equal(t, 2, list[0].UnreadCount)
	require.NotNil(t, list[0].LastMessage)
	assert.Equal(t, "hi", list[0].LastMessage.Content)
	assert.Equal(t, int64(7), list[0].LastMessage.Seq)

	assert.Equal(t, third, list[1].OtherParticipantID)
	assert.Nil(t, list[1].LastMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_UnreadTotal(t *testing.T) {
	db, mock := newMock(t)
	repo := NewConversationRepository(db)

	userID := uuid.New()
	mock.ExpectQuery(`COALESCE\(SUM\(p.unread_count\), 0\)`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(5))

	total, err := repo.UnreadTotal(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_Delete(t *testing.T) {
	db, mock := newMock(t)
	repo := NewConversationRepository(db)

	convID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM messages WHERE conversation_id").
		WithArgs(convID).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM conversations WHERE id").
		WithArgs(convID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), convID))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_Delete_Missing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewConversationRepository(db)

	convID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM messages WHERE conversation_id").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM conversations WHERE id").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), convID)
	assert.ErrorIs(t, err, chirp_errors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
