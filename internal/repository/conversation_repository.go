package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chirp-dm/internal/domain/conversation"
	"chirp-dm/internal/domain/message"
	chirp_errors "chirp-dm/pkg/errors"

	"github.com/google/uuid"
)

const conversationColumns = `id, participant_low, participant_high, last_message_id, is_active, created_at, updated_at`

type conversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) ConversationRepository {
	return &conversationRepository{db: db}
}

func scanConversation(row rowScanner) (conversation.Conversation, error) {
	var c conversation.Conversation
	err := row.Scan(
		&c.ID,
		&c.ParticipantLow,
		&c.ParticipantHigh,
		&c.LastMessageID,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

func (r *conversationRepository) getByPair(ctx context.Context, db DBTX, low, high uuid.UUID) (conversation.Conversation, error) {
	c, err := scanConversation(db.QueryRowContext(ctx, `
        SELECT `+conversationColumns+`
        FROM conversations
        WHERE participant_low = $1 AND participant_high = $2
    `, low, high))
	if errors.Is(err, sql.ErrNoRows) {
		return conversation.Conversation{}, chirp_errors.ErrNotFound
	}
	return c, err
}

func (r *conversationRepository) FindOrCreate(ctx context.Context, userA, userB uuid.UUID) (conversation.Conversation, bool, error) {
	low, high := conversation.SortedPair(userA, userB)

	existing, err := r.getByPair(ctx, r.db, low, high)
	if err == nil {
		if !existing.IsActive {
			return r.reactivate(ctx, existing)
		}
		return existing, false, nil
	}
	if !errors.Is(err, chirp_errors.ErrNotFound) {
		return conversation.Conversation{}, false, err
	}

	now := time.Now().UTC()
	created := conversation.Conversation{
		ID:              uuid.New(),
		ParticipantLow:  low,
		ParticipantHigh: high,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = WithTx(ctx, r.db, func(tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO conversations (id, participant_low, participant_high, is_active, created_at, updated_at)
            VALUES ($1,$2,$3,$4,$5,$6)
        `, created.ID, low, high, true, now, now); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
            INSERT INTO conversation_participants (conversation_id, user_id, unread_count)
            VALUES ($1,$2,0), ($1,$3,0)
        `, created.ID, low, high)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			// lost the race to the other participant; use their row
			winner, getErr := r.getByPair(ctx, r.db, low, high)
			return winner, false, getErr
		}
		return conversation.Conversation{}, false, err
	}
	return created, true, nil
}

func (r *conversationRepository) reactivate(ctx context.Context, c conversation.Conversation) (conversation.Conversation, bool, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
        UPDATE conversations SET is_active = TRUE, updated_at = $2 WHERE id = $1
    `, c.ID, now)
	if err != nil {
		return conversation.Conversation{}, false, err
	}
	c.IsActive = true
	c.UpdatedAt = now
	return c, false, nil
}

func (r *conversationRepository) GetForParticipant(ctx context.Context, conversationID, userID uuid.UUID) (conversation.Conversation, error) {
	c, err := scanConversation(r.db.QueryRowContext(ctx, `
        SELECT `+conversationColumns+`
        FROM conversations
        WHERE id = $1 AND is_active = TRUE AND (participant_low = $2 OR participant_high = $2)
    `, conversationID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return conversation.Conversation{}, chirp_errors.ErrNotFound
	}
	return c, err
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]conversation.Summary, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT c.id, c.participant_low, c.participant_high, c.last_message_id, c.is_active, c.created_at, c.updated_at,
               p.unread_count,
               m.id, m.seq, m.sender_id, m.recipient_id, m.content, m.status, m.is_read, m.created_at, m.delivered_at, m.updated_at
        FROM conversation_participants p
        JOIN conversations c ON c.id = p.conversation_id
        LEFT JOIN messages m ON m.id = c.last_message_id
        WHERE p.user_id = $1 AND c.is_active = TRUE
        ORDER BY c.updated_at DESC
    `, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []conversation.Summary
	for rows.Next() {
		var (
			s           conversation.Summary
			msgID       uuid.NullUUID
			seq         sql.NullInt64
			senderID    uuid.NullUUID
			recipientID uuid.NullUUID
			content     sql.NullString
			status      sql.NullString
			isRead      sql.NullBool
			createdAt   sql.NullTime
			deliveredAt sql.NullTime
			updatedAt   sql.NullTime
		)
		if err := rows.Scan(
			&s.ID,
			&s.ParticipantLow,
			&s.ParticipantHigh,
			&s.LastMessageID,
			&s.IsActive,
			&s.CreatedAt,
			&s.UpdatedAt,
			&s.UnreadCount,
			&msgID,
			&seq,
			&senderID,
			&recipientID,
			&content,
			&status,
			&isRead,
			&createdAt,
			&deliveredAt,
			&updatedAt,
		); err != nil {
			return nil, err
		}
		s.OtherParticipantID = s.OtherParticipant(userID)
		if msgID.Valid {
			s.LastMessage = &message.Message{
				ID:             msgID.UUID,
				Seq:            seq.Int64,
				ConversationID: s.ID,
				SenderID:       senderID.UUID,
				RecipientID:    recipientID.UUID,
				Content:        content.String,
				Status:         message.Status(status.String),
				IsRead:         isRead.Bool,
				CreatedAt:      createdAt.Time,
				DeliveredAt:    deliveredAt,
				UpdatedAt:      updatedAt.Time,
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *conversationRepository) UnreadCount(ctx context.Context, conversationID, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
        SELECT unread_count FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2
    `, conversationID, userID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, chirp_errors.ErrNotFound
	}
	return count, err
}

func (r *conversationRepository) UnreadTotal(ctx context.Context, userID uuid.UUID) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `
        SELECT COALESCE(SUM(p.unread_count), 0)
        FROM conversation_participants p
        JOIN conversations c ON c.id = p.conversation_id
        WHERE p.user_id = $1 AND c.is_active = TRUE
    `, userID).Scan(&total)
	return total, err
}

// Delete removes the conversation with its messages. Participant rows and read
// receipts go with them through ON DELETE CASCADE.
func (r *conversationRepository) Delete(ctx context.Context, conversationID uuid.UUID) error {
	return WithTx(ctx, r.db, func(tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = $1`, conversationID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, conversationID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return chirp_errors.ErrNotFound
		}
		return nil
	})
}
