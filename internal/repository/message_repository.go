package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chirp-dm/internal/domain/message"
	chirp_errors "chirp-dm/pkg/errors"

	"github.com/google/uuid"
)

const messageColumns = `id, seq, conversation_id, sender_id, recipient_id, content, status, is_read, client_message_id,
        attachment_url, attachment_name, attachment_size, created_at, delivered_at, updated_at`

// ClientMessageWindow is how long a repeated client message id collapses onto
// the earlier send. Outside it, or in another conversation, the id is reusable.
const ClientMessageWindow = 10 * time.Minute

type messageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) MessageRepository {
	return &messageRepository{db: db}
}

func scanMessage(row rowScanner) (message.Message, error) {
	var (
		m              message.Message
		status         string
		attachmentURL  sql.NullString
		attachmentName sql.NullString
		attachmentSize sql.NullInt64
	)
	err := row.Scan(
		&m.ID,
		&m.Seq,
		&m.ConversationID,
		&m.SenderID,
		&m.RecipientID,
		&m.Content,
		&status,
		&m.IsRead,
		&m.ClientMessageID,
		&attachmentURL,
		&attachmentName,
		&attachmentSize,
		&m.CreatedAt,
		&m.DeliveredAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return message.Message{}, err
	}
	m.Status = message.Status(status)
	if !m.Status.Persisted() {
		return message.Message{}, fmt.Errorf("message %s: stored status %q", m.ID, status)
	}
	if attachmentURL.Valid {
		m.Attachment = &message.Attachment{
			URL:  attachmentURL.String,
			Name: attachmentName.String,
			Size: attachmentSize.Int64,
		}
	}
	return m, nil
}

func attachmentArgs(a *message.Attachment) (sql.NullString, sql.NullString, sql.NullInt64) {
	if a == nil {
		return sql.NullString{}, sql.NullString{}, sql.NullInt64{}
	}
	return sql.NullString{String: a.URL, Valid: true},
		sql.NullString{String: a.Name, Valid: a.Name != ""},
		sql.NullInt64{Int64: a.Size, Valid: a.Size > 0}
}

// recentByClientID finds an earlier send of the same client message id by the
// same sender in the same conversation, no older than ClientMessageWindow.
// The caller holds the conversation lock.
func (r *messageRepository) recentByClientID(ctx context.Context, tx DBTX, msg *message.Message) (message.Message, error) {
	return scanMessage(tx.QueryRowContext(ctx, `
        SELECT `+messageColumns+`
        FROM messages
        WHERE conversation_id = $1 AND sender_id = $2 AND client_message_id = $3 AND created_at > $4
        ORDER BY seq DESC
        LIMIT 1
    `, msg.ConversationID, msg.SenderID, msg.ClientMessageID.String, msg.CreatedAt.Add(-ClientMessageWindow)))
}

func lockConversation(ctx context.Context, tx DBTX, conversationID uuid.UUID) error {
	var id uuid.UUID
	err := tx.QueryRowContext(ctx, `SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, conversationID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return chirp_errors.ErrNotFound
	}
	return err
}

func (r *messageRepository) Send(ctx context.Context, msg *message.Message) (bool, error) {
	created := true
	err := WithTx(ctx, r.db, func(tx DBTX) error {
		if err := lockConversation(ctx, tx, msg.ConversationID); err != nil {
			return err
		}

		if msg.ClientMessageID.Valid {
			existing, err := r.recentByClientID(ctx, tx, msg)
			if err == nil {
				created = false
				*msg = existing
				return nil
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}

		url, name, size := attachmentArgs(msg.Attachment)
		err := tx.QueryRowContext(ctx, `
            INSERT INTO messages (id, conversation_id, sender_id, recipient_id, content, status, is_read, client_message_id,
                attachment_url, attachment_name, attachment_size, created_at, updated_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
            RETURNING seq
        `,
			msg.ID,
			msg.ConversationID,
			msg.SenderID,
			msg.RecipientID,
			msg.Content,
			string(msg.Status),
			msg.IsRead,
			msg.ClientMessageID,
			url,
			name,
			size,
			msg.CreatedAt,
			msg.UpdatedAt,
		).Scan(&msg.Seq)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
            UPDATE conversations SET last_message_id = $2, updated_at = $3 WHERE id = $1
        `, msg.ConversationID, msg.ID, msg.CreatedAt); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
            UPDATE conversation_participants SET unread_count = unread_count + 1
            WHERE conversation_id = $1 AND user_id = $2
        `, msg.ConversationID, msg.RecipientID)
		return err
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (r *messageRepository) GetByID(ctx context.Context, messageID uuid.UUID) (message.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx, `
        SELECT `+messageColumns+` FROM messages WHERE id = $1
    `, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return message.Message{}, chirp_errors.ErrNotFound
	}
	if err != nil {
		return message.Message{}, err
	}
	receipts, err := r.loadReceipts(ctx, []uuid.UUID{m.ID})
	if err != nil {
		return message.Message{}, err
	}
	m.ReadBy = receipts[m.ID]
	return m, nil
}

func (r *messageRepository) ListPage(ctx context.Context, conversationID uuid.UUID, offset, limit int) ([]message.Message, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM messages WHERE conversation_id = $1
    `, conversationID).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return nil, 0, nil
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT `+messageColumns+`
        FROM messages
        WHERE conversation_id = $1
        ORDER BY seq DESC
        LIMIT $2 OFFSET $3
    `, conversationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		out []message.Message
		ids []uuid.UUID
	)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
		ids = append(ids, m.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	receipts, err := r.loadReceipts(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].ReadBy = receipts[out[i].ID]
	}
	return out, total, nil
}

func (r *messageRepository) loadReceipts(ctx context.Context, messageIDs []uuid.UUID) (map[uuid.UUID][]message.ReadReceipt, error) {
	result := make(map[uuid.UUID][]message.ReadReceipt)
	if len(messageIDs) == 0 {
		return result, nil
	}
	rows, err := r.db.QueryContext(ctx, `
        SELECT message_id, user_id, read_at FROM message_reads
        WHERE message_id IN (`+buildPlaceholders(1, len(messageIDs))+`)
        ORDER BY read_at ASC
    `, uuidArgs(messageIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rr message.ReadReceipt
		if err := rows.Scan(&rr.MessageID, &rr.UserID, &rr.ReadAt); err != nil {
			return nil, err
		}
		result[rr.MessageID] = append(result[rr.MessageID], rr)
	}
	return result, rows.Err()
}

func (r *messageRepository) MarkDelivered(ctx context.Context, recipientID uuid.UUID, messageIDs []uuid.UUID) ([]message.StatusChange, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	args := append([]interface{}{now, recipientID}, uuidArgs(messageIDs)...)
	rows, err := r.db.QueryContext(ctx, `
        UPDATE messages SET status = 'delivered', delivered_at = $1, updated_at = $1
        WHERE recipient_id = $2 AND status = 'sent' AND id IN (`+buildPlaceholders(3, len(messageIDs))+`)
        RETURNING id, conversation_id, sender_id
    `, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []message.StatusChange
	for rows.Next() {
		ch := message.StatusChange{RecipientID: recipientID, Status: message.StatusDelivered, At: now}
		if err := rows.Scan(&ch.MessageID, &ch.ConversationID, &ch.SenderID); err != nil {
			return nil, err
		}
		changes = append(changes, ch)
	}
	return changes, rows.Err()
}

// MarkRead promotes one message to read. The receipt insert and the counter
// decrement only run for a row the UPDATE actually changed.
func (r *messageRepository) MarkRead(ctx context.Context, messageID, readerID uuid.UUID) (*message.StatusChange, error) {
	now := time.Now().UTC()
	ch := message.StatusChange{MessageID: messageID, RecipientID: readerID, Status: message.StatusRead, At: now}
	err := r.db.QueryRowContext(ctx, `
        WITH promoted AS (
            UPDATE messages
            SET status = 'read', is_read = TRUE, delivered_at = COALESCE(delivered_at, $1), updated_at = $1
            WHERE id = $2 AND recipient_id = $3 AND status <> 'read'
            RETURNING id, conversation_id, sender_id
        ), receipt AS (
            INSERT INTO message_reads (message_id, user_id, read_at)
            SELECT id, $3, $1 FROM promoted
            ON CONFLICT DO NOTHING
        ), counter AS (
            UPDATE conversation_participants p
            SET unread_count = GREATEST(p.unread_count - 1, 0)
            FROM promoted
            WHERE p.conversation_id = promoted.conversation_id AND p.user_id = $3
        )
        SELECT conversation_id, sender_id FROM promoted
    `, now, messageID, readerID).Scan(&ch.ConversationID, &ch.SenderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (r *messageRepository) MarkConversationRead(ctx context.Context, conversationID, readerID uuid.UUID) ([]message.StatusChange, error) {
	now := time.Now().UTC()
	var changes []message.StatusChange
	err := WithTx(ctx, r.db, func(tx DBTX) error {
		if err := lockConversation(ctx, tx, conversationID); err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx, `
            WITH promoted AS (
                UPDATE messages
                SET status = 'read', is_read = TRUE, delivered_at = COALESCE(delivered_at, $1), updated_at = $1
                WHERE conversation_id = $2 AND recipient_id = $3 AND status <> 'read'
                RETURNING id, sender_id, seq
            ), receipts AS (
                INSERT INTO message_reads (message_id, user_id, read_at)
                SELECT id, $3, $1 FROM promoted
                ON CONFLICT DO NOTHING
            )
            SELECT id, sender_id FROM promoted ORDER BY seq ASC
        `, now, conversationID, readerID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			ch := message.StatusChange{
				ConversationID: conversationID,
				RecipientID:    readerID,
				Status:         message.StatusRead,
				At:             now,
			}
			if err := rows.Scan(&ch.MessageID, &ch.SenderID); err != nil {
				return err
			}
			changes = append(changes, ch)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
            UPDATE conversation_participants SET unread_count = 0
            WHERE conversation_id = $1 AND user_id = $2
        `, conversationID, readerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// Delete removes msg and, when it was the conversation's last message, points
// last_message_id at the newest remaining one (NULL when none remain).
func (r *messageRepository) Delete(ctx context.Context, msg message.Message) error {
	return WithTx(ctx, r.db, func(tx DBTX) error {
		if err := lockConversation(ctx, tx, msg.ConversationID); err != nil {
			return err
		}

		var status string
		err := tx.QueryRowContext(ctx, `
            DELETE FROM messages WHERE id = $1 RETURNING status
        `, msg.ID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return chirp_errors.ErrNotFound
		}
		if err != nil {
			return err
		}

		if message.Status(status) != message.StatusRead {
			if _, err := tx.ExecContext(ctx, `
                UPDATE conversation_participants SET unread_count = GREATEST(unread_count - 1, 0)
                WHERE conversation_id = $1 AND user_id = $2
            `, msg.ConversationID, msg.RecipientID); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
            UPDATE conversations
            SET last_message_id = (
                SELECT id FROM messages WHERE conversation_id = $1 ORDER BY seq DESC LIMIT 1
            )
            WHERE id = $1 AND last_message_id = $2
        `, msg.ConversationID, msg.ID)
		return err
	})
}
