package repository

import (
	"context"
	"fmt"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS "pgcrypto";`,

	`CREATE TABLE IF NOT EXISTS users (
        id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        username      TEXT NOT NULL UNIQUE,
        display_name  TEXT NOT NULL DEFAULT '',
        avatar_url    TEXT,
        password_hash TEXT NOT NULL DEFAULT '',
        created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,

	`CREATE TABLE IF NOT EXISTS conversations (
        id               UUID PRIMARY KEY,
        participant_low  UUID NOT NULL,
        participant_high UUID NOT NULL,
        last_message_id  UUID,
        is_active        BOOLEAN NOT NULL DEFAULT TRUE,
        created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
        updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
        CONSTRAINT conversations_pair_ordered CHECK (participant_low < participant_high),
        CONSTRAINT conversations_pair_unique UNIQUE (participant_low, participant_high)
    );`,

	`CREATE TABLE IF NOT EXISTS conversation_participants (
        conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
        user_id         UUID NOT NULL,
        unread_count    INTEGER NOT NULL DEFAULT 0 CHECK (unread_count >= 0),
        PRIMARY KEY (conversation_id, user_id)
    );`,

	`CREATE INDEX IF NOT EXISTS idx_conversation_participants_user ON conversation_participants (user_id);`,

	`CREATE TABLE IF NOT EXISTS messages (
        id                UUID PRIMARY KEY,
        seq               BIGSERIAL NOT NULL,
        conversation_id   UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
        sender_id         UUID NOT NULL,
        recipient_id      UUID NOT NULL,
        content           TEXT NOT NULL CHECK (length(btrim(content)) > 0),
        status            TEXT NOT NULL DEFAULT 'sent' CHECK (status IN ('sent', 'delivered', 'read')),
        is_read           BOOLEAN NOT NULL DEFAULT FALSE,
        client_message_id TEXT,
        attachment_url    TEXT,
        attachment_name   TEXT,
        attachment_size   BIGINT,
        created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
        delivered_at      TIMESTAMPTZ,
        updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
        CONSTRAINT messages_delivered_at_set CHECK ((status = 'sent') = (delivered_at IS NULL)),
        CONSTRAINT messages_read_flag CHECK ((status = 'read') = is_read)
    );`,

	`CREATE INDEX IF NOT EXISTS idx_messages_conversation_seq ON messages (conversation_id, seq DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_recipient_status ON messages (recipient_id, status);`,
	`DROP INDEX IF EXISTS idx_messages_client_id;`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation_client_id
        ON messages (conversation_id, sender_id, client_message_id, created_at)
        WHERE client_message_id IS NOT NULL;`,

	`CREATE TABLE IF NOT EXISTS message_reads (
        message_id UUID NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
        user_id    UUID NOT NULL,
        read_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (message_id, user_id)
    );`,
}

// Tables lists the tables created by InitSchema, children first.
var Tables = []string{"message_reads", "messages", "conversation_participants", "conversations", "users"}

// InitSchema creates the messaging tables, indexes and constraints.
func InitSchema(ctx context.Context, db DBTX) error {
	return WithTx(ctx, db, func(tx DBTX) error {
		for i, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("schema statement %d: %w", i, err)
			}
		}
		return nil
	})
}
