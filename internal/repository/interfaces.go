package repository

import (
	"context"

	"chirp-dm/internal/domain/conversation"
	"chirp-dm/internal/domain/message"
	"chirp-dm/internal/domain/user"

	"github.com/google/uuid"
)

type ConversationRepository interface {
	// FindOrCreate returns the conversation for the unordered pair, creating
	// it with zeroed counters when absent. created reports which happened.
	FindOrCreate(ctx context.Context, userA, userB uuid.UUID) (conversation.Conversation, bool, error)
	GetForParticipant(ctx context.Context, conversationID, userID uuid.UUID) (conversation.Conversation, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]conversation.Summary, error)
	UnreadCount(ctx context.Context, conversationID, userID uuid.UUID) (int, error)
	UnreadTotal(ctx context.Context, userID uuid.UUID) (int, error)
	Delete(ctx context.Context, conversationID uuid.UUID) error
}

type MessageRepository interface {
	// Send persists msg, moves the conversation's last message pointer and
	// bumps the recipient's unread counter in one transaction. When the
	// sender used msg's client message id in the same conversation within
	// ClientMessageWindow, msg is overwritten with that row and created is
	// false.
	Send(ctx context.Context, msg *message.Message) (bool, error)
	GetByID(ctx context.Context, messageID uuid.UUID) (message.Message, error)
	// ListPage returns messages newest first, offset and limit applied.
	ListPage(ctx context.Context, conversationID uuid.UUID, offset, limit int) ([]message.Message, int, error)
	MarkDelivered(ctx context.Context, recipientID uuid.UUID, messageIDs []uuid.UUID) ([]message.StatusChange, error)
	MarkRead(ctx context.Context, messageID, readerID uuid.UUID) (*message.StatusChange, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID uuid.UUID) ([]message.StatusChange, error)
	Delete(ctx context.Context, msg message.Message) error
}

// UserRepository reads identity summaries from the users table. The table is
// owned by the profile service; this module never writes it outside seeding.
type UserRepository interface {
	GetSummaries(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]user.Summary, error)
}
