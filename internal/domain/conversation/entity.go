package conversation

import (
	"bytes"
	"time"

	"chirp-dm/internal/domain/message"

	"github.com/google/uuid"
)

// Conversation represents the conversations table. A conversation always has
// exactly two participants, stored in sorted order so the pair is unique.
type Conversation struct {
	ID              uuid.UUID
	ParticipantLow  uuid.UUID
	ParticipantHigh uuid.UUID
	LastMessageID   uuid.NullUUID
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Participant represents conversation_participants
type Participant struct {
	ConversationID uuid.UUID
	UserID         uuid.UUID
	UnreadCount    int
}

// Summary is a conversation as seen by one of its participants.
type Summary struct {
	Conversation
	OtherParticipantID uuid.UUID
	UnreadCount        int
	LastMessage        *message.Message
}

// SortedPair orders two user ids so that (a, b) and (b, a) map to one key.
func SortedPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return a, b
	}
	return b, a
}

func (c *Conversation) Participants() []uuid.UUID {
	return []uuid.UUID{c.ParticipantLow, c.ParticipantHigh}
}

func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.ParticipantLow == userID || c.ParticipantHigh == userID
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID uuid.UUID) uuid.UUID {
	if c.ParticipantLow == userID {
		return c.ParticipantHigh
	}
	return c.ParticipantLow
}
