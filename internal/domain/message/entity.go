package message

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Message represents the messages table
type Message struct {
	ID              uuid.UUID
	Seq             int64 // assigned by the bigserial column
	ConversationID  uuid.UUID
	SenderID        uuid.UUID
	RecipientID     uuid.UUID
	Content         string
	Status          Status
	IsRead          bool
	ClientMessageID sql.NullString
	Attachment      *Attachment
	ReadBy          []ReadReceipt
	CreatedAt       time.Time
	DeliveredAt     sql.NullTime
	UpdatedAt       time.Time
}

// Attachment is a reference to an uploaded file. Only the record is kept here.
type Attachment struct {
	URL  string
	Name string
	Size int64
}

// ReadReceipt represents message_reads
type ReadReceipt struct {
	MessageID uuid.UUID
	UserID    uuid.UUID
	ReadAt    time.Time
}

// StatusChange is emitted whenever a stored message is promoted.
type StatusChange struct {
	MessageID      uuid.UUID
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	RecipientID    uuid.UUID
	Status         Status
	At             time.Time
}

func (m *Message) IsAddressedTo(userID uuid.UUID) bool {
	return m.RecipientID == userID
}

func (m *Message) HasReader(userID uuid.UUID) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
