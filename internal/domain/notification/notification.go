package notification

import (
	"time"

	"github.com/google/uuid"
)

// Kind tags what TargetID points at.
type Kind string

const (
	KindMessage Kind = "message"
	KindTweet   Kind = "tweet"
	KindReply   Kind = "reply"
)

// Notification is handed to the notification subsystem. Exactly one target,
// discriminated by Kind.
type Notification struct {
	Kind      Kind      `json:"kind"`
	TargetID  uuid.UUID `json:"target_id"`
	UserID    uuid.UUID `json:"user_id"`
	ActorID   uuid.UUID `json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
}

func ForMessage(recipient, sender, messageID uuid.UUID) Notification {
	return Notification{
		Kind:      KindMessage,
		TargetID:  messageID,
		UserID:    recipient,
		ActorID:   sender,
		CreatedAt: time.Now().UTC(),
	}
}
