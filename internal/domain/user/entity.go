package user

import (
	"database/sql"

	"github.com/google/uuid"
)

// Summary is the identity snapshot attached to messages and conversations.
type Summary struct {
	ID          uuid.UUID
	Username    string
	DisplayName string
	AvatarURL   sql.NullString
}

// Identity is what the identity provider resolves a credential to.
type Identity struct {
	UserID   uuid.UUID
	Username string
}
