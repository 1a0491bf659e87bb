package httpdto

import (
	"chirp-dm/internal/domain/conversation"
	"chirp-dm/internal/domain/user"
)

// CreateConversationRequest is used for POST /conversations
type CreateConversationRequest struct {
	RecipientID string `json:"recipient_id" binding:"required"`
}

type ConversationDTO struct {
	ID               string         `json:"id"`
	Participants     []string       `json:"participants"`
	OtherParticipant UserSummaryDTO `json:"other_participant"`
	LastMessage      *MessageDTO    `json:"last_message,omitempty"`
	UnreadCount      int            `json:"unread_count"`
	CreatedAt        string         `json:"created_at"`
	UpdatedAt        string         `json:"updated_at"`
}

// FromConversation builds the DTO from the viewer's side. me and other are the
// two participants' summaries, used to decorate the last message.
func FromConversation(s conversation.Summary, me, other user.Summary) ConversationDTO {
	dto := ConversationDTO{
		ID:               s.ID.String(),
		OtherParticipant: FromUserSummary(other),
		UnreadCount:      s.UnreadCount,
		CreatedAt:        FormatTime(s.CreatedAt),
		UpdatedAt:        FormatTime(s.UpdatedAt),
	}
	for _, id := range s.Participants() {
		dto.Participants = append(dto.Participants, id.String())
	}
	if s.LastMessage != nil {
		sender, recipient := me, other
		if s.LastMessage.SenderID == other.ID {
			sender, recipient = other, me
		}
		last := FromMessage(*s.LastMessage, sender, recipient)
		dto.LastMessage = &last
	}
	return dto
}
