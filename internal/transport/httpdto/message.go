package httpdto

import (
	"time"

	"chirp-dm/internal/domain/message"
	"chirp-dm/internal/domain/user"
)

// SendMessageRequest is used for POST /conversations/message. Either
// conversation_id or recipient_id must be set.
type SendMessageRequest struct {
	ConversationID  string         `json:"conversation_id"`
	RecipientID     string         `json:"recipient_id"`
	Content         string         `json:"content"`
	ClientMessageID string         `json:"client_message_id"`
	Attachment      *AttachmentDTO `json:"attachment,omitempty"`
}

// ListMessagesRequest holds query parameters for GET /conversations/:id/messages
type ListMessagesRequest struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

type AttachmentDTO struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type UserSummaryDTO struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type ReadReceiptDTO struct {
	UserID string `json:"user_id"`
	ReadAt string `json:"read_at"`
}

// MessageDTO is the message shape shared by REST responses and gateway events.
type MessageDTO struct {
	ID              string           `json:"id"`
	ConversationID  string           `json:"conversation_id"`
	Sender          UserSummaryDTO   `json:"sender"`
	Recipient       UserSummaryDTO   `json:"recipient"`
	Content         string           `json:"content"`
	Status          string           `json:"status"`
	Read            bool             `json:"read"`
	ReadBy          []ReadReceiptDTO `json:"read_by"`
	ClientMessageID string           `json:"client_message_id,omitempty"`
	Attachment      *AttachmentDTO   `json:"attachment,omitempty"`
	CreatedAt       string           `json:"created_at"`
	DeliveredAt     string           `json:"delivered_at,omitempty"`
	UpdatedAt       string           `json:"updated_at"`
}

type MessagePageResponse struct {
	Messages []MessageDTO `json:"messages"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	Limit    int          `json:"limit"`
	HasMore  bool         `json:"has_more"`
}

type UnreadTotalResponse struct {
	Total int `json:"total"`
}

type MarkReadResponse struct {
	Updated int `json:"updated"`
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func FromUserSummary(u user.Summary) UserSummaryDTO {
	dto := UserSummaryDTO{
		ID:          u.ID.String(),
		Username:    u.Username,
		DisplayName: u.DisplayName,
	}
	if u.AvatarURL.Valid {
		dto.AvatarURL = u.AvatarURL.String
	}
	return dto
}

// ToAttachment returns nil when no attachment was supplied.
func (a *AttachmentDTO) ToAttachment() *message.Attachment {
	if a == nil {
		return nil
	}
	return &message.Attachment{URL: a.URL, Name: a.Name, Size: a.Size}
}

func FromMessage(m message.Message, sender, recipient user.Summary) MessageDTO {
	dto := MessageDTO{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID.String(),
		Sender:         FromUserSummary(sender),
		Recipient:      FromUserSummary(recipient),
		Content:        m.Content,
		Status:         string(m.Status),
		Read:           m.IsRead,
		ReadBy:         make([]ReadReceiptDTO, 0, len(m.ReadBy)),
		CreatedAt:      FormatTime(m.CreatedAt),
		UpdatedAt:      FormatTime(m.UpdatedAt),
	}
	for _, r := range m.ReadBy {
		dto.ReadBy = append(dto.ReadBy, ReadReceiptDTO{UserID: r.UserID.String(), ReadAt: FormatTime(r.ReadAt)})
	}
	if m.ClientMessageID.Valid {
		dto.ClientMessageID = m.ClientMessageID.String
	}
	if m.Attachment != nil {
		dto.Attachment = &AttachmentDTO{URL: m.Attachment.URL, Name: m.Attachment.Name, Size: m.Attachment.Size}
	}
	if m.DeliveredAt.Valid {
		dto.DeliveredAt = FormatTime(m.DeliveredAt.Time)
	}
	return dto
}

// StatusUpdateDTO is pushed to a sender when one of their messages advances.
type StatusUpdateDTO struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
	At             string `json:"at"`
}

func FromStatusChange(ch message.StatusChange) StatusUpdateDTO {
	return StatusUpdateDTO{
		MessageID:      ch.MessageID.String(),
		ConversationID: ch.ConversationID.String(),
		Status:         string(ch.Status),
		At:             FormatTime(ch.At),
	}
}
