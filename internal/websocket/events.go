package websocket

import (
	"encoding/json"

	"chirp-dm/internal/transport/httpdto"
)

// Client to server.
const (
	EventSendMessage          = "send_message"
	EventMessageStatus        = "message_status"
	EventMarkConversationRead = "mark_conversation_read"
	EventTyping               = "typing"
	EventPing                 = "ping"
)

// Server to client.
const (
	EventNewMessage          = "new_message"
	EventMessageSent         = "message_sent"
	EventMessageStatusUpdate = "message_status_update"
	EventUserTyping          = "user_typing"
	EventUserOnline          = "user_online"
	EventUserOffline         = "user_offline"
	EventOnlineUsers         = "online_users"
	EventMessageError        = "message_error"
	EventPong                = "pong"
)

// Envelope is the frame format in both directions: one event per text frame.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outbound struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

func encode(eventType string, payload interface{}) ([]byte, error) {
	return json.Marshal(outbound{Type: eventType, Payload: payload})
}

type SendMessagePayload struct {
	ConversationID  string                 `json:"conversation_id"`
	RecipientID     string                 `json:"recipient_id"`
	Content         string                 `json:"content"`
	ClientMessageID string                 `json:"client_message_id"`
	Attachment      *httpdto.AttachmentDTO `json:"attachment,omitempty"`
}

type MessageStatusPayload struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

type ConversationPayload struct {
	ConversationID string `json:"conversation_id"`
}

type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
}

type UserTypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Username       string `json:"username"`
	IsTyping       bool   `json:"is_typing"`
}

type PresencePayload struct {
	UserID string `json:"user_id"`
}

type OnlineUsersPayload struct {
	UserIDs []string `json:"user_ids"`
}

// ErrorPayload goes only to the connection whose event failed.
type ErrorPayload struct {
	Event           string `json:"event"`
	Error           string `json:"error"`
	Code            string `json:"code"`
	ClientMessageID string `json:"client_message_id,omitempty"`
}
