package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"chirp-dm/internal/domain/conversation"
	"chirp-dm/internal/domain/message"
	"chirp-dm/internal/domain/user"
	"chirp-dm/internal/repository"
	chirp_errors "chirp-dm/pkg/errors"
	"chirp-dm/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultPageSize     = 50
	MaxPageSize         = 100
	MaxContentLength    = 5000
	MaxClientMessageLen = 64
)

// Notifier receives status promotions after they are committed. The gateway
// implements it to push message_status_update to the original sender.
type Notifier interface {
	MessageStatusChanged(ctx context.Context, changes []message.StatusChange)
}

type nopNotifier struct{}

func (nopNotifier) MessageStatusChanged(context.Context, []message.StatusChange) {}

type MessagingService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	users         repository.UserRepository
	notifier      Notifier
	logger        *logger.Logger
}

func NewMessagingService(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	users repository.UserRepository,
	l *logger.Logger,
) *MessagingService {
	if l == nil {
		l = logger.NewNop()
	}
	return &MessagingService{
		conversations: conversations,
		messages:      messages,
		users:         users,
		notifier:      nopNotifier{},
		logger:        l,
	}
}

// SetNotifier must be called before the service starts taking traffic.
func (s *MessagingService) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

type MessageView struct {
	message.Message
	Sender    user.Summary
	Recipient user.Summary
}

type ConversationView struct {
	conversation.Summary
	OtherParticipant user.Summary
}

type MessagePage struct {
	Messages []MessageView
	Total    int
	Page     int
	Limit    int
	HasMore  bool
}

type SendMessageInput struct {
	ConversationID  uuid.NullUUID
	RecipientID     uuid.NullUUID
	SenderID        uuid.UUID
	Content         string
	ClientMessageID string
	Attachment      *message.Attachment
}

type SendResult struct {
	Message MessageView
	// Created is false when the client message id matched an earlier send.
	Created bool
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", chirp_errors.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func (s *MessagingService) ensureConversation(ctx context.Context, userID, recipientID uuid.UUID) (conversation.Conversation, bool, map[uuid.UUID]user.Summary, error) {
	if recipientID == uuid.Nil {
		return conversation.Conversation{}, false, nil, invalid("recipient_id is required")
	}
	if recipientID == userID {
		return conversation.Conversation{}, false, nil, invalid("cannot start a conversation with yourself")
	}
	summaries, err := s.users.GetSummaries(ctx, []uuid.UUID{userID, recipientID})
	if err != nil {
		return conversation.Conversation{}, false, nil, err
	}
	if _, ok := summaries[recipientID]; !ok {
		return conversation.Conversation{}, false, nil, fmt.Errorf("%w: recipient", chirp_errors.ErrNotFound)
	}
	conv, created, err := s.conversations.FindOrCreate(ctx, userID, recipientID)
	if err != nil {
		return conversation.Conversation{}, false, nil, err
	}
	return conv, created, summaries, nil
}

func (s *MessagingService) FindOrCreateConversation(ctx context.Context, userID, recipientID uuid.UUID) (ConversationView, bool, error) {
	conv, created, summaries, err := s.ensureConversation(ctx, userID, recipientID)
	if err != nil {
		return ConversationView{}, false, err
	}

	view := ConversationView{
		Summary: conversation.Summary{
			Conversation:       conv,
			OtherParticipantID: recipientID,
		},
		OtherParticipant: summaries[recipientID],
	}
	if created {
		return view, true, nil
	}

	if view.UnreadCount, err = s.conversations.UnreadCount(ctx, conv.ID, userID); err != nil {
		return ConversationView{}, false, err
	}
	if conv.LastMessageID.Valid {
		last, err := s.messages.GetByID(ctx, conv.LastMessageID.UUID)
		if err != nil && !errors.Is(err, chirp_errors.ErrNotFound) {
			return ConversationView{}, false, err
		}
		if err == nil {
			view.LastMessage = &last
		}
	}
	return view, false, nil
}

func (s *MessagingService) ListConversations(ctx context.Context, userID uuid.UUID) ([]ConversationView, error) {
	summaries, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(summaries))
	for _, c := range summaries {
		ids = append(ids, c.OtherParticipantID)
	}
	people, err := s.users.GetSummaries(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]ConversationView, 0, len(summaries))
	for _, c := range summaries {
		views = append(views, ConversationView{
			Summary:          c,
			OtherParticipant: summaryOrID(people, c.OtherParticipantID),
		})
	}
	return views, nil
}

// ListMessages returns one page, oldest first within the page. Messages in the
// page addressed to the requester that are still "sent" are promoted to
// "delivered" and their senders notified.
func (s *MessagingService) ListMessages(ctx context.Context, conversationID, requester uuid.UUID, page, limit int) (MessagePage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	conv, err := s.conversations.GetForParticipant(ctx, conversationID, requester)
	if err != nil {
		return MessagePage{}, err
	}

	msgs, total, err := s.messages.ListPage(ctx, conv.ID, (page-1)*limit, limit)
	if err != nil {
		return MessagePage{}, err
	}

	// repository returns newest first
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	var pending []uuid.UUID
	for _, m := range msgs {
		if m.IsAddressedTo(requester) && m.Status.CanAdvanceTo(message.StatusDelivered) {
			pending = append(pending, m.ID)
		}
	}
	if len(pending) > 0 {
		changes, err := s.messages.MarkDelivered(ctx, requester, pending)
		if err != nil {
			return MessagePage{}, err
		}
		promoted := make(map[uuid.UUID]message.StatusChange, len(changes))
		for _, ch := range changes {
			promoted[ch.MessageID] = ch
		}
		for i := range msgs {
			if ch, ok := promoted[msgs[i].ID]; ok {
				msgs[i].Status = message.StatusDelivered
				msgs[i].DeliveredAt = sql.NullTime{Time: ch.At, Valid: true}
				msgs[i].UpdatedAt = ch.At
			}
		}
		s.notify(ctx, changes)
	}

	views, err := s.attachPeople(ctx, msgs)
	if err != nil {
		return MessagePage{}, err
	}
	return MessagePage{
		Messages: views,
		Total:    total,
		Page:     page,
		Limit:    limit,
		HasMore:  page*limit < total,
	}, nil
}

func (s *MessagingService) SendMessage(ctx context.Context, in SendMessageInput) (SendResult, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return SendResult{}, invalid("content must not be empty")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return SendResult{}, invalid("content exceeds %d characters", MaxContentLength)
	}
	clientID := strings.TrimSpace(in.ClientMessageID)
	if len(clientID) > MaxClientMessageLen {
		return SendResult{}, invalid("client_message_id exceeds %d characters", MaxClientMessageLen)
	}
	if in.Attachment != nil && strings.TrimSpace(in.Attachment.URL) == "" {
		return SendResult{}, invalid("attachment url is required")
	}

	var (
		conv conversation.Conversation
		err  error
	)
	switch {
	case in.ConversationID.Valid:
		conv, err = s.conversations.GetForParticipant(ctx, in.ConversationID.UUID, in.SenderID)
		if err != nil {
			return SendResult{}, err
		}
	case in.RecipientID.Valid:
		conv, _, _, err = s.ensureConversation(ctx, in.SenderID, in.RecipientID.UUID)
		if err != nil {
			return SendResult{}, err
		}
	default:
		return SendResult{}, invalid("conversation_id or recipient_id is required")
	}

	now := time.Now().UTC()
	msg := &message.Message{
		ID:              uuid.New(),
		ConversationID:  conv.ID,
		SenderID:        in.SenderID,
		RecipientID:     conv.OtherParticipant(in.SenderID),
		Content:         content,
		Status:          message.StatusSent,
		ClientMessageID: sql.NullString{String: clientID, Valid: clientID != ""},
		Attachment:      in.Attachment,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	created, err := s.messages.Send(ctx, msg)
	if err != nil {
		return SendResult{}, err
	}
	if !created {
		s.logger.InfoCtx(ctx, "duplicate send collapsed",
			zap.String("message_id", msg.ID.String()),
			zap.String("client_message_id", clientID))
	}

	views, err := s.attachPeople(ctx, []message.Message{*msg})
	if err != nil {
		return SendResult{}, err
	}
	return SendResult{Message: views[0], Created: created}, nil
}

// MarkDelivered records that the recipient's client received the message.
func (s *MessagingService) MarkDelivered(ctx context.Context, messageID, recipientID uuid.UUID) (*message.StatusChange, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.RecipientID != recipientID {
		return nil, chirp_errors.ErrForbidden
	}
	if !msg.Status.CanAdvanceTo(message.StatusDelivered) {
		return nil, nil
	}
	changes, err := s.messages.MarkDelivered(ctx, recipientID, []uuid.UUID{messageID})
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, nil
	}
	s.notify(ctx, changes)
	return &changes[0], nil
}

func (s *MessagingService) MarkMessageRead(ctx context.Context, messageID, reader uuid.UUID) (*message.StatusChange, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.RecipientID != reader {
		return nil, chirp_errors.ErrForbidden
	}
	if !msg.Status.CanAdvanceTo(message.StatusRead) {
		return nil, nil
	}
	ch, err := s.messages.MarkRead(ctx, messageID, reader)
	if err != nil {
		return nil, err
	}
	if ch != nil {
		s.notify(ctx, []message.StatusChange{*ch})
	}
	return ch, nil
}

// UpdateStatus applies a recipient-reported status. Reports that would move a
// message backwards succeed without effect.
func (s *MessagingService) UpdateStatus(ctx context.Context, messageID, userID uuid.UUID, status message.Status) (*message.StatusChange, error) {
	switch status {
	case message.StatusDelivered:
		return s.MarkDelivered(ctx, messageID, userID)
	case message.StatusRead:
		return s.MarkMessageRead(ctx, messageID, userID)
	default:
		return nil, fmt.Errorf("%w: %q", chirp_errors.ErrInvalidTransition, status)
	}
}

func (s *MessagingService) MarkConversationRead(ctx context.Context, conversationID, reader uuid.UUID) ([]message.StatusChange, error) {
	if _, err := s.conversations.GetForParticipant(ctx, conversationID, reader); err != nil {
		return nil, err
	}
	changes, err := s.messages.MarkConversationRead(ctx, conversationID, reader)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, changes)
	return changes, nil
}

func (s *MessagingService) DeleteMessage(ctx context.Context, messageID, requester uuid.UUID) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != requester {
		return chirp_errors.ErrForbidden
	}
	return s.messages.Delete(ctx, msg)
}

func (s *MessagingService) DeleteConversation(ctx context.Context, conversationID, requester uuid.UUID) error {
	if _, err := s.conversations.GetForParticipant(ctx, conversationID, requester); err != nil {
		return err
	}
	return s.conversations.Delete(ctx, conversationID)
}

func (s *MessagingService) UnreadTotal(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.conversations.UnreadTotal(ctx, userID)
}

// ConversationPeer returns the other participant of an active conversation
// the user belongs to.
func (s *MessagingService) ConversationPeer(ctx context.Context, conversationID, userID uuid.UUID) (uuid.UUID, error) {
	conv, err := s.conversations.GetForParticipant(ctx, conversationID, userID)
	if err != nil {
		return uuid.Nil, err
	}
	return conv.OtherParticipant(userID), nil
}

func (s *MessagingService) notify(ctx context.Context, changes []message.StatusChange) {
	if len(changes) == 0 {
		return
	}
	s.notifier.MessageStatusChanged(ctx, changes)
}

func (s *MessagingService) attachPeople(ctx context.Context, msgs []message.Message) ([]MessageView, error) {
	ids := make([]uuid.UUID, 0, len(msgs)*2)
	for _, m := range msgs {
		ids = append(ids, m.SenderID, m.RecipientID)
	}
	people, err := s.users.GetSummaries(ctx, ids)
	if err != nil {
		return nil, err
	}
	views := make([]MessageView, len(msgs))
	for i, m := range msgs {
		views[i] = MessageView{
			Message:   m,
			Sender:    summaryOrID(people, m.SenderID),
			Recipient: summaryOrID(people, m.RecipientID),
		}
	}
	return views, nil
}

func summaryOrID(people map[uuid.UUID]user.Summary, id uuid.UUID) user.Summary {
	if s, ok := people[id]; ok {
		return s
	}
	return user.Summary{ID: id}
}
