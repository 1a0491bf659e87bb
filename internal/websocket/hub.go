package websocket

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"chirp-dm/internal/domain/message"
	"chirp-dm/internal/domain/notification"
	"chirp-dm/internal/redis"
	"chirp-dm/internal/services"
	"chirp-dm/internal/transport/httpdto"
	chirp_errors "chirp-dm/pkg/errors"
	"chirp-dm/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Messaging is the slice of the messaging service the gateway relays to.
type Messaging interface {
	SendMessage(ctx context.Context, in services.SendMessageInput) (services.SendResult, error)
	MarkDelivered(ctx context.Context, messageID, recipientID uuid.UUID) (*message.StatusChange, error)
	UpdateStatus(ctx context.Context, messageID, userID uuid.UUID, status message.Status) (*message.StatusChange, error)
	MarkConversationRead(ctx context.Context, conversationID, reader uuid.UUID) ([]message.StatusChange, error)
	ConversationPeer(ctx context.Context, conversationID, userID uuid.UUID) (uuid.UUID, error)
}

type LastSeenRecorder interface {
	SetOnline(ctx context.Context, userID uuid.UUID) error
	SetOffline(ctx context.Context, userID uuid.UUID) error
}

type NotificationPublisher interface {
	PublishNotification(ctx context.Context, n notification.Notification) error
}

type MessageLimiter interface {
	AllowMessage(ctx context.Context, userID uuid.UUID) (*redis.RateLimitResult, error)
}

// HubOptions carries the optional Redis-backed collaborators. Nil fields
// switch the feature off.
type HubOptions struct {
	Presence  LastSeenRecorder
	Publisher NotificationPublisher
	Limiter   MessageLimiter
}

const sideEffectTimeout = 2 * time.Second

// Hub owns the presence registry. Connects and disconnects are serialized
// through Run; event relay runs on each client's read goroutine.
type Hub struct {
	registry   *Registry
	register   chan *Client
	unregister chan *Client
	messaging  Messaging
	opts       HubOptions
	logger     *WebSocketLogger
	stop       chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
	isRunning  int32
}

func NewHub(messaging Messaging, opts HubOptions, l *logger.Logger) *Hub {
	return &Hub{
		registry:   NewRegistry(),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		messaging:  messaging,
		opts:       opts,
		logger:     NewWebSocketLogger(l),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

// OnlineUsers lists users with at least one live connection.
func (h *Hub) OnlineUsers() []uuid.UUID {
	return h.registry.Online()
}

func (h *Hub) IsOnline(userID uuid.UUID) bool {
	return h.registry.IsOnline(userID)
}

// Run processes registrations until ctx is cancelled or Stop is called, then
// closes every remaining connection.
func (h *Hub) Run(ctx context.Context) {
	atomic.StoreInt32(&h.isRunning, 1)
	defer h.drainRegistrations()
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.handleRegister(ctx, client)
		case client := <-h.unregister:
			h.handleUnregister(ctx, client)
		case <-ctx.Done():
			h.shutdown()
			return
		case <-h.stop:
			h.shutdown()
			return
		}
	}
}

// Stop shuts the hub down and waits for Run to return.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	if atomic.LoadInt32(&h.isRunning) == 1 {
		<-h.done
	}
}

// Register hands client to Run. Once Run has returned the connection is
// closed instead of being queued where nothing will read it.
func (h *Hub) Register(client *Client) {
	select {
	case <-h.done:
		discard(client)
		return
	default:
	}

	select {
	case h.register <- client:
		// Run may have exited between the check above and the send.
		select {
		case <-h.done:
			h.drainRegistrations()
		default:
		}
	case <-h.done:
		discard(client)
	}
}

// drainRegistrations closes clients left in the register queue after Run
// has returned.
func (h *Hub) drainRegistrations() {
	for {
		select {
		case client := <-h.register:
			discard(client)
		default:
			return
		}
	}
}

// discard closes a client whose pumps were never started.
func discard(client *Client) {
	client.close()
	client.conn.Close()
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) handleRegister(ctx context.Context, client *Client) {
	first := h.registry.Register(client)

	go client.writePump()
	go client.readPump()

	online := h.registry.Online()
	ids := make([]string, len(online))
	for i, id := range online {
		ids[i] = id.String()
	}
	client.emit(EventOnlineUsers, OnlineUsersPayload{UserIDs: ids})
	h.broadcast(EventUserOnline, PresencePayload{UserID: client.UserID.String()})

	if first && h.opts.Presence != nil {
		pctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
		if err := h.opts.Presence.SetOnline(pctx, client.UserID); err != nil {
			h.logger.Warn("last seen update failed", client.UserID, client.ID, zap.Error(err))
		}
		cancel()
	}

	h.logger.Info("client connected", client.UserID, client.ID, zap.Bool("first_connection", first))
}

func (h *Hub) handleUnregister(ctx context.Context, client *Client) {
	removed, last := h.registry.Unregister(client)
	client.close()
	if !removed {
		return
	}
	h.logger.Info("client disconnected", client.UserID, client.ID, zap.Bool("last_connection", last))
	if !last {
		return
	}

	h.broadcast(EventUserOffline, PresencePayload{UserID: client.UserID.String()})
	if h.opts.Presence != nil {
		pctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
		if err := h.opts.Presence.SetOffline(pctx, client.UserID); err != nil {
			h.logger.Warn("last seen update failed", client.UserID, client.ID, zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) shutdown() {
	for _, client := range h.registry.All() {
		h.registry.Unregister(client)
		client.close()
	}
}

func (h *Hub) broadcast(eventType string, payload interface{}) {
	data, err := encode(eventType, payload)
	if err != nil {
		h.logger.Error("encode failed", uuid.Nil, "", err, zap.String("type", eventType))
		return
	}
	for _, client := range h.registry.All() {
		client.enqueue(data)
	}
}

// sendToUser pushes one event to every connection of userID and returns how
// many accepted it.
func (h *Hub) sendToUser(userID uuid.UUID, eventType string, payload interface{}) int {
	handles := h.registry.Lookup(userID)
	if len(handles) == 0 {
		return 0
	}
	data, err := encode(eventType, payload)
	if err != nil {
		h.logger.Error("encode failed", userID, "", err, zap.String("type", eventType))
		return 0
	}
	n := 0
	for _, client := range handles {
		if client.enqueue(data) {
			n++
		}
	}
	return n
}

// MessageStatusChanged pushes each promotion to the original sender.
func (h *Hub) MessageStatusChanged(_ context.Context, changes []message.StatusChange) {
	for _, ch := range changes {
		h.sendToUser(ch.SenderID, EventMessageStatusUpdate, httpdto.FromStatusChange(ch))
	}
}

// DeliverNew relays a freshly sent message. origin is the sending connection,
// nil when the message came in over REST. A collapsed duplicate is only echoed
// back to origin.
func (h *Hub) DeliverNew(ctx context.Context, res services.SendResult, origin *Client) {
	view := res.Message
	dto := httpdto.FromMessage(view.Message, view.Sender, view.Recipient)

	if origin != nil {
		origin.emit(EventMessageSent, dto)
	}
	if !res.Created {
		return
	}
	for _, client := range h.registry.Lookup(view.SenderID) {
		if client != origin {
			client.emit(EventMessageSent, dto)
		}
	}

	if h.sendToUser(view.RecipientID, EventNewMessage, dto) == 0 {
		h.notifyOffline(ctx, view.Message)
		return
	}
	if _, err := h.messaging.MarkDelivered(ctx, view.ID, view.RecipientID); err != nil {
		h.logger.Warn("delivered promotion failed", view.RecipientID, "",
			zap.String("message_id", view.ID.String()), zap.Error(err))
	}
}

func (h *Hub) notifyOffline(ctx context.Context, m message.Message) {
	if h.opts.Publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancel()
	if err := h.opts.Publisher.PublishNotification(pctx, notification.ForMessage(m.RecipientID, m.SenderID, m.ID)); err != nil {
		h.logger.Warn("offline notification failed", m.RecipientID, "",
			zap.String("message_id", m.ID.String()), zap.Error(err))
	}
}

// allowMessage fails open when Redis is unavailable.
func (h *Hub) allowMessage(ctx context.Context, client *Client) error {
	if h.opts.Limiter == nil {
		return nil
	}
	res, err := h.opts.Limiter.AllowMessage(ctx, client.UserID)
	if err != nil {
		h.logger.Warn("rate limit check failed", client.UserID, client.ID, zap.Error(err))
		return nil
	}
	if !res.Allowed {
		return chirp_errors.ErrRateLimited
	}
	return nil
}

func (h *Hub) handleSend(ctx context.Context, client *Client, p SendMessagePayload) error {
	if err := h.allowMessage(ctx, client); err != nil {
		return err
	}
	convID, err := services.ParseOptionalID("conversation_id", p.ConversationID)
	if err != nil {
		return err
	}
	recipientID, err := services.ParseOptionalID("recipient_id", p.RecipientID)
	if err != nil {
		return err
	}
	res, err := h.messaging.SendMessage(ctx, services.SendMessageInput{
		ConversationID:  convID,
		RecipientID:     recipientID,
		SenderID:        client.UserID,
		Content:         p.Content,
		ClientMessageID: p.ClientMessageID,
		Attachment:      p.Attachment.ToAttachment(),
	})
	if err != nil {
		return err
	}
	h.DeliverNew(ctx, res, client)
	return nil
}

func (h *Hub) handleStatus(ctx context.Context, client *Client, p MessageStatusPayload) error {
	messageID, err := services.ParseID("message_id", p.MessageID)
	if err != nil {
		return err
	}
	status, ok := message.ParseStatus(p.Status)
	if !ok {
		return fmt.Errorf("%w: unknown status %q", chirp_errors.ErrInvalidInput, p.Status)
	}
	_, err = h.messaging.UpdateStatus(ctx, messageID, client.UserID, status)
	return err
}

func (h *Hub) handleMarkRead(ctx context.Context, client *Client, p ConversationPayload) error {
	convID, err := services.ParseID("conversation_id", p.ConversationID)
	if err != nil {
		return err
	}
	_, err = h.messaging.MarkConversationRead(ctx, convID, client.UserID)
	return err
}

func (h *Hub) handleTyping(ctx context.Context, client *Client, p TypingPayload) error {
	convID, err := services.ParseID("conversation_id", p.ConversationID)
	if err != nil {
		return err
	}
	peer, err := h.messaging.ConversationPeer(ctx, convID, client.UserID)
	if err != nil {
		return err
	}
	h.sendToUser(peer, EventUserTyping, UserTypingPayload{
		ConversationID: convID.String(),
		UserID:         client.UserID.String(),
		Username:       client.Username,
		IsTyping:       p.IsTyping,
	})
	return nil
}
