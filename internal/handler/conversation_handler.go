package handler

import (
	"context"
	"net/http"

	"chirp-dm/internal/domain/message"
	"chirp-dm/internal/domain/user"
	"chirp-dm/internal/services"
	"chirp-dm/internal/transport/httpdto"
	"chirp-dm/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Messaging is the part of the messaging service the REST facade calls.
type Messaging interface {
	FindOrCreateConversation(ctx context.Context, userID, recipientID uuid.UUID) (services.ConversationView, bool, error)
	ListConversations(ctx context.Context, userID uuid.UUID) ([]services.ConversationView, error)
	ListMessages(ctx context.Context, conversationID, requester uuid.UUID, page, limit int) (services.MessagePage, error)
	SendMessage(ctx context.Context, in services.SendMessageInput) (services.SendResult, error)
	MarkConversationRead(ctx context.Context, conversationID, reader uuid.UUID) ([]message.StatusChange, error)
	DeleteMessage(ctx context.Context, messageID, requester uuid.UUID) error
	DeleteConversation(ctx context.Context, conversationID, requester uuid.UUID) error
	UnreadTotal(ctx context.Context, userID uuid.UUID) (int, error)
}

// LiveDelivery pushes a REST-sent message to connected clients.
type LiveDelivery interface {
	DeliverNew(ctx context.Context, res services.SendResult, origin *websocket.Client)
}

type ConversationHandler struct {
	service  Messaging
	delivery LiveDelivery
}

func NewConversationHandler(service Messaging, delivery LiveDelivery) *ConversationHandler {
	return &ConversationHandler{service: service, delivery: delivery}
}

func (h *ConversationHandler) List(c *gin.Context) {
	me, ok := currentUser(c)
	if !ok {
		return
	}

	items, err := h.service.ListConversations(c.Request.Context(), me.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	out := make([]httpdto.ConversationDTO, 0, len(items))
	for _, item := range items {
		out = append(out, httpdto.FromConversation(item.Summary, me, item.OtherParticipant))
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(out))
}

// Create finds the conversation with recipient_id or starts one. A new
// conversation answers 201, an existing one 200.
func (h *ConversationHandler) Create(c *gin.Context) {
	var req httpdto.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "VALIDATION_ERROR"))
		return
	}
	me, ok := currentUser(c)
	if !ok {
		return
	}

	recipientID, err := services.ParseID("recipient_id", req.RecipientID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	view, created, err := h.service.FindOrCreateConversation(c.Request.Context(), me.ID, recipientID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, httpdto.NewSuccessResponse(httpdto.FromConversation(view.Summary, me, view.OtherParticipant)))
}

func (h *ConversationHandler) Messages(c *gin.Context) {
	me, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, err := services.ParseID("conversation id", c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	var req httpdto.ListMessagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid page or limit", "VALIDATION_ERROR"))
		return
	}

	page, err := h.service.ListMessages(c.Request.Context(), conversationID, me.ID, req.Page, req.Limit)
	if err != nil {
		_ = c.Error(err)
		return
	}

	out := httpdto.MessagePageResponse{
		Messages: make([]httpdto.MessageDTO, 0, len(page.Messages)),
		Total:    page.Total,
		Page:     page.Page,
		Limit:    page.Limit,
		HasMore:  page.HasMore,
	}
	for _, m := range page.Messages {
		out.Messages = append(out.Messages, httpdto.FromMessage(m.Message, m.Sender, m.Recipient))
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(out))
}

// Send is the fallback path for clients without a live connection. The stored
// message is still pushed to whoever is connected.
func (h *ConversationHandler) Send(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "VALIDATION_ERROR"))
		return
	}
	me, ok := currentUser(c)
	if !ok {
		return
	}

	conversationID, err := services.ParseOptionalID("conversation_id", req.ConversationID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	recipientID, err := services.ParseOptionalID("recipient_id", req.RecipientID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	res, err := h.service.SendMessage(c.Request.Context(), services.SendMessageInput{
		ConversationID:  conversationID,
		RecipientID:     recipientID,
		SenderID:        me.ID,
		Content:         req.Content,
		ClientMessageID: req.ClientMessageID,
		Attachment:      req.Attachment.ToAttachment(),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	if h.delivery != nil {
		h.delivery.DeliverNew(c.Request.Context(), res, nil)
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	view := res.Message
	c.JSON(status, httpdto.NewSuccessResponse(httpdto.FromMessage(view.Message, view.Sender, view.Recipient)))
}

func (h *ConversationHandler) MarkRead(c *gin.Context) {
	me, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, err := services.ParseID("conversation id", c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	changes, err := h.service.MarkConversationRead(c.Request.Context(), conversationID, me.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.MarkReadResponse{Updated: len(changes)}))
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	me, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, err := services.ParseID("conversation id", c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.service.DeleteConversation(c.Request.Context(), conversationID, me.ID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"deleted": true}))
}

// currentUser writes a 401 and reports false when the request carries no
// identity.
func currentUser(c *gin.Context) (user.Summary, bool) {
	id, ok := services.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return user.Summary{}, false
	}
	return user.Summary{ID: id.UserID, Username: id.Username}, true
}
