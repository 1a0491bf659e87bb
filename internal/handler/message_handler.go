package handler

import (
	"net/http"

	"chirp-dm/internal/services"
	"chirp-dm/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	service Messaging
}

func NewMessageHandler(service Messaging) *MessageHandler {
	return &MessageHandler{service: service}
}

// Delete removes one of the caller's own messages.
func (h *MessageHandler) Delete(c *gin.Context) {
	me, ok := currentUser(c)
	if !ok {
		return
	}
	messageID, err := services.ParseID("message id", c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.service.DeleteMessage(c.Request.Context(), messageID, me.ID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"deleted": true}))
}

func (h *MessageHandler) UnreadTotal(c *gin.Context) {
	me, ok := currentUser(c)
	if !ok {
		return
	}

	total, err := h.service.UnreadTotal(c.Request.Context(), me.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.UnreadTotalResponse{Total: total}))
}
