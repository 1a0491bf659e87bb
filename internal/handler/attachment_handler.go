package handler

import (
	"context"
	"net/http"

	"chirp-dm/internal/services"
	"chirp-dm/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AttachmentPresigner interface {
	Presign(ctx context.Context, userID uuid.UUID, in services.PresignInput) (services.PresignResult, error)
}

type AttachmentHandler struct {
	service AttachmentPresigner
}

func NewAttachmentHandler(service AttachmentPresigner) *AttachmentHandler {
	return &AttachmentHandler{service: service}
}

func (h *AttachmentHandler) Presign(c *gin.Context) {
	var req httpdto.PresignAttachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "VALIDATION_ERROR"))
		return
	}
	me, ok := currentUser(c)
	if !ok {
		return
	}

	res, err := h.service.Presign(c.Request.Context(), me.ID, services.PresignInput{
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Size:        req.Size,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.PresignAttachmentResponse{
		Key:       res.Key,
		UploadURL: res.UploadURL,
		Headers:   res.Headers,
		FileURL:   res.FileURL,
		Name:      res.Name,
		Size:      res.Size,
	}))
}
