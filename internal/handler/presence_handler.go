package handler

import (
	"context"
	"net/http"

	"chirp-dm/internal/redis"
	"chirp-dm/internal/services"
	"chirp-dm/internal/transport/httpdto"
	"chirp-dm/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OnlineLookup interface {
	IsOnline(userID uuid.UUID) bool
	OnlineUsers() []uuid.UUID
}

type LastSeenReader interface {
	Get(ctx context.Context, userID uuid.UUID) (redis.LastSeen, bool, error)
}

type PresenceHandler struct {
	online   OnlineLookup
	lastSeen LastSeenReader
	logger   *logger.Logger
}

func NewPresenceHandler(online OnlineLookup, lastSeen LastSeenReader, l *logger.Logger) *PresenceHandler {
	if l == nil {
		l = logger.NewNop()
	}
	return &PresenceHandler{online: online, lastSeen: lastSeen, logger: l}
}

// Get answers online from the in-process registry. last_seen comes from the
// Redis mirror and is left out when Redis has nothing or is unreachable.
func (h *PresenceHandler) Get(c *gin.Context) {
	userID, err := services.ParseID("user id", c.Param("userId"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	resp := httpdto.PresenceResponse{
		UserID: userID.String(),
		Online: h.online.IsOnline(userID),
	}

	if h.lastSeen != nil {
		seen, found, err := h.lastSeen.Get(c.Request.Context(), userID)
		switch {
		case err != nil:
			h.logger.WarnCtx(c.Request.Context(), "last seen lookup failed",
				zap.String("target_user_id", userID.String()), zap.Error(err))
		case found:
			resp.LastSeen = httpdto.FormatTime(seen.LastSeen)
		}
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(resp))
}

func (h *PresenceHandler) List(c *gin.Context) {
	ids := h.online.OnlineUsers()
	out := httpdto.OnlineUsersResponse{UserIDs: make([]string, 0, len(ids))}
	for _, id := range ids {
		out.UserIDs = append(out.UserIDs, id.String())
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(out))
}
