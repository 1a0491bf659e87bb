package websocket

import (
	"net/http"
	"strings"

	"chirp-dm/internal/services"
	"chirp-dm/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type Handler struct {
	identity services.IdentityProvider
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewHandler(identity services.IdentityProvider, hub *Hub) *Handler {
	return &Handler{
		identity: identity,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Connect authenticates the handshake before upgrading. A rejected handshake
// never reaches the registry.
func (h *Handler) Connect(c *gin.Context) {
	token := ExtractToken(c.Request)
	if token == "" {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("missing credential", "UNAUTHORIZED"))
		return
	}

	identity, err := h.identity.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("invalid credential", "UNAUTHORIZED"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.logger.Error("websocket upgrade failed", identity.UserID, "", err)
		return
	}

	h.hub.Register(NewClient(h.hub, conn, identity))
}

// ExtractToken checks, in order, the X-Auth-Token header, the token query
// parameter and a Bearer Authorization header. The first one present wins.
func ExtractToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get("X-Auth-Token")); token != "" {
		return token
	}
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
