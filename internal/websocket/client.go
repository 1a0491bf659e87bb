package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"chirp-dm/internal/domain/user"
	"chirp-dm/internal/services"
	chirp_errors "chirp-dm/pkg/errors"
	"chirp-dm/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	eventTimeout   = 10 * time.Second
	sendBuffer     = 256
)

// Client is one live connection. A user may hold several.
type Client struct {
	ID       string
	UserID   uuid.UUID
	Username string

	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	logger *WebSocketLogger

	mu     sync.Mutex
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, identity user.Identity) *Client {
	return &Client{
		ID:       uuid.NewString(),
		UserID:   identity.UserID,
		Username: identity.Username,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		ctx:      context.WithValue(context.Background(), logger.UserIdKey, identity.UserID.String()),
		logger:   hub.logger,
	}
}

// enqueue hands a frame to the write pump without blocking. It reports false
// if the connection is closed or its buffer is full.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.logger.Warn("client send buffer full", c.UserID, c.ID)
		return false
	}
}

func (c *Client) emit(eventType string, payload interface{}) bool {
	data, err := encode(eventType, payload)
	if err != nil {
		c.logger.Error("encode failed", c.UserID, c.ID, err, zap.String("type", eventType))
		return false
	}
	return c.enqueue(data)
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("websocket unexpected close", c.UserID, c.ID, err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handleMessage(data)
	}
}

// handleMessage runs on the read goroutine, so a connection's events are
// applied in the order they arrived.
func (c *Client) handleMessage(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.emitError("", fmt.Errorf("%w: malformed event", chirp_errors.ErrInvalidInput), "")
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, eventTimeout)
	defer cancel()

	switch env.Type {
	case EventSendMessage:
		var p SendMessagePayload
		if err := decodePayload(env.Payload, &p); err != nil {
			c.emitError(env.Type, err, "")
			return
		}
		if err := c.hub.handleSend(ctx, c, p); err != nil {
			c.emitError(env.Type, err, p.ClientMessageID)
		}

	case EventMessageStatus:
		var p MessageStatusPayload
		if err := decodePayload(env.Payload, &p); err == nil {
			err = c.hub.handleStatus(ctx, c, p)
			if err != nil {
				c.logger.Warn("status update dropped", c.UserID, c.ID,
					zap.String("message_id", p.MessageID), zap.Error(err))
			}
		}

	case EventMarkConversationRead:
		var p ConversationPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			c.emitError(env.Type, err, "")
			return
		}
		if err := c.hub.handleMarkRead(ctx, c, p); err != nil {
			c.emitError(env.Type, err, "")
		}

	case EventTyping:
		var p TypingPayload
		if err := decodePayload(env.Payload, &p); err == nil {
			err = c.hub.handleTyping(ctx, c, p)
			if err != nil {
				c.logger.Warn("typing relay dropped", c.UserID, c.ID, zap.Error(err))
			}
		}

	case EventPing:
		c.emit(EventPong, nil)

	default:
		c.logger.Warn("unknown message type", c.UserID, c.ID, zap.String("msg_type", env.Type))
	}
}

func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: payload is required", chirp_errors.ErrInvalidInput)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: malformed payload", chirp_errors.ErrInvalidInput)
	}
	return nil
}

// emitError reports a failure to this connection only. Server errors are
// logged and replaced with a generic message.
func (c *Client) emitError(event string, err error, clientMessageID string) {
	msg := err.Error()
	if services.HTTPStatus(err) >= 500 {
		c.logger.Error("event failed", c.UserID, c.ID, err, zap.String("msg_type", event))
		msg = "internal server error"
	}
	c.emit(EventMessageError, ErrorPayload{
		Event:           event,
		Error:           msg,
		Code:            services.ErrorCode(err),
		ClientMessageID: clientMessageID,
	})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
