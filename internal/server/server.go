package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"chirp-dm/config"
	"chirp-dm/internal/handler"
	"chirp-dm/internal/middleware"
	"chirp-dm/internal/services"
	"chirp-dm/internal/transport/httpdto"
	"chirp-dm/internal/websocket"
	"chirp-dm/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
	onShutdown []func()
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Conversation *handler.ConversationHandler
	Message      *handler.MessageHandler
	Presence     *handler.PresenceHandler
	Attachment   *handler.AttachmentHandler
	WebSocket    *websocket.Handler
}

// HealthCheck pings one backing service.
type HealthCheck func(ctx context.Context) error

type Dependencies struct {
	Identity services.IdentityProvider
	Limiter  middleware.MessageLimiter
	Health   map[string]HealthCheck
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	if l == nil {
		l = logger.NewNop()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.AppPort),
			Handler: engine,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// OnShutdown registers fn to run after the HTTP server has drained.
func (s *Server) OnShutdown(fn func()) {
	s.onShutdown = append(s.onShutdown, fn)
}

func (s *Server) SetupRoutes(handlers *Handlers, deps Dependencies) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})
	s.engine.GET("/health", s.health(deps.Health))

	v1 := s.engine.Group("/v1")

	// The socket handshake authenticates itself so browsers can pass the
	// token as a query parameter.
	v1.GET("/ws", handlers.WebSocket.Connect)

	authed := v1.Group("")
	authed.Use(middleware.AuthMiddleware(deps.Identity))

	conversations := authed.Group("/conversations")
	{
		conversations.GET("", handlers.Conversation.List)
		conversations.POST("", handlers.Conversation.Create)
		conversations.POST("/message", middleware.MessageRateLimitMiddleware(deps.Limiter, s.logger), handlers.Conversation.Send)
		conversations.GET("/:id/messages", handlers.Conversation.Messages)
		conversations.PUT("/:id/read", handlers.Conversation.MarkRead)
		conversations.DELETE("/:id", handlers.Conversation.Delete)
	}

	messages := authed.Group("/messages")
	{
		messages.GET("/unread", handlers.Message.UnreadTotal)
		messages.DELETE("/:id", handlers.Message.Delete)
	}

	presence := authed.Group("/presence")
	{
		presence.GET("", handlers.Presence.List)
		presence.GET("/:userId", handlers.Presence.Get)
	}

	// nil when object storage is not configured
	if handlers.Attachment != nil {
		authed.POST("/attachments/presign", handlers.Attachment.Presign)
	}
}

func (s *Server) health(checks map[string]HealthCheck) gin.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		status := make(map[string]string, len(names))
		healthy := true
		for _, name := range names {
			if err := checks[name](c.Request.Context()); err != nil {
				s.logger.WarnCtx(c.Request.Context(), "health check failed",
					zap.String("check", name), zap.Error(err))
				status[name] = err.Error()
				healthy = false
				continue
			}
			status[name] = "ok"
		}

		if !healthy {
			c.JSON(http.StatusServiceUnavailable, httpdto.Response[map[string]string]{
				Success: false,
				Data:    status,
				Error:   "unhealthy",
				Code:    "UNHEALTHY",
			})
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(status))
	}
}

func (s *Server) Start() error {
	go func() {
		s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("Error in starting the server: %s", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	s.logger.Infof("Server is running on :%s", s.config.AppPort)

	<-quit

	s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
	}

	for _, fn := range s.onShutdown {
		fn()
	}

	if err == nil {
		s.logger.Infof("Server stopped gracefully")
	}
	return err
}
