package handlers

import (
	"net/http"
	"time"

	"github.com/devroad/mentorchat/internal/auth"
	"github.com/devroad/mentorchat/internal/chat"
	"github.com/devroad/mentorchat/internal/events"
	"github.com/devroad/mentorchat/internal/logger"
	"github.com/devroad/mentorchat/internal/media"
	"github.com/devroad/mentorchat/internal/metrics"
	"github.com/devroad/mentorchat/internal/push"
	"github.com/devroad/mentorchat/internal/ratelimit"
	"github.com/devroad/mentorchat/internal/ws"
	"github.com/devroad/mentorchat/pkg/config"
	apperrors "github.com/devroad/mentorchat/pkg/errors"
	"github.com/gin-gonic/gin"
)

// Deps are the services the HTTP API is built from. Push and Hub may be nil.
type Deps struct {
	Config    *config.Config
	Log       *logger.Logger
	Metrics   *metrics.Metrics
	Auth      *auth.Service
	Directory *chat.Directory
	Messages  *chat.MessageStore
	Guard     *ratelimit.Guard
	Uploader  *media.Uploader
	Events    events.Sink
	Hub       *ws.Hub
	Push      *push.Notifier
}

// ChatMessageRule is the per conversation budget shared by reads and writes
// of its messages.
func ChatMessageRule(cfg *config.Config) ratelimit.Rule {
	return ratelimit.Rule{Name: "chat:message", Limit: cfg.ChatRateLimit, Window: cfg.ChatRateWindow}
}

func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}

	router := gin.New()
	router.Use(RequestLogger(log.Component("http"), d.Metrics))
	router.Use(Recovery(log))
	router.Use(CORS(cfg.CORSOrigins))
	router.MaxMultipartMemory = 8 << 20

	authHandler := NewAuthHandler(d.Auth)
	chatHandler := NewChatHandler(d.Directory, d.Messages, d.Events, log)
	uploadHandler := NewUploadHandler(d.Uploader, cfg.MaxUploadSize)
	adminHandler := NewAdminHandler(d.Auth, d.Directory, d.Messages)
	pushHandler := NewPushHandler(d.Push)

	loginRule := ratelimit.Rule{Name: "auth:login", Limit: cfg.LoginRateLimit, Window: time.Minute}
	registerRule := ratelimit.Rule{Name: "auth:register", Limit: cfg.RegisterRateLimit, Window: time.Minute}
	messageRule := ChatMessageRule(cfg)
	messageLimit := RateLimit(d.Guard, messageRule, ConversationScope(messageRule))

	api := router.Group("/api")
	{
		api.POST("/auth/register", RateLimit(d.Guard, registerRule, RuleScope(registerRule)), authHandler.Register)
		api.POST("/auth/login", RateLimit(d.Guard, loginRule, RuleScope(loginRule)), authHandler.Login)
	}

	protected := api.Group("")
	protected.Use(authHandler.AuthMiddleware())
	{
		protected.GET("/auth/me", authHandler.Me)

		protected.GET("/chat/mentors", chatHandler.ListMentors)
		protected.GET("/chat/conversations", chatHandler.ListConversations)
		protected.POST("/chat/conversations", chatHandler.OpenConversation)
		protected.GET("/chat/conversations/:id/messages", messageLimit, chatHandler.ListMessages)
		protected.POST("/chat/conversations/:id/messages", messageLimit, chatHandler.SendMessage)

		protected.POST("/media/upload", uploadHandler.Upload)

		protected.GET("/push/vapid-public-key", pushHandler.VAPIDPublicKey)
		protected.POST("/push/subscribe", pushHandler.Subscribe)
		protected.DELETE("/push/subscribe", pushHandler.Unsubscribe)
	}

	admin := protected.Group("/admin")
	admin.Use(AdminOnly())
	{
		admin.GET("/chat/conversations", adminHandler.ListConversations)
		admin.GET("/chat/conversations/:id/messages", adminHandler.ListMessages)
		admin.PUT("/users/:id/role", adminHandler.SetRole)
	}

	// Uploaded files when stored locally
	if cfg.FileStoragePath != "" {
		router.Group("/api/files", NoSniff()).Static("", cfg.FileStoragePath)
	}

	if d.Hub != nil {
		router.GET("/ws", authHandler.AuthMiddleware(), d.Hub.HandleWebSocket)
	}

	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: __("not found"), Code: apperrors.CodeNotFound})
	})

	return router
}
