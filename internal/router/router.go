// Package router assembles the Gin engine: global middleware, health and metrics
// endpoints, and the /v1 API routes.
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	chatHandler "chatcore-backend/internal/handler/http/chat"
	conversationHandler "chatcore-backend/internal/handler/http/conversation"
	storageHandler "chatcore-backend/internal/handler/http/storage"
	userHandler "chatcore-backend/internal/handler/http/user"
	"chatcore-backend/internal/middleware"
	"chatcore-backend/pkg/constants"
	"chatcore-backend/pkg/metrics"
)

// Handlers groups the HTTP handlers of every component
type Handlers struct {
	User         *userHandler.Handler
	Conversation *conversationHandler.Handler
	Chat         *chatHandler.Handler
	Storage      *storageHandler.Handler
}

// Options configures the cross-cutting middleware
type Options struct {
	Metrics        *metrics.Metrics
	AllowedOrigins string
	RequestTimeout time.Duration
	MaxUploadBytes int64
	// RateLimiter may be nil to disable limiting
	RateLimiter *middleware.RateLimiter
	Health      gin.HandlerFunc
}

// New builds the router
func New(h Handlers, opts Options) *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = constants.MultipartMemory

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORSMiddleware(opts.AllowedOrigins))
	if opts.Metrics != nil {
		router.Use(middleware.NewPrometheusMiddleware(opts.Metrics).Handler())
	}

	timeouts := &middleware.TimeoutConfig{
		DefaultTimeout: opts.RequestTimeout,
		RouteTimeouts: map[string]time.Duration{
			"/v1/files":     constants.UploadTimeout,
			"/v1/files/:id": constants.UploadTimeout,
		},
	}
	if timeouts.DefaultTimeout <= 0 {
		timeouts.DefaultTimeout = constants.DefaultTimeout
	}
	router.Use(middleware.NewTimeoutMiddleware(timeouts).Middleware())

	if opts.Health != nil {
		router.GET("/health", opts.Health)
	}
	router.GET("/metrics", middleware.MetricsHandler(opts.Metrics))

	v1 := router.Group("/v1")
	if opts.RateLimiter != nil {
		v1.Use(opts.RateLimiter.Middleware())
	}

	// Open routes
	users := v1.Group("/users")
	{
		users.POST("/signup", h.User.Signup)
		users.POST("/login", h.User.Login)
		users.GET("", h.User.ListUsers)
		users.GET("/online", h.User.ListOnline)
		users.GET("/:id", h.User.GetUser)
	}

	// Routes acting as the X-User-ID caller
	authed := v1.Group("")
	authed.Use(middleware.RequireUser())
	{
		authed.POST("/users/activity", h.User.TouchActivity)
		authed.POST("/users/logout", h.User.Logout)
		authed.PATCH("/users/me/preferences", h.User.UpdatePreferences)

		authed.POST("/conversations/direct", h.Conversation.FindOrCreateDirect)
		authed.POST("/conversations/groups", h.Conversation.CreateGroup)
		authed.GET("/conversations", h.Conversation.ListConversations)
		authed.GET("/conversations/:id", h.Conversation.GetConversation)
		authed.GET("/conversations/:id/messages", h.Conversation.ListMessages)
		authed.POST("/conversations/:id/members", h.Conversation.AddMember)
		authed.DELETE("/conversations/:id/members/:user_id", h.Conversation.RemoveMember)
		authed.POST("/conversations/:id/read", h.Conversation.MarkRead)

		authed.POST("/messages", h.Chat.SendMessage)
		authed.POST("/messages/:id/read", h.Chat.MarkRead)
		authed.GET("/messages/:id/receipts", h.Chat.ListReceipts)

		authed.POST("/files", limitBody(opts.MaxUploadBytes), h.Storage.Upload)
		authed.GET("/files/:id", h.Storage.Download)
		authed.GET("/files/:id/url", h.Storage.DownloadURL)
		authed.GET("/files/:id/verify", h.Storage.Verify)
	}

	return router
}

// multipartSlack covers form boundaries and the conversation_id field
const multipartSlack = 1 << 20

func limitBody(maxUploadBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxUploadBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes+multipartSlack)
		}
		c.Next()
	}
}
