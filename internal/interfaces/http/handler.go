package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/huduma/answer-service/internal/entities"
	"github.com/huduma/answer-service/internal/interfaces"
	"github.com/huduma/answer-service/internal/logger"
)

// Deps carries everything the routes need. WhatsApp and Admin are
// optional; their routes are only registered when set.
type Deps struct {
	Chat         interfaces.ChatHandler
	Middleware   *Middleware
	MaxBodyBytes int64
	WhatsApp     *WhatsAppHandler
	Admin        *AdminHandler
	Logger       logger.Logger
}

type Handler struct {
	chat   interfaces.ChatHandler
	logger logger.Logger
}

func NewHandler(chat interfaces.ChatHandler, log logger.Logger) *Handler {
	return &Handler{chat: chat, logger: log}
}

func SetupRoutes(r *gin.Engine, deps Deps) {
	h := NewHandler(deps.Chat, deps.Logger)

	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	r.Use(deps.Middleware.RequestLogger())
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(deps.MaxBodyBytes))
	r.Use(deps.Middleware.CORSMiddleware())

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/chat", deps.Middleware.RateLimitPerClient(), h.HandleChat)

	if deps.WhatsApp != nil {
		deps.WhatsApp.RegisterRoutes(r)
	}
	if deps.Admin != nil {
		deps.Admin.RegisterRoutes(r, deps.Middleware)
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type chatRequest struct {
	Message string          `json:"message"`
	History []entities.Turn `json:"history"`
}

// HandleChat answers one web question. Only malformed input is rejected;
// downstream failures still come back as a 200 with a fallback reply.
func (h *Handler) HandleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	message := strings.TrimSpace(SanitizeString(req.Message))
	if message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
		return
	}
	if !ValidateLength(message, 1, MaxMessageLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is too long"})
		return
	}

	history := req.History
	if len(history) > MaxHistoryTurns {
		history = history[len(history)-MaxHistoryTurns:]
	}

	msg := entities.Message{
		ID:       c.GetString("request_id"),
		From:     c.ClientIP(),
		Content:  message,
		Platform: entities.PlatformWeb,
	}

	env := h.chat.Handle(c.Request.Context(), msg, history)
	c.JSON(http.StatusOK, env)
}
