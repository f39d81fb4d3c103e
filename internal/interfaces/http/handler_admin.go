package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/huduma/answer-service/internal/config"
	"github.com/huduma/answer-service/internal/interfaces"
	"github.com/huduma/answer-service/internal/logger"
)

// Authenticator issues admin tokens.
type Authenticator interface {
	Login(username, password string) (string, error)
}

// RateLimiter is the admin view of a rate limiter.
type RateLimiter interface {
	GetStats() map[string]interface{}
	Reset(key string)
}

type AdminHandler struct {
	auth     Authenticator
	usage    interfaces.UsageReader
	persona  config.Persona
	limiters map[string]RateLimiter
	logger   logger.Logger
}

// NewAdminHandler accepts a nil usage reader when usage tracking is off.
func NewAdminHandler(auth Authenticator, usage interfaces.UsageReader, persona config.Persona, limiters map[string]RateLimiter, log logger.Logger) *AdminHandler {
	return &AdminHandler{
		auth:     auth,
		usage:    usage,
		persona:  persona,
		limiters: limiters,
		logger:   log,
	}
}

func (h *AdminHandler) RegisterRoutes(r *gin.Engine, m *Middleware) {
	r.POST("/api/auth/login", m.RateLimitPerClient(), h.Login)

	admin := r.Group("/api/admin")
	admin.Use(m.AuthRequired())
	admin.Use(m.AdminRequired())
	{
		admin.GET("/usage", h.GetUsage)
		admin.GET("/rules", h.GetRules)
		admin.GET("/stats", h.GetStats)
		admin.POST("/rate-limits/reset", h.ResetRateLimit)
	}
}

func (h *AdminHandler) Login(c *gin.Context) {
	var loginReq struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&loginReq); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	token, err := h.auth.Login(loginReq.Username, loginReq.Password)
	if err != nil {
		h.logger.Warn("admin login rejected", map[string]interface{}{"username": loginReq.Username})
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// GetUsage returns daily answer counts and per-source totals.
func (h *AdminHandler) GetUsage(c *gin.Context) {
	if h.usage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Usage tracking not configured"})
		return
	}

	days := ParseDays(c.Query("days"))
	ctx := c.Request.Context()

	daily, err := h.usage.DailyUsage(ctx, days)
	if err != nil {
		h.logger.WithError(err).Error("failed to fetch usage", nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch usage"})
		return
	}
	totals, err := h.usage.SourceTotals(ctx, days)
	if err != nil {
		h.logger.WithError(err).Error("failed to fetch usage totals", nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch usage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"days":    days,
		"daily":   daily,
		"sources": totals,
	})
}

// GetRules returns the greeting and fact dictionaries read-only.
func (h *AdminHandler) GetRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"greetings": h.persona.Greetings,
		"facts":     h.persona.Facts,
	})
}

func (h *AdminHandler) GetStats(c *gin.Context) {
	stats := gin.H{}
	for name, l := range h.limiters {
		stats[name] = l.GetStats()
	}
	c.JSON(http.StatusOK, gin.H{"rate_limiters": stats})
}

// ResetRateLimit clears one throttled key, e.g. "whatsapp:2547..." on the
// sender limiter.
func (h *AdminHandler) ResetRateLimit(c *gin.Context) {
	var req struct {
		Limiter string `json:"limiter"`
		Key     string `json:"key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Limiter == "" || req.Key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limiter and key are required"})
		return
	}

	limiter, ok := h.limiters[req.Limiter]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown rate limiter"})
		return
	}
	limiter.Reset(req.Key)

	h.logger.Info("rate limit reset", map[string]interface{}{
		"limiter":  req.Limiter,
		"key":      req.Key,
		"username": c.GetString("username"),
	})
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}
