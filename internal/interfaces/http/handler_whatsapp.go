package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/huduma/answer-service/internal/entities"
	"github.com/huduma/answer-service/internal/infrastructure"
	"github.com/huduma/answer-service/internal/interfaces"
	"github.com/huduma/answer-service/internal/logger"
	"github.com/huduma/answer-service/internal/metrics"
)

type whatsAppWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Messages []whatsAppInbound `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type whatsAppInbound struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
}

// WhatsAppHandler serves the Cloud API webhook.
type WhatsAppHandler struct {
	chat          interfaces.ChatHandler
	messenger     interfaces.Messenger
	limiter       *infrastructure.MessageRateLimiter
	verifyToken   string
	displayNumber string
	deadline      time.Duration
	logger        logger.Logger
}

// NewWhatsAppHandler bounds every webhook request, all of its messages and
// their replies included, by deadline.
func NewWhatsAppHandler(chat interfaces.ChatHandler, messenger interfaces.Messenger, limiter *infrastructure.MessageRateLimiter, verifyToken, displayNumber string, deadline time.Duration, log logger.Logger) *WhatsAppHandler {
	return &WhatsAppHandler{
		chat:          chat,
		messenger:     messenger,
		limiter:       limiter,
		verifyToken:   verifyToken,
		deadline:      deadline,
		displayNumber: digitsOnly(displayNumber),
		logger:        log,
	}
}

func (h *WhatsAppHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/webhook/whatsapp", h.Verify)
	r.POST("/webhook/whatsapp", h.Receive)
	r.GET("/api/whatsapp/qr", h.QRCode)
}

// Verify answers the subscription handshake.
func (h *WhatsAppHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && h.verifyToken != "" && token == h.verifyToken {
		h.logger.Info("whatsapp webhook verified", nil)
		c.String(http.StatusOK, challenge)
		return
	}
	c.String(http.StatusForbidden, "Forbidden")
}

// Receive processes every text message in the notification. The reply is
// always 200 so the platform does not redeliver.
func (h *WhatsAppHandler) Receive(c *gin.Context) {
	var payload whatsAppWebhook
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.String(http.StatusBadRequest, "Invalid JSON")
		return
	}

	if payload.Object != "whatsapp_business_account" {
		c.String(http.StatusOK, "Event received")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.deadline)
	defer cancel()

	processed := 0
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, in := range change.Value.Messages {
				if in.Type != "text" || strings.TrimSpace(in.Text.Body) == "" {
					continue
				}
				h.handleText(ctx, in)
				processed++
			}
		}
	}

	if processed > 0 {
		c.String(http.StatusOK, "Message processed")
		return
	}
	c.String(http.StatusOK, "Event received")
}

func (h *WhatsAppHandler) handleText(ctx context.Context, in whatsAppInbound) {
	if h.limiter != nil && !h.limiter.Allow("whatsapp:"+in.From) {
		metrics.InboundThrottled.WithLabelValues(entities.PlatformWhatsApp).Inc()
		h.logger.Warn("whatsapp sender throttled", map[string]interface{}{"from": in.From})
		return
	}

	env := h.chat.Handle(ctx, entities.Message{
		ID:       in.ID,
		From:     in.From,
		Content:  SanitizeString(in.Text.Body),
		Platform: entities.PlatformWhatsApp,
	}, nil)

	if err := h.messenger.SendMessage(ctx, in.From, env.Reply); err != nil {
		h.logger.WithError(err).Error("failed to send whatsapp reply", map[string]interface{}{
			"to":     in.From,
			"source": string(env.Source),
		})
	}
}

// QRCode renders a click-to-chat QR for the configured business number.
func (h *WhatsAppHandler) QRCode(c *gin.Context) {
	if h.displayNumber == "" {
		c.String(http.StatusNotFound, "WhatsApp number not configured")
		return
	}

	png, err := qrcode.Encode("https://wa.me/"+h.displayNumber, qrcode.Medium, 256)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to generate QR code")
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

// digitsOnly keeps the digits of a phone number as wa.me expects them.
func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
