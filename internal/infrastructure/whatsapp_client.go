package infrastructure

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"github.com/huduma/answer-service/internal/config"
	apperrors "github.com/huduma/answer-service/internal/errors"
)

// whatsAppMaxBody is the Cloud API limit for a text message body.
const whatsAppMaxBody = 4096

type whatsAppText struct {
	Body string `json:"body"`
}

type whatsAppOutbound struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsAppText `json:"text"`
}

// WhatsAppBusinessClient sends replies through the WhatsApp Cloud API.
type WhatsAppBusinessClient struct {
	client   *resty.Client
	endpoint string
}

func NewWhatsAppBusinessClient(cfg config.WhatsAppConfig) *WhatsAppBusinessClient {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://graph.facebook.com"
	}
	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetAuthToken(cfg.AccessToken)

	return &WhatsAppBusinessClient{
		client:   client,
		endpoint: fmt.Sprintf("%s/%s/%s/messages", base, cfg.APIVersion, cfg.PhoneNumberID),
	}
}

// SendMessage implements interfaces.Messenger.
func (w *WhatsAppBusinessClient) SendMessage(ctx context.Context, to, content string) error {
	payload := whatsAppOutbound{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             whatsAppText{Body: truncateRunes(content, whatsAppMaxBody)},
	}
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(w.endpoint)
	if err != nil {
		return apperrors.NewTransportError("send whatsapp message", err)
	}
	if resp.IsError() {
		return apperrors.NewStatusError("send whatsapp message", resp.StatusCode())
	}
	return nil
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-3]) + "..."
}
