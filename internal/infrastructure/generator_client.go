package infrastructure

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/huduma/answer-service/internal/config"
	"github.com/huduma/answer-service/internal/entities"
	apperrors "github.com/huduma/answer-service/internal/errors"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []chatMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GeneratorClient talks to an OpenAI-compatible chat completions endpoint
// (OpenRouter by default). One HTTP request per Generate call.
type GeneratorClient struct {
	client *resty.Client
	url    string
	apiKey string
	model  string
}

func NewGeneratorClient(cfg config.GeneratorConfig) *GeneratorClient {
	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.SiteURL != "" {
		client.SetHeader("HTTP-Referer", cfg.SiteURL)
	}
	if cfg.SiteName != "" {
		client.SetHeader("X-Title", cfg.SiteName)
	}

	return &GeneratorClient{
		client: client,
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
	}
}

// Generate sends the system prompt, the request turns and the question,
// in that order. HTTP 429 is reported as a rate-limited error.
func (g *GeneratorClient) Generate(ctx context.Context, req entities.GenerationRequest) (entities.GenerationResult, error) {
	if g.apiKey == "" || g.url == "" {
		return entities.GenerationResult{}, apperrors.NewConfigurationError("generator url and api key are required")
	}

	messages := make([]chatMessage, 0, len(req.Turns)+2)
	messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	for _, t := range req.Turns {
		messages = append(messages, chatMessage{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Question})

	op := string(req.Variant) + " generation"
	var body chatCompletionResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetAuthToken(g.apiKey).
		SetBody(chatCompletionRequest{Model: g.model, Messages: messages}).
		SetResult(&body).
		ForceContentType("application/json").
		Post(g.url)
	if err != nil {
		return entities.GenerationResult{}, apperrors.NewTransportError(op, err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return entities.GenerationResult{}, apperrors.NewRateLimitedError(op)
	}
	if resp.IsError() {
		return entities.GenerationResult{}, apperrors.NewStatusError(op, resp.StatusCode())
	}

	if len(body.Choices) == 0 {
		return entities.GenerationResult{}, apperrors.NewEmptyResultError(op)
	}
	text := strings.TrimSpace(body.Choices[0].Message.Content)
	if text == "" {
		return entities.GenerationResult{}, apperrors.NewEmptyResultError(op)
	}
	return entities.GenerationResult{Text: text}, nil
}
