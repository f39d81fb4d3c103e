package infrastructure

import (
	"context"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/huduma/answer-service/internal/config"
	"github.com/huduma/answer-service/internal/entities"
	apperrors "github.com/huduma/answer-service/internal/errors"
)

type retrieverRequest struct {
	Question string `json:"question"`
}

type retrieverResponse struct {
	Answer  string   `json:"answer"`
	Context []string `json:"context"`
}

// RetrieverClient calls the document-retrieval service. It makes exactly
// one request per call; the caller's context carries the timeout.
type RetrieverClient struct {
	client    *resty.Client
	url       string
	healthURL string
}

func NewRetrieverClient(cfg config.RetrieverConfig) *RetrieverClient {
	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &RetrieverClient{
		client:    client,
		url:       cfg.URL,
		healthURL: cfg.HealthURL,
	}
}

func (r *RetrieverClient) Retrieve(ctx context.Context, question string) (entities.RetrievalResult, error) {
	if r.url == "" {
		return entities.RetrievalResult{}, apperrors.NewConfigurationError("retriever url not configured")
	}

	var body retrieverResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(retrieverRequest{Question: question}).
		SetResult(&body).
		ForceContentType("application/json").
		Post(r.url)
	if err != nil {
		return entities.RetrievalResult{}, apperrors.NewTransportError("retrieve", err)
	}
	if resp.IsError() {
		return entities.RetrievalResult{}, apperrors.NewStatusError("retrieve", resp.StatusCode())
	}

	result := entities.RetrievalResult{Answer: strings.TrimSpace(body.Answer)}
	for _, snippet := range body.Context {
		if s := strings.TrimSpace(snippet); s != "" {
			result.Context = append(result.Context, s)
		}
	}
	return result, nil
}

// Health probes the retriever's health endpoint.
func (r *RetrieverClient) Health(ctx context.Context) error {
	if r.healthURL == "" {
		return apperrors.NewConfigurationError("retriever health url not configured")
	}
	resp, err := r.client.R().SetContext(ctx).Get(r.healthURL)
	if err != nil {
		return apperrors.NewTransportError("retriever health", err)
	}
	if resp.IsError() {
		return apperrors.NewStatusError("retriever health", resp.StatusCode())
	}
	return nil
}
