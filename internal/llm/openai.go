package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/edgard/chatkeeper/internal/config"
)

type openAIClient struct {
	client      *openai.Client
	log         *slog.Logger
	model       string
	temperature float32
	maxTokens   int
	retry       retryPolicy
}

// NewOpenAI creates a Client for an OpenAI-compatible chat completion API.
// An empty BaseURL targets api.openai.com.
func NewOpenAI(cfg config.OpenAIConfig, retry config.LLMConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	logger := log.With("component", "openai_client")
	logger.Info("OpenAI-compatible client initialized", "model", cfg.Model, "base_url", clientCfg.BaseURL)
	return &openAIClient{
		client:      openai.NewClientWithConfig(clientCfg),
		log:         logger,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		retry:       retryPolicy{maxRetries: retry.MaxRetries, delay: retry.RetryDelay},
	}, nil
}

func (c *openAIClient) Complete(ctx context.Context, turns []Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns))
	conversational := 0
	for _, t := range turns {
		var role string
		switch t.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
			conversational++
		default:
			role = openai.ChatMessageRoleUser
			conversational++
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Text})
	}
	if conversational == 0 {
		return "", ErrNoPrompt
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	c.log.DebugContext(ctx, "Requesting completion", "turns", len(messages))
	return c.retry.do(ctx, c.log, openAIRetryable, func(ctx context.Context) (string, error) {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return "", fmt.Errorf("chat completion failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", ErrEmptyResponse
		}
		text := strings.TrimSpace(resp.Choices[0].Message.Content)
		if text == "" {
			return "", ErrEmptyResponse
		}
		return text, nil
	})
}

// openAIRetryable accepts rate limiting and server-side failures.
func openAIRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	return false
}
