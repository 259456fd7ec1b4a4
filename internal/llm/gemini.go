package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/edgard/chatkeeper/internal/config"
)

type geminiClient struct {
	models        *genai.Models
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	model         string
	retry         retryPolicy
}

// NewGemini creates a Client backed by the Gemini API.
func NewGemini(ctx context.Context, cfg config.GeminiConfig, retry config.LLMConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	temperature := cfg.Temperature
	baseCfg := &genai.GenerateContentConfig{
		Temperature: &temperature,
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
		},
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized", "model", cfg.Model)
	return &geminiClient{
		models:        gi.Models,
		log:           logger,
		contentConfig: baseCfg,
		model:         cfg.Model,
		retry:         retryPolicy{maxRetries: retry.MaxRetries, delay: retry.RetryDelay},
	}, nil
}

func (c *geminiClient) Complete(ctx context.Context, turns []Turn) (string, error) {
	var contents []*genai.Content
	for _, t := range turns {
		switch t.Role {
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(t.Text, genai.RoleUser))
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(t.Text, genai.RoleModel))
		}
	}
	if len(contents) == 0 {
		return "", ErrNoPrompt
	}

	cfg := *c.contentConfig
	if sys := systemText(turns); sys != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: sys}}}
	}

	c.log.DebugContext(ctx, "Requesting completion", "turns", len(contents))
	return c.retry.do(ctx, c.log, geminiRetryable, func(ctx context.Context) (string, error) {
		resp, err := c.models.GenerateContent(ctx, c.model, contents, &cfg)
		if err != nil {
			return "", fmt.Errorf("gemini API call failed: %w", err)
		}
		return c.extractText(ctx, resp)
	})
}

// geminiRetryable accepts rate limiting and server-side failures.
func geminiRetryable(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return false
}

func (c *geminiClient) extractText(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ErrEmptyResponse
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		reason := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reason = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini request blocked", "reason", reason)
		return "", fmt.Errorf("request blocked by safety filter: %s", reason)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing content", "finish_reason", finishReason)
		return "", fmt.Errorf("%w (finish reason: %s)", ErrEmptyResponse, finishReason)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
