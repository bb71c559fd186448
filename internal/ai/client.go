// Package ai implements the AI collaborator: it turns a weather snapshot and
// suggestion options into an outfit suggestion via an OpenAI-compatible chat
// completion endpoint. The rest of the service treats this client as opaque;
// only the result's type discriminator matters upstream.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"outfitter/internal/models"
)

// Client calls the chat completion API to generate outfit suggestions.
type Client struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// NewClient creates an AI client from configuration.
func NewClient(cfg models.AIConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for the AI client")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required for the AI client")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)

	return &Client{
		client:    &client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
	}, nil
}

// SuggestOutfit requests an outfit suggestion for the given weather snapshot
// and options. A per-call timeout bounds the upstream request; any transport
// failure, empty completion, or unparseable payload is returned as an error
// for the orchestrator to convert into the fallback response.
func (c *Client) SuggestOutfit(ctx context.Context, weather map[string]any, opts models.SuggestOptions) (*models.SuggestionResult, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	userPrompt, err := buildUserPrompt(weather, opts)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		MaxTokens: openai.Int(int64(c.maxTokens)),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	suggestions, err := parseSuggestions(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("malformed suggestion payload: %w", err)
	}

	return &models.SuggestionResult{
		Type:        models.ResultSuccess,
		Suggestions: suggestions,
	}, nil
}

// parseSuggestions extracts the suggestion object from the completion text.
// Models routinely wrap JSON in markdown fences, so those are stripped first.
func parseSuggestions(content string) (map[string]any, error) {
	text := strings.TrimSpace(content)
	if after, ok := strings.CutPrefix(text, "```json"); ok {
		text = after
	} else if after, ok := strings.CutPrefix(text, "```"); ok {
		text = after
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	text = strings.TrimSpace(text)

	var suggestions map[string]any
	if err := json.Unmarshal([]byte(text), &suggestions); err != nil {
		return nil, err
	}
	if len(suggestions) == 0 {
		return nil, fmt.Errorf("empty suggestion object")
	}
	return suggestions, nil
}
