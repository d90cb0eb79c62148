package rewrite

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/deusflow/nieuwsmetai/internal/retry"
)

// ChatClient is the part of the go-openai client the provider uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type OpenAI struct {
	client    ChatClient
	model     string
	maxTokens int
}

func NewOpenAI(apiKey, model string) *OpenAI {
	return NewOpenAIWithClient(openai.NewClient(apiKey), model)
}

func NewOpenAIWithClient(client ChatClient, model string) *OpenAI {
	return &OpenAI{client: client, model: model, maxTokens: 2000}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Generate(ctx context.Context, system, prompt string) (string, map[string]any, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   o.maxTokens,
		Temperature: 0.3,
	})
	if err != nil {
		return "", nil, classifyOpenAI(err)
	}

	if len(resp.Choices) == 0 {
		return "", nil, errors.New("no response from OpenAI")
	}

	meta := map[string]any{
		"model": resp.Model,
		"usage": map[string]any{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		},
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), meta, nil
}

// classifyOpenAI marks client errors such as a bad key or a rejected request as permanent.
func classifyOpenAI(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && permanentStatus(apiErr.HTTPStatusCode) {
		return retry.Permanent(err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && permanentStatus(reqErr.HTTPStatusCode) {
		return retry.Permanent(err)
	}
	return err
}
