package rewrite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/deusflow/nieuwsmetai/internal/retry"
)

type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *Gemini) Generate(ctx context.Context, system, prompt string) (string, map[string]any, error) {
	model := g.client.GenerativeModel(g.model)
	if system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", nil, classifyGemini(fmt.Errorf("failed to generate content: %w", err))
	}

	text := responseText(resp)
	if text == "" {
		return "", nil, fmt.Errorf("no response from Gemini")
	}

	meta := map[string]any{"model": g.model}
	if u := resp.UsageMetadata; u != nil {
		meta["usage"] = map[string]any{
			"prompt_tokens": u.PromptTokenCount,
			"output_tokens": u.CandidatesTokenCount,
			"total_tokens":  u.TotalTokenCount,
		}
	}
	return text, meta, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return strings.TrimSpace(b.String())
}

func classifyGemini(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && permanentStatus(apiErr.Code) {
		return retry.Permanent(err)
	}
	return err
}
