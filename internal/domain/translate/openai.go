package translate

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"speechbridge-server-go/internal/platform/config"
	plerrors "speechbridge-server-go/internal/platform/errors"
)

// OpenAIProvider translates through a chat-completion model.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAIProvider(cfg config.OpenAIModelConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, plerrors.New(plerrors.KindConfig, "translate.NewOpenAIProvider", "api key required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Translate(ctx context.Context, text, source, target string) (*Result, error) {
	const op = "translate.OpenAIProvider.Translate"

	system := fmt.Sprintf(
		"You are a translation engine. Translate the user's text from %s to %s. Reply with the translation only, no commentary.",
		source, target)

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0.2,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, plerrors.WrapCoded(plerrors.KindStage, plerrors.CodeTimeout, op, "translation cancelled", err)
		}
		return nil, plerrors.WrapCoded(plerrors.KindStage, plerrors.CodeModelUnavailable, op, "chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, plerrors.New(plerrors.KindStage, op, "model returned no choices")
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return nil, plerrors.New(plerrors.KindStage, op, "model returned empty translation")
	}

	return &Result{
		Text:       out,
		Confidence: 0,
		Model:      p.model,
	}, nil
}
