package classifier

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"reel-scout/models"
)

// Oracle answers a free-text prompt.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OpenAIOracle talks to any OpenAI-compatible chat completions endpoint.
type OpenAIOracle struct {
	client openai.Client
	model  string
}

func NewOpenAIOracle(baseURL, apiKey, model string) *OpenAIOracle {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIOracle{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (o *OpenAIOracle) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Temperature: openai.Float(0),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: completion has no choices", models.ErrMalformedResponse)
	}
	return resp.Choices[0].Message.Content, nil
}
