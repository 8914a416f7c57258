package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAICompatible is a Provider for any endpoint speaking the OpenAI chat
// completions API.
type OpenAICompatible struct {
	name   string
	model  string
	client openai.Client
}

// NewOpenAICompatible creates a provider. apiKey may be empty for local
// servers such as Ollama. SDK retries are disabled: the chain falls through
// to the next provider instead.
func NewOpenAICompatible(name, baseURL, apiKey, model string, hc *http.Client) *OpenAICompatible {
	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	} else {
		opts = append(opts, option.WithAPIKey("none"))
	}
	if hc != nil {
		opts = append(opts, option.WithHTTPClient(hc))
	}
	return &OpenAICompatible{
		name:   name,
		model:  model,
		client: openai.NewClient(opts...),
	}
}

// Name implements Provider.
func (p *OpenAICompatible) Name() string { return p.name }

// Complete implements Provider.
func (p *OpenAICompatible) Complete(ctx context.Context, msgs []Message, o Options) (string, error) {
	chatMessages := make([]openai.ChatCompletionMessageParamUnion, len(msgs))
	for i, m := range msgs {
		switch m.Role {
		case RoleSystem:
			chatMessages[i] = openai.SystemMessage(m.Content)
		case RoleAssistant:
			chatMessages[i] = openai.AssistantMessage(m.Content)
		default:
			chatMessages[i] = openai.UserMessage(m.Content)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(p.model),
		Messages:    chatMessages,
		Temperature: openai.Float(o.Temperature),
	}
	if o.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(o.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm: %s: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: %s: %w", p.name, ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}
