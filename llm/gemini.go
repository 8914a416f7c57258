package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// Gemini is a Provider backed by the Gemini API.
type Gemini struct {
	name   string
	model  string
	client *genai.Client
}

// NewGemini creates a Gemini provider reported under name.
func NewGemini(ctx context.Context, name, apiKey, model string, hc *http.Client) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: gemini client: %w", err)
	}
	if name == "" {
		name = KindGemini
	}
	return &Gemini{name: name, model: model, client: client}, nil
}

// Name implements Provider.
func (g *Gemini) Name() string { return g.name }

// Complete implements Provider. System messages become the system
// instruction; the rest map to user and model turns.
func (g *Gemini) Complete(ctx context.Context, msgs []Message, o Options) (string, error) {
	var system []string
	var contents []*genai.Content
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(o.Temperature)),
	}
	if o.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(o.MaxTokens)
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("llm: gemini: %w", err)
	}
	return resp.Text(), nil
}
