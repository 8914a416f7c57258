package embed

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"google.golang.org/genai"
)

type geminiEmbedder struct {
	client    *genai.Client
	model     string
	batchSize int
	cfg       Config

	mu  sync.Mutex
	dim int
}

func newGemini(ctx context.Context, cfg Config, apiKey string) (*geminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("embed: gemini client: %w", err)
	}
	return &geminiEmbedder{
		client:    client,
		model:     cfg.Model,
		batchSize: cfg.BatchSize,
		cfg:       cfg,
		dim:       cfg.Dimension,
	}, nil
}

func (g *geminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (g *geminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	conf := &genai.EmbedContentConfig{TaskType: "RETRIEVAL_DOCUMENT"}
	if g.cfg.Dimension > 0 {
		conf.OutputDimensionality = genai.Ptr(int32(g.cfg.Dimension))
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))
		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
		}

		res, err := g.client.Models.EmbedContent(ctx, g.model, contents, conf)
		if err != nil {
			return nil, fmt.Errorf("embed: gemini batch [%d:%d]: %w", start, end, err)
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("embed: gemini returned %d embeddings for %d inputs", len(res.Embeddings), end-start)
		}
		for _, e := range res.Embeddings {
			out = append(out, e.Values)
		}
	}

	g.mu.Lock()
	if g.dim == 0 && len(out[0]) > 0 {
		g.dim = len(out[0])
		g.cfg.Logger.Info("embed: auto-detected dimension", "dimension", g.dim, "model", g.model)
	}
	g.mu.Unlock()
	return out, nil
}

func (g *geminiEmbedder) Dimension() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dim
}

func (g *geminiEmbedder) Model() string { return g.model }
