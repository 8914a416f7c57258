// Package index is the project-scoped retrieval index behind chat.
//
// Indexing splits a scrape's clean text into overlapping chunks, embeds
// them and stores them in one transaction, tagged with the embedder's
// fingerprint. Search embeds the question with the same embedder and ranks
// only the requested project's chunks. Chunks from another embedding
// space are skipped, never compared: after an embedder switch a project
// only sees what was indexed since.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hazyhaar/scrapeall/chunk"
	"github.com/hazyhaar/scrapeall/embed"
	"github.com/hazyhaar/scrapeall/store"
)

// Hit is one ranked chunk.
type Hit struct {
	ScrapeID string  `json:"scrape_id"`
	Ordinal  int     `json:"ordinal"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

// Index binds an embedder to the store.
type Index struct {
	store    *store.Store
	embedder embed.Embedder
	chunking chunk.Options
	logger   *slog.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithChunking overrides the chunk options.
func WithChunking(o chunk.Options) Option {
	return func(ix *Index) { ix.chunking = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Index) { ix.logger = l }
}

// New creates an Index.
func New(s *store.Store, e embed.Embedder, opts ...Option) *Index {
	ix := &Index{store: s, embedder: e, logger: slog.Default()}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// Add chunks and embeds text and stores it for one scrape of a project. It
// returns the number of chunks written.
func (ix *Index) Add(ctx context.Context, projectID, scrapeID, text string) (int, error) {
	chunks := chunk.Split(text, ix.chunking)
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("index: embed: %w", err)
	}
	if len(vecs) != len(chunks) {
		return 0, fmt.Errorf("index: embedder returned %d vectors for %d chunks", len(vecs), len(chunks))
	}

	fp := embed.Fingerprint(ix.embedder.Model(), len(vecs[0]))
	rows := make([]*store.IndexChunk, len(chunks))
	for i, c := range chunks {
		rows[i] = &store.IndexChunk{
			ProjectID:   projectID,
			ScrapeID:    scrapeID,
			Ordinal:     c.Index,
			Text:        c.Text,
			Vector:      vecs[i],
			Fingerprint: fp,
		}
	}
	if err := ix.store.InsertChunks(ctx, rows); err != nil {
		return 0, fmt.Errorf("index: %w", err)
	}

	ix.logger.Debug("index: scrape indexed", "project", projectID, "scrape", scrapeID, "chunks", len(rows), "fingerprint", fp)
	return len(rows), nil
}

// Count returns the number of chunks of a project searchable with the
// current embedder.
func (ix *Index) Count(ctx context.Context, projectID string) (int, error) {
	fp, err := ix.space(ctx)
	if err != nil {
		return 0, err
	}
	n, err := ix.store.CountChunks(ctx, projectID, fp)
	if err != nil {
		return 0, fmt.Errorf("index: %w", err)
	}
	return n, nil
}

// space is the fingerprint of the embedder. A remote embedder learns its
// dimension on its first call, so one is made if needed.
func (ix *Index) space(ctx context.Context) (string, error) {
	if fp := embed.Space(ix.embedder); fp != "" {
		return fp, nil
	}
	if _, err := ix.embedder.Embed(ctx, "dimension"); err != nil {
		return "", fmt.Errorf("index: embed: %w", err)
	}
	return embed.Space(ix.embedder), nil
}

// Search returns the k chunks of projectID most similar to question.
// Chunks embedded under another fingerprint are ignored.
func (ix *Index) Search(ctx context.Context, projectID, question string, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	q, err := ix.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("index: embed question: %w", err)
	}
	fp := embed.Fingerprint(ix.embedder.Model(), len(q))

	rows, err := ix.store.ProjectChunks(ctx, projectID, fp)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	if len(rows) == 0 {
		if all, _ := ix.store.CountChunks(ctx, projectID, ""); all > 0 {
			ix.logger.Warn("index: project only has chunks of another embedder",
				"project", projectID, "chunks", all, "fingerprint", fp)
		}
		return []Hit{}, nil
	}

	qNorm := embed.Norm(q)
	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, Hit{
			ScrapeID: r.ScrapeID,
			Ordinal:  r.Ordinal,
			Text:     r.Text,
			Score:    embed.Cosine(q, r.Vector, qNorm),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
