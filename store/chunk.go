package store

import (
	"context"
	"fmt"

	"github.com/hazyhaar/scrapeall/embed"
)

// InsertChunks stores all chunks of one scrape in a single transaction.
func (s *Store) InsertChunks(ctx context.Context, chunks []*IndexChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO index_chunks (id, project_id, scrape_id, ordinal, text,
		vector, fingerprint, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare: %w", err)
	}
	defer stmt.Close()

	now := s.now()
	for _, c := range chunks {
		if c.ID == "" {
			c.ID = newID()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = fromMillis(millis(now))
		}
		_, err := stmt.ExecContext(ctx,
			c.ID, c.ProjectID, c.ScrapeID, c.Ordinal, c.Text,
			embed.EncodeVector(c.Vector), c.Fingerprint, millis(c.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("store: insert chunk %d: %w", c.Ordinal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit chunks: %w", err)
	}
	return nil
}

// ProjectChunks returns the chunks of one project embedded under
// fingerprint, in scrape then ordinal order. An empty fingerprint matches
// every embedding space. Chunks of other projects are never read.
func (s *Store) ProjectChunks(ctx context.Context, projectID, fingerprint string) ([]*IndexChunk, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, project_id, scrape_id, ordinal, text, vector, fingerprint, created_at
		FROM index_chunks WHERE project_id = ? AND (? = '' OR fingerprint = ?)
		ORDER BY created_at, scrape_id, ordinal`, projectID, fingerprint, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("store: project chunks: %w", err)
	}
	defer rows.Close()

	var out []*IndexChunk
	for rows.Next() {
		var (
			c       IndexChunk
			blob    []byte
			created int64
		)
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.ScrapeID, &c.Ordinal, &c.Text,
			&blob, &c.Fingerprint, &created); err != nil {
			return nil, fmt.Errorf("store: scan chunk: %w", err)
		}
		if c.Vector, err = embed.DecodeVector(blob); err != nil {
			return nil, fmt.Errorf("store: chunk %s: %w", c.ID, err)
		}
		c.CreatedAt = fromMillis(created)
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate chunks: %w", err)
	}
	return out, nil
}

// CountChunks returns the number of chunks indexed for a project under
// fingerprint; an empty fingerprint counts them all.
func (s *Store) CountChunks(ctx context.Context, projectID, fingerprint string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM index_chunks WHERE project_id = ? AND (? = '' OR fingerprint = ?)`,
		projectID, fingerprint, fingerprint).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count chunks: %w", err)
	}
	return n, nil
}
