package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// CreateOrGetProject returns the project with this name and url, creating
// it when none exists. created reports which happened.
func (s *Store) CreateOrGetProject(ctx context.Context, name, url string) (p *Project, created bool, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	p, err = scanProject(tx.QueryRowContext(ctx,
		`SELECT id, name, url, description, tags_json, created_at, updated_at
		FROM projects WHERE name = ? AND url = ? ORDER BY created_at LIMIT 1`, name, url))
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	now := s.now()
	p = &Project{ID: newID(), Name: name, URL: url, Tags: []string{}, CreatedAt: now.UTC(), UpdatedAt: now.UTC()}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO projects (id, name, url, description, tags_json, created_at, updated_at)
		VALUES (?, ?, ?, '', '[]', ?, ?)`,
		p.ID, p.Name, p.URL, millis(now), millis(now))
	if err != nil {
		return nil, false, fmt.Errorf("store: insert project: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("store: commit project: %w", err)
	}
	p.CreatedAt = fromMillis(millis(now))
	p.UpdatedAt = p.CreatedAt
	return p, true, nil
}

// GetProject returns a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	return scanProject(s.DB.QueryRowContext(ctx,
		`SELECT id, name, url, description, tags_json, created_at, updated_at
		FROM projects WHERE id = ?`, id))
}

// DeleteProject removes a project with its scrapes, chat log and chunks.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) touchProject(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `UPDATE projects SET updated_at = ? WHERE id = ?`, millis(s.now()), id)
	return err
}

func scanProject(row *sql.Row) (*Project, error) {
	var (
		p                Project
		tags             string
		created, updated int64
	)
	err := row.Scan(&p.ID, &p.Name, &p.URL, &p.Description, &tags, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan project: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		return nil, fmt.Errorf("store: project %s tags: %w", p.ID, err)
	}
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}
