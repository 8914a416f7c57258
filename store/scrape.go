package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const scrapeColumns = `id, project_id, url, status, title, summary, key_points_json,
	entities_json, topics_json, scrape_method, ai_provider, error_message,
	error_kind, error_report_json, extracted_content, markdown, created_at`

// SaveScrapeResult inserts r, assigning its id and creation time when
// unset, and bumps the owning project's updated_at. It returns the id.
func (s *Store) SaveScrapeResult(ctx context.Context, r *ScrapeResult) (string, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = fromMillis(millis(s.now()))
	}

	keyPoints, err := marshalList(r.KeyPoints)
	if err != nil {
		return "", err
	}
	topics, err := marshalList(r.Topics)
	if err != nil {
		return "", err
	}
	entities := []byte("{}")
	if len(r.Entities) > 0 {
		if entities, err = json.Marshal(r.Entities); err != nil {
			return "", fmt.Errorf("store: marshal entities: %w", err)
		}
	}
	var report []byte
	if r.ErrorReport != nil {
		if report, err = json.Marshal(r.ErrorReport); err != nil {
			return "", fmt.Errorf("store: marshal error report: %w", err)
		}
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO scrape_results (`+scrapeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, nullable(r.ProjectID), r.URL, r.Status, r.Title, r.Summary, string(keyPoints),
		string(entities), string(topics), r.ScrapeMethod, r.AIProvider, r.ErrorMessage,
		r.ErrorKind, string(report), r.ExtractedContent, r.Markdown, millis(r.CreatedAt))
	if err != nil {
		return "", fmt.Errorf("store: insert scrape result: %w", err)
	}
	if r.ProjectID != "" {
		if err := s.touchProject(ctx, tx, r.ProjectID); err != nil {
			return "", fmt.Errorf("store: touch project: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: commit scrape result: %w", err)
	}
	return r.ID, nil
}

// GetScrapeResult returns a scrape result by id.
func (s *Store) GetScrapeResult(ctx context.Context, id string) (*ScrapeResult, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+scrapeColumns+` FROM scrape_results WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("store: get scrape result: %w", err)
	}
	list, err := scanScrapes(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

// LatestScrape returns the most recent scrape of a project, or nil when the
// project has none.
func (s *Store) LatestScrape(ctx context.Context, projectID string) (*ScrapeResult, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+scrapeColumns+` FROM scrape_results
		WHERE project_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: latest scrape: %w", err)
	}
	list, err := scanScrapes(rows)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

// ListScrapes returns a project's scrapes, newest first.
func (s *Store) ListScrapes(ctx context.Context, projectID string) ([]*ScrapeResult, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+scrapeColumns+` FROM scrape_results
		WHERE project_id = ? ORDER BY created_at DESC, rowid DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: list scrapes: %w", err)
	}
	return scanScrapes(rows)
}

// DeleteScrapeResult removes a scrape result and its index chunks.
func (s *Store) DeleteScrapeResult(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM scrape_results WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete scrape result: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanScrapes(rows *sql.Rows) ([]*ScrapeResult, error) {
	defer rows.Close()

	out := []*ScrapeResult{}
	for rows.Next() {
		var (
			r                                   ScrapeResult
			projectID                           sql.NullString
			keyPoints, entities, topics, report string
			created                             int64
		)
		if err := rows.Scan(&r.ID, &projectID, &r.URL, &r.Status, &r.Title, &r.Summary, &keyPoints,
			&entities, &topics, &r.ScrapeMethod, &r.AIProvider, &r.ErrorMessage,
			&r.ErrorKind, &report, &r.ExtractedContent, &r.Markdown, &created); err != nil {
			return nil, fmt.Errorf("store: scan scrape result: %w", err)
		}
		r.ProjectID = projectID.String
		r.CreatedAt = fromMillis(created)

		if err := json.Unmarshal([]byte(keyPoints), &r.KeyPoints); err != nil {
			return nil, fmt.Errorf("store: scrape %s key points: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(topics), &r.Topics); err != nil {
			return nil, fmt.Errorf("store: scrape %s topics: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(entities), &r.Entities); err != nil {
			return nil, fmt.Errorf("store: scrape %s entities: %w", r.ID, err)
		}
		if len(r.Entities) == 0 {
			r.Entities = nil
		}
		if len(r.Topics) == 0 {
			r.Topics = nil
		}
		if report != "" {
			r.ErrorReport = &ErrorReport{}
			if err := json.Unmarshal([]byte(report), r.ErrorReport); err != nil {
				return nil, fmt.Errorf("store: scrape %s error report: %w", r.ID, err)
			}
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate scrape results: %w", err)
	}
	return out, nil
}

func marshalList(l []string) ([]byte, error) {
	if l == nil {
		l = []string{}
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("store: marshal list: %w", err)
	}
	return b, nil
}
