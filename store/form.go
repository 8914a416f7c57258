package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// SaveFormSubmission inserts f, assigning its id and creation time when
// unset.
func (s *Store) SaveFormSubmission(ctx context.Context, f *FormSubmission) error {
	if f.ID == "" {
		f.ID = newID()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = fromMillis(millis(s.now()))
	}
	values := f.Values
	if values == nil {
		values = map[string]string{}
	}
	vals, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("store: marshal form values: %w", err)
	}
	filled, err := marshalList(f.Filled)
	if err != nil {
		return err
	}
	missing, err := marshalList(f.Missing)
	if err != nil {
		return err
	}

	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO form_submissions (id, project_id, url, form_index, values_json, filled_json,
		missing_json, submitted, status, result, final_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.ProjectID, f.URL, f.FormIndex, string(vals), string(filled),
		string(missing), f.Submitted, f.Status, f.Result, f.FinalURL, millis(f.CreatedAt))
	if err != nil {
		return fmt.Errorf("store: insert form submission: %w", err)
	}
	return nil
}

// ListFormSubmissions returns a project's submissions, newest first.
func (s *Store) ListFormSubmissions(ctx context.Context, projectID string) ([]*FormSubmission, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, project_id, url, form_index, values_json, filled_json, missing_json,
		submitted, status, result, final_url, created_at
		FROM form_submissions WHERE project_id = ? ORDER BY created_at DESC, rowid DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: list form submissions: %w", err)
	}
	defer rows.Close()

	out := []*FormSubmission{}
	for rows.Next() {
		var (
			f                     FormSubmission
			vals, filled, missing string
			created               int64
		)
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.URL, &f.FormIndex, &vals, &filled, &missing,
			&f.Submitted, &f.Status, &f.Result, &f.FinalURL, &created); err != nil {
			return nil, fmt.Errorf("store: scan form submission: %w", err)
		}
		if err := json.Unmarshal([]byte(vals), &f.Values); err != nil {
			return nil, fmt.Errorf("store: decode form values: %w", err)
		}
		if err := json.Unmarshal([]byte(filled), &f.Filled); err != nil {
			return nil, fmt.Errorf("store: decode filled fields: %w", err)
		}
		if err := json.Unmarshal([]byte(missing), &f.Missing); err != nil {
			return nil, fmt.Errorf("store: decode missing fields: %w", err)
		}
		f.CreatedAt = fromMillis(created)
		out = append(out, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate form submissions: %w", err)
	}
	return out, nil
}
