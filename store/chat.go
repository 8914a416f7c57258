package store

import (
	"context"
	"fmt"
	"slices"
)

// AppendChatMessage appends one message to a project's chat log.
func (s *Store) AppendChatMessage(ctx context.Context, projectID, role, content string) (*ChatMessage, error) {
	if role != RoleUser && role != RoleAssistant {
		return nil, fmt.Errorf("store: invalid chat role %q", role)
	}
	now := fromMillis(millis(s.now()))
	m := &ChatMessage{ID: newID(), ProjectID: projectID, Role: role, Content: content, CreatedAt: now}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO chat_messages (id, project_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ProjectID, m.Role, m.Content, millis(now))
	if err != nil {
		return nil, fmt.Errorf("store: append chat message: %w", err)
	}
	return m, nil
}

// ListChatHistory returns the last limit messages of a project in
// chronological order. limit <= 0 returns the whole log.
func (s *Store) ListChatHistory(ctx context.Context, projectID string, limit int) ([]*ChatMessage, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, project_id, role, content, created_at FROM chat_messages
		WHERE project_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list chat history: %w", err)
	}
	defer rows.Close()

	out := []*ChatMessage{}
	for rows.Next() {
		var (
			m       ChatMessage
			created int64
		)
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("store: scan chat message: %w", err)
		}
		m.CreatedAt = fromMillis(created)
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate chat history: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}
