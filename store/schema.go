// CLAUDE:SUMMARY Applies the scrapeall SQL schema: projects, scrape_results, chat_messages, index_chunks, form_submissions with cascading deletes.
package store

import (
	"database/sql"
	"fmt"
)

// Schema is the complete scrapeall schema.
const Schema = `
CREATE TABLE IF NOT EXISTS projects (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    url         TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    tags_json   TEXT NOT NULL DEFAULT '[]',
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_projects_name ON projects(name, url);

CREATE TABLE IF NOT EXISTS scrape_results (
    id                TEXT PRIMARY KEY,
    project_id        TEXT REFERENCES projects(id) ON DELETE CASCADE,
    url               TEXT NOT NULL,
    status            TEXT NOT NULL,
    title             TEXT NOT NULL DEFAULT '',
    summary           TEXT NOT NULL DEFAULT '',
    key_points_json   TEXT NOT NULL DEFAULT '[]',
    entities_json     TEXT NOT NULL DEFAULT '{}',
    topics_json       TEXT NOT NULL DEFAULT '[]',
    scrape_method     TEXT NOT NULL DEFAULT '',
    ai_provider       TEXT NOT NULL DEFAULT '',
    error_message     TEXT NOT NULL DEFAULT '',
    error_kind        TEXT NOT NULL DEFAULT '',
    error_report_json TEXT NOT NULL DEFAULT '',
    extracted_content TEXT NOT NULL DEFAULT '',
    markdown          TEXT NOT NULL DEFAULT '',
    created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scrapes_project ON scrape_results(project_id, created_at DESC);

CREATE TABLE IF NOT EXISTS chat_messages (
    id         TEXT PRIMARY KEY,
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    role       TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    content    TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_project ON chat_messages(project_id, created_at);

CREATE TABLE IF NOT EXISTS index_chunks (
    id          TEXT PRIMARY KEY,
    project_id  TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    scrape_id   TEXT NOT NULL REFERENCES scrape_results(id) ON DELETE CASCADE,
    ordinal     INTEGER NOT NULL,
    text        TEXT NOT NULL,
    vector      BLOB NOT NULL,
    fingerprint TEXT NOT NULL,
    created_at  INTEGER NOT NULL,
    UNIQUE (scrape_id, ordinal)
);
CREATE INDEX IF NOT EXISTS idx_chunks_project ON index_chunks(project_id);

CREATE TABLE IF NOT EXISTS form_submissions (
    id           TEXT PRIMARY KEY,
    project_id   TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    url          TEXT NOT NULL,
    form_index   INTEGER NOT NULL,
    values_json  TEXT NOT NULL DEFAULT '{}',
    filled_json  TEXT NOT NULL DEFAULT '[]',
    missing_json TEXT NOT NULL DEFAULT '[]',
    submitted    INTEGER NOT NULL DEFAULT 0,
    status       TEXT NOT NULL,
    result       TEXT NOT NULL DEFAULT '',
    final_url    TEXT NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_forms_project ON form_submissions(project_id, created_at DESC);
`

// ApplySchema creates all tables and indexes if they do not exist.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return nil
}
