package store

import "time"

// Scrape statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
	StatusPartial = "PARTIAL"
)

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Project groups scrape results and a chat log.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ScrapeResult is the persisted outcome of one scrape.
type ScrapeResult struct {
	ID               string              `json:"id"`
	ProjectID        string              `json:"project_id,omitempty"`
	URL              string              `json:"url"`
	Status           string              `json:"status"`
	Title            string              `json:"title,omitempty"`
	Summary          string              `json:"summary"`
	KeyPoints        []string            `json:"key_points"`
	Entities         map[string][]string `json:"entities,omitempty"`
	Topics           []string            `json:"topics,omitempty"`
	ScrapeMethod     string              `json:"scrape_method,omitempty"`
	AIProvider       string              `json:"ai_provider,omitempty"`
	ErrorMessage     string              `json:"error_message,omitempty"`
	ErrorKind        string              `json:"error_kind,omitempty"`
	ErrorReport      *ErrorReport        `json:"error_report,omitempty"`
	ExtractedContent string              `json:"extracted_content,omitempty"`
	Markdown         string              `json:"markdown,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

// ErrorReport is the user-facing explanation of a failed scrape.
type ErrorReport struct {
	Hints    []ReportHint    `json:"hints"`
	Attempts []AttemptRecord `json:"attempts"`
}

// ReportHint is one probable cause of a failure and what to try.
type ReportHint struct {
	Reason     string `json:"reason"`
	Suggestion string `json:"suggestion"`
}

// AttemptRecord is one fetch attempt of a failed scrape.
type AttemptRecord struct {
	Method     string `json:"method"`
	Try        int    `json:"try"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// ChatMessage is one entry of a project's chat log.
type ChatMessage struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// IndexChunk is one embedded window of a scrape's text.
type IndexChunk struct {
	ID          string
	ProjectID   string
	ScrapeID    string
	Ordinal     int
	Text        string
	Vector      []float32
	Fingerprint string
	CreatedAt   time.Time
}

// FormSubmission records one attempt to fill a form. Status is
// StatusSuccess, StatusPartial when some fields were not found, or
// StatusFailed when the page could not be driven.
type FormSubmission struct {
	ID        string            `json:"id"`
	ProjectID string            `json:"project_id"`
	URL       string            `json:"url"`
	FormIndex int               `json:"form_index"`
	Values    map[string]string `json:"values"`
	Filled    []string          `json:"filled"`
	Missing   []string          `json:"missing"`
	Submitted bool              `json:"submitted"`
	Status    string            `json:"status"`
	Result    string            `json:"result,omitempty"`
	FinalURL  string            `json:"final_url,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
