package scrapeall

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// ExportJSON renders r as indented JSON. Every stored field is included.
func ExportJSON(r *ScrapeResult) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil result", ErrInvalidRequest)
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("scrapeall: export json: %w", err)
	}
	return b, nil
}

// ExportNarrative renders r as a readable markdown document: header facts,
// then summary, key points, entities, topics and the page content.
func ExportNarrative(r *ScrapeResult) string {
	if r == nil {
		return ""
	}
	var b strings.Builder

	title := r.Title
	if title == "" {
		title = r.URL
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- Source: %s\n", r.URL)
	fmt.Fprintf(&b, "- Status: %s\n", r.Status)
	if r.ScrapeMethod != "" {
		fmt.Fprintf(&b, "- Method: %s\n", r.ScrapeMethod)
	}
	if r.AIProvider != "" {
		fmt.Fprintf(&b, "- Provider: %s\n", r.AIProvider)
	}
	if !r.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "- Scraped: %s\n", r.CreatedAt.Format("2006-01-02 15:04 MST"))
	}

	if r.ErrorMessage != "" {
		fmt.Fprintf(&b, "\n## Error\n\n%s\n", r.ErrorMessage)
		if r.ErrorReport != nil {
			for _, h := range r.ErrorReport.Hints {
				fmt.Fprintf(&b, "- %s. %s\n", h.Reason, h.Suggestion)
			}
		}
	}

	if r.Summary != "" {
		fmt.Fprintf(&b, "\n## Summary\n\n%s\n", r.Summary)
	}
	if len(r.KeyPoints) > 0 {
		b.WriteString("\n## Key points\n\n")
		for _, p := range r.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	if len(r.Entities) > 0 {
		b.WriteString("\n## Entities\n\n")
		cats := make([]string, 0, len(r.Entities))
		for c := range r.Entities {
			cats = append(cats, c)
		}
		slices.Sort(cats)
		for _, c := range cats {
			if len(r.Entities[c]) == 0 {
				continue
			}
			fmt.Fprintf(&b, "- %s: %s\n", c, strings.Join(r.Entities[c], ", "))
		}
	}
	if len(r.Topics) > 0 {
		fmt.Fprintf(&b, "\n## Topics\n\n%s\n", strings.Join(r.Topics, ", "))
	}

	content := r.Markdown
	if content == "" {
		content = r.ExtractedContent
	}
	if content != "" {
		fmt.Fprintf(&b, "\n## Content\n\n%s\n", strings.TrimSpace(content))
	}
	return b.String()
}
