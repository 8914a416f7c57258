package analyze

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrMalformed marks a model answer that is not a valid analysis document.
var ErrMalformed = errors.New("analyze: malformed model output")

// MalformedError is returned when a provider answered twice with an
// unusable document.
type MalformedError struct {
	Provider string
	Err      error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("analyze: %s: %v", e.Provider, e.Err)
}

// Is matches ErrMalformed.
func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

func (e *MalformedError) Unwrap() error { return e.Err }

type document struct {
	Summary   string              `json:"summary"`
	KeyPoints []string            `json:"key_points"`
	Entities  map[string][]string `json:"entities"`
	Topics    []string            `json:"topics"`
}

// Parse extracts the analysis document from a model answer: the JSON object
// between the first '{' and the last '}'. Surrounding prose and code fences
// are ignored. The summary must be non-empty.
func Parse(answer string) (*Result, error) {
	start := strings.IndexByte(answer, '{')
	end := strings.LastIndexByte(answer, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object", ErrMalformed)
	}

	var doc document
	if err := json.Unmarshal([]byte(answer[start:end+1]), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	doc.Summary = strings.TrimSpace(doc.Summary)
	if doc.Summary == "" {
		return nil, fmt.Errorf("%w: empty summary", ErrMalformed)
	}

	res := &Result{
		Summary:   doc.Summary,
		KeyPoints: nonEmpty(doc.KeyPoints),
		Topics:    nonEmpty(doc.Topics),
	}
	res.Entities = mergeEntities(doc.Entities)
	return res, nil
}

// mergeEntities lowercases categories and merges the values of categories
// that differ only in case, dropping repeats. Categories are visited in
// sorted order so the merged lists are deterministic.
func mergeEntities(in map[string][]string) map[string][]string {
	var out map[string][]string
	seen := map[string]map[string]bool{}
	for _, cat := range slices.Sorted(maps.Keys(in)) {
		key := strings.ToLower(strings.TrimSpace(cat))
		if key == "" {
			continue
		}
		for _, v := range nonEmpty(in[cat]) {
			if seen[key] == nil {
				seen[key] = map[string]bool{}
			}
			if seen[key][v] {
				continue
			}
			seen[key][v] = true
			if out == nil {
				out = make(map[string][]string)
			}
			out[key] = append(out[key], v)
		}
	}
	return out
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
