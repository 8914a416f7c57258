package scrapeall

import (
	"errors"
	"fmt"

	"github.com/hazyhaar/scrapeall/analyze"
	"github.com/hazyhaar/scrapeall/escalate"
	"github.com/hazyhaar/scrapeall/extract"
	"github.com/hazyhaar/scrapeall/fetcher"
	"github.com/hazyhaar/scrapeall/store"
)

var (
	// ErrInvalidRequest is returned for requests that fail validation.
	ErrInvalidRequest = errors.New("scrapeall: invalid request")

	// ErrForbidden is returned when the caller's scope does not cover the project.
	ErrForbidden = errors.New("scrapeall: project not in scope")

	// ErrNotFound is returned for unknown projects and scrapes.
	ErrNotFound = store.ErrNotFound
)

// Kind classifies errors and result failures.
type Kind string

const (
	KindFetchRecoverable   Kind = "fetch_recoverable"
	KindFetchFatal         Kind = "fetch_fatal"
	KindExtractionEmpty    Kind = "extraction_empty"
	KindAnalysisDegraded   Kind = "analysis_degraded"
	KindPersistenceFailure Kind = "persistence_failure"
	KindRetrievalEmpty     Kind = "retrieval_empty"
	KindInvalidRequest     Kind = "invalid_request"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindInternal           Kind = "internal"
)

// PersistenceError reports a storage failure after the pipeline produced a
// result. Scrape returns it together with the in-memory result.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("scrapeall: persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// FetchError is returned by DetectForms when no strategy could fetch the page.
type FetchError struct {
	URL     string
	Fatal   bool
	Message string
	Err     error
}

func (e *FetchError) Error() string { return e.Message }

func (e *FetchError) Unwrap() error { return e.Err }

// KindOf maps any error to its Kind. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var (
		pe *PersistenceError
		fe *FetchError
		ff *fetcher.Failure
	)
	switch {
	case errors.As(err, &pe):
		return KindPersistenceFailure
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, extract.ErrExtractionEmpty):
		return KindExtractionEmpty
	case errors.Is(err, analyze.ErrMalformed):
		return KindAnalysisDegraded
	case errors.As(err, &fe):
		if fe.Fatal {
			return KindFetchFatal
		}
		return KindFetchRecoverable
	case errors.As(err, &ff):
		if ff.Kind == fetcher.Fatal {
			return KindFetchFatal
		}
		return KindFetchRecoverable
	case errors.Is(err, escalate.ErrStepTimeout):
		return KindFetchRecoverable
	}
	return KindInternal
}
