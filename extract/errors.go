package extract

import (
	"errors"
	"fmt"
)

// ErrExtractionEmpty is the sentinel behind every *EmptyError.
var ErrExtractionEmpty = errors.New("extraction produced no content")

// EmptyError reports that extraction produced no text. Selector is empty
// when the whole page was considered.
type EmptyError struct {
	Selector string
	Reason   string
}

func (e *EmptyError) Error() string {
	if e.Selector == "" {
		return "extract: page has no extractable text"
	}
	return fmt.Sprintf("extract: selector %q %s", e.Selector, e.Reason)
}

func (e *EmptyError) Unwrap() error { return ErrExtractionEmpty }

// Scoped reports whether the failure is due to the scope selector, in which
// case retrying without the selector may succeed.
func (e *EmptyError) Scoped() bool { return e.Selector != "" }
