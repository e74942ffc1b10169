package workflow

import (
	"errors"
	"fmt"

	"github.com/pulsejet/cerium-engine/validation"
)

var (
	// ErrBusy is returned when a remote save or submit is already running.
	ErrBusy = errors.New("workflow: another save or submit is in progress")
	// ErrDraftsDisabled is returned by SaveDraft on forms without drafts.
	ErrDraftsDisabled = errors.New("workflow: drafts are not enabled for this form")
	// ErrResolved is returned once the session has been submitted.
	ErrResolved = errors.New("workflow: form already submitted")
	// ErrLastPage is returned by Next on the final page.
	ErrLastPage = errors.New("workflow: already on the last page")
)

// ValidationError lists the fields that blocked a page change or submit.
// Page is the page the session moved to so the user sees the first problem.
type ValidationError struct {
	Fields validation.Errors
	Page   int
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		return "1 field needs attention"
	}
	return fmt.Sprintf("%d fields need attention", len(e.Fields))
}

// SubmissionError wraps a failure of the record backend. The session stays
// editable and the user may retry.
type SubmissionError struct {
	Op  string
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
