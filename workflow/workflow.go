// Package workflow drives one form session from first edit to final submit:
// page navigation with per-page validation, draft saves, file resolution,
// coercion and record creation.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/pulsejet/cerium-engine/coerce"
	"github.com/pulsejet/cerium-engine/draft"
	"github.com/pulsejet/cerium-engine/kvstore"
	"github.com/pulsejet/cerium-engine/models"
	"github.com/pulsejet/cerium-engine/paginate"
	"github.com/pulsejet/cerium-engine/upload"
	"github.com/pulsejet/cerium-engine/validation"
)

type State string

const (
	StateEditing        State = "editing"
	StateValidatingPage State = "validating_page"
	StateSavingDraft    State = "saving_draft"
	StateSubmitting     State = "submitting"
	StateResolved       State = "resolved"
)

// SchemaSource loads a form by id or slug.
type SchemaSource interface {
	GetForm(ctx context.Context, identifier string) (models.Form, error)
}

// Identity reports the acting user, if any.
type Identity interface {
	UserID(ctx context.Context) (string, bool)
}

// Deps are the collaborators of a Session. Identity may be nil for anonymous
// sessions.
type Deps struct {
	Schema   SchemaSource
	Uploader upload.Uploader
	Records  draft.Records
	Store    kvstore.Store
	Identity Identity
	Log      log.FieldLogger
}

// Outcome carries what the backend reported about a final submission. The
// caller decides where to send the user.
type Outcome struct {
	SubmissionID    string
	Slug            string
	HasFollowUps    bool
	FollowUpTaskIDs []string
}

// Decide turns a submission result into routing inputs.
func Decide(res models.SubmissionResult) Outcome {
	out := Outcome{SubmissionID: res.ID, Slug: res.Slug}
	if p := res.ProcessingResult; p != nil {
		out.FollowUpTaskIDs = p.TaskIDs
		out.HasFollowUps = p.TasksCreated > 0 || len(p.TaskIDs) > 0
	}
	return out
}

// Session is one user's pass through a form. Methods are safe to call from
// multiple goroutines; remote operations never overlap.
type Session struct {
	mu sync.Mutex

	deps   Deps
	form   models.Form
	pages  []models.Page
	drafts *draft.Manager
	files  *upload.Orchestrator
	log    log.FieldLogger

	state   State
	page    int
	values  models.Values
	errs    validation.Errors
	draftID string

	// seq counts edits; edited holds the seq of each field's last edit.
	seq    uint64
	edited map[string]uint64
}

// Open loads the form named by identifier and resumes any local draft.
func Open(ctx context.Context, deps Deps, identifier string) (*Session, error) {
	if deps.Log == nil {
		deps.Log = log.StandardLogger()
	}
	form, err := deps.Schema.GetForm(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("loading form %s: %w", identifier, err)
	}

	logger := deps.Log.WithField("form", form.ID)
	drafts := draft.New(deps.Store, deps.Records, identifier, logger)
	drafts.Rebind(form.ID)

	s := &Session{
		deps:   deps,
		form:   form,
		pages:  paginate.Partition(form.Fields),
		drafts: drafts,
		files:  upload.New(deps.Uploader, form.ID, logger),
		log:    logger,
		state:  StateEditing,
		values: models.Values{},
		errs:   validation.Errors{},
		edited: map[string]uint64{},
	}

	if st := drafts.Restore(); st != nil {
		s.values = st.Values
		s.page = st.PageIndex
		s.draftID = st.RemoteDraftID
		if s.page < 0 || s.page >= len(s.pages) {
			s.page = 0
		}
		logger.WithFields(log.Fields{"page": s.page, "draft_id": s.draftID}).Info("resumed draft")
	}
	return s, nil
}

func (s *Session) Form() models.Form { return s.form }

func (s *Session) Pages() []models.Page { return s.pages }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) PageIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// DraftID returns the durable draft id, if any.
func (s *Session) DraftID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draftID
}

// Values returns a copy of the current input.
func (s *Session) Values() models.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.Clone()
}

// Errors returns a copy of the current per-field errors.
func (s *Session) Errors() validation.Errors {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(validation.Errors, len(s.errs))
	for k, v := range s.errs {
		out[k] = v
	}
	return out
}

// IsLastPage reports whether the session is on the final page.
func (s *Session) IsLastPage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page >= len(s.pages)-1
}

// SetValue records user input for one field, clears that field's error and
// snapshots the draft.
func (s *Session) SetValue(fieldID string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateResolved {
		return ErrResolved
	}
	s.values[fieldID] = v
	s.seq++
	s.edited[fieldID] = s.seq
	delete(s.errs, fieldID)
	s.drafts.Snapshot(s.values, s.page, s.draftID)
	return nil
}

// Next validates the current page and advances on success.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editable(); err != nil {
		return err
	}
	if s.page >= len(s.pages)-1 {
		return ErrLastPage
	}

	s.state = StateValidatingPage
	errs := validation.ValidatePage(s.pages[s.page].Fields, s.values)
	s.state = StateEditing
	if len(errs) > 0 {
		s.errs = errs
		return &ValidationError{Fields: errs, Page: s.page}
	}

	s.page++
	s.drafts.Snapshot(s.values, s.page, s.draftID)
	return nil
}

// Back moves to the previous page without validating.
func (s *Session) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editable(); err != nil {
		return err
	}
	if s.page > 0 {
		s.page--
		s.drafts.Snapshot(s.values, s.page, s.draftID)
	}
	return nil
}

// SaveDraft uploads pending files and writes the durable draft record.
func (s *Session) SaveDraft(ctx context.Context) (string, error) {
	if !s.form.Config.AllowDraft {
		return "", ErrDraftsDisabled
	}
	values, draftID, since, err := s.begin(StateSavingDraft)
	if err != nil {
		return "", err
	}

	payload, err := s.buildPayload(ctx, values, since, models.StatusDraft)
	if err != nil {
		return "", s.fail(err)
	}

	id, err := s.drafts.SaveRemote(ctx, draftID, payload)
	if err != nil {
		s.log.WithError(err).Warn("draft save failed")
		return "", s.fail(&SubmissionError{Op: "save draft", Err: err})
	}

	s.mu.Lock()
	s.draftID = id
	s.state = StateEditing
	s.drafts.Snapshot(s.values, s.page, id)
	s.mu.Unlock()
	return id, nil
}

// Submit validates the whole form, uploads pending files and creates the
// final record, or updates the draft record when one exists.
func (s *Session) Submit(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	if err := s.editable(); err != nil {
		s.mu.Unlock()
		return Outcome{}, err
	}
	if errs := validation.ValidateAll(s.form.Fields, s.values); len(errs) > 0 {
		s.errs = errs
		if p := validation.FirstErrorPage(s.pages, errs); p >= 0 {
			s.page = p
		}
		s.drafts.Snapshot(s.values, s.page, s.draftID)
		page := s.page
		s.mu.Unlock()
		return Outcome{}, &ValidationError{Fields: errs, Page: page}
	}
	s.state = StateSubmitting
	values, draftID, since := s.values.Clone(), s.draftID, s.seq
	s.mu.Unlock()

	payload, err := s.buildPayload(ctx, values, since, models.StatusSubmitted)
	if err != nil {
		return Outcome{}, s.fail(err)
	}

	var res models.SubmissionResult
	if draftID != "" {
		res, err = s.deps.Records.UpdateSubmission(ctx, draftID, payload)
	} else {
		res, err = s.deps.Records.CreateSubmission(ctx, payload)
	}
	if err != nil {
		s.log.WithError(err).Warn("submission failed")
		return Outcome{}, s.fail(&SubmissionError{Op: "submit", Err: err})
	}

	out := Decide(res)
	s.mu.Lock()
	s.drafts.Clear()
	s.draftID = ""
	s.state = StateResolved
	s.mu.Unlock()

	s.log.WithFields(log.Fields{
		"submission": out.SubmissionID,
		"follow_ups": len(out.FollowUpTaskIDs),
	}).Info("form submitted")
	return out, nil
}

func (s *Session) editable() error {
	switch s.state {
	case StateEditing:
		return nil
	case StateResolved:
		return ErrResolved
	default:
		return ErrBusy
	}
}

// begin moves the session into a remote state and returns the input to
// send along with the current edit seq. Only one remote state can be held
// at a time.
func (s *Session) begin(st State) (models.Values, string, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editable(); err != nil {
		return nil, "", 0, err
	}
	s.state = st
	return s.values.Clone(), s.draftID, s.seq, nil
}

// fail returns the session to editing, merging any per-field upload errors.
func (s *Session) fail(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var be *upload.BatchError
	if errors.As(err, &be) {
		for id, msg := range be.Fields {
			s.errs[id] = msg
		}
	}
	s.state = StateEditing
	return err
}

func (s *Session) buildPayload(ctx context.Context, values models.Values, since uint64, status models.Status) (models.SubmissionPayload, error) {
	resolved, _, err := s.files.ResolveFiles(ctx, s.form.Fields, values)
	if err != nil {
		var be *upload.BatchError
		if errors.As(err, &be) && be.Partial != nil {
			s.keepFiles(be.Partial, since)
		}
		return models.SubmissionPayload{}, err
	}
	s.keepFiles(resolved, since)

	payload := models.SubmissionPayload{
		FormID: s.form.ID,
		Data:   coerce.Payload(s.form.Fields, resolved),
		Status: status,
	}
	if s.deps.Identity != nil {
		if uid, ok := s.deps.Identity.UserID(ctx); ok {
			payload.SubmittedByUserID = uid
		}
	}
	return payload, nil
}

// keepFiles writes uploaded file ids back into the session so later saves
// reuse them instead of uploading again. Fields edited after since keep the
// newer input.
func (s *Session) keepFiles(resolved models.Values, since uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for _, f := range s.form.Fields {
		if f.Type != models.FieldFile || s.edited[f.ID] > since {
			continue
		}
		v, ok := resolved[f.ID]
		if !ok {
			continue
		}
		s.values[f.ID] = v
		changed = true
	}
	if changed {
		s.drafts.Snapshot(s.values, s.page, s.draftID)
	}
}
