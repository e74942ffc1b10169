package controllers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/pulsejet/cerium-engine/models"
	"github.com/pulsejet/cerium-engine/store"
	u "github.com/pulsejet/cerium-engine/utils"
	"github.com/pulsejet/cerium-engine/visibility"
)

const maxUploadSize = 32 << 20

// CreateSubmission stores a new draft or submitted response.
func (h *Handler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	payload := &models.SubmissionPayload{}
	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		u.Respond(w, u.Message(false, err.Error()), 400)
		return
	}

	form, filler, ok := h.authorizeSubmission(w, r, payload)
	if !ok {
		return
	}

	resp := models.FormResponse{
		FormId:    form.ID,
		Timestamp: time.Now(),
		Filler:    filler,
		Status:    payload.Status,
		Responses: payload.Data,
	}
	if resp.Status == models.StatusSubmitted {
		resp.Processing = followUps(form, payload.Data)
	}

	release, ok := h.claimSubmission(w, r, form, filler, resp.Status)
	if !ok {
		return
	}
	saved, err := h.store.CreateResponse(r.Context(), resp)
	if err != nil {
		release()
		log.WithError(err).Error("saving response")
		u.Respond(w, u.Message(false, err.Error()), 500)
		return
	}

	log.WithFields(log.Fields{"form": form.ID, "response": saved.ID, "status": saved.Status}).Info("new response")
	u.Respond(w, models.SubmissionResult{ID: saved.ID, Slug: saved.Slug, ProcessingResult: saved.Processing}, 200)
}

// UpdateSubmission replaces the data of a draft response, possibly
// submitting it.
func (h *Handler) UpdateSubmission(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	payload := &models.SubmissionPayload{}
	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		u.Respond(w, u.Message(false, err.Error()), 400)
		return
	}

	existing, err := h.store.GetResponse(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		u.Respond(w, u.Message(false, "Submission not found"), 404)
		return
	}
	if err != nil {
		u.Respond(w, u.Message(false, err.Error()), 500)
		return
	}
	if existing.Status != models.StatusDraft {
		u.Respond(w, u.Message(false, "Submission is already final"), 409)
		return
	}
	if payload.FormID == "" {
		payload.FormID = existing.FormId
	}

	form, filler, ok := h.authorizeSubmission(w, r, payload)
	if !ok {
		return
	}
	if form.ID != existing.FormId || filler != existing.Filler {
		u.Respond(w, u.Message(false, "Submission belongs to another form or user"), 403)
		return
	}

	existing.Responses = payload.Data
	existing.Status = payload.Status
	existing.Timestamp = time.Now()
	if existing.Status == models.StatusSubmitted {
		existing.Processing = followUps(form, payload.Data)
	}

	release, ok := h.claimSubmission(w, r, form, filler, existing.Status)
	if !ok {
		return
	}
	if err := h.store.UpdateResponse(r.Context(), existing); err != nil {
		release()
		log.WithError(err).Error("updating response")
		u.Respond(w, u.Message(false, err.Error()), 500)
		return
	}

	log.WithFields(log.Fields{"form": form.ID, "response": existing.ID, "status": existing.Status}).Info("response updated")
	u.Respond(w, models.SubmissionResult{ID: existing.ID, Slug: existing.Slug, ProcessingResult: existing.Processing}, 200)
}

// GetSubmissions lists the responses of a form to its creator.
func (h *Handler) GetSubmissions(w http.ResponseWriter, r *http.Request) {
	formid := mux.Vars(r)["formid"]

	uid := h.GetUserID(w, r, true)
	if uid == "" {
		return
	}
	form, err := h.store.GetForm(r.Context(), formid)
	if err != nil {
		u.Respond(w, u.Message(false, "Form not found"), 404)
		return
	}
	if form.Creator != uid {
		u.Respond(w, u.Message(false, "Only form creator can view responses"), 403)
		return
	}

	responses, err := h.store.ListResponses(r.Context(), form.ID)
	if err != nil {
		u.Respond(w, u.Message(false, err.Error()), 500)
		return
	}
	if responses == nil {
		responses = []models.FormResponse{}
	}
	u.Respond(w, responses, 200)
}

// authorizeSubmission loads the target form and resolves the filler. A
// claimed user id must match the session cookie.
func (h *Handler) authorizeSubmission(w http.ResponseWriter, r *http.Request, payload *models.SubmissionPayload) (models.Form, string, bool) {
	if payload.Status != models.StatusDraft && payload.Status != models.StatusSubmitted {
		u.Respond(w, u.Message(false, fmt.Sprintf("Invalid status %q", payload.Status)), 400)
		return models.Form{}, "", false
	}

	form, err := h.store.GetForm(r.Context(), payload.FormID)
	if err != nil {
		u.Respond(w, u.Message(false, "Form not found"), 404)
		return models.Form{}, "", false
	}

	uid := h.GetUserID(w, r, false)
	if payload.SubmittedByUserID != "" && payload.SubmittedByUserID != uid {
		u.Respond(w, u.Message(false, "Submitting user does not match session"), 403)
		return models.Form{}, "", false
	}
	if form.RequireLogin && uid == "" {
		u.Respond(w, u.Message(false, "Unauthorized: Please login to continue"), 401)
		return models.Form{}, "", false
	}
	if payload.Status == models.StatusDraft && !form.Config.AllowDraft {
		u.Respond(w, u.Message(false, "Drafts are disabled for this form"), 400)
		return models.Form{}, "", false
	}
	return form, uid, true
}

// claimSubmission reserves the only submission a logged in user may make
// to a single-response form. The returned release must be called if the
// submission is not stored.
func (h *Handler) claimSubmission(w http.ResponseWriter, r *http.Request, form models.Form, filler string, status models.Status) (func(), bool) {
	if !form.SingleResponse || filler == "" || status != models.StatusSubmitted {
		return func() {}, true
	}
	err := h.store.ClaimResponse(r.Context(), form.ID, filler)
	if errors.Is(err, store.ErrAlreadyResponded) {
		u.Respond(w, u.Message(false, "User has already filled this form"), 403)
		return nil, false
	}
	if err != nil {
		log.WithError(err).Error("claiming response")
		u.Respond(w, u.Message(false, err.Error()), 500)
		return nil, false
	}
	return func() {
		if err := h.store.ReleaseResponse(r.Context(), form.ID, filler); err != nil {
			log.WithError(err).WithField("form", form.ID).Warn("releasing response claim")
		}
	}, true
}

// followUps creates one task per configured follow-up whose condition
// matches the submitted data.
func followUps(form models.Form, data map[string]interface{}) *models.ProcessingResult {
	res := &models.ProcessingResult{}
	for _, t := range form.Config.FollowUpTasks {
		if t.When != nil && !visibility.Evaluate(*t.When, data) {
			continue
		}
		res.TaskIDs = append(res.TaskIDs, uuid.New().String())
	}
	res.TasksCreated = len(res.TaskIDs)
	return res
}

// UploadFile stores one multipart file for a file field of a form.
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		u.Respond(w, u.Message(false, "File too large or malformed upload"), 413)
		return
	}

	formID := r.FormValue("form_id")
	fieldID := r.FormValue("field_id")
	form, err := h.store.GetForm(r.Context(), formID)
	if err != nil {
		u.Respond(w, u.Message(false, "Form not found"), 404)
		return
	}
	field, ok := findField(form, fieldID)
	if !ok || field.Type != models.FieldFile {
		u.Respond(w, u.Message(false, fmt.Sprintf("Field %q does not accept files", fieldID)), 400)
		return
	}
	if form.RequireLogin && h.GetUserID(w, r, false) == "" {
		u.Respond(w, u.Message(false, "Unauthorized: Please login to continue"), 401)
		return
	}

	src, hdr, err := r.FormFile("file")
	if err != nil {
		u.Respond(w, u.Message(false, "Missing file"), 400)
		return
	}
	defer src.Close()

	name := filepath.Base(hdr.Filename)
	path := filepath.Join(h.uploadDir, u.RandomId()+"-"+name)
	size, err := saveUpload(path, src)
	if err != nil {
		log.WithError(err).Error("writing upload file")
		u.Respond(w, u.Message(false, "Could not store file"), 500)
		return
	}

	stored, err := h.store.SaveFile(r.Context(), models.StoredFile{
		FormId:      form.ID,
		FieldId:     field.ID,
		Name:        name,
		ContentType: hdr.Header.Get("Content-Type"),
		Size:        size,
		Path:        path,
		Timestamp:   time.Now(),
	})
	if err != nil {
		os.Remove(path)
		log.WithError(err).Error("saving file metadata")
		u.Respond(w, u.Message(false, err.Error()), 500)
		return
	}

	log.WithFields(log.Fields{"form": form.ID, "field": field.ID, "file": stored.ID}).Debug("file uploaded")
	u.Respond(w, models.UploadResponse{ID: stored.ID}, 200)
}

// saveUpload writes src to a new file at path. On any error, including a
// failed close, the partial file is removed.
func saveUpload(path string, src io.Reader) (int64, error) {
	dst, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	size, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	return size, nil
}
