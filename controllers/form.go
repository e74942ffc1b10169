package controllers

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/pulsejet/cerium-engine/models"
	"github.com/pulsejet/cerium-engine/schema"
	"github.com/pulsejet/cerium-engine/store"
	u "github.com/pulsejet/cerium-engine/utils"
)

// Handler serves the form, upload and submission API.
type Handler struct {
	store     store.Store
	uploadDir string
	jwtKey    []byte
}

func New(st store.Store, uploadDir string, jwtKey []byte) *Handler {
	return &Handler{store: st, uploadDir: uploadDir, jwtKey: jwtKey}
}

// Routes registers every API route on router.
func (h *Handler) Routes(router *mux.Router) {
	router.HandleFunc("/api/form", h.CreateForm).Methods("POST")
	router.HandleFunc("/api/forms", h.GetAllForms).Methods("GET")
	router.HandleFunc("/api/form/{id}", h.CreateForm).Methods("PUT")
	router.HandleFunc("/api/form/{id}", h.GetForm).Methods("GET")
	router.HandleFunc("/api/form/{id}", h.DeleteForm).Methods("DELETE")
	router.HandleFunc("/api/upload", h.UploadFile).Methods("POST")
	router.HandleFunc("/api/submissions", h.CreateSubmission).Methods("POST")
	router.HandleFunc("/api/submissions/{id}", h.UpdateSubmission).Methods("PUT")
	router.HandleFunc("/api/submissions/{formid}", h.GetSubmissions).Methods("GET")

	router.HandleFunc("/api/login", h.Login).Methods("POST", "GET")
	router.HandleFunc("/api/logout", h.Logout).Methods("GET")
}

// CreateForm stores a new form (POST) or replaces one owned by the caller (PUT).
func (h *Handler) CreateForm(w http.ResponseWriter, r *http.Request) {
	uid := h.GetUserID(w, r, true)
	if uid == "" {
		return
	}

	var doc map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		u.Respond(w, u.Message(false, err.Error()), 400)
		return
	}
	form, err := schema.FromMap(doc)
	if err != nil {
		u.Respond(w, u.Message(false, err.Error()), 400)
		return
	}

	// Forms without fields are not valid
	if len(form.Fields) == 0 {
		u.Respond(w, u.Message(false, "No Fields"), 400)
		return
	}

	if r.Method == "PUT" {
		id := mux.Vars(r)["id"]
		existing, err := h.store.GetForm(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) || (err == nil && existing.Creator != uid) {
			u.Respond(w, u.Message(false, "Not Found"), 404)
			return
		}
		if err != nil {
			u.Respond(w, u.Message(false, err.Error()), 500)
			return
		}
		form.ID = existing.ID
		form.Slug = existing.Slug
		form.Timestamp = existing.Timestamp
	} else {
		form.ID = ""
	}
	form.Creator = uid

	saved, err := h.store.PutForm(r.Context(), form)
	if err != nil {
		log.WithError(err).Error("saving form")
		u.Respond(w, u.Message(false, err.Error()), 500)
		return
	}

	log.WithFields(log.Fields{"user": uid, "form": saved.ID}).Info("form saved")
	u.Respond(w, map[string]interface{}{"id": saved.ID, "slug": saved.Slug}, 200)
}

// GetForm returns a form by id or slug.
func (h *Handler) GetForm(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	form, err := h.store.GetForm(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		u.Respond(w, u.Message(false, "Form not found"), 404)
		return
	}
	if err != nil {
		u.Respond(w, u.Message(false, err.Error()), 500)
		return
	}

	// Check if editable
	uid := h.GetUserID(w, r, false)
	if uid != "" {
		form.CanEdit = uid == form.Creator
	}

	// Login required
	if form.RequireLogin && uid == "" {
		u.Respond(w, u.Message(false, "Unauthorized: Please login to continue"), 401)
		return
	}

	// Check if already filled
	if !form.CanEdit && form.SingleResponse && uid != "" {
		filled, err := h.store.HasResponded(r.Context(), form.ID, uid)
		if err == nil && filled {
			u.Respond(w, u.Message(false, "User has already filled this form"), 403)
			return
		}
	}

	u.Respond(w, form, 200)
}

func (h *Handler) GetAllForms(w http.ResponseWriter, r *http.Request) {
	uid := h.GetUserID(w, r, true)
	if uid == "" {
		return
	}

	type formDetails struct {
		ID   string `json:"id"`
		Slug string `json:"slug"`
		Name string `json:"name"`
	}

	forms, err := h.store.ListForms(r.Context(), uid)
	if err != nil {
		u.Respond(w, u.Message(false, err.Error()), 500)
		return
	}
	out := make([]formDetails, 0, len(forms))
	for _, f := range forms {
		out = append(out, formDetails{ID: f.ID, Slug: f.Slug, Name: f.Name})
	}
	u.Respond(w, out, 200)
}

func (h *Handler) DeleteForm(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	uid := h.GetUserID(w, r, true)
	if uid == "" {
		return
	}

	form, err := h.store.GetForm(r.Context(), id)
	if err != nil {
		u.Respond(w, u.Message(false, "Form not found"), 404)
		return
	}
	if uid != form.Creator {
		u.Respond(w, u.Message(false, "Only form creator can delete form. Unauthorized access"), 403)
		return
	}

	if err := h.store.DeleteForm(r.Context(), form.ID); err != nil {
		log.WithError(err).WithField("form", form.ID).Error("remove fail")
		u.Respond(w, u.Message(false, err.Error()), 500)
		return
	}
	log.WithField("form", form.ID).Info("form and its responses deleted")
	u.Respond(w, u.Message(true, "Form deleted"), 200)
}

func findField(form models.Form, id string) (models.FieldDefinition, bool) {
	for _, f := range form.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return models.FieldDefinition{}, false
}
