package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulsejet/cerium-engine/models"
	u "github.com/pulsejet/cerium-engine/utils"
)

// MemoryStore implements Store with in-memory maps.
// Intended for development and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	forms     map[string]models.Form
	responses map[string]models.FormResponse
	files     map[int64]models.StoredFile
	claims    map[string]bool
	nextFile  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		forms:     make(map[string]models.Form),
		responses: make(map[string]models.FormResponse),
		files:     make(map[int64]models.StoredFile),
		claims:    make(map[string]bool),
	}
}

func (s *MemoryStore) PutForm(_ context.Context, form models.Form) (models.Form, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if form.ID == "" {
		form.ID = uuid.New().String()
	}
	if form.Slug == "" {
		form.Slug = u.Slug()
	}
	if form.Timestamp.IsZero() {
		form.Timestamp = time.Now()
	}
	s.forms[form.ID] = form
	return form, nil
}

func (s *MemoryStore) GetForm(_ context.Context, idOrSlug string) (models.Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.forms[idOrSlug]; ok {
		return f, nil
	}
	for _, f := range s.forms {
		if f.Slug == idOrSlug {
			return f, nil
		}
	}
	return models.Form{}, ErrNotFound
}

func (s *MemoryStore) ListForms(_ context.Context, creator string) ([]models.Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Form
	for _, f := range s.forms {
		if f.Creator == creator {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func (s *MemoryStore) DeleteForm(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.forms[id]; !ok {
		return ErrNotFound
	}
	delete(s.forms, id)
	for rid, r := range s.responses {
		if r.FormId == id {
			delete(s.responses, rid)
		}
	}
	for key := range s.claims {
		if strings.HasPrefix(key, id+":") {
			delete(s.claims, key)
		}
	}
	return nil
}

func (s *MemoryStore) CreateResponse(_ context.Context, resp models.FormResponse) (models.FormResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp.ID = uuid.New().String()
	if resp.Slug == "" {
		resp.Slug = u.Slug()
	}
	s.responses[resp.ID] = resp
	return resp, nil
}

func (s *MemoryStore) UpdateResponse(_ context.Context, resp models.FormResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.responses[resp.ID]; !ok {
		return ErrNotFound
	}
	s.responses[resp.ID] = resp
	return nil
}

func (s *MemoryStore) GetResponse(_ context.Context, id string) (models.FormResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.responses[id]
	if !ok {
		return models.FormResponse{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) ListResponses(_ context.Context, formID string) ([]models.FormResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.FormResponse
	for _, r := range s.responses {
		if r.FormId == formID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s *MemoryStore) HasResponded(_ context.Context, formID, filler string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.responded(formID, filler), nil
}

func (s *MemoryStore) responded(formID, filler string) bool {
	for _, r := range s.responses {
		if r.FormId == formID && r.Filler == filler && r.Status == models.StatusSubmitted {
			return true
		}
	}
	return false
}

func (s *MemoryStore) ClaimResponse(_ context.Context, formID, filler string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := claimKey(formID, filler)
	if s.claims[key] || s.responded(formID, filler) {
		return ErrAlreadyResponded
	}
	s.claims[key] = true
	return nil
}

func (s *MemoryStore) ReleaseResponse(_ context.Context, formID, filler string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, claimKey(formID, filler))
	return nil
}

func claimKey(formID, filler string) string {
	return formID + ":" + filler
}

func (s *MemoryStore) SaveFile(_ context.Context, file models.StoredFile) (models.StoredFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextFile++
	file.ID = s.nextFile
	s.files[file.ID] = file
	return file, nil
}
