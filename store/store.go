// Package store persists forms, submissions and uploaded file metadata for
// the reference backend.
package store

import (
	"context"
	"errors"

	"github.com/pulsejet/cerium-engine/models"
)

var ErrNotFound = errors.New("not found")

// ErrAlreadyResponded is returned by ClaimResponse when filler already
// submitted, or is submitting, a single-response form.
var ErrAlreadyResponded = errors.New("already responded")

// Store is the backend persistence interface. Implementations assign ids
// to new forms, responses and files.
type Store interface {
	PutForm(ctx context.Context, form models.Form) (models.Form, error)
	// GetForm looks a form up by id, then by slug.
	GetForm(ctx context.Context, idOrSlug string) (models.Form, error)
	ListForms(ctx context.Context, creator string) ([]models.Form, error)
	// DeleteForm removes a form and all of its responses.
	DeleteForm(ctx context.Context, id string) error

	CreateResponse(ctx context.Context, resp models.FormResponse) (models.FormResponse, error)
	UpdateResponse(ctx context.Context, resp models.FormResponse) error
	GetResponse(ctx context.Context, id string) (models.FormResponse, error)
	ListResponses(ctx context.Context, formID string) ([]models.FormResponse, error)
	// HasResponded reports whether filler already has a submitted response.
	HasResponded(ctx context.Context, formID, filler string) (bool, error)
	// ClaimResponse reserves the one submission filler may make to a
	// single-response form. Of two concurrent claims only one succeeds.
	ClaimResponse(ctx context.Context, formID, filler string) error
	// ReleaseResponse drops a claim whose submission could not be stored.
	ReleaseResponse(ctx context.Context, formID, filler string) error

	SaveFile(ctx context.Context, file models.StoredFile) (models.StoredFile, error)
}
