// Package draft keeps form progress recoverable: a local snapshot written on
// every edit, and a durable draft record kept on the backend.
package draft

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/pulsejet/cerium-engine/kvstore"
	"github.com/pulsejet/cerium-engine/models"
)

const keyPrefix = "cerium:draft:"

// Records creates and updates submission records.
type Records interface {
	CreateSubmission(ctx context.Context, payload models.SubmissionPayload) (models.SubmissionResult, error)
	UpdateSubmission(ctx context.Context, id string, payload models.SubmissionPayload) (models.SubmissionResult, error)
}

// Key returns the storage key for a form identity.
func Key(identity string) string {
	return keyPrefix + identity
}

// Manager owns the draft of one form session.
type Manager struct {
	store   kvstore.Store
	records Records
	key     string
	last    models.DraftState
	log     log.FieldLogger
}

// New creates a Manager keyed by the form's external slug. Call Rebind once
// the durable form id is known.
func New(store kvstore.Store, records Records, slug string, logger log.FieldLogger) *Manager {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Manager{
		store:   store,
		records: records,
		key:     Key(slug),
		log:     logger.WithField("draft", slug),
	}
}

// StorageKey returns the key the snapshot is currently written under.
func (m *Manager) StorageKey() string { return m.key }

// RemoteID returns the durable draft id, if one was created or restored.
func (m *Manager) RemoteID() string { return m.last.RemoteDraftID }

// Rebind moves the snapshot from the slug key to the form id key. An
// existing snapshot under the id key wins over the slug one.
func (m *Manager) Rebind(formID string) {
	next := Key(formID)
	if formID == "" || next == m.key {
		return
	}
	prev := m.key
	m.key = next

	raw, ok, err := m.store.Get(prev)
	if err != nil {
		m.log.WithError(err).Warn("reading draft for key migration")
		return
	}
	if !ok {
		return
	}
	if _, exists, err := m.store.Get(next); err == nil && !exists {
		if err := m.store.Set(next, raw); err != nil {
			m.log.WithError(err).Warn("migrating draft key")
			return
		}
	}
	if err := m.store.Remove(prev); err != nil {
		m.log.WithError(err).Warn("removing migrated draft key")
	}
}

// Snapshot writes the current progress. Failures are logged, never returned.
func (m *Manager) Snapshot(values models.Values, pageIndex int, remoteID string) {
	m.last = models.DraftState{Values: values, PageIndex: pageIndex, RemoteDraftID: remoteID}

	b, err := json.Marshal(m.last)
	if err != nil {
		m.log.WithError(err).Warn("encoding draft snapshot")
		return
	}
	if err := m.store.Set(m.key, string(b)); err != nil {
		m.log.WithError(err).Warn("writing draft snapshot")
	}
}

// Restore returns the stored snapshot, or nil if there is none or it cannot
// be read.
func (m *Manager) Restore() *models.DraftState {
	raw, ok, err := m.store.Get(m.key)
	if err != nil {
		m.log.WithError(err).Warn("reading draft snapshot")
		return nil
	}
	if !ok {
		return nil
	}
	st := &models.DraftState{}
	if err := json.Unmarshal([]byte(raw), st); err != nil {
		m.log.WithError(err).Warn("decoding draft snapshot")
		return nil
	}
	if st.Values == nil {
		st.Values = models.Values{}
	}
	m.last = *st
	return st
}

// Clear drops the local snapshot and forgets the remote draft id.
func (m *Manager) Clear() {
	m.last = models.DraftState{}
	if err := m.store.Remove(m.key); err != nil {
		m.log.WithError(err).Warn("clearing draft snapshot")
	}
}

// SaveRemote creates the durable draft record when remoteID is empty and
// updates it otherwise, returning the record id. SaveRemote does not touch
// the local snapshot; callers record a newly created id with Snapshot so
// later saves update instead of re-creating.
func (m *Manager) SaveRemote(ctx context.Context, remoteID string, payload models.SubmissionPayload) (string, error) {
	payload.Status = models.StatusDraft

	if remoteID != "" {
		if _, err := m.records.UpdateSubmission(ctx, remoteID, payload); err != nil {
			return "", fmt.Errorf("updating draft %s: %w", remoteID, err)
		}
		return remoteID, nil
	}

	res, err := m.records.CreateSubmission(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("creating draft: %w", err)
	}
	m.log.WithField("draft_id", res.ID).Info("remote draft created")
	return res.ID, nil
}
