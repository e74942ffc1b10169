package models

import (
	"time"
)

// Values maps field ids to raw user input.
type Values map[string]interface{}

// Clone returns a shallow copy.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
)

type SubmissionPayload struct {
	FormID            string                 `json:"form_id"`
	Data              map[string]interface{} `json:"data"`
	Status            Status                 `json:"status"`
	SubmittedByUserID string                 `json:"submitted_by_user_id,omitempty"`
}

type ProcessingResult struct {
	TasksCreated int      `json:"tasks_created" bson:"tasks_created"`
	TaskIDs      []string `json:"task_ids,omitempty" bson:"task_ids,omitempty"`
}

type SubmissionResult struct {
	ID               string            `json:"id"`
	Slug             string            `json:"slug,omitempty"`
	ProcessingResult *ProcessingResult `json:"processing_result,omitempty"`
}

// DraftState is the locally persisted progress of one form session.
type DraftState struct {
	Values        Values `json:"values"`
	PageIndex     int    `json:"current_page"`
	RemoteDraftID string `json:"remote_draft_id,omitempty"`
}

// FormResponse is a stored submission record.
type FormResponse struct {
	ID         string                 `json:"id" bson:"_id"`
	Slug       string                 `json:"slug" bson:"slug"`
	FormId     string                 `json:"form_id" bson:"formid"`
	Timestamp  time.Time              `json:"timestamp" bson:"timestamp"`
	Filler     string                 `json:"filler" bson:"filler"`
	Status     Status                 `json:"status" bson:"status"`
	Responses  map[string]interface{} `json:"responses" bson:"responses"`
	Processing *ProcessingResult      `json:"processing_result,omitempty" bson:"processing_result,omitempty"`
}

// StoredFile is the metadata of an uploaded file.
type StoredFile struct {
	ID          int64     `json:"id" bson:"_id"`
	FormId      string    `json:"form_id" bson:"formid"`
	FieldId     string    `json:"field_id" bson:"fieldid"`
	Name        string    `json:"name" bson:"name"`
	ContentType string    `json:"content_type" bson:"content_type"`
	Size        int64     `json:"size" bson:"size"`
	Path        string    `json:"path" bson:"path"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
}
