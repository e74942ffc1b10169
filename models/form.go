package models

import (
	"time"
)

// FieldType names the kind of a schema field.
type FieldType string

const (
	FieldText        FieldType = "text"
	FieldTextarea    FieldType = "textarea"
	FieldNumber      FieldType = "number"
	FieldEmail       FieldType = "email"
	FieldPhone       FieldType = "phone"
	FieldDate        FieldType = "date"
	FieldDatetime    FieldType = "datetime"
	FieldBoolean     FieldType = "boolean"
	FieldCheckbox    FieldType = "checkbox"
	FieldSelect      FieldType = "select"
	FieldRadio       FieldType = "radio"
	FieldMultiselect FieldType = "multiselect"
	FieldFile        FieldType = "file"
	FieldJSON        FieldType = "json"
	FieldSignature   FieldType = "signature"

	// Display-only types carry no value.
	FieldTextBlock    FieldType = "text-block"
	FieldImageBlock   FieldType = "image-block"
	FieldLineBreak    FieldType = "line-break"
	FieldPageBreak    FieldType = "page-break"
	FieldDownloadLink FieldType = "download-link"
	FieldVideoEmbed   FieldType = "video-embed"
)

var displayOnly = map[FieldType]bool{
	FieldTextBlock:    true,
	FieldImageBlock:   true,
	FieldLineBreak:    true,
	FieldPageBreak:    true,
	FieldDownloadLink: true,
	FieldVideoEmbed:   true,
}

// IsDisplayOnly reports whether fields of this type never hold a value.
func (t FieldType) IsDisplayOnly() bool {
	return displayOnly[t]
}

// Visibility operators
const (
	OpEquals     = "equals"
	OpNotEquals  = "not_equals"
	OpContains   = "contains"
	OpIsEmpty    = "is_empty"
	OpIsNotEmpty = "is_not_empty"
)

type ConditionalVisibilityRule struct {
	DependsOn string      `json:"depends_on" bson:"depends_on" yaml:"depends_on"`
	Operator  string      `json:"operator" bson:"operator" yaml:"operator"`
	Value     interface{} `json:"value,omitempty" bson:"value,omitempty" yaml:"value,omitempty"`
}

type Option struct {
	Label string `json:"label" bson:"label" yaml:"label"`
	Value string `json:"value" bson:"value" yaml:"value"`
}

// ValidationRules holds the optional per-field constraints checked on
// non-empty values.
type ValidationRules struct {
	MinLength *int     `json:"min_length,omitempty" bson:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty" bson:"max_length,omitempty" yaml:"max_length,omitempty"`
	Min       *float64 `json:"min,omitempty" bson:"min,omitempty" yaml:"min,omitempty"`
	Max       *float64 `json:"max,omitempty" bson:"max,omitempty" yaml:"max,omitempty"`
	Pattern   string   `json:"pattern,omitempty" bson:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// FieldDefinition is one canonical schema entry. It is never mutated after
// the schema is loaded.
type FieldDefinition struct {
	ID         string                     `json:"field_id" bson:"field_id" yaml:"field_id"`
	Type       FieldType                  `json:"field_type" bson:"field_type" yaml:"field_type"`
	Required   bool                       `json:"required" bson:"required" yaml:"required"`
	Label      string                     `json:"label" bson:"label" yaml:"label"`
	HelpText   string                     `json:"help_text,omitempty" bson:"help_text,omitempty" yaml:"help_text,omitempty"`
	Visibility *ConditionalVisibilityRule `json:"conditional_visibility,omitempty" bson:"conditional_visibility,omitempty" yaml:"conditional_visibility,omitempty"`
	FileExpiry bool                       `json:"file_expiry,omitempty" bson:"file_expiry,omitempty" yaml:"file_expiry,omitempty"`
	Options    []Option                   `json:"options,omitempty" bson:"options,omitempty" yaml:"options,omitempty"`
	Validation *ValidationRules           `json:"validation,omitempty" bson:"validation,omitempty" yaml:"validation,omitempty"`
}

// DisplayName is the label shown to users, falling back to the field id.
func (f FieldDefinition) DisplayName() string {
	if f.Label != "" {
		return f.Label
	}
	return f.ID
}

// FollowUpTask is created by the backend when a submitted response matches When.
type FollowUpTask struct {
	Title string                     `json:"title" bson:"title" yaml:"title"`
	When  *ConditionalVisibilityRule `json:"when,omitempty" bson:"when,omitempty" yaml:"when,omitempty"`
}

type FormConfig struct {
	AllowDraft        bool           `json:"allow_draft" bson:"allow_draft" yaml:"allow_draft"`
	SubmitButtonLabel string         `json:"submit_button_label,omitempty" bson:"submit_button_label,omitempty" yaml:"submit_button_label,omitempty"`
	FollowUpTasks     []FollowUpTask `json:"follow_up_tasks,omitempty" bson:"follow_up_tasks,omitempty" yaml:"follow_up_tasks,omitempty"`
}

type Form struct {
	ID             string            `json:"id" bson:"_id" yaml:"id"`
	Slug           string            `json:"slug" bson:"slug" yaml:"slug"`
	Name           string            `json:"name" bson:"name" yaml:"name"`
	Creator        string            `json:"creator" bson:"creator" yaml:"creator"`
	CanEdit        bool              `json:"can_edit" bson:"-" yaml:"-"`
	Fields         []FieldDefinition `json:"fields" bson:"fields" yaml:"fields"`
	Config         FormConfig        `json:"config" bson:"config" yaml:"config"`
	RequireLogin   bool              `json:"require_login" bson:"require_login" yaml:"require_login"`
	SingleResponse bool              `json:"single_response" bson:"single_response" yaml:"single_response"`
	Timestamp      time.Time         `json:"timestamp" bson:"timestamp" yaml:"-"`
}

// Page is a contiguous run of fields shown together.
type Page struct {
	Index  int               `json:"index"`
	Fields []FieldDefinition `json:"fields"`
}
