// Package schema decodes form schemas from JSON or YAML into canonical
// models.Form values. Alternative key spellings found in stored schemas are
// resolved here so nothing downstream needs to know about them.
package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/pulsejet/cerium-engine/models"
)

var (
	idKeys         = []string{"field_id", "fieldId", "id", "uid", "name", "key"}
	typeKeys       = []string{"field_type", "fieldType", "type"}
	requiredKeys   = []string{"required", "is_required", "isRequired"}
	labelKeys      = []string{"label", "title", "question"}
	helpKeys       = []string{"help_text", "helpText", "description"}
	visibilityKeys = []string{"conditional_visibility", "conditionalVisibility", "visible_when", "condition"}
	dependsKeys    = []string{"depends_on", "dependsOn", "depends_on_field_id", "dependsOnFieldId", "field"}
	operatorKeys   = []string{"operator", "op"}
	valueKeys      = []string{"value", "comparison_value", "comparisonValue"}
	expiryKeys     = []string{"file_expiry", "fileExpiry", "track_expiry"}
	optionKeys     = []string{"options", "choices"}
	ruleKeys       = []string{"validation", "validations"}
)

// ErrInvalidSchema is wrapped by every decoding failure caused by content.
var ErrInvalidSchema = errors.New("invalid form schema")

// DecodeJSON parses a JSON form document.
func DecodeJSON(data []byte) (models.Form, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return models.Form{}, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return FromMap(m)
}

// DecodeYAML parses a YAML form document.
func DecodeYAML(data []byte) (models.Form, error) {
	var m map[string]interface{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return models.Form{}, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return FromMap(m)
}

// LoadFile decodes a schema file, choosing the format by extension.
func LoadFile(path string) (models.Form, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Form{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return DecodeYAML(data)
	default:
		return DecodeJSON(data)
	}
}

// LoadDir decodes every .json, .yaml and .yml file in dir.
func LoadDir(dir string) ([]models.Form, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var forms []models.Form
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		f, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		forms = append(forms, f)
	}
	return forms, nil
}

// FromMap builds a Form from a generic document. Fields come either from a
// flat "fields" list or from "pages", each holding "fields" or "widgets";
// pages are joined with page-break fields.
func FromMap(m map[string]interface{}) (models.Form, error) {
	form := models.Form{
		ID:             str(first(m, "id", "_id", "form_id")),
		Slug:           str(first(m, "slug")),
		Name:           str(first(m, "name", "title")),
		Creator:        str(first(m, "creator")),
		RequireLogin:   boolean(first(m, "require_login", "requireLogin")),
		SingleResponse: boolean(first(m, "single_response", "singleResponse")),
	}

	raw, err := rawFields(m)
	if err != nil {
		return models.Form{}, err
	}
	seen := map[string]bool{}
	for i, r := range raw {
		f, err := Field(r, i)
		if err != nil {
			return models.Form{}, err
		}
		if seen[f.ID] {
			return models.Form{}, fmt.Errorf("%w: duplicate field id %q", ErrInvalidSchema, f.ID)
		}
		seen[f.ID] = true
		form.Fields = append(form.Fields, f)
	}

	if c, ok := first(m, "config", "settings").(map[string]interface{}); ok {
		form.Config = config(c)
	} else {
		form.Config = config(m)
	}
	return form, nil
}

func rawFields(m map[string]interface{}) ([]map[string]interface{}, error) {
	if list, ok := first(m, "fields").([]interface{}); ok {
		return maps(list)
	}
	pages, ok := first(m, "pages").([]interface{})
	if !ok {
		return nil, nil
	}
	var out []map[string]interface{}
	for i, p := range pages {
		pm, ok := p.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: page %d is not an object", ErrInvalidSchema, i)
		}
		list, _ := first(pm, "fields", "widgets").([]interface{})
		fields, err := maps(list)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			out = append(out, map[string]interface{}{
				"field_id":   fmt.Sprintf("page-break-%d", i),
				"field_type": string(models.FieldPageBreak),
				"label":      str(first(pm, "title")),
			})
		}
		out = append(out, fields...)
	}
	return out, nil
}

func maps(list []interface{}) ([]map[string]interface{}, error) {
	out := make([]map[string]interface{}, 0, len(list))
	for i, item := range list {
		fm, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: field %d is not an object", ErrInvalidSchema, i)
		}
		out = append(out, fm)
	}
	return out, nil
}

// Field builds one canonical field definition. Widget-style entries keep
// their settings under "props", which is merged beneath the top-level keys.
func Field(m map[string]interface{}, index int) (models.FieldDefinition, error) {
	if props, ok := m["props"].(map[string]interface{}); ok {
		merged := make(map[string]interface{}, len(m)+len(props))
		for k, v := range props {
			merged[k] = v
		}
		for k, v := range m {
			merged[k] = v
		}
		m = merged
	}

	f := models.FieldDefinition{
		ID:         str(first(m, idKeys...)),
		Type:       models.FieldType(strings.ToLower(str(first(m, typeKeys...)))),
		Required:   boolean(first(m, requiredKeys...)),
		Label:      str(first(m, labelKeys...)),
		HelpText:   str(first(m, helpKeys...)),
		FileExpiry: boolean(first(m, expiryKeys...)),
	}
	if f.Type == "" {
		f.Type = models.FieldText
	}
	if f.ID == "" {
		if !f.Type.IsDisplayOnly() {
			return f, fmt.Errorf("%w: field %d has no id", ErrInvalidSchema, index)
		}
		f.ID = fmt.Sprintf("%s-%d", f.Type, index)
	}

	if rm, ok := first(m, visibilityKeys...).(map[string]interface{}); ok {
		f.Visibility = &models.ConditionalVisibilityRule{
			DependsOn: str(first(rm, dependsKeys...)),
			Operator:  strings.ToLower(str(first(rm, operatorKeys...))),
			Value:     first(rm, valueKeys...),
		}
	}

	if opts, ok := first(m, optionKeys...).([]interface{}); ok {
		for _, o := range opts {
			switch ov := o.(type) {
			case map[string]interface{}:
				opt := models.Option{Label: str(first(ov, "label", "text")), Value: str(first(ov, "value", "id"))}
				if opt.Value == "" {
					opt.Value = opt.Label
				}
				f.Options = append(f.Options, opt)
			default:
				s := str(ov)
				f.Options = append(f.Options, models.Option{Label: s, Value: s})
			}
		}
	}

	if vm, ok := first(m, ruleKeys...).(map[string]interface{}); ok {
		f.Validation = rules(vm)
		if r, ok := vm["required"]; ok && !f.Required {
			f.Required = boolean(r)
		}
	}
	return f, nil
}

func rules(m map[string]interface{}) *models.ValidationRules {
	r := &models.ValidationRules{Pattern: str(first(m, "pattern", "regex"))}
	if n, ok := number(first(m, "min_length", "minLength")); ok {
		v := int(n)
		r.MinLength = &v
	}
	if n, ok := number(first(m, "max_length", "maxLength")); ok {
		v := int(n)
		r.MaxLength = &v
	}
	if n, ok := number(first(m, "min")); ok {
		r.Min = &n
	}
	if n, ok := number(first(m, "max")); ok {
		r.Max = &n
	}
	return r
}

func config(m map[string]interface{}) models.FormConfig {
	c := models.FormConfig{
		AllowDraft:        boolean(first(m, "allow_draft", "allowDraft", "allow_drafts")),
		SubmitButtonLabel: str(first(m, "submit_button_label", "submitButtonLabel")),
	}
	tasks, _ := first(m, "follow_up_tasks", "followUpTasks").([]interface{})
	for _, t := range tasks {
		tm, ok := t.(map[string]interface{})
		if !ok {
			continue
		}
		task := models.FollowUpTask{Title: str(first(tm, "title", "name"))}
		if wm, ok := first(tm, "when", "condition").(map[string]interface{}); ok {
			task.When = &models.ConditionalVisibilityRule{
				DependsOn: str(first(wm, dependsKeys...)),
				Operator:  strings.ToLower(str(first(wm, operatorKeys...))),
				Value:     first(wm, valueKeys...),
			}
		}
		c.FollowUpTasks = append(c.FollowUpTasks, task)
	}
	return c
}

// first returns the value of the first key present in m.
func first(m map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func str(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	}
	return fmt.Sprint(v)
}

func boolean(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(strings.TrimSpace(b))
		return parsed
	}
	return false
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
