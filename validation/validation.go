// Package validation computes per-field errors for a page or a whole form.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pulsejet/cerium-engine/models"
	"github.com/pulsejet/cerium-engine/visibility"
)

// Errors maps field ids to a human-readable message.
type Errors map[string]string

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidatePage checks only the fields of one page.
func ValidatePage(pageFields []models.FieldDefinition, values models.Values) Errors {
	return check(pageFields, values)
}

// ValidateAll checks every field of the form. Used at final submit.
func ValidateAll(allFields []models.FieldDefinition, values models.Values) Errors {
	return check(allFields, values)
}

// FirstErrorPage returns the lowest page index holding a field in errs, or
// -1 when errs names no field on any page.
func FirstErrorPage(pages []models.Page, errs Errors) int {
	for _, p := range pages {
		for _, f := range p.Fields {
			if _, ok := errs[f.ID]; ok {
				return p.Index
			}
		}
	}
	return -1
}

func check(fields []models.FieldDefinition, values models.Values) Errors {
	errs := Errors{}
	for _, f := range fields {
		if f.Type.IsDisplayOnly() || !visibility.IsVisible(f, values) {
			continue
		}
		v := values[f.ID]
		if IsMissing(v) {
			if f.Required {
				errs[f.ID] = fmt.Sprintf("%s is required", f.DisplayName())
			}
			continue
		}
		if msg := checkValue(f, v); msg != "" {
			errs[f.ID] = msg
		}
	}
	return errs
}

// IsMissing reports whether v counts as no answer.
func IsMissing(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		return rv.Len() == 0
	}
	return false
}

func checkValue(f models.FieldDefinition, v interface{}) string {
	name := f.DisplayName()
	if f.Type == models.FieldEmail {
		if s, ok := v.(string); ok && !emailPattern.MatchString(strings.TrimSpace(s)) {
			return fmt.Sprintf("%s must be a valid email address", name)
		}
	}

	rules := f.Validation
	if rules == nil {
		return ""
	}

	if s, ok := v.(string); ok && f.Type != models.FieldNumber {
		n := utf8.RuneCountInString(s)
		if rules.MinLength != nil && n < *rules.MinLength {
			return fmt.Sprintf("%s must be at least %d characters", name, *rules.MinLength)
		}
		if rules.MaxLength != nil && n > *rules.MaxLength {
			return fmt.Sprintf("%s must be at most %d characters", name, *rules.MaxLength)
		}
		if rules.Pattern != "" {
			re, err := regexp.Compile(rules.Pattern)
			if err == nil && !re.MatchString(s) {
				return fmt.Sprintf("%s has an invalid format", name)
			}
		}
	}

	if f.Type == models.FieldNumber && (rules.Min != nil || rules.Max != nil) {
		n, ok := toFloat(v)
		if !ok {
			return fmt.Sprintf("%s must be a number", name)
		}
		if rules.Min != nil && n < *rules.Min {
			return fmt.Sprintf("%s must be at least %s", name, strconv.FormatFloat(*rules.Min, 'f', -1, 64))
		}
		if rules.Max != nil && n > *rules.Max {
			return fmt.Sprintf("%s must be at most %s", name, strconv.FormatFloat(*rules.Max, 'f', -1, 64))
		}
	}
	return ""
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
