// Package visibility evaluates conditional visibility rules against the
// current values of a form.
package visibility

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/pulsejet/cerium-engine/models"
)

// IsVisible reports whether field is active for the given values. Fields
// without a rule are always visible.
func IsVisible(field models.FieldDefinition, values models.Values) bool {
	if field.Visibility == nil {
		return true
	}
	return Evaluate(*field.Visibility, values)
}

// VisibleFields filters fields down to the visible ones, preserving order.
func VisibleFields(fields []models.FieldDefinition, values models.Values) []models.FieldDefinition {
	out := make([]models.FieldDefinition, 0, len(fields))
	for _, f := range fields {
		if IsVisible(f, values) {
			out = append(out, f)
		}
	}
	return out
}

// Evaluate applies rule to values. A missing dependency counts as empty and
// an unknown operator evaluates to true.
func Evaluate(rule models.ConditionalVisibilityRule, values models.Values) bool {
	dep := normalize(values[rule.DependsOn])
	cmp := normalize(rule.Value)

	switch rule.Operator {
	case models.OpEquals:
		return equal(dep, cmp)
	case models.OpNotEquals:
		// An empty comparison value means "dependency is set".
		if isBlank(cmp) {
			return truthy(dep)
		}
		return !equal(dep, cmp)
	case models.OpContains:
		return contains(dep, cmp)
	case models.OpIsEmpty:
		return isEmpty(dep)
	case models.OpIsNotEmpty:
		// Not the negation of is_empty: an empty list or 0 satisfies both.
		return !isBlank(dep) && dep != false
	default:
		return true
	}
}

// normalize folds boolean-like strings into bools so that "TRUE", "true"
// and true compare equal.
func normalize(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

func equal(a, b interface{}) bool {
	ab, aIsBool := a.(bool)
	bb, bIsBool := b.(bool)
	if aIsBool || bIsBool {
		return aIsBool && bIsBool && ab == bb
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return str(a) == str(b)
}

func contains(dep, cmp interface{}) bool {
	if dep == nil {
		return false
	}
	if items, ok := asSlice(dep); ok {
		for _, item := range items {
			if equal(normalize(item), cmp) {
				return true
			}
		}
		return false
	}
	if cmp == nil {
		return false
	}
	return strings.Contains(str(dep), str(cmp))
}

func isBlank(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func isEmpty(v interface{}) bool {
	if isBlank(v) || v == false || isEmptySlice(v) {
		return true
	}
	if f, ok := number(v); ok {
		return f == 0
	}
	return false
}

func truthy(v interface{}) bool {
	return !isEmpty(v)
}

func isEmptySlice(v interface{}) bool {
	items, ok := asSlice(v)
	return ok && len(items) == 0
}

func asSlice(v interface{}) ([]interface{}, bool) {
	if items, ok := v.([]interface{}); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	items := make([]interface{}, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func str(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprint(v)
}
