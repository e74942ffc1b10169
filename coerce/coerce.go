// Package coerce converts raw field input into the wire representation
// expected by the record backend.
package coerce

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/pulsejet/cerium-engine/models"
	"github.com/pulsejet/cerium-engine/visibility"
)

// Func coerces one non-empty raw value.
type Func func(field models.FieldDefinition, raw interface{}) interface{}

const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02T15:04:05.000Z07:00"
)

var inputLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	dateLayout,
}

var table = map[models.FieldType]Func{
	models.FieldText:        toString,
	models.FieldTextarea:    toString,
	models.FieldEmail:       toString,
	models.FieldPhone:       toString,
	models.FieldNumber:      toNumber,
	models.FieldBoolean:     toBool,
	models.FieldCheckbox:    toBool,
	models.FieldDate:        toDate,
	models.FieldDatetime:    toDatetime,
	models.FieldSelect:      toString,
	models.FieldRadio:       toString,
	models.FieldMultiselect: toList,
	models.FieldFile:        toFileID,
	models.FieldJSON:        toJSON,
	models.FieldSignature:   toString,
}

// ForWire returns the wire value for raw, or nil when the key should be
// dropped from the payload.
func ForWire(field models.FieldDefinition, raw interface{}) interface{} {
	if raw == nil {
		return nil
	}
	if s, ok := raw.(string); ok && s == "" {
		return nil
	}
	fn, ok := table[field.Type]
	if !ok {
		fn = toString
	}
	return fn(field, raw)
}

// Payload coerces every visible, non-display field in fields.
func Payload(fields []models.FieldDefinition, values models.Values) map[string]interface{} {
	data := make(map[string]interface{})
	for _, f := range fields {
		if f.Type.IsDisplayOnly() || !visibility.IsVisible(f, values) {
			continue
		}
		if v := ForWire(f, values[f.ID]); v != nil {
			data[f.ID] = v
		}
	}
	return data
}

func toString(_ models.FieldDefinition, raw interface{}) interface{} {
	return stringOf(raw)
}

func stringOf(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(raw)
}

func toNumber(_ models.FieldDefinition, raw interface{}) interface{} {
	switch v := raw.(type) {
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return float64(0)
		}
		return finite(f)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(stringOf(raw)), 64)
	if err != nil {
		return float64(0)
	}
	return finite(f)
}

// finite maps NaN and infinities, which have no JSON form, to 0.
func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func toBool(_ models.FieldDefinition, raw interface{}) interface{} {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
		return v != ""
	case float64:
		return v != 0
	case int:
		return v != 0
	}
	return true
}

func parseTime(raw interface{}) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v != nil {
			return *v, true
		}
		return time.Time{}, false
	case string:
		for _, layout := range inputLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func toDate(_ models.FieldDefinition, raw interface{}) interface{} {
	if t, ok := parseTime(raw); ok {
		return t.Format(dateLayout)
	}
	return stringOf(raw)
}

func toDatetime(_ models.FieldDefinition, raw interface{}) interface{} {
	if t, ok := parseTime(raw); ok {
		return t.UTC().Format(datetimeLayout)
	}
	return stringOf(raw)
}

func toList(_ models.FieldDefinition, raw interface{}) interface{} {
	switch v := raw.(type) {
	case []interface{}:
		return v
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	}
	rv := reflect.ValueOf(raw)
	if rv.Kind() == reflect.Slice {
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []interface{}{raw}
}

// toFileID keeps only resolved identifiers. Local files that have not been
// uploaded never reach the wire.
func toFileID(_ models.FieldDefinition, raw interface{}) interface{} {
	if items, ok := raw.([]interface{}); ok {
		out := make([]interface{}, 0, len(items))
		for _, item := range items {
			if id := fileID(item); id != nil {
				out = append(out, id)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return fileID(raw)
}

func fileID(raw interface{}) interface{} {
	switch v := raw.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	case models.UploadedFile:
		return v
	case *models.UploadedFile:
		if v != nil {
			return *v
		}
	case map[string]interface{}:
		if id, ok := v["file_id"]; ok {
			uf := models.UploadedFile{}
			if n, ok := fileID(id).(int64); ok {
				uf.FileID = n
			}
			if exp, ok := v["expiry_date"].(string); ok {
				uf.ExpiryDate = exp
			}
			return uf
		}
	}
	return nil
}

func toJSON(_ models.FieldDefinition, raw interface{}) interface{} {
	s, ok := raw.(string)
	if !ok {
		return raw
	}
	var parsed interface{}
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return raw
	}
	return parsed
}
