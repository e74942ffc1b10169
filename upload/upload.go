// Package upload resolves file field values that reference local files into
// uploaded file identifiers.
package upload

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pulsejet/cerium-engine/models"
	"github.com/pulsejet/cerium-engine/validation"
	"github.com/pulsejet/cerium-engine/visibility"
)

// Uploader sends one file to the backend.
type Uploader interface {
	Upload(ctx context.Context, file *models.LocalFile, uc models.UploadContext) (models.UploadResponse, error)
}

// UploadError is returned by an Uploader when the backend rejected a file.
// Message is shown to the user as is.
type UploadError struct {
	Message string
	Err     error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upload: %s: %v", e.Message, e.Err)
	}
	return "upload: " + e.Message
}

func (e *UploadError) Unwrap() error { return e.Err }

// ErrReattach is wrapped when a file value can neither be sent nor
// uploaded, such as a file restored from a snapshot without its contents.
var ErrReattach = errors.New("file must be attached again")

// BatchError reports a failed resolution pass. Fields holds one message per
// field that had at least one failed file. Partial is the input with every
// upload that did succeed applied and failed files left as they were; it is
// never sent, only kept so a retry does not upload the same file twice.
type BatchError struct {
	Fields  validation.Errors
	Err     error
	Partial models.Values
}

func (e *BatchError) Error() string {
	ids := make([]string, 0, len(e.Fields))
	for id := range e.Fields {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return fmt.Sprintf("upload failed for %s: %v", strings.Join(ids, ", "), e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Orchestrator fans out uploads for every local file in a value map.
type Orchestrator struct {
	uploader Uploader
	formID   string
	log      log.FieldLogger
}

// New creates an Orchestrator that uploads on behalf of formID.
func New(uploader Uploader, formID string, logger log.FieldLogger) *Orchestrator {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Orchestrator{uploader: uploader, formID: formID, log: logger}
}

// ResolveFiles uploads every local file held by a visible file field and
// returns a copy of values with those files replaced by their ids. Uploads
// run concurrently with no cap. If any upload fails, or a file value can be
// neither sent nor uploaded, the returned map is nil, errs has a message for
// every failed field, and err is a *BatchError.
func (o *Orchestrator) ResolveFiles(ctx context.Context, fields []models.FieldDefinition, values models.Values) (models.Values, validation.Errors, error) {
	errs := validation.Errors{}

	var (
		g     errgroup.Group
		mu    sync.Mutex
		stale error
		slots = map[string]*interface{}{}
		lists = map[string][]interface{}{}
	)

	record := func(fieldID, msg string) {
		mu.Lock()
		if _, ok := errs[fieldID]; !ok {
			errs[fieldID] = msg
		}
		mu.Unlock()
	}

	// start schedules the upload of one file and stores its result through set.
	start := func(f models.FieldDefinition, e entry, set func(interface{})) {
		g.Go(func() error {
			res, err := o.uploader.Upload(ctx, e.file, models.UploadContext{FormID: o.formID, FieldID: f.ID})
			if err != nil {
				msg := fmt.Sprintf("Failed to upload %s", e.file.Name)
				var ue *UploadError
				if errors.As(err, &ue) && ue.Message != "" {
					msg = ue.Message
				}
				record(f.ID, msg)
				o.log.WithFields(log.Fields{"form": o.formID, "field": f.ID, "file": e.file.Name}).
					WithError(err).Warn("file upload failed")
				return err
			}
			if e.tracked {
				set(models.UploadedFile{FileID: res.ID, ExpiryDate: e.expiry})
			} else {
				set(res.ID)
			}
			return nil
		})
	}

	reattach := func(f models.FieldDefinition, e entry) {
		name := e.name
		if name == "" {
			name = f.DisplayName()
		}
		record(f.ID, fmt.Sprintf("Please re-attach %s", name))
		if stale == nil {
			stale = fmt.Errorf("%s: %w", f.ID, ErrReattach)
		}
		o.log.WithFields(log.Fields{"form": o.formID, "field": f.ID, "file": name}).Warn("file cannot be uploaded")
	}

	for _, f := range fields {
		if f.Type != models.FieldFile || !visibility.IsVisible(f, values) {
			continue
		}
		raw, ok := values[f.ID]
		if !ok || blank(raw) {
			continue
		}

		if items, isList := asList(raw); isList {
			// Results are written by index so completion order does not matter.
			out := make([]interface{}, len(items))
			copy(out, items)
			for i, item := range items {
				i := i
				switch e := classify(f, item); e.kind {
				case kindLocal:
					start(f, e, func(v interface{}) { out[i] = v })
				case kindStale:
					reattach(f, e)
				}
			}
			lists[f.ID] = out
			continue
		}

		switch e := classify(f, raw); e.kind {
		case kindLocal:
			// Goroutines never write to the shared map; slots are copied in after Wait.
			slot := new(interface{})
			slots[f.ID] = slot
			start(f, e, func(v interface{}) { *slot = v })
		case kindStale:
			reattach(f, e)
		}
	}

	err := g.Wait()
	if err == nil {
		err = stale
	}

	out := values.Clone()
	for id, list := range lists {
		out[id] = list
	}
	for id, slot := range slots {
		if *slot != nil {
			out[id] = *slot
		}
	}
	if err != nil {
		return nil, errs, &BatchError{Fields: errs, Err: err, Partial: out}
	}
	return out, errs, nil
}

type kind int

const (
	kindResolved kind = iota
	kindLocal
	kindStale
)

type entry struct {
	kind    kind
	file    *models.LocalFile
	name    string
	expiry  string
	tracked bool
}

// classify sorts one file value into an id that passes through, a local
// file to upload, or a stale reference that can do neither. JSON-decoded
// drafts hold maps, so both typed values and their map form are accepted.
func classify(f models.FieldDefinition, raw interface{}) entry {
	switch v := raw.(type) {
	case nil:
		return entry{kind: kindResolved}
	case string:
		if v == "" {
			return entry{kind: kindResolved}
		}
		return entry{kind: kindStale}
	case int, int64, float64, json.Number, models.UploadedFile, *models.UploadedFile:
		return entry{kind: kindResolved}
	case *models.LocalFile:
		if v == nil {
			return entry{kind: kindResolved}
		}
		return localEntry(v, "", false)
	case models.LocalFile:
		return localEntry(&v, "", false)
	case models.FileWithExpiry:
		return localEntry(v.File, v.ExpiryDate, f.FileExpiry)
	case *models.FileWithExpiry:
		if v == nil {
			return entry{kind: kindResolved}
		}
		return localEntry(v.File, v.ExpiryDate, f.FileExpiry)
	case map[string]interface{}:
		if _, done := v["file_id"]; done {
			return entry{kind: kindResolved}
		}
		if inner, ok := v["file"].(map[string]interface{}); ok {
			exp, _ := v["expiry_date"].(string)
			return localEntry(decodeLocal(inner), exp, f.FileExpiry)
		}
		return localEntry(decodeLocal(v), "", false)
	}
	return entry{kind: kindStale}
}

// localEntry accepts a file only when its contents can still be read.
func localEntry(file *models.LocalFile, expiry string, tracked bool) entry {
	if file == nil {
		return entry{kind: kindStale}
	}
	if file.Data == nil && file.Path == "" {
		return entry{kind: kindStale, name: file.Name}
	}
	return entry{kind: kindLocal, file: file, name: file.Name, expiry: expiry, tracked: tracked}
}

func decodeLocal(m map[string]interface{}) *models.LocalFile {
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	lf := &models.LocalFile{}
	if err := json.Unmarshal(b, lf); err != nil {
		return nil
	}
	return lf
}

func blank(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// asList returns the elements of any slice value except raw bytes.
func asList(v interface{}) ([]interface{}, bool) {
	if items, ok := v.([]interface{}); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	items := make([]interface{}, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}
