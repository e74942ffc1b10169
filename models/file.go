package models

import (
	"bytes"
	"io"
	"os"
)

// LocalFile references a file that has not been uploaded yet. Data, when
// set, takes precedence over Path and is never serialized.
type LocalFile struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Path        string `json:"path,omitempty"`
	Data        []byte `json:"-"`
}

// Open returns the file contents.
func (f *LocalFile) Open() (io.ReadCloser, error) {
	if f.Data != nil {
		return io.NopCloser(bytes.NewReader(f.Data)), nil
	}
	return os.Open(f.Path)
}

// FileWithExpiry is a local file on a field that tracks expiry dates.
type FileWithExpiry struct {
	File       *LocalFile `json:"file"`
	ExpiryDate string     `json:"expiry_date,omitempty"`
}

// UploadedFile is the resolved form of a FileWithExpiry.
type UploadedFile struct {
	FileID     int64  `json:"file_id" bson:"file_id"`
	ExpiryDate string `json:"expiry_date,omitempty" bson:"expiry_date,omitempty"`
}

type UploadContext struct {
	FormID  string `json:"form_id"`
	FieldID string `json:"field_id"`
}

type UploadResponse struct {
	ID int64 `json:"id"`
}
