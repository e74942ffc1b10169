// Package client talks to the cerium API over HTTP. A Client serves as the
// schema source, uploader and record backend of a workflow session.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/pulsejet/cerium-engine/models"
	"github.com/pulsejet/cerium-engine/schema"
	"github.com/pulsejet/cerium-engine/upload"
)

// APIError is a non-2xx reply. Message is the server's message, if it sent one.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("cerium: HTTP %d", e.Status)
	}
	return fmt.Sprintf("cerium: HTTP %d: %s", e.Status, e.Message)
}

type Client struct {
	base string
	http *http.Client

	mu     sync.Mutex
	userID string
}

// New creates a Client for the API at baseURL. A nil hc gets a fresh client
// with a cookie jar so the session cookie survives between calls.
func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		jar, _ := cookiejar.New(nil)
		hc = &http.Client{Jar: jar}
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: hc}
}

// Login opens a session for userID.
func (c *Client) Login(ctx context.Context, userID string) error {
	var out struct {
		UserID string `json:"user_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/login", map[string]string{"user_id": userID}, &out); err != nil {
		return err
	}
	c.mu.Lock()
	c.userID = out.UserID
	c.mu.Unlock()
	return nil
}

// UserID reports the user logged in through this client.
func (c *Client) UserID(context.Context) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.userID != ""
}

// GetForm fetches a form by id or slug and decodes it through the schema
// loader, so any accepted field spelling works.
func (c *Client) GetForm(ctx context.Context, identifier string) (models.Form, error) {
	var doc map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/api/form/"+url.PathEscape(identifier), nil, &doc); err != nil {
		return models.Form{}, err
	}
	return schema.FromMap(doc)
}

func (c *Client) CreateSubmission(ctx context.Context, payload models.SubmissionPayload) (models.SubmissionResult, error) {
	var res models.SubmissionResult
	err := c.do(ctx, http.MethodPost, "/api/submissions", payload, &res)
	return res, err
}

func (c *Client) UpdateSubmission(ctx context.Context, id string, payload models.SubmissionPayload) (models.SubmissionResult, error) {
	var res models.SubmissionResult
	err := c.do(ctx, http.MethodPut, "/api/submissions/"+url.PathEscape(id), payload, &res)
	return res, err
}

// ListSubmissions returns the responses of a form owned by the logged in user.
func (c *Client) ListSubmissions(ctx context.Context, formID string) ([]models.FormResponse, error) {
	var out []models.FormResponse
	err := c.do(ctx, http.MethodGet, "/api/submissions/"+url.PathEscape(formID), nil, &out)
	return out, err
}

// Upload sends one file as multipart form data. A rejection by the server
// is returned as an *upload.UploadError carrying the server's message.
func (c *Client) Upload(ctx context.Context, file *models.LocalFile, uc models.UploadContext) (models.UploadResponse, error) {
	src, err := file.Open()
	if err != nil {
		return models.UploadResponse{}, fmt.Errorf("opening %s: %w", file.Name, err)
	}
	defer src.Close()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	mw.WriteField("form_id", uc.FormID)
	mw.WriteField("field_id", uc.FieldID)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%s`, strconv.Quote(file.Name)))
	ct := file.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return models.UploadResponse{}, err
	}
	if _, err := io.Copy(part, src); err != nil {
		return models.UploadResponse{}, fmt.Errorf("reading %s: %w", file.Name, err)
	}
	if err := mw.Close(); err != nil {
		return models.UploadResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/upload", body)
	if err != nil {
		return models.UploadResponse{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res models.UploadResponse
	if err := c.send(req, &res); err != nil {
		if apiErr, ok := err.(*APIError); ok && apiErr.Message != "" {
			return models.UploadResponse{}, &upload.UploadError{Message: apiErr.Message, Err: apiErr}
		}
		return models.UploadResponse{}, err
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &msg) == nil {
			apiErr.Message = msg.Message
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
