package controllers_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	c "github.com/pulsejet/cerium-engine/controllers"
	"github.com/pulsejet/cerium-engine/models"
	"github.com/pulsejet/cerium-engine/store"
)

const creator = "creator-1"

type fixture struct {
	st     *store.MemoryStore
	h      *c.Handler
	router *mux.Router
}

func setup(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	h := c.New(st, t.TempDir(), []byte("test-key"))
	router := mux.NewRouter()
	h.Routes(router)
	return &fixture{st: st, h: h, router: router}
}

func createDummyForm() map[string]interface{} {
	return map[string]interface{}{
		"name": "Test Form",
		"fields": []interface{}{
			map[string]interface{}{"field_id": "name", "field_type": "text", "required": true, "label": "Name"},
			map[string]interface{}{"field_id": "break", "field_type": "page-break"},
			map[string]interface{}{"field_id": "cv", "field_type": "file", "label": "CV"},
			map[string]interface{}{"field_id": "urgent", "field_type": "boolean"},
		},
		"config": map[string]interface{}{
			"allow_draft": true,
			"follow_up_tasks": []interface{}{
				map[string]interface{}{"title": "Review"},
				map[string]interface{}{"title": "Escalate", "when": map[string]interface{}{
					"depends_on": "urgent", "operator": "equals", "value": true,
				}},
			},
		},
	}
}

// cookieFor returns the session cookie header for uid.
func (f *fixture) cookieFor(t *testing.T, uid string) string {
	t.Helper()
	tempR := httptest.NewRecorder()
	require.NoError(t, f.h.SetCookie(tempR, uid))
	return tempR.Result().Header.Get("Set-Cookie")
}

func (f *fixture) requestAPI(t *testing.T, method, url, uid string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Add("Cookie", f.cookieFor(t, uid))
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) putForm(t *testing.T, mutate func(*models.Form)) models.Form {
	t.Helper()
	form := models.Form{
		Name:    "Seeded",
		Creator: creator,
		Fields: []models.FieldDefinition{
			{ID: "name", Type: models.FieldText, Required: true},
			{ID: "cv", Type: models.FieldFile},
			{ID: "urgent", Type: models.FieldBoolean},
		},
		Config: models.FormConfig{
			AllowDraft: true,
			FollowUpTasks: []models.FollowUpTask{
				{Title: "Review"},
				{Title: "Escalate", When: &models.ConditionalVisibilityRule{DependsOn: "urgent", Operator: models.OpEquals, Value: true}},
			},
		},
	}
	if mutate != nil {
		mutate(&form)
	}
	saved, err := f.st.PutForm(context.Background(), form)
	require.NoError(t, err)
	return saved
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), out))
}

// Tests creation of new form by user
func TestNewFormCreate(t *testing.T) {
	f := setup(t)

	rr := f.requestAPI(t, "POST", "/api/form", creator, createDummyForm())
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var out struct {
		ID   string `json:"id"`
		Slug string `json:"slug"`
	}
	decode(t, rr, &out)

	dbForm, err := f.st.GetForm(context.Background(), out.Slug)
	require.NoError(t, err)
	assert.Equal(t, "Test Form", dbForm.Name)
	assert.Equal(t, creator, dbForm.Creator)
	assert.Len(t, dbForm.Fields, 4)
	assert.True(t, dbForm.Config.AllowDraft)
}

// Tests empty form are not created, and status 400 is sent
func TestEmptyForm(t *testing.T) {
	f := setup(t)
	form := createDummyForm()
	form["fields"] = []interface{}{}

	rr := f.requestAPI(t, "POST", "/api/form", creator, form)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateFormNeedsLogin(t *testing.T) {
	f := setup(t)
	rr := f.requestAPI(t, "POST", "/api/form", "", createDummyForm())
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestEditFormOnlyByCreator(t *testing.T) {
	f := setup(t)
	form := f.putForm(t, nil)

	rr := f.requestAPI(t, "PUT", "/api/form/"+form.ID, "someone-else", createDummyForm())
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.requestAPI(t, "PUT", "/api/form/"+form.ID, creator, createDummyForm())
	require.Equal(t, http.StatusOK, rr.Code)
	dbForm, err := f.st.GetForm(context.Background(), form.ID)
	require.NoError(t, err)
	assert.Equal(t, "Test Form", dbForm.Name)
	assert.Equal(t, form.Slug, dbForm.Slug)
}

func TestGetForm(t *testing.T) {
	f := setup(t)
	form := f.putForm(t, nil)

	rr := f.requestAPI(t, "GET", "/api/form/"+form.Slug, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := models.Form{}
	decode(t, rr, &got)
	assert.Equal(t, form.ID, got.ID)
	assert.False(t, got.CanEdit)

	rr = f.requestAPI(t, "GET", "/api/form/"+form.ID, creator, nil)
	decode(t, rr, &got)
	assert.True(t, got.CanEdit)

	rr = f.requestAPI(t, "GET", "/api/form/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetFormRequiresLogin(t *testing.T) {
	f := setup(t)
	form := f.putForm(t, func(fm *models.Form) { fm.RequireLogin = true })

	rr := f.requestAPI(t, "GET", "/api/form/"+form.ID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.requestAPI(t, "GET", "/api/form/"+form.ID, "filler", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestGetAllForms(t *testing.T) {
	f := setup(t)
	f.putForm(t, nil)
	f.putForm(t, func(fm *models.Form) { fm.Creator = "other" })

	rr := f.requestAPI(t, "GET", "/api/forms", creator, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []map[string]interface{}
	decode(t, rr, &list)
	assert.Len(t, list, 1)
}

func TestDeleteForm(t *testing.T) {
	f := setup(t)
	form := f.putForm(t, nil)

	rr := f.requestAPI(t, "DELETE", "/api/form/"+form.ID, "other", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.requestAPI(t, "DELETE", "/api/form/"+form.ID, creator, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	_, err := f.st.GetForm(context.Background(), form.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSubmitCreatesFollowUps(t *testing.T) {
	f := setup(t)
	form := f.putForm(t, nil)

	rr := f.requestAPI(t, "POST", "/api/submissions", "", models.SubmissionPayload{
		FormID: form.ID,
		Data:   map[string]interface{}{"name": "Ada", "urgent": true},
		Status: models.StatusSubmitted,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	res := models.SubmissionResult{}
	decode(t, rr, &res)
	assert.NotEmpty(t, res.ID)
	require.NotNil(t, res.ProcessingResult)
	assert.Equal(t, 2, res.ProcessingResult.TasksCreated)
	assert.Len(t, res.ProcessingResult.TaskIDs, 2)

	rr = f.requestAPI(t, "POST", "/api/submissions", "", models.SubmissionPayload{
		FormID: form.ID,
		Data:   map[string]interface{}{"name": "Bob", "urgent": false},
		Status: models.StatusSubmitted,
	})
	decode(t, rr, &res)
	assert.Equal(t, 1, res.ProcessingResult.TasksCreated)
}

func TestDraftThenSubmit(t *testing.T) {
	f := setup(t)
	form := f.putForm(t, nil)

	rr := f.requestAPI(t, "POST", "/api/submissions", "filler", models.SubmissionPayload{
		FormID: form.ID,
		Data:   map[string]interface{}{"name": "Ada"},
		Status: models.StatusDraft,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	draft := models.SubmissionResult{}
	decode(t, rr, &draft)
	assert.Nil(t, draft.ProcessingResult)

	// Another user cannot take over the draft
	rr = f.requestAPI(t, "PUT", "/api/submissions/"+draft.ID, "intruder", models.SubmissionPayload{
		FormID: form.ID, Status: models.StatusSubmitted,
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.requestAPI(t, "PUT", "/api/submissions/"+draft.ID, "filler", models.SubmissionPayload{
		FormID: form.ID,
		Data:   map[string]interface{}{"name": "Ada Lovelace"},
		Status: models.StatusSubmitted,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	final := models.SubmissionResult{}
	decode(t, rr, &final)
	assert.Equal(t, draft.ID, final.ID)

	stored, err := f.st.GetResponse(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, stored.Status)
	assert.Equal(t, "Ada Lovelace", stored.Responses["name"])

	// Final submissions are not editable
	rr = f.requestAPI(t, "PUT", "/api/submissions/"+draft.ID, "filler", models.SubmissionPayload{
		FormID: form.ID, Status: models.StatusSubmitted,
	})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestDraftsDisabled(t *testing.T) {
	f := setup(t)
	form := f.putForm(t, func(fm *models.Form) { fm.Config.AllowDraft = false })

	rr := f.requestAPI(t, "POST", "/api/submissions", "", models.SubmissionPayload{
		FormID: form.ID, Status: models.StatusDraft,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSubmissionUserMustMatchSession(t *testing.T) {
	f := setup(t)
	form := f.putForm(t, nil)

	rr := f.requestAPI(t, "POST", "/api/submissions", "alice", models.SubmissionPayload{
		FormID: form.ID, Status: models.StatusSubmitted, SubmittedByUserID: "mallory",
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.requestAPI(t, "POST", "/api/submissions", "alice", models.SubmissionPayload{
		FormID: form.ID, Status: models.StatusSubmitted, SubmittedByUserID: "alice",
	})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestSingleResponse(t *testing.T) {
	f := setup(t)
	form := f.putForm(t, func(fm *models.Form) { fm.SingleResponse = true })
	payload := models.SubmissionPayload{FormID: form.ID, Status: models.StatusSubmitted}

	rr := f.requestAPI(t, "POST", "/api/submissions", "filler", payload)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.requestAPI(t, "POST", "/api/submissions", "filler", payload)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.requestAPI(t, "GET", "/api/form/"+form.ID, "filler", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestSingleResponseConcurrentSubmits(t *testing.T) {
	f := setup(t)
	form := f.putForm(t, func(fm *models.Form) { fm.SingleResponse = true })
	body, err := json.Marshal(models.SubmissionPayload{FormID: form.ID, Status: models.StatusSubmitted})
	require.NoError(t, err)
	cookie := f.cookieFor(t, "filler")

	const n = 8
	reqs := make([]*http.Request, n)
	for i := range reqs {
		reqs[i] = httptest.NewRequest("POST", "/api/submissions", bytes.NewReader(body))
		reqs[i].Header.Set("Content-Type", "application/json")
		reqs[i].Header.Add("Cookie", cookie)
	}

	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rr := httptest.NewRecorder()
			f.router.ServeHTTP(rr, reqs[i])
			codes[i] = rr.Code
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, code := range codes {
		if code == http.StatusOK {
			ok++
		} else {
			assert.Equal(t, http.StatusForbidden, code)
		}
	}
	assert.Equal(t, 1, ok)

	stored, err := f.st.ListResponses(context.Background(), form.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestSingleResponseDraftsDoNotClaim(t *testing.T) {
	f := setup(t)
	form := f.putForm(t, func(fm *models.Form) { fm.SingleResponse = true })

	rr := f.requestAPI(t, "POST", "/api/submissions", "filler", models.SubmissionPayload{FormID: form.ID, Status: models.StatusDraft})
	require.Equal(t, http.StatusOK, rr.Code)
	var draft models.SubmissionResult
	decode(t, rr, &draft)

	rr = f.requestAPI(t, "PUT", "/api/submissions/"+draft.ID, "filler", models.SubmissionPayload{Status: models.StatusSubmitted})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.requestAPI(t, "POST", "/api/submissions", "filler", models.SubmissionPayload{FormID: form.ID, Status: models.StatusSubmitted})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestGetSubmissions(t *testing.T) {
	f := setup(t)
	form := f.putForm(t, nil)
	f.requestAPI(t, "POST", "/api/submissions", "", models.SubmissionPayload{
		FormID: form.ID, Status: models.StatusSubmitted, Data: map[string]interface{}{"name": "Ada"},
	})

	rr := f.requestAPI(t, "GET", "/api/submissions/"+form.ID, "other", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.requestAPI(t, "GET", "/api/submissions/"+form.ID, creator, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []models.FormResponse
	decode(t, rr, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "Ada", list[0].Responses["name"])
}

func uploadRequest(t *testing.T, formID, fieldID string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("form_id", formID))
	require.NoError(t, mw.WriteField("field_id", fieldID))
	part, err := mw.CreateFormFile("file", "cv.pdf")
	require.NoError(t, err)
	part.Write([]byte("%PDF-1.4"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/upload", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadFile(t *testing.T) {
	f := setup(t)
	form := f.putForm(t, nil)

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, uploadRequest(t, form.ID, "cv"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	first := models.UploadResponse{}
	decode(t, rr, &first)
	assert.Equal(t, int64(1), first.ID)

	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, uploadRequest(t, form.ID, "cv"))
	second := models.UploadResponse{}
	decode(t, rr, &second)
	assert.Equal(t, int64(2), second.ID)
}

func TestUploadRejectsNonFileField(t *testing.T) {
	f := setup(t)
	form := f.putForm(t, nil)

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, uploadRequest(t, form.ID, "name"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var msg map[string]interface{}
	decode(t, rr, &msg)
	assert.Equal(t, false, msg["status"])
	assert.Contains(t, msg["message"], "does not accept files")
}

func TestLogin(t *testing.T) {
	f := setup(t)

	rr := f.requestAPI(t, "POST", "/api/login", "", c.LoginRequest{UserID: "ada"})
	require.Equal(t, http.StatusOK, rr.Code)
	cookie := rr.Result().Header.Get("Set-Cookie")
	require.NotEmpty(t, cookie)

	req := httptest.NewRequest("GET", "/api/login", nil)
	req.Header.Add("Cookie", cookie)
	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var who map[string]interface{}
	decode(t, rr, &who)
	assert.Equal(t, "ada", who["user_id"])

	rr = f.requestAPI(t, "GET", "/api/login", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestForgedTokenRejected(t *testing.T) {
	f := setup(t)
	other := c.New(f.st, t.TempDir(), []byte("other-key"))
	tempR := httptest.NewRecorder()
	require.NoError(t, other.SetCookie(tempR, creator))

	req := httptest.NewRequest("GET", "/api/forms", nil)
	req.Header.Add("Cookie", tempR.Result().Header.Get("Set-Cookie"))
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
