package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSPAFallsBackToIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("index"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("app"), 0o644))
	spa := spaHandler{staticPath: dir, indexPath: "index.html"}

	rr := httptest.NewRecorder()
	spa.ServeHTTP(rr, httptest.NewRequest("GET", "/app.js", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "app", rr.Body.String())

	rr = httptest.NewRecorder()
	spa.ServeHTTP(rr, httptest.NewRequest("GET", "/form/abc", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "index", rr.Body.String())
}
