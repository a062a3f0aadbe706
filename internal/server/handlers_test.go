package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reko/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "archives")
	cfg.Server.EnableCORS = false
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func doRequest(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestPing(t *testing.T) {
	s := newTestServer(t)
	w := doRequest(t, s, http.MethodGet, "/ping", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, "ok", body["status"])
}

func TestAddThenSearch(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodPost, "/add",
		`{"project":"frontend","section":"setup","content":"Install deps with npm install","title":"Setup"}`)
	require.Equal(t, http.StatusOK, w.Code)
	added := decodeJSON(t, w)
	assert.Equal(t, "success", added["status"])
	assert.NotEmpty(t, added["file"])

	w = doRequest(t, s, http.MethodGet, "/search?query=npm+install", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w)
	assert.EqualValues(t, 1, body["count"])
	results := body["results"].([]any)
	first := results[0].(map[string]any)
	assert.Equal(t, "frontend", first["project"])
	assert.Contains(t, first["snippet"], "npm install")
}

func TestSearchRequiresQuery(t *testing.T) {
	s := newTestServer(t)
	w := doRequest(t, s, http.MethodGet, "/search", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeJSON(t, w)
	assert.Contains(t, body["error"], "query")
}

func TestSearchEmptyResultsIsArray(t *testing.T) {
	s := newTestServer(t)
	w := doRequest(t, s, http.MethodGet, "/search?query=zzz_nonexistent_token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"results":[]`)
}

func TestQuickSearchTextFormat(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/add",
		`{"project":"backend","section":"errors","content":"timeout fixed with retry"}`)

	w := doRequest(t, s, http.MethodGet, "/quick-search?query=timeout&format=text", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ARCHIVES SEARCH RESULTS FOR: 'timeout'")
	assert.Contains(t, w.Body.String(), "CONTENT PREVIEW:")

	w = doRequest(t, s, http.MethodGet, "/quick-search?query=zzz_nothing&format=text", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "No archives found for query: 'zzz_nothing'")
}

func TestAddValidation(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodPost, "/add", `{"project":"frontend"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeJSON(t, w)
	assert.Contains(t, body["error"], "section")
	assert.Contains(t, body["error"], "content")

	w = doRequest(t, s, http.MethodPost, "/add", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStrictTaxonomyMapsTo400(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "archives")
	cfg.Server.EnableCORS = false
	cfg.StrictTaxonomy = true
	s, err := New(cfg)
	require.NoError(t, err)

	w := doRequest(t, s, http.MethodPost, "/add",
		`{"project":"mobile","section":"setup","content":"x"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRulesRoundTrip(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodPost, "/rules",
		`{"name":"commit-style","content":"Use imperative mood."}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, "Rule 'commit-style' updated", body["message"])

	w = doRequest(t, s, http.MethodGet, "/rules", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeJSON(t, w)
	assert.EqualValues(t, 1, body["count"])
	rules := body["rules"].([]any)
	rule := rules[0].(map[string]any)
	assert.Equal(t, "commit-style", rule["name"])

	w = doRequest(t, s, http.MethodPost, "/rules", `{"name":"only-name"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListProjectsAndSections(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/add",
		`{"project":"frontend","section":"setup","content":"note"}`)

	w := doRequest(t, s, http.MethodGet, "/list-projects", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w)
	assert.Contains(t, body["projects"], "frontend")

	w = doRequest(t, s, http.MethodGet, "/list-sections?project=frontend", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeJSON(t, w)
	assert.Equal(t, "frontend", body["project"])
	assert.Contains(t, body["sections"], "setup")

	w = doRequest(t, s, http.MethodGet, "/list-sections", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, s, http.MethodGet, "/list-sections?project=ghost", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}
