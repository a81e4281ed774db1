package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/koustreak/dbspec/internal/errs"
	"github.com/koustreak/dbspec/internal/filestore"
	"github.com/koustreak/dbspec/internal/filestore/local"
	"github.com/koustreak/dbspec/internal/logger"
	"github.com/koustreak/dbspec/internal/model"
	"github.com/koustreak/dbspec/internal/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const live = `
schema public:
  table films:
    columns:
    - id: {type: integer, not_null: true}
`

const wanted = `
schema public:
  table films:
    columns:
    - id: {type: integer, not_null: true}
    - title: text
`

func newTestServer(t *testing.T, current string, logs *bytes.Buffer) *Server {
	t.Helper()
	s := New(nil, Options{Logger: logger.New(&logger.Config{Level: "info", Output: logs})})
	s.dump = func(context.Context) (*model.Database, error) {
		return spec.Unmarshal([]byte(current), nil)
	}
	return s
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodePlan(t *testing.T, rec *httptest.ResponseRecorder) planResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp planResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	var logs bytes.Buffer
	s := newTestServer(t, live, &logs)
	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Contains(t, logs.String(), `"path":"/healthz"`)
	assert.Contains(t, logs.String(), `"status":200`)
}

func TestHealthChecksStore(t *testing.T) {
	root := filepath.Join(t.TempDir(), "specs")
	store, err := local.New(context.Background(), filestore.LocalConfig(root))
	require.NoError(t, err)
	s := New(nil, Options{Store: store})

	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, os.RemoveAll(root))
	rec = do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"connection_failed"`)
}

func TestDump(t *testing.T) {
	s := newTestServer(t, live, &bytes.Buffer{})
	rec := do(t, s, http.MethodGet, "/v1/dump", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))

	back, err := spec.Unmarshal(rec.Body.Bytes(), nil)
	require.NoError(t, err)
	assert.True(t, back.Has(model.RelationKey(model.KindTable, "public", "films")))
}

func TestDumpWithoutDatabase(t *testing.T) {
	s := New(nil, Options{})
	rec := do(t, s, http.MethodGet, "/v1/dump", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"connection_failed"`)
}

func TestPlan(t *testing.T) {
	s := newTestServer(t, live, &bytes.Buffer{})

	resp := decodePlan(t, do(t, s, http.MethodPost, "/v1/plan", wanted))
	assert.Equal(t, []string{"ALTER TABLE films ADD COLUMN title text"}, resp.Statements)
	assert.Equal(t, 1, resp.Changes)
	require.Len(t, resp.Details, 1)
	assert.Equal(t, "column public.films.title", resp.Details[0].Object)

	resp = decodePlan(t, do(t, s, http.MethodPost, "/v1/plan?revert=true", wanted))
	assert.Equal(t, []string{"ALTER TABLE films DROP COLUMN title"}, resp.Statements)
}

func TestPlanErrors(t *testing.T) {
	s := newTestServer(t, live, &bytes.Buffer{})

	rec := do(t, s, http.MethodPost, "/v1/plan", "schema public: [oops")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/plan", "bogus thing:\n  x: 1\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, "spec_syntax", e.Kind)
}

func TestDiff(t *testing.T) {
	s := New(nil, Options{})
	body, err := json.Marshal(diffRequest{Current: live, Target: wanted})
	require.NoError(t, err)
	resp := decodePlan(t, do(t, s, http.MethodPost, "/v1/diff", string(body)))
	assert.Equal(t, []string{"ALTER TABLE films ADD COLUMN title text"}, resp.Statements)

	resp = decodePlan(t, do(t, s, http.MethodPost, "/v1/diff", `{"current": "", "target": ""}`))
	assert.Empty(t, resp.Statements)

	rec := do(t, s, http.MethodPost, "/v1/diff", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errs.New(errs.ErrKindSpecSemantic, "x"), http.StatusUnprocessableEntity},
		{errs.New(errs.ErrKindNotFound, "x"), http.StatusNotFound},
		{errs.New(errs.ErrKindPermissionDenied, "x"), http.StatusForbidden},
		{errs.New(errs.ErrKindTimeout, "x"), http.StatusGatewayTimeout},
		{errs.New(errs.ErrKindQueryFailed, "x"), http.StatusInternalServerError},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, status(tt.err), tt.err.Error())
	}
}
