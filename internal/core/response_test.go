package core

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backburner/internal/types"
)

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	JSON(rec, req, http.StatusCreated, APIResponse{Data: map[string]int{"n": 1}})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"n":1}}`, rec.Body.String())
}

func TestError_AppErrorMapped(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(types.WithRequestID(req.Context(), "req-1"))

	Error(rec, req, types.NewAppError(types.ErrCodeNotFoundNote, "note not found", errors.New("sql: no rows")))

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeNotFoundNote), resp.Error.Code)
	assert.Equal(t, "req-1", resp.Error.RequestID)
	// The wrapped cause stays internal.
	assert.NotContains(t, rec.Body.String(), "sql: no rows")
}

func TestError_GenericErrorOpaque(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	Error(rec, req, errors.New("pool exhausted at 10.0.0.3"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), resp.Error.Code)
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
		var p payload
		require.NoError(t, DecodeJSON(httptest.NewRecorder(), req, &p))
		assert.Equal(t, "x", p.Name)
	})

	t.Run("empty body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		var p payload
		err := DecodeJSON(httptest.NewRecorder(), req, &p)
		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus())
	})

	t.Run("unknown field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nope":true}`))
		var p payload
		require.Error(t, DecodeJSON(httptest.NewRecorder(), req, &p))
	})

	t.Run("trailing value", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}{"name":"y"}`))
		var p payload
		require.Error(t, DecodeJSON(httptest.NewRecorder(), req, &p))
	})
}

func TestRecoverer(t *testing.T) {
	handler := Recoverer(slog.New(slog.DiscardHandler))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), resp.Error.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	var ctxReqID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxReqID = types.GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, ctxReqID)
	assert.Equal(t, ctxReqID, rec.Header().Get("X-Request-Id"))
}

func TestIdentity(t *testing.T) {
	var ctxUserID string
	handler := Identity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxUserID = types.GetUserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-Id", "user-7")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "user-7", ctxUserID)
}
