package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]int{"anchors": 3})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var got map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, 3, got["anchors"])
}

func TestErrorHelpers(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		msg    string
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "map is required") }, http.StatusBadRequest, "map is required"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "no such map") }, http.StatusNotFound, "no such map"},
		{"method", MethodNotAllowed, http.StatusMethodNotAllowed, "method not allowed"},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "boom") }, http.StatusInternalServerError, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.status, rec.Code)
			var got map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, tt.msg, got["error"])
		})
	}
}

func TestWriteJSONOK(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	WriteJSONOK(rec, []string{"a"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["a"]`, rec.Body.String())
}
