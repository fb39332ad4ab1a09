package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subsnap/pkg/platform/sentinel"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		status      int
		code        string
		description string
	}{
		{
			name:   "internal error omits description",
			err:    errors.New("db failed: password=hunter2"),
			status: http.StatusInternalServerError,
			code:   CodeInternal,
		},
		{
			name:        "bad request includes description",
			err:         fmt.Errorf("decode: %w", &BadRequestError{Msg: "as_of must be YYYY-MM-DD"}),
			status:      http.StatusBadRequest,
			code:        CodeBadRequest,
			description: "as_of must be YYYY-MM-DD",
		},
		{
			name:        "missing run",
			err:         fmt.Errorf("latest run: %w", sentinel.ErrNotFound),
			status:      http.StatusNotFound,
			code:        CodeNotFound,
			description: "latest run: not found",
		},
		{
			name:        "run in progress",
			err:         sentinel.ErrRunInProgress,
			status:      http.StatusConflict,
			code:        CodeConflict,
			description: sentinel.ErrRunInProgress.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var body map[string]string
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.code, body["error"])
			desc, ok := body["error_description"]
			if tt.description == "" {
				assert.False(t, ok, "description must be omitted")
				return
			}
			assert.Equal(t, tt.description, desc)
		})
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusAccepted, map[string]int{"rows": 45})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"rows": 45}`, w.Body.String())
}
