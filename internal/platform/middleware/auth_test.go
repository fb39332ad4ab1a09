package middleware

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubValidator struct {
	claims *SchedulerClaims
	err    error
}

func (v stubValidator) ValidateToken(string) (*SchedulerClaims, error) {
	return v.claims, v.err
}

func TestRequireScheduler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var gotSubject string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject = GetSubject(r.Context())
		w.WriteHeader(http.StatusAccepted)
	})

	tests := []struct {
		name      string
		header    string
		validator stubValidator
		status    int
		subject   string
	}{
		{"missing header", "", stubValidator{}, http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc", stubValidator{}, http.StatusUnauthorized, ""},
		{"invalid token", "Bearer abc", stubValidator{err: errors.New("invalid token")}, http.StatusUnauthorized, ""},
		{"missing scope", "Bearer abc", stubValidator{claims: &SchedulerClaims{Subject: "cron", Scope: "runs:read"}}, http.StatusForbidden, ""},
		{"valid token", "Bearer abc", stubValidator{claims: &SchedulerClaims{Subject: "cron", Scope: "runs:read runs:trigger"}}, http.StatusAccepted, "cron"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSubject = ""
			req := httptest.NewRequest(http.MethodPost, "/v1/runs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			RequireScheduler(tt.validator, "runs:trigger", logger)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.subject, gotSubject)
			if tt.status != http.StatusAccepted {
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			}
		})
	}
}
