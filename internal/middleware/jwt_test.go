package myMiddleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	myMiddleware "secret-room/internal/middleware"

	"github.com/stretchr/testify/assert"
)

type fakeValidator struct{}

func (fakeValidator) ValidateToken(token string) (string, string, error) {
	if token != "good" {
		return "", "", errors.New("bad token")
	}
	return "fp-a", "server-1", nil
}

func TestAuthMiddleware(t *testing.T) {
	var gotUser, gotRoom string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = myMiddleware.UserID(r.Context())
		gotRoom, _ = myMiddleware.RoomID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := myMiddleware.NewAuthMiddleware(fakeValidator{}).Handle(next)

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{name: "bearer header", header: "Bearer good", want: http.StatusNoContent},
		{name: "query fallback", query: "?token=good", want: http.StatusNoContent},
		{name: "missing", want: http.StatusUnauthorized},
		{name: "invalid", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic good", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser, gotRoom = "", ""
			req := httptest.NewRequest(http.MethodGet, "/ws"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusNoContent {
				assert.Equal(t, "fp-a", gotUser)
				assert.Equal(t, "server-1", gotRoom)
			}
		})
	}
}
