package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWantsJSON(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		header map[string]string
		want   bool
	}{
		{name: "browser", path: "/users", header: map[string]string{"Accept": "text/html,application/xhtml+xml"}},
		{name: "api prefix", path: "/api/users", want: true},
		{name: "accept json", path: "/users", header: map[string]string{"Accept": "text/html, application/json;q=0.9"}, want: true},
		{name: "xhr", path: "/users", header: map[string]string{"X-Requested-With": "XMLHttpRequest"}, want: true},
		{name: "json body", path: "/auth/login", header: map[string]string{"Content-Type": "application/json; charset=utf-8"}, want: true},
		{name: "problem json", path: "/users", header: map[string]string{"Accept": "application/problem+json"}, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, WantsJSON(req))
		})
	}
}

func TestRespondErrorMapsSentinels(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("roles: create: %w", ErrDuplicate))
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.JSONEq(t, `{"error":"duplicate","message":"roles: create: duplicate entry"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	RespondError(rr, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "boom")
}
