package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApiSitesHandler(t *testing.T) {
	h := newHistoryTest(t)
	handler := ApiSitesHandler(h.store)

	tests := []struct {
		name string
		want string
	}{
		{"admin", `[{"identifier":"site-a","name":"Site A","nodeName":"site-a"},{"identifier":"site-b","name":"Site B","nodeName":"site-b"}]`},
		{"editor", `[{"identifier":"site-b","name":"Site B","nodeName":"site-b"}]`},
	}
	users := map[string]*http.Request{
		"admin":  withUser(httptest.NewRequest(http.MethodGet, "/api/sites", nil), admin),
		"editor": withUser(httptest.NewRequest(http.MethodGet, "/api/sites", nil), editor),
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, users[tt.name])

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.want, w.Body.String())
		})
	}
}
