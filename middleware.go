package main

import (
	"io"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/handlers"
)

func NewLoggingHandler(dst io.Writer) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return handlers.LoggingHandler(dst, h)
	}
}

// CountPageViews records the response status of every request to h.
func CountPageViews(m *Metrics) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snoop := httpsnoop.CaptureMetrics(h, w, r)
			m.IncrementPageViews(snoop.Code)
		})
	}
}

// RedirectHandler sends clients to target with a see-other redirect.
func RedirectHandler(target string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("location", target)
		w.WriteHeader(http.StatusSeeOther)
	}
}
