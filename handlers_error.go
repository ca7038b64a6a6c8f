package main

import (
	"net/http"
)

// errorInterceptWriter swallows the body of error responses so that
// PageErrorHandler can render an error page in their place.
type errorInterceptWriter struct {
	realWriter http.ResponseWriter
	status     int
}

func (w *errorInterceptWriter) Header() http.Header {
	return w.realWriter.Header()
}

func (w *errorInterceptWriter) WriteHeader(status int) {
	w.status = status
	if !intercepted(status) {
		w.realWriter.WriteHeader(status)
	}
}

func (w *errorInterceptWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	if !intercepted(w.status) {
		return w.realWriter.Write(p)
	}
	return len(p), nil
}

func intercepted(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError:
		return true
	}
	return false
}

func PageErrorHandler(t *Templates) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fakeWriter := &errorInterceptWriter{realWriter: w}

			next.ServeHTTP(fakeWriter, r)

			switch fakeWriter.status {
			case http.StatusBadRequest:
				t.RenderBadRequest(w, r)
			case http.StatusUnauthorized:
				t.RenderUnauthorised(w, r)
			case http.StatusForbidden:
				t.RenderForbidden(w, r)
			case http.StatusNotFound:
				t.RenderNotFound(w, r)
			case http.StatusInternalServerError:
				t.RenderInternalError(w, r)
			}
		})
	}
}
