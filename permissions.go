package main

import (
	"log"
	"net/http"

	"github.com/aehistory/history/config"
	"github.com/aehistory/history/eventlog"
)

type PermissionChecker struct{}

// Scope returns the sites the user may view history for.
func (p *PermissionChecker) Scope(user *config.User) eventlog.Scope {
	if user == nil {
		return eventlog.SitesOnly()
	}
	if user.AllSites() {
		return eventlog.AllSites()
	}
	return eventlog.SitesOnly(user.Sites...)
}

func (p *PermissionChecker) RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := getUserForRequest(r)
		if user == nil {
			log.Printf("Anonymous user tried to access account-protected resource %s", r.URL)
			w.WriteHeader(http.StatusUnauthorized)
		} else {
			next.ServeHTTP(w, r)
		}
	})
}
