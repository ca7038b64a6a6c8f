package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/aehistory/history/config"
	"github.com/aehistory/history/eventlog"

	"github.com/gorilla/sessions"
)

type contextKey string

const (
	sessionName       = "history"
	sessionUserKey    = "user"
	sessionSessionKey = "session"
	sessionErrorKey   = "error"
	sessionMaxAge     = 12 * 60 * 60

	contextStateKey contextKey = "state"

	sessionKeyFormat = "history:%x"
)

type UserProvider interface {
	User(string) *config.User
}

// requestState is attached to every request by SessionHandler.
type requestState struct {
	session *sessions.Session
	user    *config.User
	// scope is computed once per request from the user's site list.
	scope eventlog.Scope
	flash string
}

// SessionHandler resolves the logged in user of each request and the sites
// they may view. A user whose password changed since login is treated as
// anonymous.
func SessionHandler(up UserProvider, checker *PermissionChecker, store sessions.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := store.Get(r, sessionName)
			if err != nil {
				log.Printf("Discarding invalid session: %v", err)
			}

			state := &requestState{session: s, user: sessionUser(up, s)}
			state.scope = checker.Scope(state.user)
			state.flash, _ = s.Values[sessionErrorKey].(string)

			next.ServeHTTP(w, withRequestState(r, state))
		})
	}
}

func sessionUser(up UserProvider, s *sessions.Session) *config.User {
	name, ok := s.Values[sessionUserKey].(string)
	if !ok {
		return nil
	}
	user := up.User(name)
	if user == nil || s.Values[sessionSessionKey] != sessionToken(user) {
		return nil
	}
	return user
}

// sessionToken ties a session to the user's current password hash.
func sessionToken(user *config.User) string {
	return fmt.Sprintf(sessionKeyFormat, user.SessionKey)
}

func withRequestState(r *http.Request, state *requestState) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), contextStateKey, state))
}

func stateForRequest(r *http.Request) *requestState {
	if v, ok := r.Context().Value(contextStateKey).(*requestState); ok {
		return v
	}
	return &requestState{scope: eventlog.SitesOnly()}
}

func getUserForRequest(r *http.Request) *config.User {
	return stateForRequest(r).user
}

// getScopeForRequest returns the sites the requesting user may view. Requests
// that did not pass SessionHandler may view none.
func getScopeForRequest(r *http.Request) eventlog.Scope {
	return stateForRequest(r).scope
}

func getErrorForRequest(r *http.Request) string {
	return stateForRequest(r).flash
}

// updateSession applies change to the session values and saves the session
// once.
func updateSession(w http.ResponseWriter, r *http.Request, change func(values map[interface{}]interface{})) {
	s := stateForRequest(r).session
	if s == nil {
		return
	}
	change(s.Values)

	if s.IsNew {
		s.Options.HttpOnly = true
		s.Options.SameSite = http.SameSiteStrictMode
		s.Options.MaxAge = sessionMaxAge
	}
	if err := s.Save(r, w); err != nil {
		log.Printf("Unable to save session: %v", err)
	}
}
