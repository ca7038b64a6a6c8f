package main

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/aehistory/history/config"
)

type Authenticator interface {
	Authenticate(username, password string) (*config.User, error)
}

func LoginHandler(auth Authenticator) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		if err := request.ParseForm(); err != nil {
			log.Printf("Error parsing form: %v", err)
			writer.WriteHeader(http.StatusBadRequest)
			return
		}

		username := request.FormValue("username")
		password := request.FormValue("password")
		redirect := safeRedirect(request.FormValue("redirect"))

		user, err := auth.Authenticate(username, password)
		if err != nil {
			log.Printf("Failed login for user %q from %s", username, request.RemoteAddr)
		}
		updateSession(writer, request, func(values map[interface{}]interface{}) {
			if err != nil {
				values[sessionErrorKey] = fmt.Sprintf("Failed to login: %v", err)
				return
			}
			delete(values, sessionErrorKey)
			values[sessionUserKey] = user.Name
			values[sessionSessionKey] = sessionToken(user)
		})
		writer.Header().Set("location", redirect)
		writer.WriteHeader(http.StatusSeeOther)
	}
}

func LogoutHandler() http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		if err := request.ParseForm(); err != nil {
			log.Printf("Error parsing form: %v", err)
			writer.WriteHeader(http.StatusBadRequest)
			return
		}

		redirect := safeRedirect(request.FormValue("redirect"))

		updateSession(writer, request, func(values map[interface{}]interface{}) {
			delete(values, sessionUserKey)
			delete(values, sessionSessionKey)
		})
		writer.Header().Set("location", redirect)
		writer.WriteHeader(http.StatusSeeOther)
	}
}

// safeRedirect only allows relative redirects.
func safeRedirect(redirect string) string {
	if !strings.HasPrefix(redirect, "/") || strings.HasPrefix(redirect, "//") || strings.HasPrefix(redirect, "/\\") {
		return "/"
	}
	return redirect
}
