package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/aehistory/history/eventlog"
)

type SiteLister interface {
	OnlineSites(ctx context.Context, scope eventlog.Scope) ([]eventlog.Site, error)
}

type apiSite struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	NodeName   string `json:"nodeName"`
}

// ApiSitesHandler lists the online sites the user may view as JSON.
func ApiSitesHandler(l SiteLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sites, err := l.OnlineSites(r.Context(), getScopeForRequest(r))
		if err != nil {
			log.Printf("Failed to list sites: %v\n", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		res := make([]apiSite, 0, len(sites))
		for i := range sites {
			res = append(res, apiSite{
				Identifier: sites[i].Identifier,
				Name:       sites[i].Name,
				NodeName:   sites[i].NodeName,
			})
		}

		b, err := json.Marshal(res)
		if err != nil {
			log.Printf("Failed to marshal sites: %v\n", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
	}
}
