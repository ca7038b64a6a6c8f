package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aehistory/history/config"
	"github.com/aehistory/history/eventlog"
	"github.com/aehistory/history/history"
	"github.com/aehistory/history/nodetypes"
)

const (
	defaultLimit = 25
	maxLimit     = 100
)

type NodeTypeProvider interface {
	NodeType(name string) (*nodetypes.NodeType, error)
}

// HistoryHandler lists the publish events of a workspace, newest first,
// grouped by day.
func HistoryHandler(t *Templates, events eventlog.Reader, nodeTypes NodeTypeProvider, metrics *Metrics, workspace string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		req, err := parseHistoryRequest(r.URL.Query())
		if err != nil {
			log.Printf("Invalid history request %s: %v", r.URL, err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		req.Workspace = workspace

		user := getUserForRequest(r)
		scope := getScopeForRequest(r)

		// Every site counts here, not only those the user may view.
		siteCount, err := events.CountSites(ctx, eventlog.Elevated())
		if err != nil {
			log.Printf("Unable to count sites: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		sites, err := events.OnlineSites(ctx, scope)
		if err != nil {
			log.Printf("Unable to list sites: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if req.Site == "" && siteCount > 1 {
			site, err := events.ActiveDomainSite(ctx, r.Host)
			if err == nil && scope.Allows(site.Identifier) {
				req.Site = site.Identifier
			} else if err != nil && !errors.Is(err, eventlog.ErrNotFound) {
				log.Printf("Unable to look up site for host %s: %v", r.Host, err)
			}
		}
		if req.Site == "" && scope.Restricted() {
			req.Site = defaultSite(user, sites)
			if req.Site == "" {
				log.Printf("User %s has no sites to view", userName(user))
				w.WriteHeader(http.StatusForbidden)
				return
			}
		}
		if req.Site != "" && (user == nil || !scope.Allows(req.Site)) {
			log.Printf("User %s tried to view history of site %s", userName(user), req.Site)
			w.WriteHeader(http.StatusForbidden)
			return
		}

		start := time.Now()
		list, err := events.RelevantEvents(ctx, req.Query())
		metrics.ObserveQueryLatency(time.Since(start))
		if err != nil {
			log.Printf("Unable to query events: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		page := history.Aggregate(ctx, list, req, events, t.location)

		days, err := loadChanges(r, events, nodeTypes, metrics, page)
		if err != nil {
			log.Printf("Unable to load child events: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		t.RenderHistory(w, r, &HistoryPageArgs{
			Sites:          sites,
			ShowSites:      siteCount > 1 && len(sites) > 1,
			Site:           req.Site,
			NodeIdentifier: req.NodeIdentifier,
			First:          page.First,
			Days:           days,
			Next:           nextPageURL(page.Next, req),
			AllChanges:     allChangesURL(req),
		})
	}
}

func parseHistoryRequest(q url.Values) (history.Request, error) {
	req := history.Request{
		Limit:          defaultLimit,
		Site:           q.Get("site"),
		NodeIdentifier: q.Get("nodeIdentifier"),
	}

	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("invalid offset %q", v)
		}
		if offset > 0 {
			req.Offset = offset
		}
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("invalid limit %q", v)
		}
		switch {
		case limit > maxLimit:
			req.Limit = maxLimit
		case limit > 0:
			req.Limit = limit
		}
	}

	return req, nil
}

// defaultSite picks the site shown to a restricted user who did not ask for
// one: the first accessible online site, or else the first assigned site.
func defaultSite(user *config.User, online []eventlog.Site) string {
	if len(online) > 0 {
		return online[0].Identifier
	}
	if user != nil && len(user.Sites) > 0 {
		return user.Sites[0]
	}
	return ""
}

func userName(user *config.User) string {
	if user == nil {
		return "(anonymous)"
	}
	return user.Name
}

func loadChanges(r *http.Request, events eventlog.Reader, nodeTypes NodeTypeProvider, metrics *Metrics, page *history.Page) ([]*DayView, error) {
	var ids []int64
	for _, day := range page.Days {
		for i := range day.Events {
			ids = append(ids, day.Events[i].ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	children, err := events.ChildEvents(r.Context(), ids)
	if err != nil {
		return nil, err
	}

	schemas := &schemaCache{nodeTypes: nodeTypes, metrics: metrics, schemas: map[string]history.Schema{}}

	var days []*DayView
	for _, day := range page.Days {
		view := &DayView{Date: day.Date}
		for i := range day.Events {
			e := day.Events[i]
			ev := &EventView{Event: e}
			for _, child := range children[e.ID] {
				ev.Children = append(ev.Children, &ChildView{
					Event:    child,
					NodeType: child.Data.NodeType,
					Changes:  history.ComputeChanges(child, schemas.get(child.Data.NodeType)),
				})
			}
			view.Events = append(view.Events, ev)
		}
		days = append(days, view)
	}
	metrics.AddRenderedEvents(len(ids))
	return days, nil
}

// schemaCache resolves each node type once per request.
type schemaCache struct {
	nodeTypes NodeTypeProvider
	metrics   *Metrics
	schemas   map[string]history.Schema
}

func (c *schemaCache) get(nodeType string) history.Schema {
	if nodeType == "" || c.nodeTypes == nil {
		return history.EmptySchema
	}
	if s, ok := c.schemas[nodeType]; ok {
		return s
	}

	var schema history.Schema = history.EmptySchema
	nt, err := c.nodeTypes.NodeType(nodeType)
	if err != nil {
		log.Printf("Showing changes without labels: %v", err)
		c.metrics.IncrementMissingNodeType(nodeType)
	} else {
		schema = nt
	}
	c.schemas[nodeType] = schema
	return schema
}

func nextPageURL(next *history.PageToken, req history.Request) string {
	if next == nil {
		return ""
	}
	q := url.Values{}
	q.Set("offset", strconv.Itoa(next.Offset))
	if next.Site != "" {
		q.Set("site", next.Site)
	}
	if req.Limit != defaultLimit {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.NodeIdentifier != "" {
		q.Set("nodeIdentifier", req.NodeIdentifier)
	}
	return "/history?" + q.Encode()
}

func allChangesURL(req history.Request) string {
	if req.NodeIdentifier == "" {
		return ""
	}
	if req.Site == "" {
		return "/history"
	}
	return "/history?" + url.Values{"site": {req.Site}}.Encode()
}
