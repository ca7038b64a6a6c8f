// Package history turns a page of publish events into a day-grouped
// timeline and describes the property changes recorded by each event.
package history

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/aehistory/history/eventlog"
)

const dayLayout = "2006-01-02"

// Request is a listing request as received from the user.
type Request struct {
	Offset         int
	Limit          int
	Workspace      string
	Site           string
	NodeIdentifier string
}

// Query returns the store query for the request, asking for one more event
// than requested so that a following page can be detected.
func (r Request) Query() eventlog.Query {
	return eventlog.Query{
		Offset:         r.Offset,
		Limit:          r.Limit + 1,
		Workspace:      r.Workspace,
		Site:           r.Site,
		NodeIdentifier: r.NodeIdentifier,
	}
}

// EventsOnDate holds the events of one calendar day.
type EventsOnDate struct {
	Date   time.Time
	Events []eventlog.Event
}

// PageToken identifies the page following the current one.
type PageToken struct {
	Offset int
	Site   string
}

// Summary describes the first event of a page. When the requested node
// could be resolved, it carries the node's current label and type.
type Summary struct {
	Event          eventlog.Event
	Enriched       bool
	NodeIdentifier string
	NodeLabel      string
	NodeType       string
}

type Page struct {
	Days  []*EventsOnDate
	Next  *PageToken
	First *Summary
}

// Empty reports whether there is nothing to show.
func (p *Page) Empty() bool {
	return len(p.Days) == 0
}

type NodeResolver interface {
	ResolveNode(ctx context.Context, workspace, identifier string) (*eventlog.Node, error)
}

// Aggregate groups events, as returned for req.Query(), by the day they
// happened on in loc.
func Aggregate(ctx context.Context, events []eventlog.Event, req Request, resolver NodeResolver, loc *time.Location) *Page {
	if loc == nil {
		loc = time.Local
	}

	page := &Page{First: summarise(ctx, events, req, resolver)}

	if req.Limit > 0 && len(events) > req.Limit {
		events = events[:req.Limit]
		page.Next = &PageToken{Offset: req.Offset + req.Limit, Site: req.Site}
	}

	byDay := map[string]*EventsOnDate{}
	for i := range events {
		e := events[i]
		if e.ChildEventCount == 0 {
			continue
		}

		ts := e.Timestamp.In(loc)
		key := ts.Format(dayLayout)
		day, ok := byDay[key]
		if !ok {
			y, m, d := ts.Date()
			day = &EventsOnDate{Date: time.Date(y, m, d, 0, 0, 0, 0, loc)}
			byDay[key] = day
			page.Days = append(page.Days, day)
		}
		day.Events = append(day.Events, e)
	}
	return page
}

func summarise(ctx context.Context, events []eventlog.Event, req Request, resolver NodeResolver) *Summary {
	if len(events) == 0 {
		return nil
	}
	s := &Summary{Event: events[0]}
	if req.NodeIdentifier == "" || resolver == nil {
		return s
	}

	workspace := req.Workspace
	if workspace == "" {
		workspace = eventlog.LiveWorkspace
	}
	node, err := resolver.ResolveNode(ctx, workspace, req.NodeIdentifier)
	if err != nil {
		if !errors.Is(err, eventlog.ErrNotFound) {
			log.Printf("Unable to resolve node %s: %v", req.NodeIdentifier, err)
		}
		return s
	}

	s.Enriched = true
	s.NodeIdentifier = req.NodeIdentifier
	s.NodeLabel = node.Label
	s.NodeType = node.NodeType
	return s
}
