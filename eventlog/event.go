// Package eventlog models the content event log the history module reads:
// publish events and their child change events, together with the sites,
// domains and nodes they refer to.
package eventlog

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// LiveWorkspace is the published, publicly visible workspace.
const LiveWorkspace = "live"

// EventType names the kind of change an event records.
type EventType string

const (
	NodePublished EventType = "Node.Published"
	NodeAdded     EventType = "Node.Added"
	NodeUpdated   EventType = "Node.Updated"
	NodeRemoved   EventType = "Node.Removed"
	NodeCopied    EventType = "Node.Copied"
	NodeMoved     EventType = "Node.Moved"
)

// ErrNotFound is returned by lookups that have nothing to return.
var ErrNotFound = errors.New("not found")

// Event is a single immutable entry of the event log. Top-level events have a
// ParentID of zero; ChildEventCount is computed by the store when reading.
type Event struct {
	ID                int64
	ParentID          int64
	Type              EventType
	Timestamp         time.Time
	Workspace         string
	SiteIdentifier    string
	NodeIdentifier    string
	AccountIdentifier string
	ChildEventCount   int
	Data              Data
}

// Data is the event payload. Old is nil for events that created a node.
type Data struct {
	Site              string      `json:"site,omitempty"`
	NodeType          string      `json:"nodeType,omitempty"`
	DocumentNodeLabel string      `json:"documentNodeLabel,omitempty"`
	DocumentNodeType  string      `json:"documentNodeType,omitempty"`
	Old               *Properties `json:"old"`
	New               *Properties `json:"new"`
}

// Normalize fills the site identifier from the payload (or the other way
// around) and defaults the workspace, so every store persists the same shape.
func (e *Event) Normalize() {
	if e.SiteIdentifier == "" {
		e.SiteIdentifier = e.Data.Site
	}
	if e.Data.Site == "" {
		e.Data.Site = e.SiteIdentifier
	}
	if e.Workspace == "" {
		e.Workspace = LiveWorkspace
	}
}

type Site struct {
	Identifier string `yaml:"identifier"`
	Name       string `yaml:"name"`
	NodeName   string `yaml:"nodeName"`
	Online     bool   `yaml:"online"`
}

type Domain struct {
	Hostname       string `yaml:"hostname"`
	SiteIdentifier string `yaml:"site"`
	Active         bool   `yaml:"active"`
}

type Node struct {
	Identifier string `yaml:"identifier"`
	Workspace  string `yaml:"workspace"`
	Label      string `yaml:"label"`
	NodeType   string `yaml:"nodeType"`
}

// Query selects top-level publish events of a workspace. Site and
// NodeIdentifier are optional filters.
type Query struct {
	Offset         int
	Limit          int
	Workspace      string
	Site           string
	NodeIdentifier string
}

// Reader is the read side of the event log used when rendering history.
type Reader interface {
	RelevantEvents(ctx context.Context, q Query) ([]Event, error)
	ChildEvents(ctx context.Context, parentIDs []int64) (map[int64][]Event, error)
	CountSites(ctx context.Context, scope Scope) (int, error)
	OnlineSites(ctx context.Context, scope Scope) ([]Site, error)
	ActiveDomainSite(ctx context.Context, host string) (*Site, error)
	ResolveNode(ctx context.Context, workspace, identifier string) (*Node, error)
}

// Writer appends events and registers the entities they refer to.
type Writer interface {
	Append(ctx context.Context, e *Event) error
	PutSite(ctx context.Context, site Site) error
	PutDomain(ctx context.Context, domain Domain) error
	PutNode(ctx context.Context, node Node) error
}

type Store interface {
	Reader
	Writer
}

// Hostname strips any port from a request host and lower-cases it.
func Hostname(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(strings.TrimSuffix(host, "."))
}
