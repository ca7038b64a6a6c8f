// Package memory provides an in-process event log, used for tests and demos.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aehistory/history/eventlog"
)

type Store struct {
	mu      sync.RWMutex
	nextID  int64
	events  []eventlog.Event
	sites   []eventlog.Site
	domains []eventlog.Domain
	nodes   map[nodeKey]eventlog.Node
}

type nodeKey struct {
	workspace  string
	identifier string
}

func New() *Store {
	return &Store{nodes: map[nodeKey]eventlog.Node{}}
}

func (s *Store) Append(_ context.Context, e *eventlog.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.Normalize()
	s.nextID++
	e.ID = s.nextID
	s.events = append(s.events, *e)
	return nil
}

func (s *Store) PutSite(_ context.Context, site eventlog.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.sites {
		if s.sites[i].Identifier == site.Identifier {
			s.sites[i] = site
			return nil
		}
	}
	s.sites = append(s.sites, site)
	return nil
}

func (s *Store) PutDomain(_ context.Context, domain eventlog.Domain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	domain.Hostname = eventlog.Hostname(domain.Hostname)
	for i := range s.domains {
		if s.domains[i].Hostname == domain.Hostname {
			s.domains[i] = domain
			return nil
		}
	}
	s.domains = append(s.domains, domain)
	return nil
}

func (s *Store) PutNode(_ context.Context, node eventlog.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes[nodeKey{node.Workspace, node.Identifier}] = node
	return nil
}

func (s *Store) RelevantEvents(_ context.Context, q eventlog.Query) ([]eventlog.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []eventlog.Event
	for i := range s.events {
		e := s.events[i]
		if e.ParentID != 0 || e.Type != eventlog.NodePublished || e.Workspace != q.Workspace {
			continue
		}
		if q.Site != "" && e.SiteIdentifier != q.Site {
			continue
		}
		if q.NodeIdentifier != "" && e.NodeIdentifier != q.NodeIdentifier {
			continue
		}
		e.ChildEventCount = s.countChildren(e.ID)
		matches = append(matches, e)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if !matches[i].Timestamp.Equal(matches[j].Timestamp) {
			return matches[i].Timestamp.After(matches[j].Timestamp)
		}
		return matches[i].ID > matches[j].ID
	})

	if q.Offset >= len(matches) {
		return nil, nil
	}
	matches = matches[q.Offset:]
	if q.Limit > 0 && q.Limit < len(matches) {
		matches = matches[:q.Limit]
	}
	return matches, nil
}

func (s *Store) countChildren(id int64) int {
	n := 0
	for i := range s.events {
		if s.events[i].ParentID == id {
			n++
		}
	}
	return n
}

func (s *Store) ChildEvents(_ context.Context, parentIDs []int64) (map[int64][]eventlog.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[int64]bool, len(parentIDs))
	for _, id := range parentIDs {
		wanted[id] = true
	}

	res := map[int64][]eventlog.Event{}
	for i := range s.events {
		e := s.events[i]
		if e.ParentID != 0 && wanted[e.ParentID] {
			e.ChildEventCount = s.countChildren(e.ID)
			res[e.ParentID] = append(res[e.ParentID], e)
		}
	}
	return res, nil
}

func (s *Store) CountSites(_ context.Context, scope eventlog.Scope) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(scope.Filter(s.sites)), nil
}

func (s *Store) OnlineSites(_ context.Context, scope eventlog.Scope) ([]eventlog.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var online []eventlog.Site
	for i := range s.sites {
		if s.sites[i].Online {
			online = append(online, s.sites[i])
		}
	}
	sort.Slice(online, func(i, j int) bool {
		if online[i].Name != online[j].Name {
			return online[i].Name < online[j].Name
		}
		return online[i].Identifier < online[j].Identifier
	})
	return scope.Filter(online), nil
}

func (s *Store) ActiveDomainSite(_ context.Context, host string) (*eventlog.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	host = eventlog.Hostname(host)
	for i := range s.domains {
		d := s.domains[i]
		if !d.Active || d.Hostname != host {
			continue
		}
		for j := range s.sites {
			if s.sites[j].Identifier == d.SiteIdentifier {
				site := s.sites[j]
				return &site, nil
			}
		}
	}
	return nil, eventlog.ErrNotFound
}

func (s *Store) ResolveNode(_ context.Context, workspace, identifier string) (*eventlog.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[nodeKey{workspace, identifier}]
	if !ok {
		return nil, eventlog.ErrNotFound
	}
	return &node, nil
}
