// Package storetest holds the behaviour every eventlog.Store implementation
// must show, as a testify suite.
package storetest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aehistory/history/eventlog"

	"github.com/stretchr/testify/suite"
)

type Suite struct {
	suite.Suite

	// NewStore returns an empty store for each test.
	NewStore func() eventlog.Store

	ctx   context.Context
	store eventlog.Store
}

var base = time.Date(2021, 3, 4, 10, 0, 0, 0, time.UTC)

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.NewStore()
}

func (s *Suite) append(e eventlog.Event) *eventlog.Event {
	s.Require().NoError(s.store.Append(s.ctx, &e))
	s.Require().NotZero(e.ID)
	return &e
}

func (s *Suite) publish(ts time.Time, site, node string) *eventlog.Event {
	return s.append(eventlog.Event{
		Type:              eventlog.NodePublished,
		Timestamp:         ts,
		Workspace:         eventlog.LiveWorkspace,
		SiteIdentifier:    site,
		NodeIdentifier:    node,
		AccountIdentifier: "admin",
		Data:              eventlog.Data{DocumentNodeLabel: "Page " + node},
	})
}

func (s *Suite) change(parent *eventlog.Event, payload string) *eventlog.Event {
	var data eventlog.Data
	s.Require().NoError(json.Unmarshal([]byte(payload), &data))
	return s.append(eventlog.Event{
		ParentID:       parent.ID,
		Type:           eventlog.NodeUpdated,
		Timestamp:      parent.Timestamp,
		Workspace:      parent.Workspace,
		SiteIdentifier: parent.SiteIdentifier,
		NodeIdentifier: parent.NodeIdentifier,
		Data:           data,
	})
}

func ids(events []eventlog.Event) []int64 {
	var res []int64
	for i := range events {
		res = append(res, events[i].ID)
	}
	return res
}

func (s *Suite) TestRelevantEvents_FiltersAndOrders() {
	older := s.publish(base, "site-a", "node-1")
	newer := s.publish(base.Add(time.Hour), "site-b", "node-2")
	sameTime := s.publish(base.Add(time.Hour), "site-a", "node-3")

	s.change(older, `{"nodeType":"Neos.NodeTypes:Text","old":null,"new":{"text":"a"}}`)
	s.change(older, `{"nodeType":"Neos.NodeTypes:Text","old":null,"new":{"text":"b"}}`)
	s.change(newer, `{"nodeType":"Neos.NodeTypes:Text","old":null,"new":{"text":"c"}}`)

	s.append(eventlog.Event{Type: eventlog.NodeAdded, Timestamp: base.Add(2 * time.Hour), Workspace: eventlog.LiveWorkspace})
	s.append(eventlog.Event{Type: eventlog.NodePublished, Timestamp: base.Add(3 * time.Hour), Workspace: "user-editor"})

	events, err := s.store.RelevantEvents(s.ctx, eventlog.Query{Workspace: eventlog.LiveWorkspace, Limit: 10})
	s.Require().NoError(err)
	s.Equal([]int64{sameTime.ID, newer.ID, older.ID}, ids(events))

	children := map[int64]int{}
	for _, e := range events {
		children[e.ID] = e.ChildEventCount
		s.Equal(eventlog.NodePublished, e.Type)
		s.Zero(e.ParentID)
	}
	s.Equal(map[int64]int{sameTime.ID: 0, newer.ID: 1, older.ID: 2}, children)

	last := events[2]
	s.True(last.Timestamp.Equal(base))
	s.Equal("site-a", last.SiteIdentifier)
	s.Equal("site-a", last.Data.Site)
	s.Equal("node-1", last.NodeIdentifier)
	s.Equal("admin", last.AccountIdentifier)
	s.Equal("Page node-1", last.Data.DocumentNodeLabel)
}

func (s *Suite) TestRelevantEvents_SiteAndNodeFilters() {
	a1 := s.publish(base, "site-a", "node-1")
	s.publish(base.Add(time.Minute), "site-b", "node-1")
	a2 := s.publish(base.Add(2*time.Minute), "site-a", "node-2")
	// The site filter compares whole identifiers.
	s.publish(base.Add(3*time.Minute), "site-ab", "node-1")

	events, err := s.store.RelevantEvents(s.ctx, eventlog.Query{Workspace: eventlog.LiveWorkspace, Site: "site-a", Limit: 10})
	s.Require().NoError(err)
	s.Equal([]int64{a2.ID, a1.ID}, ids(events))

	events, err = s.store.RelevantEvents(s.ctx, eventlog.Query{Workspace: eventlog.LiveWorkspace, Site: "site-a", NodeIdentifier: "node-1", Limit: 10})
	s.Require().NoError(err)
	s.Equal([]int64{a1.ID}, ids(events))

	events, err = s.store.RelevantEvents(s.ctx, eventlog.Query{Workspace: eventlog.LiveWorkspace, NodeIdentifier: "node-1", Limit: 10})
	s.Require().NoError(err)
	s.Len(events, 3)
}

func (s *Suite) TestRelevantEvents_OffsetAndLimit() {
	var all []int64
	for i := 0; i < 7; i++ {
		e := s.publish(base.Add(time.Duration(i)*time.Minute), "site-a", "node-1")
		all = append([]int64{e.ID}, all...)
	}

	tests := []struct {
		offset, limit int
		want          []int64
	}{
		{0, 3, all[0:3]},
		{3, 3, all[3:6]},
		{6, 3, all[6:7]},
		{7, 3, nil},
		{2, 0, all[2:]},
	}
	for _, tt := range tests {
		events, err := s.store.RelevantEvents(s.ctx, eventlog.Query{Workspace: eventlog.LiveWorkspace, Offset: tt.offset, Limit: tt.limit})
		s.Require().NoError(err)
		s.Equal(tt.want, ids(events), "offset %d limit %d", tt.offset, tt.limit)
	}
}

func (s *Suite) TestChildEvents() {
	first := s.publish(base, "site-a", "node-1")
	second := s.publish(base.Add(time.Hour), "site-a", "node-2")
	s.publish(base.Add(2*time.Hour), "site-a", "node-3")

	c1 := s.change(first, `{"nodeType":"Neos.NodeTypes:Text","old":{"title":"Home","date":{"__type":"datetime","date":"2021-03-01T08:00:00Z"}},"new":{"title":"Start","date":{"__type":"datetime","date":"2021-03-02T08:00:00Z"}}}`)
	c2 := s.change(first, `{"nodeType":"Neos.NodeTypes:Image","old":null,"new":{"zeta":"z","alpha":{"__type":"image","identifier":"img-1"}}}`)
	c3 := s.change(second, `{"nodeType":"Neos.NodeTypes:Text","old":{"text":"a"},"new":{"text":"b"}}`)

	children, err := s.store.ChildEvents(s.ctx, []int64{first.ID, second.ID})
	s.Require().NoError(err)
	s.Len(children, 2)
	s.Equal([]int64{c1.ID, c2.ID}, ids(children[first.ID]))
	s.Equal([]int64{c3.ID}, ids(children[second.ID]))

	got := children[first.ID][0]
	s.Equal(eventlog.NodeUpdated, got.Type)
	s.Equal(first.ID, got.ParentID)
	s.Equal("Neos.NodeTypes:Text", got.Data.NodeType)
	title, ok := got.Data.Old.Get("title")
	s.Require().True(ok)
	s.Equal("Home", title.Text())
	date, ok := got.Data.New.Get("date")
	s.Require().True(ok)
	s.Equal(eventlog.KindDateTime, date.Kind())
	s.True(date.Time().Equal(time.Date(2021, 3, 2, 8, 0, 0, 0, time.UTC)))

	created := children[first.ID][1]
	s.Nil(created.Data.Old)
	s.Equal([]string{"zeta", "alpha"}, created.Data.New.Names())
	image, _ := created.Data.New.Get("alpha")
	s.Equal(eventlog.KindImage, image.Kind())
	s.Equal("img-1", image.Asset().Identifier)

	children, err = s.store.ChildEvents(s.ctx, nil)
	s.Require().NoError(err)
	s.Empty(children)
}

func (s *Suite) TestSites() {
	s.Require().NoError(s.store.PutSite(s.ctx, eventlog.Site{Identifier: "site-b", Name: "Beta", NodeName: "beta", Online: true}))
	s.Require().NoError(s.store.PutSite(s.ctx, eventlog.Site{Identifier: "site-a", Name: "Alpha", NodeName: "alpha", Online: true}))
	s.Require().NoError(s.store.PutSite(s.ctx, eventlog.Site{Identifier: "site-c", Name: "Gamma", NodeName: "gamma", Online: false}))

	n, err := s.store.CountSites(s.ctx, eventlog.Elevated())
	s.Require().NoError(err)
	s.Equal(3, n)

	n, err = s.store.CountSites(s.ctx, eventlog.SitesOnly("site-a"))
	s.Require().NoError(err)
	s.Equal(1, n)

	sites, err := s.store.OnlineSites(s.ctx, eventlog.AllSites())
	s.Require().NoError(err)
	s.Require().Len(sites, 2)
	s.Equal("site-a", sites[0].Identifier)
	s.Equal("Alpha", sites[0].Name)
	s.Equal("site-b", sites[1].Identifier)

	sites, err = s.store.OnlineSites(s.ctx, eventlog.SitesOnly("site-b", "site-c"))
	s.Require().NoError(err)
	s.Require().Len(sites, 1)
	s.Equal("site-b", sites[0].Identifier)

	// Updates replace the site.
	s.Require().NoError(s.store.PutSite(s.ctx, eventlog.Site{Identifier: "site-c", Name: "Gamma", Online: true}))
	sites, err = s.store.OnlineSites(s.ctx, eventlog.Elevated())
	s.Require().NoError(err)
	s.Len(sites, 3)
}

func (s *Suite) TestActiveDomainSite() {
	s.Require().NoError(s.store.PutSite(s.ctx, eventlog.Site{Identifier: "site-a", Name: "Alpha", Online: true}))
	s.Require().NoError(s.store.PutDomain(s.ctx, eventlog.Domain{Hostname: "Alpha.Example.com", SiteIdentifier: "site-a", Active: true}))
	s.Require().NoError(s.store.PutDomain(s.ctx, eventlog.Domain{Hostname: "old.example.com", SiteIdentifier: "site-a", Active: false}))

	site, err := s.store.ActiveDomainSite(s.ctx, "alpha.example.com:8080")
	s.Require().NoError(err)
	s.Equal("site-a", site.Identifier)

	_, err = s.store.ActiveDomainSite(s.ctx, "old.example.com")
	s.ErrorIs(err, eventlog.ErrNotFound)

	_, err = s.store.ActiveDomainSite(s.ctx, "localhost:8080")
	s.ErrorIs(err, eventlog.ErrNotFound)
}

func (s *Suite) TestResolveNode() {
	node := eventlog.Node{Identifier: "node-1", Workspace: eventlog.LiveWorkspace, Label: "Home", NodeType: "Neos.Neos:Page"}
	s.Require().NoError(s.store.PutNode(s.ctx, node))
	s.Require().NoError(s.store.PutNode(s.ctx, eventlog.Node{Identifier: "node-1", Workspace: "user-editor", Label: "Draft", NodeType: "Neos.Neos:Page"}))

	got, err := s.store.ResolveNode(s.ctx, eventlog.LiveWorkspace, "node-1")
	s.Require().NoError(err)
	s.Equal(node, *got)

	node.Label = "Start"
	s.Require().NoError(s.store.PutNode(s.ctx, node))
	got, err = s.store.ResolveNode(s.ctx, eventlog.LiveWorkspace, "node-1")
	s.Require().NoError(err)
	s.Equal("Start", got.Label)

	_, err = s.store.ResolveNode(s.ctx, eventlog.LiveWorkspace, "node-2")
	s.ErrorIs(err, eventlog.ErrNotFound)
}
