package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aehistory/history/eventlog"
	"github.com/aehistory/history/eventlog/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2021, 3, 4, 12, 0, 0, 0, time.UTC)

func published(id int64, ts time.Time, children int) eventlog.Event {
	return eventlog.Event{
		ID:              id,
		Type:            eventlog.NodePublished,
		Timestamp:       ts,
		Workspace:       eventlog.LiveWorkspace,
		NodeIdentifier:  "node-1",
		ChildEventCount: children,
	}
}

func countEvents(p *Page) int {
	n := 0
	for _, d := range p.Days {
		n += len(d.Events)
	}
	return n
}

func TestAggregate_Pagination(t *testing.T) {
	// 26 events for a limit of 25, five of them without children.
	var events []eventlog.Event
	for i := 0; i < 26; i++ {
		children := 2
		if i%5 == 1 {
			children = 0
		}
		events = append(events, published(int64(100-i), day.Add(-time.Duration(i)*time.Hour), children))
	}

	req := Request{Offset: 0, Limit: 25, Site: "site-a"}
	page := Aggregate(context.Background(), events, req, nil, time.UTC)

	assert.LessOrEqual(t, countEvents(page), 21)
	assert.Equal(t, 20, countEvents(page))
	require.NotNil(t, page.Next)
	assert.Equal(t, PageToken{Offset: 25, Site: "site-a"}, *page.Next)
	for _, d := range page.Days {
		for _, e := range d.Events {
			assert.NotZero(t, e.ChildEventCount)
			assert.NotEqual(t, int64(75), e.ID, "the extra event must not be shown")
		}
	}
}

func TestAggregate_NextPage(t *testing.T) {
	tests := []struct {
		name   string
		offset int
		limit  int
		count  int
		next   *PageToken
	}{
		{"one more than the limit", 0, 3, 4, &PageToken{Offset: 3}},
		{"exactly the limit", 0, 3, 3, nil},
		{"fewer than the limit", 0, 3, 1, nil},
		{"nothing", 0, 3, 0, nil},
		{"later page", 50, 25, 26, &PageToken{Offset: 75}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var events []eventlog.Event
			for i := 0; i < tt.count; i++ {
				events = append(events, published(int64(i+1), day, 1))
			}
			page := Aggregate(context.Background(), events, Request{Offset: tt.offset, Limit: tt.limit}, nil, time.UTC)
			assert.Equal(t, tt.next, page.Next)
			assert.Equal(t, min(tt.count, tt.limit), countEvents(page))
		})
	}
}

func TestAggregate_GroupsByDay(t *testing.T) {
	events := []eventlog.Event{
		published(1, day.Add(3*time.Hour), 1),
		published(2, day.Add(1*time.Hour), 1),
		published(3, day.Add(-24*time.Hour), 1),
		published(4, day.Add(-25*time.Hour), 0),
		published(5, day.Add(-26*time.Hour), 1),
		published(6, day.Add(-72*time.Hour), 1),
	}

	page := Aggregate(context.Background(), events, Request{Limit: 25}, nil, time.UTC)
	require.Len(t, page.Days, 3)

	ids := func(d *EventsOnDate) []int64 {
		var res []int64
		for _, e := range d.Events {
			res = append(res, e.ID)
		}
		return res
	}
	assert.Equal(t, time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC), page.Days[0].Date)
	assert.Equal(t, []int64{1, 2}, ids(page.Days[0]))
	assert.Equal(t, []int64{3, 5}, ids(page.Days[1]))
	assert.Equal(t, []int64{6}, ids(page.Days[2]))
}

func TestAggregate_DaysFollowFirstAppearance(t *testing.T) {
	events := []eventlog.Event{
		published(1, day, 1),
		published(2, day.Add(-48*time.Hour), 1),
		published(3, day, 1),
	}

	page := Aggregate(context.Background(), events, Request{Limit: 25}, nil, time.UTC)
	require.Len(t, page.Days, 2)
	assert.Len(t, page.Days[0].Events, 2)
	assert.Equal(t, int64(3), page.Days[0].Events[1].ID)
}

func TestAggregate_UsesLocation(t *testing.T) {
	late := time.Date(2021, 3, 4, 23, 30, 0, 0, time.UTC)
	events := []eventlog.Event{published(1, late, 1), published(2, late.Add(-3*time.Hour), 1)}

	page := Aggregate(context.Background(), events, Request{Limit: 25}, nil, time.UTC)
	assert.Len(t, page.Days, 1)

	page = Aggregate(context.Background(), events, Request{Limit: 25}, nil, time.FixedZone("EET", 2*3600))
	require.Len(t, page.Days, 2)
	assert.Equal(t, 5, page.Days[0].Date.Day())
	assert.Equal(t, 4, page.Days[1].Date.Day())
}

type failingResolver struct{}

func (failingResolver) ResolveNode(context.Context, string, string) (*eventlog.Node, error) {
	return nil, errors.New("connection refused")
}

func TestAggregate_FirstSummary(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.PutNode(ctx, eventlog.Node{
		Identifier: "node-1",
		Workspace:  eventlog.LiveWorkspace,
		Label:      "Home",
		NodeType:   "Neos.Neos:Page",
	}))

	events := []eventlog.Event{published(7, day, 0), published(8, day, 1)}

	page := Aggregate(ctx, nil, Request{Limit: 25, NodeIdentifier: "node-1"}, store, time.UTC)
	assert.Nil(t, page.First)
	assert.True(t, page.Empty())

	page = Aggregate(ctx, events, Request{Limit: 25, NodeIdentifier: "node-1"}, store, time.UTC)
	require.NotNil(t, page.First)
	assert.True(t, page.First.Enriched)
	assert.Equal(t, "Home", page.First.NodeLabel)
	assert.Equal(t, "Neos.Neos:Page", page.First.NodeType)
	assert.Equal(t, "node-1", page.First.NodeIdentifier)
	assert.Equal(t, int64(7), page.First.Event.ID, "taken before dropping childless events")

	page = Aggregate(ctx, events, Request{Limit: 25, NodeIdentifier: "unknown"}, store, time.UTC)
	require.NotNil(t, page.First)
	assert.False(t, page.First.Enriched)
	assert.Equal(t, int64(7), page.First.Event.ID)

	page = Aggregate(ctx, events, Request{Limit: 25}, store, time.UTC)
	assert.False(t, page.First.Enriched)

	page = Aggregate(ctx, events, Request{Limit: 25, NodeIdentifier: "node-1"}, failingResolver{}, time.UTC)
	assert.False(t, page.First.Enriched)
	assert.Equal(t, 1, countEvents(page))
}

func TestRequest_Query(t *testing.T) {
	q := Request{Offset: 10, Limit: 25, Workspace: "live", Site: "s", NodeIdentifier: "n"}.Query()
	assert.Equal(t, eventlog.Query{Offset: 10, Limit: 26, Workspace: "live", Site: "s", NodeIdentifier: "n"}, q)
}
