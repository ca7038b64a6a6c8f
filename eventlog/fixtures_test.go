package eventlog_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aehistory/history/eventlog"
	"github.com/aehistory/history/eventlog/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtures = `
sites:
  - {identifier: site-a, name: Site A, nodeName: site-a, online: true}
domains:
  - {hostname: A.example.com, site: site-a, active: true}
nodes:
  - {identifier: home, label: Home, nodeType: "Neos.Neos:Page"}
events:
  - timestamp: 2021-03-04T10:00:00Z
    site: site-a
    node: home
    account: admin
    data: {documentNodeLabel: Home}
    children:
      - type: Node.Updated
        node: home
        data:
          nodeType: "Neos.Neos:Page"
          old: {zeta: Old, alpha: 1}
          new: {zeta: New, alpha: 2, when: {__type: datetime, date: "2021-03-04T10:00:00Z"}}
      - type: Node.Added
        node: text
        data:
          old: ~
          new: {text: Hello}
`

func TestLoadFixtures(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, eventlog.LoadFixtures(ctx, s, strings.NewReader(fixtures)))

	site, err := s.ActiveDomainSite(ctx, "a.example.com")
	require.NoError(t, err)
	assert.Equal(t, "Site A", site.Name)

	node, err := s.ResolveNode(ctx, eventlog.LiveWorkspace, "home")
	require.NoError(t, err)
	assert.Equal(t, "Neos.Neos:Page", node.NodeType)

	events, err := s.RelevantEvents(ctx, eventlog.Query{Workspace: eventlog.LiveWorkspace})
	require.NoError(t, err)
	require.Len(t, events, 1)
	parent := events[0]
	assert.Equal(t, eventlog.NodePublished, parent.Type)
	assert.Equal(t, "site-a", parent.SiteIdentifier)
	assert.Equal(t, "Home", parent.Data.DocumentNodeLabel)
	assert.Equal(t, 2, parent.ChildEventCount)

	children, err := s.ChildEvents(ctx, []int64{parent.ID})
	require.NoError(t, err)
	require.Len(t, children[parent.ID], 2)

	updated := children[parent.ID][0]
	assert.Equal(t, eventlog.NodeUpdated, updated.Type)
	assert.True(t, updated.Timestamp.Equal(time.Date(2021, 3, 4, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "admin", updated.AccountIdentifier)
	assert.Equal(t, "site-a", updated.SiteIdentifier)
	assert.Equal(t, []string{"zeta", "alpha", "when"}, updated.Data.New.Names())
	when, _ := updated.Data.New.Get("when")
	assert.Equal(t, eventlog.KindDateTime, when.Kind())
	alpha, _ := updated.Data.Old.Get("alpha")
	assert.Equal(t, "1", alpha.Text())

	added := children[parent.ID][1]
	assert.Nil(t, added.Data.Old)
	assert.Equal(t, 1, added.Data.New.Len())
}

func TestLoadFixtures_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"syntax", "events: [\n"},
		{"missing timestamp", "events:\n  - type: Node.Published\n"},
		{"invalid data", "events:\n  - timestamp: 2021-03-04T10:00:00Z\n    data: {old: [1]}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eventlog.LoadFixtures(context.Background(), memory.New(), strings.NewReader(tt.in))
			assert.Error(t, err)
		})
	}
}

func TestLoadFixtures_Empty(t *testing.T) {
	assert.NoError(t, eventlog.LoadFixtures(context.Background(), memory.New(), strings.NewReader("")))
}
