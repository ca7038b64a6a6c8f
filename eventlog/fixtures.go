package eventlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Fixtures is the YAML document accepted by LoadFixtures.
//
//	sites:
//	  - {identifier: site-a, name: Site A, nodeName: site-a, online: true}
//	domains:
//	  - {hostname: a.example.com, site: site-a, active: true}
//	nodes:
//	  - {identifier: 0d5e..., workspace: live, label: Home, nodeType: Neos.Neos:Page}
//	events:
//	  - type: Node.Published
//	    timestamp: 2021-03-04T10:00:00Z
//	    site: site-a
//	    node: 0d5e...
//	    account: admin
//	    data: {documentNodeLabel: Home}
//	    children:
//	      - type: Node.Updated
//	        node: 0d5e...
//	        data:
//	          nodeType: Neos.Neos:Page
//	          old: {title: Home}
//	          new: {title: Start}
type Fixtures struct {
	Sites   []Site         `yaml:"sites"`
	Domains []Domain       `yaml:"domains"`
	Nodes   []Node         `yaml:"nodes"`
	Events  []fixtureEvent `yaml:"events"`
}

type fixtureEvent struct {
	Type      EventType      `yaml:"type"`
	Timestamp time.Time      `yaml:"timestamp"`
	Workspace string         `yaml:"workspace"`
	Site      string         `yaml:"site"`
	Node      string         `yaml:"node"`
	Account   string         `yaml:"account"`
	Data      yaml.Node      `yaml:"data"`
	Children  []fixtureEvent `yaml:"children"`
}

// LoadFixtures reads a fixtures document and writes its content to w.
func LoadFixtures(ctx context.Context, w Writer, r io.Reader) error {
	var f Fixtures
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("unable to parse fixtures: %w", err)
	}

	for i := range f.Sites {
		if err := w.PutSite(ctx, f.Sites[i]); err != nil {
			return fmt.Errorf("site %q: %w", f.Sites[i].Identifier, err)
		}
	}
	for i := range f.Domains {
		if err := w.PutDomain(ctx, f.Domains[i]); err != nil {
			return fmt.Errorf("domain %q: %w", f.Domains[i].Hostname, err)
		}
	}
	for i := range f.Nodes {
		node := f.Nodes[i]
		if node.Workspace == "" {
			node.Workspace = LiveWorkspace
		}
		if err := w.PutNode(ctx, node); err != nil {
			return fmt.Errorf("node %q: %w", node.Identifier, err)
		}
	}
	for i := range f.Events {
		if err := appendFixture(ctx, w, &f.Events[i], nil); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	return nil
}

func appendFixture(ctx context.Context, w Writer, f *fixtureEvent, parent *Event) error {
	e := &Event{
		Type:              f.Type,
		Timestamp:         f.Timestamp,
		Workspace:         f.Workspace,
		SiteIdentifier:    f.Site,
		NodeIdentifier:    f.Node,
		AccountIdentifier: f.Account,
	}
	if parent != nil {
		e.ParentID = parent.ID
		if e.Timestamp.IsZero() {
			e.Timestamp = parent.Timestamp
		}
		if e.Workspace == "" {
			e.Workspace = parent.Workspace
		}
		if e.SiteIdentifier == "" {
			e.SiteIdentifier = parent.SiteIdentifier
		}
		if e.AccountIdentifier == "" {
			e.AccountIdentifier = parent.AccountIdentifier
		}
	}
	if e.Type == "" {
		e.Type = NodePublished
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("missing timestamp")
	}

	if f.Data.Kind != 0 {
		payload, err := yamlToJSON(&f.Data)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(payload, &e.Data); err != nil {
			return fmt.Errorf("invalid data: %w", err)
		}
	}

	if err := w.Append(ctx, e); err != nil {
		return err
	}
	for i := range f.Children {
		if err := appendFixture(ctx, w, &f.Children[i], e); err != nil {
			return fmt.Errorf("child %d: %w", i, err)
		}
	}
	return nil
}

// yamlToJSON converts a YAML node to JSON, keeping mapping key order so
// that property order survives the conversion.
func yamlToJSON(n *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeJSON(buf, n.Content[0])
	case yaml.AliasNode:
		return writeJSON(buf, n.Alias)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(n.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeJSON(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, n.Content[i]); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case yaml.ScalarNode:
		var v interface{}
		if err := n.Decode(&v); err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		buf.Write(b)
	default:
		buf.WriteString("null")
	}
	return nil
}
