package nodetypes

import (
	"fmt"

	"github.com/aehistory/history/eventlog"

	"gopkg.in/yaml.v3"
)

type NodeType struct {
	Name       string
	Label      string
	Icon       string
	Abstract   bool
	SuperTypes []string
	Properties map[string]*Property

	defaults map[string]eventlog.Value
}

type Property struct {
	Type         string     `yaml:"type"`
	// DefaultValue has Kind 0 when the key is absent.
	DefaultValue yaml.Node  `yaml:"defaultValue"`
	UI           PropertyUI `yaml:"ui"`
}

type PropertyUI struct {
	Label string       `yaml:"label"`
	Help  PropertyHelp `yaml:"help"`
}

type PropertyHelp struct {
	Message string `yaml:"message"`
}

func (n *NodeType) PropertyLabel(name string) string {
	if p, ok := n.Properties[name]; ok {
		return p.UI.Label
	}
	return ""
}

func (n *NodeType) PropertyHelp(name string) string {
	if p, ok := n.Properties[name]; ok {
		return p.UI.Help.Message
	}
	return ""
}

// DefaultValue returns the declared default of a property. A null default
// is not a default.
func (n *NodeType) DefaultValue(name string) (eventlog.Value, bool) {
	v, ok := n.defaults[name]
	return v, ok
}

// DefaultValues returns all declared defaults by property name.
func (n *NodeType) DefaultValues() map[string]eventlog.Value {
	res := make(map[string]eventlog.Value, len(n.defaults))
	for k, v := range n.defaults {
		res[k] = v
	}
	return res
}

func (n *NodeType) resolveDefaults() error {
	n.defaults = map[string]eventlog.Value{}
	for name, p := range n.Properties {
		if !hasDefault(p) {
			continue
		}
		var raw interface{}
		if err := p.DefaultValue.Decode(&raw); err != nil {
			return fmt.Errorf("property %s: invalid default value: %w", name, err)
		}
		v, err := eventlog.ValueOf(raw)
		if err != nil {
			return fmt.Errorf("property %s: %w", name, err)
		}
		n.defaults[name] = v
	}
	return nil
}

func hasDefault(p *Property) bool {
	return p != nil && p.DefaultValue.Kind != 0 && p.DefaultValue.ShortTag() != "!!null"
}
