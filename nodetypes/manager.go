// Package nodetypes loads node type schemas from YAML files of the form
//
//	'Neos.Neos:Page':
//	  superTypes:
//	    'Neos.Neos:Document': true
//	  ui:
//	    label: Page
//	    icon: icon-file
//	  properties:
//	    title:
//	      type: string
//	      defaultValue: ''
//	      ui:
//	        label: Title
//	        help:
//	          message: Shown in the browser tab
//
// A node type inherits the configuration of its super types in the order
// they are listed; its own settings take precedence.
package nodetypes

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrUnknownNodeType = errors.New("unknown node type")

type definition struct {
	SuperTypes superTypes `yaml:"superTypes"`
	Abstract   bool       `yaml:"abstract"`
	UI         struct {
		Label string `yaml:"label"`
		Icon  string `yaml:"icon"`
	} `yaml:"ui"`
	Properties map[string]*Property `yaml:"properties"`
}

// superTypes keeps the declaration order of the superTypes mapping.
// Entries set to false are dropped.
type superTypes []string

func (s *superTypes) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: superTypes must be a mapping", value.Line)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		var enabled bool
		if err := value.Content[i+1].Decode(&enabled); err != nil {
			return err
		}
		if enabled {
			*s = append(*s, value.Content[i].Value)
		}
	}
	return nil
}

type Manager struct {
	definitions map[string]*definition
	types       map[string]*NodeType
}

func NewManager() *Manager {
	return &Manager{
		definitions: map[string]*definition{},
		types:       map[string]*NodeType{},
	}
}

// LoadDir reads every YAML file below dir. An empty dir gives an empty
// manager.
func LoadDir(dir string) (*Manager, error) {
	if dir == "" {
		return NewManager(), nil
	}
	return Load(os.DirFS(dir))
}

// Load reads every .yaml and .yml file in fsys, in lexical order, and
// resolves the inheritance of the node types found.
func Load(fsys fs.FS) (*Manager, error) {
	m := NewManager()

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ext := path.Ext(p); ext != ".yaml" && ext != ".yml" {
			return nil
		}

		f, err := fsys.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := m.read(f); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := m.resolve(); err != nil {
		return nil, err
	}
	return m, nil
}

// read adds the definitions of one document. Later definitions of the same
// node type are merged over earlier ones.
func (m *Manager) read(r io.Reader) error {
	defs := map[string]*definition{}
	if err := yaml.NewDecoder(r).Decode(&defs); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	for name, def := range defs {
		if def == nil {
			def = &definition{}
		}
		if existing, ok := m.definitions[name]; ok {
			def = mergeDefinitions(existing, def)
		}
		m.definitions[name] = def
	}
	return nil
}

func (m *Manager) resolve() error {
	m.types = map[string]*NodeType{}
	for name := range m.definitions {
		if _, err := m.build(name, nil); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) build(name string, seen []string) (*NodeType, error) {
	if nt, ok := m.types[name]; ok {
		return nt, nil
	}
	for _, s := range seen {
		if s == name {
			return nil, fmt.Errorf("node type %s inherits from itself via %s", name, strings.Join(seen, " -> "))
		}
	}

	def, ok := m.definitions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNodeType, name)
	}

	nt := &NodeType{
		Name:       name,
		Properties: map[string]*Property{},
	}
	for _, superName := range def.SuperTypes {
		super, err := m.build(superName, append(seen, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		nt.Label = super.Label
		nt.Icon = super.Icon
		for propName, p := range super.Properties {
			nt.Properties[propName] = mergeProperties(nt.Properties[propName], p)
		}
	}

	nt.SuperTypes = append([]string(nil), def.SuperTypes...)
	nt.Abstract = def.Abstract
	if def.UI.Label != "" {
		nt.Label = def.UI.Label
	}
	if def.UI.Icon != "" {
		nt.Icon = def.UI.Icon
	}
	for propName, p := range def.Properties {
		if p == nil {
			p = &Property{}
		}
		nt.Properties[propName] = mergeProperties(nt.Properties[propName], p)
	}

	if err := nt.resolveDefaults(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	m.types[name] = nt
	return nt, nil
}

func mergeDefinitions(base, override *definition) *definition {
	res := *base
	res.SuperTypes = append(append(superTypes(nil), base.SuperTypes...), override.SuperTypes...)
	res.Abstract = base.Abstract || override.Abstract
	if override.UI.Label != "" {
		res.UI.Label = override.UI.Label
	}
	if override.UI.Icon != "" {
		res.UI.Icon = override.UI.Icon
	}
	res.Properties = map[string]*Property{}
	for k, p := range base.Properties {
		res.Properties[k] = p
	}
	for k, p := range override.Properties {
		if p == nil {
			p = &Property{}
		}
		res.Properties[k] = mergeProperties(res.Properties[k], p)
	}
	return &res
}

// mergeProperties returns a copy of base with the settings of override
// applied. base may be nil.
func mergeProperties(base, override *Property) *Property {
	res := &Property{}
	if base != nil {
		*res = *base
	}
	if override.Type != "" {
		res.Type = override.Type
	}
	if override.DefaultValue.Kind != 0 {
		res.DefaultValue = override.DefaultValue
	}
	if override.UI.Label != "" {
		res.UI.Label = override.UI.Label
	}
	if override.UI.Help.Message != "" {
		res.UI.Help.Message = override.UI.Help.Message
	}
	return res
}

func (m *Manager) HasNodeType(name string) bool {
	_, ok := m.types[name]
	return ok
}

func (m *Manager) NodeType(name string) (*NodeType, error) {
	nt, ok := m.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNodeType, name)
	}
	return nt, nil
}

// Icon returns the configured icon of a node type, or "" if the node type
// is not known.
func (m *Manager) Icon(name string) string {
	if nt, ok := m.types[name]; ok {
		return nt.Icon
	}
	return ""
}

// Names returns the names of all node types in lexical order.
func (m *Manager) Names() []string {
	var res []string
	for name := range m.types {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}
