package eventlog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Properties is a property name to value mapping that keeps the order in
// which properties were recorded.
type Properties struct {
	names  []string
	values map[string]Value
}

func NewProperties() *Properties {
	return &Properties{values: map[string]Value{}}
}

// Set adds or replaces a property. Replacing keeps the original position.
func (p *Properties) Set(name string, v Value) {
	if p.values == nil {
		p.values = map[string]Value{}
	}
	if _, ok := p.values[name]; !ok {
		p.names = append(p.names, name)
	}
	p.values[name] = v
}

func (p *Properties) Get(name string) (Value, bool) {
	if p == nil {
		return Value{}, false
	}
	v, ok := p.values[name]
	return v, ok
}

// Names returns the property names in recorded order.
func (p *Properties) Names() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.names...)
}

func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.names)
}

func (p *Properties) UnmarshalJSON(data []byte) error {
	*p = Properties{values: map[string]Value{}}

	// Empty property sets are sometimes serialised as a list.
	if bytes.Equal(bytes.TrimSpace(data), []byte("[]")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("properties must be an object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected property key %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("property %q: %w", name, err)
		}
		v, err := ParseValue(raw)
		if err != nil {
			return fmt.Errorf("property %q: %w", name, err)
		}
		p.Set(name, v)
	}

	_, err = dec.Token()
	return err
}

func (p Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range p.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := p.values[name].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
