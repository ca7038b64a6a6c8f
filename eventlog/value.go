package eventlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindText
	KindImage
	KindAsset
	KindDateTime
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindAsset:
		return "asset"
	case KindDateTime:
		return "datetime"
	default:
		return "object"
	}
}

// AssetRef points at a stored image or asset. Only the reference is kept;
// binary content never passes through the event log.
type AssetRef struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title,omitempty"`
	Filename   string `json:"filename,omitempty"`
	MediaType  string `json:"mediaType,omitempty"`
	URI        string `json:"uri,omitempty"`
}

// Value is a property value as recorded in an event payload.
//
// Structured values are tagged in JSON with a "__type" member:
//
//	{"__type": "image", "identifier": "...", "uri": "..."}
//	{"__type": "asset", "identifier": "...", "filename": "..."}
//	{"__type": "datetime", "date": "2021-03-04T10:00:00Z"}
//
// Strings, numbers and booleans are text; other objects and arrays are kept
// as opaque objects.
type Value struct {
	kind  Kind
	raw   json.RawMessage
	text  string
	asset *AssetRef
	time  time.Time
}

func Null() Value {
	return Value{kind: KindNull, raw: json.RawMessage("null")}
}

func Text(s string) Value {
	raw, _ := json.Marshal(s)
	return Value{kind: KindText, raw: raw, text: s}
}

func Image(ref AssetRef) Value {
	return assetValue(KindImage, ref)
}

func Asset(ref AssetRef) Value {
	return assetValue(KindAsset, ref)
}

func DateTime(t time.Time) Value {
	raw, _ := json.Marshal(struct {
		Type string `json:"__type"`
		Date string `json:"date"`
	}{"datetime", t.Format(time.RFC3339Nano)})
	return Value{kind: KindDateTime, raw: raw, time: t}
}

func assetValue(kind Kind, ref AssetRef) Value {
	raw, _ := json.Marshal(struct {
		Type string `json:"__type"`
		AssetRef
	}{kind.String(), ref})
	return Value{kind: kind, raw: raw, asset: &ref}
}

// ParseValue converts a raw JSON payload value into its variant.
func ParseValue(data []byte) (Value, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Null(), nil
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return Value{}, fmt.Errorf("invalid property value: %w", err)
	}
	raw := json.RawMessage(compact.Bytes())

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, fmt.Errorf("invalid string value: %w", err)
		}
		return Value{kind: KindText, raw: raw, text: s}, nil
	case '{':
		return parseObject(raw)
	case '[':
		return Value{kind: KindObject, raw: raw}, nil
	default:
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return Value{}, fmt.Errorf("invalid scalar value: %w", err)
		}
		return Value{kind: KindText, raw: raw, text: string(raw)}, nil
	}
}

func parseObject(raw json.RawMessage) (Value, error) {
	var tagged struct {
		Type string `json:"__type"`
		Date string `json:"date"`
		AssetRef
	}
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return Value{}, fmt.Errorf("invalid object value: %w", err)
	}

	switch tagged.Type {
	case "image":
		ref := tagged.AssetRef
		return Value{kind: KindImage, raw: raw, asset: &ref}, nil
	case "asset":
		ref := tagged.AssetRef
		return Value{kind: KindAsset, raw: raw, asset: &ref}, nil
	case "datetime":
		t, err := time.Parse(time.RFC3339Nano, tagged.Date)
		if err != nil {
			return Value{}, fmt.Errorf("invalid datetime value %q: %w", tagged.Date, err)
		}
		return Value{kind: KindDateTime, raw: raw, time: t}, nil
	default:
		return Value{kind: KindObject, raw: raw}, nil
	}
}

func (v Value) Kind() Kind {
	return v.kind
}

// Structured reports whether the value is an image, asset, datetime or
// opaque object rather than null or text.
func (v Value) Structured() bool {
	return v.kind != KindNull && v.kind != KindText
}

// Text returns the string content of a text value, or the JSON literal for
// numbers and booleans. It is empty for every other kind.
func (v Value) Text() string {
	return v.text
}

// Asset returns the reference held by an image or asset value.
func (v Value) Asset() *AssetRef {
	return v.asset
}

// Time returns the instant held by a datetime value.
func (v Value) Time() time.Time {
	return v.time
}

// Empty reports whether the value counts as absent: null, "", "0", numeric
// zero, false, or an empty object or array.
func (v Value) Empty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindText:
		switch string(v.raw) {
		case `""`, `"0"`, "false":
			return true
		case "true":
			return false
		}
		if len(v.raw) > 0 && v.raw[0] == '"' {
			return false
		}
		f, err := strconv.ParseFloat(string(v.raw), 64)
		return err == nil && f == 0
	case KindObject:
		s := string(v.raw)
		return s == "{}" || s == "[]"
	default:
		return false
	}
}

// Equal reports whether both values hold the same variant and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindDateTime:
		return v.time.Equal(o.time)
	default:
		if bytes.Equal(v.raw, o.raw) {
			return true
		}
		a, err := canonicalJSON(v.raw)
		if err != nil {
			return false
		}
		b, err := canonicalJSON(o.raw)
		return err == nil && bytes.Equal(a, b)
	}
}

// canonicalJSON re-encodes raw with object keys sorted, keeping number
// literals as written.
func canonicalJSON(raw []byte) ([]byte, error) {
	var v interface{}
	d := json.NewDecoder(bytes.NewReader(raw))
	d.UseNumber()
	if err := d.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if len(v.raw) == 0 {
		return []byte("null"), nil
	}
	return v.raw, nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseValue(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueOf converts a plain Go value, as produced by a YAML or JSON decoder,
// into a Value using the same rules as the event payload.
func ValueOf(in interface{}) (Value, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return Value{}, fmt.Errorf("unable to encode value: %w", err)
	}
	return ParseValue(b)
}
