package history

import "github.com/aehistory/history/eventlog"

// PropertyChange describes how one property of a node changed.
type PropertyChange struct {
	Name     string
	Label    string
	Help     string
	Kind     eventlog.Kind
	Original eventlog.Value
	Changed  eventlog.Value
	// Diff is only set for text changes.
	Diff []DiffGroup
}

// ComputeChanges lists the reportable property changes of an event, in the
// order the new properties were recorded.
func ComputeChanges(e eventlog.Event, schema Schema) []PropertyChange {
	if schema == nil {
		schema = EmptySchema
	}
	old, changed := e.Data.Old, e.Data.New

	var res []PropertyChange
	for _, name := range changed.Names() {
		value, _ := changed.Get(name)
		if old == nil && value.Empty() {
			continue
		}
		if def, ok := schema.DefaultValue(name); ok && value.Equal(def) {
			continue
		}

		original, ok := old.Get(name)
		if !ok {
			original = eventlog.Null()
		}

		change := PropertyChange{
			Name:     name,
			Label:    propertyLabel(schema, name),
			Help:     schema.PropertyHelp(name),
			Original: original,
			Changed:  value,
		}

		switch {
		case !original.Structured() && !value.Structured():
			change.Kind = eventlog.KindText
			change.Diff = DiffLines(SlimDown(original.Text()), SlimDown(value.Text()))
			if len(change.Diff) == 0 {
				continue
			}
		case original.Kind() == eventlog.KindImage || value.Kind() == eventlog.KindImage:
			change.Kind = eventlog.KindImage
		case original.Kind() == eventlog.KindAsset || value.Kind() == eventlog.KindAsset:
			change.Kind = eventlog.KindAsset
		case original.Kind() == eventlog.KindDateTime && value.Kind() == eventlog.KindDateTime:
			if original.Time().Unix() == value.Time().Unix() {
				continue
			}
			change.Kind = eventlog.KindDateTime
		default:
			continue
		}

		res = append(res, change)
	}
	return res
}

func propertyLabel(schema Schema, name string) string {
	if label := schema.PropertyLabel(name); label != "" {
		return label
	}
	return name
}
