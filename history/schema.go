package history

import "github.com/aehistory/history/eventlog"

// Schema describes the properties of a node type as far as the diff needs
// to know about them.
type Schema interface {
	// PropertyLabel returns the configured label, or "" if there is none.
	PropertyLabel(name string) string
	// DefaultValue returns the declared default value of a property.
	DefaultValue(name string) (eventlog.Value, bool)
	// PropertyHelp returns the help message of a property as markdown.
	PropertyHelp(name string) string
}

// EmptySchema labels nothing and declares no defaults. It is used when the
// node type of an event is not known.
var EmptySchema Schema = emptySchema{}

type emptySchema struct{}

func (emptySchema) PropertyLabel(string) string { return "" }

func (emptySchema) DefaultValue(string) (eventlog.Value, bool) { return eventlog.Value{}, false }

func (emptySchema) PropertyHelp(string) string { return "" }
