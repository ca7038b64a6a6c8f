package history

import (
	"testing"
	"testing/fstest"

	"github.com/aehistory/history/nodetypes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const textNodeTypes = `
'Neos.NodeTypes:Text':
  properties:
    text:
      type: string
      defaultValue: ''
      ui:
        label: Text
    alignment:
      type: string
      defaultValue: left
      ui:
        label: Alignment
    options:
      defaultValue: {wide: true, border: false}
    note:
      defaultValue: ~
      ui:
        label: Note
`

func loadTextSchema(t *testing.T) Schema {
	t.Helper()
	m, err := nodetypes.Load(fstest.MapFS{
		"Text.yaml": &fstest.MapFile{Data: []byte(textNodeTypes)},
	})
	require.NoError(t, err)
	nt, err := m.NodeType("Neos.NodeTypes:Text")
	require.NoError(t, err)
	return nt
}

func TestComputeChanges_NodeTypeSchema(t *testing.T) {
	schema := loadTextSchema(t)

	tests := []struct {
		name string
		old  string
		new  string
		want []string
	}{
		{"created with defaults", `null`, `{"text":"","alignment":"left","options":{"border":false,"wide":true}}`, nil},
		{"created with values", `null`, `{"text":"Hello","alignment":"right"}`, []string{"text", "alignment"}},
		{"reset to default", `{"alignment":"right"}`, `{"alignment":"left"}`, nil},
		{"null default is no default", `{"note":"a"}`, `{"note":"b"}`, []string{"note"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := ComputeChanges(changeEvent(t, tt.old, tt.new), schema)
			assert.Equal(t, tt.want, names(changes))
		})
	}

	changes := ComputeChanges(changeEvent(t, `null`, `{"alignment":"right"}`), schema)
	require.Len(t, changes, 1)
	assert.Equal(t, "Alignment", changes[0].Label)
}
