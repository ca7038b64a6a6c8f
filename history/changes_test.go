package history

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/aehistory/history/eventlog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSchema struct {
	labels   map[string]string
	defaults map[string]eventlog.Value
}

func (s testSchema) PropertyLabel(name string) string { return s.labels[name] }

func (s testSchema) DefaultValue(name string) (eventlog.Value, bool) {
	v, ok := s.defaults[name]
	return v, ok
}

func (s testSchema) PropertyHelp(string) string { return "" }

func changeEvent(t *testing.T, old, new string) eventlog.Event {
	t.Helper()
	var data eventlog.Data
	require.NoError(t, json.Unmarshal([]byte(`{"nodeType":"Neos.NodeTypes:Text","old":`+old+`,"new":`+new+`}`), &data))
	return eventlog.Event{Type: eventlog.NodeUpdated, Data: data}
}

func names(changes []PropertyChange) []string {
	var res []string
	for _, c := range changes {
		res = append(res, c.Name)
	}
	return res
}

func datetime(t time.Time) string {
	return `{"__type":"datetime","date":"` + t.Format(time.RFC3339Nano) + `"}`
}

func TestComputeChanges_SkipsDefaultValues(t *testing.T) {
	schema := testSchema{defaults: map[string]eventlog.Value{
		"title":  eventlog.Text(""),
		"layout": eventlog.Text("default"),
	}}

	changes := ComputeChanges(changeEvent(t, `null`, `{"title":""}`), schema)
	assert.Empty(t, changes)

	changes = ComputeChanges(changeEvent(t, `{"layout":"wide"}`, `{"layout":"default"}`), schema)
	assert.Empty(t, changes)
}

func TestComputeChanges_SkipsEmptyValuesOnCreation(t *testing.T) {
	changes := ComputeChanges(changeEvent(t, `null`, `{"a":"","b":null,"c":0,"d":false,"e":"0","text":"Hello"}`), EmptySchema)
	require.Len(t, changes, 1)
	assert.Equal(t, "text", changes[0].Name)

	// Once the node existed, clearing a value is a change.
	changes = ComputeChanges(changeEvent(t, `{"a":"before"}`, `{"a":""}`), EmptySchema)
	require.Len(t, changes, 1)
	assert.Equal(t, []string{"<del>before</del>"}, changes[0].Diff[0][0].Base.Lines)
}

func TestComputeChanges_Text(t *testing.T) {
	schema := testSchema{labels: map[string]string{"text": "Body text"}}

	changes := ComputeChanges(changeEvent(t,
		`{"text":"<p>Hello&nbsp;world</p>"}`,
		`{"text":"<p>Hello  there</p>"}`,
	), schema)
	require.Len(t, changes, 1)

	c := changes[0]
	assert.Equal(t, "text", c.Name)
	assert.Equal(t, "Body text", c.Label)
	assert.Equal(t, eventlog.KindText, c.Kind)
	require.Len(t, c.Diff, 1)
	require.Len(t, c.Diff[0], 1)
	assert.Equal(t, "Hello world", plain(c.Diff[0][0].Base.Lines[0]))
	assert.Equal(t, "Hello there", plain(c.Diff[0][0].Changed.Lines[0]))
}

func TestComputeChanges_TextInsertion(t *testing.T) {
	changes := ComputeChanges(changeEvent(t, `{"text":""}`, `{"text":"New paragraph"}`), EmptySchema)
	require.Len(t, changes, 1)
	assert.Equal(t, "text", changes[0].Label)
	assert.Equal(t, []string{"<ins>New paragraph</ins>"}, changes[0].Diff[0][0].Changed.Lines)
}

func TestComputeChanges_UnchangedTextIsOmitted(t *testing.T) {
	changes := ComputeChanges(changeEvent(t,
		`{"title":"<b>Same</b>","other":"x"}`,
		`{"title":"<i>Same</i>","other":"x"}`,
	), EmptySchema)
	assert.Empty(t, changes)
}

func TestComputeChanges_Scalars(t *testing.T) {
	changes := ComputeChanges(changeEvent(t, `{"columns":2,"hidden":false}`, `{"columns":3,"hidden":true}`), EmptySchema)
	require.Len(t, changes, 2)
	assert.Equal(t, "2", plain(changes[0].Diff[0][0].Base.Lines[0]))
	assert.Equal(t, "3", plain(changes[0].Diff[0][0].Changed.Lines[0]))
}

func TestComputeChanges_ImagesAndAssets(t *testing.T) {
	image := `{"__type":"image","identifier":"img-1","uri":"/media/img-1.jpg"}`
	asset := `{"__type":"asset","identifier":"doc-1","filename":"doc.pdf"}`

	changes := ComputeChanges(changeEvent(t,
		`{"image":null,"file":`+asset+`}`,
		`{"image":`+image+`,"file":null}`,
	), EmptySchema)
	require.Len(t, changes, 2)

	assert.Equal(t, eventlog.KindImage, changes[0].Kind)
	assert.Equal(t, eventlog.KindNull, changes[0].Original.Kind())
	assert.Equal(t, "img-1", changes[0].Changed.Asset().Identifier)
	assert.Nil(t, changes[0].Diff)

	assert.Equal(t, eventlog.KindAsset, changes[1].Kind)
	assert.Equal(t, "doc.pdf", changes[1].Original.Asset().Filename)

	// An image wins over an asset on the other side.
	changes = ComputeChanges(changeEvent(t, `{"media":`+asset+`}`, `{"media":`+image+`}`), EmptySchema)
	require.Len(t, changes, 1)
	assert.Equal(t, eventlog.KindImage, changes[0].Kind)
}

func TestComputeChanges_DateTime(t *testing.T) {
	at := time.Date(2021, 3, 4, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		old     time.Time
		new     time.Time
		changed bool
	}{
		{"same instant", at, at, false},
		{"same instant in another zone", at, at.In(time.FixedZone("CET", 3600)), false},
		{"below one second", at, at.Add(300 * time.Millisecond), false},
		{"one second later", at.Add(-time.Second), at, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := ComputeChanges(changeEvent(t,
				`{"date":`+datetime(tt.old)+`}`,
				`{"date":`+datetime(tt.new)+`}`,
			), EmptySchema)
			if !tt.changed {
				assert.Empty(t, changes)
				return
			}
			require.Len(t, changes, 1)
			assert.Equal(t, eventlog.KindDateTime, changes[0].Kind)
			assert.True(t, changes[0].Changed.Time().Equal(tt.new))
		})
	}
}

func TestComputeChanges_MismatchedKindsAreSkipped(t *testing.T) {
	changes := ComputeChanges(changeEvent(t,
		`{"date":"yesterday","list":"a","meta":null}`,
		`{"date":`+datetime(time.Now())+`,"list":["a","b"],"meta":{"k":"v"}}`,
	), EmptySchema)
	assert.Empty(t, changes)
}

func TestComputeChanges_KeepsRecordedOrder(t *testing.T) {
	changes := ComputeChanges(changeEvent(t,
		`{"zeta":"1","alpha":"1","mid":"1"}`,
		`{"zeta":"2","alpha":"2","mid":"2"}`,
	), nil)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names(changes))
}
