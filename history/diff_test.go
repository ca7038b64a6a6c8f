package history

import (
	"html"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var markers = strings.NewReplacer("<ins>", "", "</ins>", "", "<del>", "", "</del>", "")

func plain(line string) string {
	return html.UnescapeString(markers.Replace(line))
}

func TestDiffLines_Identical(t *testing.T) {
	assert.Empty(t, DiffLines("same\ntext", "same\ntext"))
	assert.Empty(t, DiffLines("", ""))
}

func TestDiffLines_SingleLineChange(t *testing.T) {
	groups := DiffLines("Hello world", "Hello there")
	require.Len(t, groups, 1)
	require.Len(t, groups[0], 1)

	block := groups[0][0]
	assert.Equal(t, TagReplace, block.Tag)
	require.Len(t, block.Base.Lines, 1)
	require.Len(t, block.Changed.Lines, 1)

	assert.Contains(t, block.Base.Lines[0], "<del>")
	assert.NotContains(t, block.Base.Lines[0], "<ins>")
	assert.Contains(t, block.Changed.Lines[0], "<ins>")
	assert.NotContains(t, block.Changed.Lines[0], "<del>")

	assert.Equal(t, "Hello world", plain(block.Base.Lines[0]))
	assert.Equal(t, "Hello there", plain(block.Changed.Lines[0]))
}

func TestDiffLines_WholeBlockInsert(t *testing.T) {
	groups := DiffLines("", "New paragraph")
	require.Len(t, groups, 1)
	require.Len(t, groups[0], 1)

	block := groups[0][0]
	assert.Equal(t, "", strings.Join(block.Base.Lines, ""))
	assert.Equal(t, []string{"<ins>New paragraph</ins>"}, block.Changed.Lines)
}

func TestDiffLines_WholeBlockDelete(t *testing.T) {
	groups := DiffLines("Old paragraph", "")
	require.Len(t, groups, 1)
	require.Len(t, groups[0], 1)

	block := groups[0][0]
	assert.Equal(t, []string{"<del>Old paragraph</del>"}, block.Base.Lines)
	assert.Equal(t, "", strings.Join(block.Changed.Lines, ""))
}

func TestDiffLines_AddedLine(t *testing.T) {
	groups := DiffLines("first\nsecond", "first\nsecond\nthird")
	require.Len(t, groups, 1)

	var inserted *Block
	for i := range groups[0] {
		if groups[0][i].Tag == TagInsert {
			inserted = &groups[0][i]
		}
	}
	require.NotNil(t, inserted)
	assert.Equal(t, 2, inserted.Changed.Offset)
	assert.Equal(t, []string{"<ins>third</ins>"}, inserted.Changed.Lines)
	assert.Empty(t, inserted.Base.Lines)
}

func TestDiffLines_Context(t *testing.T) {
	groups := DiffLines("1\n2\n3\n4\n5\n6\n7", "1\n2\n3\nX\n5\n6\n7")
	require.Len(t, groups, 1)
	require.Len(t, groups[0], 3)

	before, change, after := groups[0][0], groups[0][1], groups[0][2]
	assert.Equal(t, TagEqual, before.Tag)
	assert.Equal(t, Side{Offset: 2, Lines: []string{"3"}}, before.Base)
	assert.Equal(t, TagReplace, change.Tag)
	assert.Equal(t, 3, change.Base.Offset)
	assert.Equal(t, "4", plain(change.Base.Lines[0]))
	assert.Equal(t, "X", plain(change.Changed.Lines[0]))
	assert.Equal(t, TagEqual, after.Tag)
	assert.Equal(t, []string{"5"}, after.Changed.Lines)
}

func TestDiffLines_DistantChangesAreSeparateGroups(t *testing.T) {
	base := "1\n2\n3\n4\n5\n6\n7\n8\n9\n10"
	changed := "1\nB\n3\n4\n5\n6\n7\n8\nI\n10"

	groups := DiffLines(base, changed)
	require.Len(t, groups, 2)
	assert.Equal(t, 0, groups[0][0].Base.Offset)
	assert.Equal(t, 7, groups[1][0].Base.Offset)
}

func TestDiffLines_EscapesContent(t *testing.T) {
	groups := DiffLines("a < b", "a > b")
	require.Len(t, groups, 1)

	block := groups[0][0]
	assert.NotContains(t, block.Base.Lines[0], "a < b")
	assert.Contains(t, block.Base.Lines[0], "&lt;")
	assert.Equal(t, "a < b", plain(block.Base.Lines[0]))
	assert.Equal(t, "a > b", plain(block.Changed.Lines[0]))
}
