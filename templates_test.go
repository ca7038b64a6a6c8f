package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type staticRenderer string

func (s staticRenderer) Render([]byte) (string, error) {
	return string(s), nil
}

func TestTemplates_diffHtml(t *testing.T) {
	tpl := NewTemplates(nil, "", "", nil, nil, time.UTC)

	assert.Equal(t, "&lt;b&gt; <del>old</del><ins>new</ins>", string(tpl.diffHtml("&lt;b&gt; <del>old</del><ins>new</ins>")))
	assert.Equal(t, "text", string(tpl.diffHtml(`<span onclick="x">text</span>`)))
}

func TestTemplates_helpHtml(t *testing.T) {
	tpl := NewTemplates(nil, "", "", nil, staticRenderer(`<p>See <a href="/history?nodeIdentifier=home" class="nodelink">home</a><script>alert(1)</script></p>`), time.UTC)

	out := string(tpl.helpHtml("See [home](node://home)"))
	assert.Contains(t, out, `class="nodelink"`)
	assert.Contains(t, out, "<p>See ")
	assert.NotContains(t, out, "script")
	assert.Empty(t, tpl.helpHtml(""))

	noHelp := NewTemplates(nil, "", "", nil, nil, time.UTC)
	assert.Empty(t, noHelp.helpHtml("See [home](node://home)"))
}

func TestTemplates_funcs(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("time zone database not available")
	}
	tpl := NewTemplates(nil, "", "", nil, nil, loc)
	funcs := tpl.funcs()

	ts := time.Date(2021, 3, 4, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "Friday, 5 March 2021", funcs["day"].(func(time.Time) string)(ts))
	assert.Equal(t, "00:30", funcs["clock"].(func(time.Time) string)(ts))
	assert.Equal(t, "2021-03-05 00:30:00", funcs["datetime"].(func(time.Time) string)(ts))
	assert.Equal(t, "", tpl.nodeTypeIcon("Neos.Neos:Page"))
}
