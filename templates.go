package main

import (
	"bytes"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"regexp"
	"time"

	"github.com/aehistory/history/config"
	"github.com/aehistory/history/eventlog"
	"github.com/aehistory/history/history"

	"github.com/gorilla/csrf"
	"github.com/microcosm-cc/bluemonday"
)

type IconProvider interface {
	Icon(nodeType string) string
}

type ContentRenderer interface {
	Render([]byte) (string, error)
}

type Templates struct {
	fs       fs.FS
	title    string
	version  string
	icons    IconProvider
	help     ContentRenderer
	location *time.Location

	diffPolicy *bluemonday.Policy
	helpPolicy *bluemonday.Policy
}

func NewTemplates(fsys fs.FS, title, version string, icons IconProvider, help ContentRenderer, loc *time.Location) *Templates {
	if loc == nil {
		loc = time.Local
	}

	diffPolicy := bluemonday.NewPolicy()
	diffPolicy.AllowElements("ins", "del")

	helpPolicy := bluemonday.UGCPolicy()
	helpPolicy.AllowAttrs("class").Matching(regexp.MustCompile(`^nodelink( missing)?$`)).OnElements("a")

	return &Templates{
		fs:         fsys,
		title:      title,
		version:    version,
		icons:      icons,
		help:       help,
		location:   loc,
		diffPolicy: diffPolicy,
		helpPolicy: helpPolicy,
	}
}

type CommonArgs struct {
	SiteTitle    string
	Version      string
	RequestedUrl string
	PageTitle    string
	IsError      bool
	Error        string
	User         *config.User
	CsrfField    template.HTML
}

type HistoryPageArgs struct {
	Common         CommonArgs
	Sites          []eventlog.Site
	ShowSites      bool
	Site           string
	NodeIdentifier string
	First          *history.Summary
	Days           []*DayView
	Next           string
	// AllChanges links to the unfiltered listing when a node is selected.
	AllChanges     string
}

type DayView struct {
	Date   time.Time
	Events []*EventView
}

type EventView struct {
	Event    eventlog.Event
	Children []*ChildView
}

// ChildView is a change event together with the property changes it
// records.
type ChildView struct {
	Event    eventlog.Event
	NodeType string
	Changes  []history.PropertyChange
}

func (t *Templates) RenderHistory(w http.ResponseWriter, r *http.Request, args *HistoryPageArgs) {
	title := "History"
	if args.First != nil && args.First.Enriched {
		title = "History of " + args.First.NodeLabel
	}
	args.Common = t.populateArgs(w, r, CommonArgs{PageTitle: title})
	t.render("history.gohtml", http.StatusOK, w, args)
}

type ErrorPageArgs struct {
	Common        CommonArgs
	ShowLoginForm bool
	Message       string
}

func (t *Templates) RenderNotFound(w http.ResponseWriter, r *http.Request) {
	t.renderError(w, r, http.StatusNotFound, "Page not found", "", false)
}

func (t *Templates) RenderUnauthorised(w http.ResponseWriter, r *http.Request) {
	t.renderError(w, r, http.StatusUnauthorized, "Unauthorized", "Please log in to view the content history.", true)
}

func (t *Templates) RenderForbidden(w http.ResponseWriter, r *http.Request) {
	t.renderError(w, r, http.StatusForbidden, "Forbidden", "You may not view the history of this site.", false)
}

func (t *Templates) RenderInternalError(w http.ResponseWriter, r *http.Request) {
	t.renderError(w, r, http.StatusInternalServerError, "Server Error", "", false)
}

func (t *Templates) RenderBadRequest(w http.ResponseWriter, r *http.Request) {
	t.renderError(w, r, http.StatusBadRequest, "Bad Request", "", false)
}

func (t *Templates) renderError(w http.ResponseWriter, r *http.Request, status int, title, message string, login bool) {
	// The built in error handler sets text/plain, so make sure we're not passing that on
	w.Header().Del("Content-type")
	t.render("error.gohtml", status, w, &ErrorPageArgs{
		Common: t.populateArgs(w, r, CommonArgs{
			PageTitle: title,
			IsError:   true,
		}),
		ShowLoginForm: login,
		Message:       message,
	})
}

func (t *Templates) render(name string, statusCode int, w http.ResponseWriter, data interface{}) {
	tpl := template.New(name)
	tpl.Funcs(t.funcs())

	buf := &bytes.Buffer{}
	_, err := tpl.ParseFS(t.fs, name, "partials/*.gohtml")
	if err == nil {
		err = tpl.Execute(buf, data)
	}
	if err != nil {
		log.Printf("Error rendering template %s: %v\n", name, err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	_, _ = buf.WriteTo(w)
}

func (t *Templates) funcs() template.FuncMap {
	return template.FuncMap{
		"nodeTypeIcon": t.nodeTypeIcon,
		"diffHtml":     t.diffHtml,
		"helpHtml":     t.helpHtml,
		"day": func(ts time.Time) string {
			return ts.In(t.location).Format("Monday, 2 January 2006")
		},
		"clock": func(ts time.Time) string {
			return ts.In(t.location).Format("15:04")
		},
		"datetime": func(ts time.Time) string {
			return ts.In(t.location).Format("2006-01-02 15:04:05")
		},
	}
}

func (t *Templates) nodeTypeIcon(nodeType string) string {
	if t.icons == nil {
		return ""
	}
	return t.icons.Icon(nodeType)
}

// diffHtml marks up an escaped diff line, keeping only change markers.
func (t *Templates) diffHtml(line string) template.HTML {
	return template.HTML(t.diffPolicy.Sanitize(line))
}

func (t *Templates) helpHtml(message string) template.HTML {
	if message == "" || t.help == nil {
		return ""
	}
	out, err := t.help.Render([]byte(message))
	if err != nil {
		log.Printf("Unable to render help message: %v", err)
		return template.HTML(template.HTMLEscapeString(message))
	}
	return template.HTML(t.helpPolicy.Sanitize(out))
}

func (t *Templates) populateArgs(w http.ResponseWriter, r *http.Request, args CommonArgs) CommonArgs {
	args.SiteTitle = t.title
	args.Version = t.version
	args.User = getUserForRequest(r)

	if args.Error = getErrorForRequest(r); args.Error != "" {
		updateSession(w, r, func(values map[interface{}]interface{}) {
			delete(values, sessionErrorKey)
		})
	}

	args.CsrfField = csrf.TemplateField(r)
	args.RequestedUrl = r.URL.RequestURI()
	return args
}
