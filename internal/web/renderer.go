package web

import (
	"embed"
	"fmt"
	"html/template"
	"path"
	"time"

	"github.com/MarcoPoloResearchLab/polly/internal/polls"
	"github.com/gin-contrib/multitemplate"
)

//go:embed templates
var templateFiles embed.FS

// Page names accepted by the renderer.
const (
	PageHome      = "home.html"
	PagePollList  = "polls/list.html"
	PagePollNew   = "polls/create.html"
	PagePoll      = "polls/detail.html"
	PageLogin     = "auth/login.html"
	PageRegister  = "auth/register.html"
	PageDashboard = "dashboard/overview.html"
	PageError     = "error.html"
)

var pages = []string{
	PageHome,
	PagePollList,
	PagePollNew,
	PagePoll,
	PageLogin,
	PageRegister,
	PageDashboard,
	PageError,
}

// Flash is a one-shot notification shown at the top of the next rendered page.
type Flash struct {
	Kind    string
	Message string
}

// Viewer describes the signed-in user for the navbar.
type Viewer struct {
	ID    string
	Email string
	Name  string
}

// Label is the name shown for the viewer.
func (v Viewer) Label() string {
	if v.Name != "" {
		return v.Name
	}
	return v.Email
}

// PollCard is a poll summary with its author's display name.
type PollCard struct {
	Summary polls.PollSummary
	Author  string
}

// NewRenderer parses the embedded layout, includes and views into a multitemplate renderer.
func NewRenderer(clock func() time.Time) (multitemplate.Renderer, error) {
	renderer := multitemplate.NewRenderer()
	funcs := NewFuncMap(clock)
	for _, page := range pages {
		tmpl, err := template.New(path.Base(page)).Funcs(funcs).ParseFS(
			templateFiles,
			"templates/layouts/base.html",
			"templates/includes/*.html",
			"templates/views/"+page,
		)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", page, err)
		}
		renderer.Add(page, tmpl.Lookup("base.html"))
	}
	return renderer, nil
}
