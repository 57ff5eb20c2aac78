package view

import (
	"embed"
	"html/template"
	"io"
	"strings"

	"termslens/internal/chat"
	"termslens/internal/models"
	"termslens/internal/services"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed templates/style.css
var StyleCSS []byte

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"markdown": RenderMarkdown,
	"isUser":   func(role string) bool { return role == models.RoleUser },
	"blank":    func(s string) bool { return strings.TrimSpace(s) == "" },
}).ParseFS(templateFS, "templates/*.html"))

// IndexPage is the analyze form. Text and URL echo the last submission when
// it failed.
type IndexPage struct {
	Text           string
	URL            string
	Error          string
	SupportedTypes string
}

// SessionPage shows one analysis with its chat panel.
type SessionPage struct {
	Session     *models.Session
	Result      ResultView
	Suggestions []string
}

func RenderIndex(w io.Writer, page IndexPage) error {
	if page.SupportedTypes == "" {
		page.SupportedTypes = strings.Join(services.SupportedDocumentTypes, ",")
	}
	return templates.ExecuteTemplate(w, "index.html", page)
}

func RenderSession(w io.Writer, session *models.Session) error {
	return templates.ExecuteTemplate(w, "session.html", SessionPage{
		Session:     session,
		Result:      NewResultView(session.Result),
		Suggestions: chat.Suggestions,
	})
}
