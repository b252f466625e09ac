// Package handler contains the HTTP request handlers: the login, register
// and OAuth routes, the news pages and the health check.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming request (query params, form or JSON body, cookies)
//  2. Call a service
//  3. Write the response (a rendered page, a redirect or JSON)
//
// Handlers hold no business rules. Which account a login lands on, how the
// feed falls back and how long a session lasts are all decided elsewhere.
package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/sakif/newsroom/internal/auth"
	"github.com/sakif/newsroom/internal/model"
)

// Page names. Each is parsed together with base.html into its own template
// set, so every page can define its own "content" block.
const (
	PageHome     = "home"
	PageLogin    = "login"
	PageRegister = "register"
)

// User-facing messages.
const (
	msgRegistered     = "Cadastro realizado com sucesso!"
	msgDuplicateEmail = "Email já está em uso."
	msgServerError    = "Erro no servidor. Tente novamente."
	msgInvalidInput   = "Verifique os campos destacados."
)

// PageData is everything the templates can read.
type PageData struct {
	Title   string
	User    *model.User // nil when anonymous
	Feed    *model.FeedPage
	Message string            // banner text (errors on the register page)
	Errors  map[string]string // per-field validation messages
	Email   string            // re-filled form values
	Name    string

	// Which OAuth buttons to show.
	GoogleEnabled bool
	GitHubEnabled bool
}

// Renderer holds the parsed templates so they are not re-parsed on every
// request.
type Renderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

// NewRenderer parses base.html with every page template found in
// templateDir. A missing or broken template fails startup rather than the
// first request.
func NewRenderer(templateDir string, logger *slog.Logger) (*Renderer, error) {
	pages := make(map[string]*template.Template)
	for _, name := range []string{PageHome, PageLogin, PageRegister} {
		tmpl, err := template.ParseFiles(
			filepath.Join(templateDir, "base.html"),
			filepath.Join(templateDir, name+".html"),
		)
		if err != nil {
			return nil, fmt.Errorf("handler: parsing %s template: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &Renderer{pages: pages, logger: logger}, nil
}

// Render executes the "base" template of page with data.
//
// The page is rendered into a buffer first so a template error can still
// become a clean 500 instead of half a page.
func (rd *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, page string, data PageData) {
	tmpl, ok := rd.pages[page]
	if !ok {
		rd.logger.Error("unknown page template", slog.String("page", page))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if data.User == nil {
		data.User, _ = auth.UserFromContext(r.Context())
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		rd.logger.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		rd.logger.Debug("client went away while writing page", slog.String("error", err.Error()))
	}
}
