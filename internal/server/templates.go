package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/jonathan/problem-workshop/internal/activity"
	"github.com/jonathan/problem-workshop/internal/steps"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names
const (
	pageIndex = "index.html"
	pageCode  = "code.html"
	pageError = "error.html"
	pageStep  = "step.html"
)

// pageData is the data every page template is executed with.
type pageData struct {
	Title string
	Shell *steps.Shell
	Step  *steps.StepView
	Error string

	// index
	Activities []*activity.Definition
	Key        string
	KeyAbbrev  string

	// code entry
	Code       string
	CodeAction string
	SkipAction string

	// load error
	Message     string
	RetryAction string
}

// renderer holds one parsed template set per page, each sharing the layout.
type renderer struct {
	pages map[string]*template.Template
}

func newRenderer() (*renderer, error) {
	rd := &renderer{pages: make(map[string]*template.Template)}
	for _, name := range []string{pageIndex, pageCode, pageError, pageStep} {
		tmpl, err := template.New(name).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		rd.pages[name] = tmpl
	}
	return rd, nil
}

// render executes page into a buffer and writes it with status.
func (rd *renderer) render(w http.ResponseWriter, status int, page string, data *pageData) error {
	tmpl, ok := rd.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("failed to render %s: %w", page, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
