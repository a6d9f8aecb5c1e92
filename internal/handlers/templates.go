package handlers

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/snappy-loop/feeled/internal/catalog"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// pageTemplates is the parsed set of all page templates.
var pageTemplates = mustParseTemplates()

func mustParseTemplates() *template.Template {
	t, err := template.New("").Funcs(template.FuncMap{"dict": dict}).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		panic("parse templates: " + err.Error())
	}
	return t
}

// dict builds a map from key/value pairs so partials can take several arguments.
func dict(pairs ...interface{}) (map[string]interface{}, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("dict: odd number of arguments")
	}
	m := make(map[string]interface{}, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is not a string", pairs[i])
		}
		m[key] = pairs[i+1]
	}
	return m, nil
}

// executeTemplate executes the named template (e.g. "index") with data into w.
func executeTemplate(w io.Writer, name string, data interface{}) error {
	return pageTemplates.ExecuteTemplate(w, name, data)
}

// indexData feeds the form selects.
type indexData struct {
	Catalog *catalog.Catalog
}

// Index handles GET /
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := executeTemplate(w, "index", indexData{Catalog: h.catalog}); err != nil {
		log.Error().Err(err).Msg("Failed to render index")
	}
}
