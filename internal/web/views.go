package web

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-desk/internal/account"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/app.css
var appCSS []byte

// Layout carries what every page shows around its content
type Layout struct {
	User        *account.User
	Notice      string
	Error       string
	ScanEnabled bool
}

var templateFuncs = template.FuncMap{
	"money": func(d decimal.Decimal) string {
		return d.StringFixed(2)
	},
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(dateLayout)
	},
}

// views holds one parsed template set per page, each combined with the layout
type views struct {
	pages map[string]*template.Template
}

func newViews() *views {
	v := &views{pages: make(map[string]*template.Template)}
	for _, page := range []string{"invoice_form", "receivables", "login"} {
		v.pages[page] = template.Must(template.New(page).Funcs(templateFuncs).ParseFS(templatesFS,
			"templates/layout.html", "templates/"+page+".html"))
	}
	return v
}

// render executes page into a buffer first so a template error still produces a clean 500
func (v *views) render(w http.ResponseWriter, status int, page string, data any) {
	tmpl, ok := v.pages[page]
	if !ok {
		slog.Error("Unknown page", "page", page)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("Error rendering page", "page", page, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
