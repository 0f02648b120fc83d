package http

import (
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"finsight/internal/core"
)

const (
	layoutTemplate   = "templates/layout.html"
	partialsTemplate = "templates/partials.html"
)

// parseTemplates builds one template set per page, each sharing the layout
// and partials. Pages are keyed by file name.
func parseTemplates(fsys fs.FS) (map[string]*template.Template, error) {
	base, err := template.New("").Funcs(templateFuncs).ParseFS(fsys, layoutTemplate, partialsTemplate)
	if err != nil {
		return nil, err
	}

	files, err := fs.Glob(fsys, "templates/*.html")
	if err != nil {
		return nil, err
	}
	pages := make(map[string]*template.Template, len(files))
	for _, f := range files {
		if f == layoutTemplate || f == partialsTemplate {
			continue
		}
		t, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(fsys, f); err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		pages[path.Base(f)] = t
	}
	return pages, nil
}

var templateFuncs = template.FuncMap{
	"money": core.FormatMoney,
	"amount": func(d decimal.Decimal) string {
		return d.StringFixed(2)
	},
	"pct": func(d decimal.Decimal) string {
		return d.Round(1).String()
	},
	// bar clamps a percentage to 0..100 for progress bar widths.
	"bar": func(d decimal.Decimal) string {
		switch {
		case d.IsNegative():
			return "0"
		case d.GreaterThan(decimal.NewFromInt(100)):
			return "100"
		}
		return d.Round(1).String()
	},
	"date": func(d core.Date) string {
		if d.IsZero() {
			return ""
		}
		return d.Format("Jan 2, 2006")
	},
	"datetime": func(t time.Time) string {
		return t.Format("Jan 2, 2006 15:04")
	},
	"lastSynced": func(t *time.Time) string {
		if t == nil {
			return "never"
		}
		return t.Format("Jan 2, 2006 15:04")
	},
	"title": capitalize,
	"idstr": func(id int64) string {
		return strconv.FormatInt(id, 10)
	},
	"add": func(a, b int) int { return a + b },
	"sub": func(a, b int) int { return a - b },
	"negative": func(d decimal.Decimal) bool {
		return d.IsNegative()
	},
}
