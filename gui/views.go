package gui

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"strconv"
)

//go:embed templates/*.html
var templateFiles embed.FS

// Views holds the parsed admin templates. Pages share layout.html, partials
// are rendered standalone into JSON payloads.
type Views struct {
	pages    map[string]*template.Template
	partials *template.Template
}

var funcs = template.FuncMap{
	"add": func(a, b int) int { return a + b },
	"mul": func(a, b int) int { return a * b },
	"seq": func(n int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	},
	"pageURL": func(base url.Values, page int) string {
		q := url.Values{}
		for k, v := range base {
			q[k] = v
		}
		q.Set("page", strconv.Itoa(page))
		return "?" + q.Encode()
	},
}

var pageNames = []string{"user_list.html", "login.html"}

func LoadViews() (*Views, error) {
	partials, err := template.New("partials").Funcs(funcs).ParseFS(templateFiles, "templates/user_table.html", "templates/offcanvas.html")
	if err != nil {
		return nil, fmt.Errorf("parse partials: %w", err)
	}
	v := &Views{pages: map[string]*template.Template{}, partials: partials}
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFiles, "templates/layout.html", "templates/user_table.html", "templates/offcanvas.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse page %s: %w", name, err)
		}
		v.pages[name] = t
	}
	return v, nil
}

func MustLoadViews() *Views {
	v, err := LoadViews()
	if err != nil {
		panic(err)
	}
	return v
}

func (v *Views) Page(w io.Writer, name string, data any) error {
	t, ok := v.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %s", name)
	}
	return t.ExecuteTemplate(w, "layout", data)
}

func (v *Views) Partial(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := v.partials.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
