package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/conorfennell/memnotes/internal/session"
)

// viewData is the data handed to a page template. render adds the
// session-derived keys.
type viewData map[string]any

type templates struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"join": strings.Join,
	"date": func(t time.Time) string { return t.Local().Format("2006-01-02 15:04") },
	"datePtr": func(t *time.Time) string {
		if t == nil {
			return "never"
		}
		return t.Local().Format("2006-01-02 15:04")
	},
	"inc": func(i int) int { return i + 1 },
}

// parseTemplates builds one template set per page, each sharing the layout.
func parseTemplates(fsys fs.FS) (*templates, error) {
	base, err := template.New("base").Funcs(funcs).ParseFS(fsys, "templates/layout.html")
	if err != nil {
		return nil, err
	}
	files, err := fs.Glob(fsys, "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	t := &templates{pages: make(map[string]*template.Template, len(files))}
	for _, file := range files {
		page, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := page.ParseFS(fsys, file); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		t.pages[strings.TrimSuffix(path.Base(file), ".html")] = page
	}
	return t, nil
}

// render writes a full page. Pending flash messages are consumed.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data viewData) {
	page, ok := s.templates.pages[name]
	if !ok {
		s.logger.Error("Unknown template", zap.String("template", name))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if data == nil {
		data = viewData{}
	}
	sess := session.FromContext(r.Context())
	d := sess.Data()
	data["Username"] = d.Username
	data["HasTestSet"] = d.HasTestSet
	data["Flashes"] = sess.PopFlashes()

	var buf bytes.Buffer
	if err := page.ExecuteTemplate(&buf, "layout", data); err != nil {
		s.logger.Error("Failed to render template", zap.String("template", name), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write JSON response", zap.Error(err))
	}
}

// redirect queues msg (when non-empty) and sends the browser to url.
func redirect(w http.ResponseWriter, r *http.Request, url, msg string) {
	if msg != "" {
		session.FromContext(r.Context()).AddFlash(msg)
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

type pager struct {
	Page  int
	Pages int
	Total int
}

func newPager(page, perPage, total int) pager {
	pages := (total + perPage - 1) / perPage
	if pages < 1 {
		pages = 1
	}
	return pager{Page: page, Pages: pages, Total: total}
}

func (p pager) HasPrev() bool { return p.Page > 1 }
func (p pager) HasNext() bool { return p.Page < p.Pages }
func (p pager) Prev() int     { return p.Page - 1 }
func (p pager) Next() int     { return p.Page + 1 }

// formTags collects tag names from repeated "tags" fields, each of which
// may itself be a comma separated list.
func formTags(r *http.Request) []string {
	var names []string
	for _, v := range r.Form["tags"] {
		names = append(names, strings.Split(v, ",")...)
	}
	return names
}
