package web

import (
	"bytes"
	"context"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"calevents/internal/capture"
	appLog "calevents/internal/log"
)

// Markdown templates carry inline HTML such as <br> and icon tags.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

var previewPage = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{ .Title }}</title>
<style>
body { font-family: sans-serif; margin: 16px; background: #fff; color: #111; }
h1, h2, h3 { margin: 0 0 12px; }
ul { padding-left: 20px; }
li { margin-bottom: 8px; }
.unavailable { color: #a00; }
</style>
</head>
<body>
<div class="card" data-ready="true">
{{ if not .Available }}<p class="unavailable">Calendar data unavailable</p>{{ end }}
{{ .Body }}
</div>
</body>
</html>
`))

type previewData struct {
	Title     string
	Available bool
	Body      template.HTML
}

// RenderMarkdown converts the markdown_text of an entry into HTML.
func RenderMarkdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// handleMarkdownPage renders the markdown sensor attribute of an entry as
// a standalone page. The snapshot capture waits for data-ready="true".
func (s *Server) handleMarkdownPage(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookupEntry(w, r)
	if !ok {
		return
	}
	body, err := RenderMarkdown(e.Summary().Markdown())
	if err != nil {
		appLog.Error("markdown render failed", err, "entry", e.ID())
		http.Error(w, "markdown render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := previewPage.Execute(w, previewData{Title: e.Title(), Available: e.Available(), Body: body}); err != nil {
		appLog.Error("preview page write failed", err, "entry", e.ID())
	}
}

func (s *Server) snapshotPath(entryID string) string {
	return filepath.Join(s.cfg.DataDir, "snapshots", entryID+".png")
}

// previewURL is the address the headless browser loads, going through the
// local listener.
func (s *Server) previewURL(entryID string) string {
	host, port, err := net.SplitHostPort(s.cfg.Listen)
	if err != nil {
		host, port = s.cfg.Listen, "80"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(host, port),
		Path:   "/entries/" + url.PathEscape(entryID) + "/markdown",
	}
	if s.basicAuthEnabled() {
		u.User = url.UserPassword(s.cfg.BasicAuth.Username, s.cfg.BasicAuth.Password)
	}
	return u.String()
}

// handleSnapshot captures the preview page of an entry into a PNG under
// data_dir.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookupEntry(w, r)
	if !ok {
		return
	}
	out := s.snapshotPath(e.ID())
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		writeErr(w, err)
		return
	}

	opts := capture.Options{
		URL:        s.previewURL(e.ID()),
		OutputPath: out,
		Width:      s.cfg.Snapshot.Width,
		Height:     s.cfg.Snapshot.Height,
	}
	// The capture outlives a client that hangs up.
	ctx := context.WithoutCancel(r.Context())
	if err := s.capture(ctx, opts); err != nil {
		writeErr(w, err)
		return
	}
	appLog.Info("snapshot captured", "entry", e.ID(), "path", out)
	writeJSON(w, http.StatusOK, map[string]any{
		"entry_id": e.ID(),
		"url":      "/entries/" + e.ID() + "/snapshot.png",
	})
}

func (s *Server) handleSnapshotPNG(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entryID")
	if _, err := s.entries.Get(id); err != nil {
		writeErr(w, err)
		return
	}
	path := s.snapshotPath(id)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "no snapshot taken yet")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, path)
}
