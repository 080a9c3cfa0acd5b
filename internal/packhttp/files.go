package packhttp

import (
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/respack/internal/pathutil"
)

// CacheOptions are Cache-Control values chosen by file extension.
type CacheOptions struct {
	HTML  string // default: "no-cache"
	Asset string // default: "public, max-age=3600"
	Other string // default: "no-cache"
}

func (o *CacheOptions) setDefaults() {
	if o.HTML == "" {
		o.HTML = "no-cache"
	}
	if o.Asset == "" {
		o.Asset = "public, max-age=3600"
	}
	if o.Other == "" {
		o.Other = "no-cache"
	}
}

func (o *CacheOptions) forFile(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".html", ".htm", "":
		return o.HTML
	case ".css", ".js", ".mjs", ".png", ".jpg", ".jpeg", ".webp", ".gif", ".svg", ".ico",
		".woff", ".woff2", ".ttf", ".map":
		return o.Asset
	default:
		return o.Other
	}
}

// files serves the file entries of the active pack under /files/*.
// A directory serves its index.html; a directory requested without a
// trailing slash is redirected to the slash form.
func (s *Server) files(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.holder.Get()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no pack loaded")
		return
	}

	name, redirect, found := resolve(chi.URLParam(r, "*"), snap.FS)
	if redirect {
		http.Redirect(w, r, r.URL.Path+"/", http.StatusPermanentRedirect)
		return
	}
	if !found {
		w.Header().Set("Cache-Control", "no-store")
		http.NotFound(w, r)
		return
	}

	if cc := s.cache.forFile(name); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}
	if snap.SHA256 != "" {
		// every file in a pack changes together, so the pack digest is a valid validator
		w.Header().Set("ETag", `W/"`+snap.SHA256[:min(16, len(snap.SHA256))]+`"`)
	}
	http.ServeFileFS(w, r, snap.FS, name)
}

// resolve maps the wildcard part of the URL onto an FS name.
func resolve(p string, fsys fs.FS) (name string, redirect, ok bool) {
	if strings.ContainsAny(p, "\x00\\") || pathutil.HasDotSegments(p) {
		return "", false, false
	}
	dir := p == "" || strings.HasSuffix(p, "/")
	p = strings.Trim(p, "/")

	if dir {
		name = path.Join(p, "index.html")
		return name, false, isFile(fsys, name)
	}
	if isFile(fsys, p) {
		return p, false, true
	}
	if path.Ext(p) == "" && isFile(fsys, path.Join(p, "index.html")) {
		return "", true, false
	}
	return "", false, false
}

func isFile(fsys fs.FS, name string) bool {
	if !fs.ValidPath(name) || name == "." {
		return false
	}
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}
