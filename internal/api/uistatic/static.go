package uistatic

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed all:app
var consoleFS embed.FS

// Handler serves the browser console. Paths that name no asset get the console page,
// so client side routes such as /sessions/{id} survive a reload. Unknown /v1/ paths
// stay 404 so API typos are not answered with HTML.
func Handler() http.Handler {
	assets, err := fs.Sub(consoleFS, "app")
	if err != nil {
		return http.NotFoundHandler()
	}
	page, err := fs.ReadFile(assets, "index.html")
	if err != nil {
		return http.NotFoundHandler()
	}
	files := http.FileServerFS(assets)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "v1" || strings.HasPrefix(name, "v1/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		if name != "" && name != "index.html" && isAsset(assets, name) {
			files.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		_, _ = w.Write(page)
	})
}

func isAsset(assets fs.FS, name string) bool {
	info, err := fs.Stat(assets, name)
	return err == nil && !info.IsDir()
}
