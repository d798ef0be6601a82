package api

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

// frontendHandler serves the page directory. Unknown extensionless paths fall
// back to index.html so client-side routes resolve. Without a directory the
// root redirects to the API docs.
func frontendHandler(dir string) http.Handler {
	if dir == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/" {
				http.NotFound(w, r)
				return
			}
			http.Redirect(w, r, "/docs", http.StatusFound)
		})
	}

	fsys := os.DirFS(dir)
	fileServer := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}

		p := path.Clean(r.URL.Path)
		if stat, err := fs.Stat(fsys, strings.TrimPrefix(p, "/")); err == nil && !stat.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}
		if p != "/" && !strings.Contains(path.Base(p), ".") {
			r.URL.Path = "/"
		}
		fileServer.ServeHTTP(w, r)
	})
}
