package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// fileServerHandler serves ui/static with long-lived caching. Missing files get the not found page rendered
// through the session middleware so that the navigation reflects the signed-in state. The session middleware
// must not repeat the timeout applied here.
func (app *application) fileServerHandler(session func(http.Handler) http.Handler) (http.Handler, error) {
	fileRoot := filepath.Join(".", "ui", "static")
	if _, err := os.Stat(fileRoot); os.IsNotExist(err) {
		var dir string
		if dir, err = findModuleDir(); err != nil {
			return nil, fmt.Errorf("findModuleDir: %w", err)
		}
		fileRoot = filepath.Join(dir, "ui", "static")
	}
	if stat, err := os.Stat(fileRoot); err != nil || !stat.IsDir() {
		return nil, fmt.Errorf("file server root %s does not exist or is not a directory", fileRoot)
	}
	fileServer := http.FileServer(http.Dir(fileRoot))
	notFound := session(http.HandlerFunc(app.notFound))

	noAuth := func(next http.Handler) http.Handler {
		return app.recoverPanic(app.logAndTraceRequest(secureHeaders(app.crossOriginProtection(
			commonContext(app.timeout(next))))))
	}

	return noAuth(cacheForever(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cleanPath := filepath.Clean(r.URL.Path)
		if strings.Contains(cleanPath, "..") || strings.HasSuffix(r.URL.Path, "/") {
			notFound.ServeHTTP(w, r)
			return
		}
		if _, err := os.Stat(filepath.Join(fileRoot, cleanPath)); err != nil {
			notFound.ServeHTTP(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	}))), nil
}
