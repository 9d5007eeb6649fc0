package uploadserver

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsRune(name, '\\') {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.Cfg.UploadDir, name))
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "ok")
}
