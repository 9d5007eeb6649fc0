// Package uploadserver is the receiving end of the upload client: it checks
// the credential, stores the image under a fresh name and answers with the
// public URL as plain text.
package uploadserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"screenshotr/src/resolver"
	"screenshotr/src/serverconfig"
)

// NotAuthorized is the literal body clients look for on a bad credential.
const NotAuthorized = "not authorized"

type Server struct {
	Cfg   *serverconfig.Config
	Store resolver.Store
}

// NewServer opens the store described by cfg and returns the router.
func NewServer(cfg *serverconfig.Config) (http.Handler, *Server, error) {
	pattern, err := resolver.ParsePattern(cfg.FilePattern)
	if err != nil {
		return nil, nil, err
	}
	store, err := resolver.Open(resolver.Options{
		Dir:       cfg.UploadDir,
		Pattern:   pattern,
		Strategy:  cfg.Naming,
		CounterDB: cfg.CounterDB,
	})
	if err != nil {
		return nil, nil, err
	}

	srv := &Server{Cfg: cfg, Store: store}
	return srv.Routes(), srv, nil
}

func (s *Server) Routes() http.Handler {
	rtr := chi.NewRouter()
	rtr.Use(middleware.RequestID)
	rtr.Use(middleware.RealIP)
	rtr.Use(middleware.Logger)
	rtr.Use(middleware.Recoverer)

	rtr.Post("/", s.postUpload)
	rtr.Post("/upload", s.postUpload)
	rtr.Get("/files/{name}", s.getFile)
	rtr.Get("/healthz", s.health)
	return rtr
}

func (s *Server) Close() error {
	return s.Store.Close()
}
