package uploadserver

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"screenshotr/src/logutil"
	"screenshotr/src/screenshot"
)

// postUpload accepts either protocol. With a shared secret configured the
// body must be secret ++ NUL ++ image; with http_user set the request must
// carry matching basic auth. Both are enforced when both are configured.
func (s *Server) postUpload(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	if s.Cfg.HTTPUser != "" && !s.basicAuthOK(r) {
		log.Printf("upload[%s]: basic auth rejected", reqID)
		w.Header().Set("WWW-Authenticate", `Basic realm="screenshotr"`)
		writeText(w, http.StatusUnauthorized, NotAuthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.Cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeText(w, http.StatusBadRequest, "failed to read body")
		return
	}

	data := body
	if s.Cfg.Password != "" {
		secret, rest, ok := bytes.Cut(body, []byte{0})
		if !ok || subtle.ConstantTimeCompare(secret, []byte(s.Cfg.Password)) != 1 {
			// The legacy client only inspects the body, so the status stays 200.
			log.Printf("upload[%s]: secret rejected (nul=%v)", reqID, ok)
			writeText(w, http.StatusOK, NotAuthorized)
			return
		}
		data = rest
	}

	if len(data) == 0 {
		writeText(w, http.StatusBadRequest, "empty upload")
		return
	}
	if !screenshot.IsPNG(data) {
		log.Printf("upload[%s]: payload is not a PNG, storing anyway", reqID)
	}

	name, err := s.Store.Save(r.Context(), data)
	if err != nil {
		log.Printf("upload[%s]: save failed: %v", reqID, err)
		writeText(w, http.StatusInternalServerError, "error: "+err.Error())
		return
	}

	url := s.Cfg.BasePath + name
	log.Printf("upload[%s]: stored %d bytes as %s", reqID, len(data), logutil.Sanitize(url))
	writeText(w, http.StatusOK, url)
}

func (s *Server) basicAuthOK(r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.Cfg.HTTPUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.Cfg.HTTPPassword)) == 1
	return userOK && passOK
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
