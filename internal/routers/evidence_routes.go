package routers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"peerprep/interview/internal/middleware"
)

// EvidenceRoutes serves stored screenshots to authenticated callers only.
func EvidenceRoutes(router *chi.Mux, jwtSecret, baseURL, dir string) {
	baseURL = strings.TrimRight(baseURL, "/")
	files := http.StripPrefix(baseURL, http.FileServer(http.Dir(dir)))
	router.With(middleware.Auth(jwtSecret)).Handle(baseURL+"/*", files)
}
