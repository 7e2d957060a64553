package web

import (
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
	"github.com/kozaktomas/face-attendance/internal/web/static"
)

func (s *Server) setupRoutes() {
	svc := s.deps.Service
	logger := s.logger

	authHandler := handlers.NewAuthHandler(s.config.Web.AdminPIN, s.sessionManager, logger)
	healthHandler := handlers.NewHealthHandler(s.deps.DB)
	kioskHandler := handlers.NewKioskHandler(svc.Window)
	recognizeHandler := handlers.NewRecognizeHandler(svc.Recognizer, logger)
	identitiesHandler := handlers.NewIdentitiesHandler(svc, logger)
	reportsHandler := handlers.NewReportsHandler(svc, s.deps.Reports, logger)
	sweepsHandler := handlers.NewSweepsHandler(svc, logger)

	// Health check and metrics (no auth required)
	s.router.Get("/api/v1/health", healthHandler.Check)
	s.router.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		// Kiosk surface
		r.Get("/kiosk", kioskHandler.Config)
		r.Post("/recognize", recognizeHandler.Recognize)

		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/status", authHandler.Status)

		// Admin surface
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.sessionManager))

			r.Get("/identities", identitiesHandler.List)
			r.Post("/identities", identitiesHandler.Create)

			r.Post("/reports/monthly", reportsHandler.Monthly)
			r.Get("/reports/daily", reportsHandler.Daily)

			r.Post("/sweeps", sweepsHandler.Create)
		})
	})

	// Kiosk page
	s.router.Get("/*", s.serveSPA)
}

// serveSPA serves the embedded kiosk page and its assets.
func (s *Server) serveSPA(w http.ResponseWriter, r *http.Request) {
	if !static.HasDist() {
		http.NotFound(w, r)
		return
	}

	fs := static.GetFileSystem()
	p := r.URL.Path
	if p == "/" {
		p = "/index.html"
	}

	if f, err := fs.Open(p); err == nil {
		defer f.Close()
		if stat, err := f.Stat(); err == nil && !stat.IsDir() {
			contentType := mime.TypeByExtension(path.Ext(p))
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			w.Header().Set("Content-Type", contentType)
			if strings.HasPrefix(p, "/assets/") {
				w.Header().Set("Cache-Control", "public, max-age=3600")
			}
			w.WriteHeader(http.StatusOK)
			_, _ = io.Copy(w, f)
			return
		}
	}

	// Unknown non-asset paths fall back to the kiosk page
	if strings.HasPrefix(p, "/assets/") || strings.HasPrefix(p, "/api/") {
		http.NotFound(w, r)
		return
	}
	indexFile, err := fs.Open("/index.html")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer indexFile.Close()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, indexFile)
}
