package app

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/illimit3/jiagu-ai-drawing-website-db/internal/config"
	"github.com/illimit3/jiagu-ai-drawing-website-db/internal/gallery"
	"github.com/illimit3/jiagu-ai-drawing-website-db/internal/generation"
	"github.com/illimit3/jiagu-ai-drawing-website-db/internal/middleware"
)

type App struct {
	cfg     config.Config
	gallery *gallery.Service
	proxy   *generation.Proxy
	limiter *middleware.IPRateLimiter
	log     zerolog.Logger
}

func New(cfg config.Config, svc *gallery.Service, proxy *generation.Proxy, log zerolog.Logger) *App {
	return &App{
		cfg:     cfg,
		gallery: svc,
		proxy:   proxy,
		limiter: middleware.NewIPRateLimiter(cfg.GenerateRatePerMinute, log),
		log:     log,
	}
}

// Close releases background resources held by the router.
func (a *App) Close() {
	a.limiter.Close()
}

func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger(a.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.allowedOrigins(),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/upload", a.handleUploadShort)

	r.Route("/api", func(api chi.Router) {
		api.Post("/upload", a.handleUpload)
		api.Get("/images", a.handleListImages)
		api.Post("/images/{id}/like", a.handleToggleLike)
		api.Post("/images/{id}/comments", a.handleAddComment)
		api.Get("/images/{id}/comments", a.handleListComments)
	})

	// Every route here spends upstream credit.
	r.Group(func(g chi.Router) {
		g.Use(a.limiter.Middleware(a.handleRateLimited))
		g.Get("/test-api-key", a.handleTestAPIKey)
		g.Post("/generate", a.handleGenerate)
		g.Get("/fetch-result", a.handleFetchResult)
	})

	if a.cfg.StorageDriver != "r2" && a.cfg.UploadDir != "" {
		uploads := http.StripPrefix("/uploads/", http.FileServer(http.Dir(a.cfg.UploadDir)))
		r.Handle("/uploads/*", uploads)
	}
	if a.cfg.PublicDir != "" {
		if info, err := os.Stat(a.cfg.PublicDir); err == nil && info.IsDir() {
			r.Handle("/*", http.FileServer(http.Dir(filepath.Clean(a.cfg.PublicDir))))
		} else {
			a.log.Warn().Str("dir", a.cfg.PublicDir).Msg("public directory not found, static assets disabled")
		}
	}

	return r
}

func (a *App) allowedOrigins() []string {
	if len(a.cfg.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return a.cfg.AllowedOrigins
}
