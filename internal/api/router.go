package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lightshow/lightshow/internal/api/common"
	"github.com/lightshow/lightshow/internal/api/handlers"
	"github.com/lightshow/lightshow/internal/config"
	"github.com/lightshow/lightshow/internal/middleware"
)

// NewRouter creates and configures the control API router
func NewRouter(deps *common.Dependencies, cors config.CORSConfig) http.Handler {
	logger := deps.Logger.With("component", "api")
	deps.Logger = logger
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	if cors.Enabled {
		r.Use(middleware.CORS(cors))
	}

	healthHandler := NewHealthHandler(deps)
	systemHandler := handlers.NewSystemHandler(deps)
	animationHandler := handlers.NewAnimationHandler(deps)
	generatorHandler := handlers.NewGeneratorHandler(deps)

	// Public routes (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", systemHandler.Login)

		// Protected routes (require JWT)
		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(deps.Auth))

			r.Get("/plugins", systemHandler.ListPlugins)
			r.Get("/status", systemHandler.Status)

			r.Route("/animation", func(r chi.Router) {
				r.Put("/", animationHandler.Select)
				r.Post("/restart", animationHandler.Restart)
				r.Post("/respawn", animationHandler.Respawn)
				r.Get("/schema", animationHandler.Schema)
				r.Get("/parameters", animationHandler.GetParameters)
				r.Put("/parameters", animationHandler.SetParameters)
			})

			r.Route("/generators", func(r chi.Router) {
				r.Get("/", generatorHandler.List)
				r.Get("/{name}/parameters", generatorHandler.GetParameters)
				r.Put("/{name}/parameters", generatorHandler.SetParameters)
				r.Post("/{name}/restart", generatorHandler.Restart)
			})
		})
	})

	if deps.Preview != nil {
		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(deps.Auth))
			r.Handle("/ws/preview", deps.Preview)
		})
	}

	return r
}
