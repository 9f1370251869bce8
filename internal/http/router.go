package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrJamesThe3rd/ironyard/internal/http/auth"
	"github.com/MrJamesThe3rd/ironyard/internal/http/importcsv"
	"github.com/MrJamesThe3rd/ironyard/internal/http/listing"
	"github.com/MrJamesThe3rd/ironyard/internal/http/render"
	"github.com/MrJamesThe3rd/ironyard/internal/http/sweep"
)

type Options struct {
	AllowedOrigins []string
}

func New(
	verifier *auth.Verifier,
	listingsV1 *listing.Handler,
	importV1 *importcsv.Handler,
	sweepInternal *sweep.Handler,
	opts Options,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		render.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Group(func(r chi.Router) {
		r.Use(verifier.Middleware)

		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/listings", func(r chi.Router) {
				r.Use(middleware.AllowContentType("application/json"))
				listingsV1.Routes(r)
			})

			r.Route("/ref", func(r chi.Router) {
				r.Use(middleware.AllowContentType("application/json"))
				listingsV1.RefRoutes(r)
			})

			r.Route("/import", func(r chi.Router) {
				r.Use(auth.RequireUser)
				importV1.Routes(r)
			})
		})

		r.Route("/internal/sweep", func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			sweepInternal.Routes(r)
		})
	})

	return router
}
