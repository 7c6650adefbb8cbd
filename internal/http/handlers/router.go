package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	scmw "github.com/safecircle/safecircle-backend/internal/http/middleware"
	"github.com/safecircle/safecircle-backend/internal/repo/postgres"
	"github.com/safecircle/safecircle-backend/pkg/config"
	"github.com/safecircle/safecircle-backend/pkg/middleware"
)

type RouterDeps struct {
	Auth      *AuthHandler
	Circle    *CircleHandler
	Journey   *JourneyHandler
	WebAccess *WebAccessHandler
	RateRepo  postgres.RequestRateRepository
	IdemStore middleware.IdempotencyStore
	Cfg       *config.Config
}

// NewRouter assembles the full route tree. Auth endpoints sit behind
// a coarse per-IP limiter; everything under /api/v1 except auth needs
// a session; /webaccess is public, the token is the credential.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.ServiceName("safecircle-api"))
	r.Use(middleware.Logging)
	r.Use(middleware.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{deps.Cfg.Public.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(scmw.RateLimit(deps.RateRepo, "auth", 100, 15*time.Minute))
			r.Post("/signup", deps.Auth.Signup)
			r.Post("/login", deps.Auth.Login)
			r.Post("/verify", deps.Auth.Verify)
		})

		r.Group(func(r chi.Router) {
			r.Use(scmw.RequireSession(deps.Cfg.Auth.JWTSecret))

			r.Route("/circle", func(r chi.Router) {
				r.Post("/members", deps.Circle.AddMember)
				r.Get("/members", deps.Circle.ListMembers)

				r.Group(func(r chi.Router) {
					if deps.IdemStore != nil {
						r.Use(middleware.IdempotencyMiddleware(deps.IdemStore))
					}
					r.Post("/alert", deps.Circle.Alert)
				})
			})

			r.Route("/journeys", func(r chi.Router) {
				r.Post("/", deps.Journey.Create)
				r.Post("/{journeyID}/end", deps.Journey.End)
				r.Post("/{journeyID}/emergency", deps.Journey.Emergency)
				r.Get("/{journeyID}/messages", deps.Journey.Messages)
			})
		})
	})

	r.Get("/webaccess/{token}", deps.WebAccess.Redeem)

	return r
}
