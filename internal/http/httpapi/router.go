// Package httpapi assembles the chi router for the public API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"photorevive/internal/http/handlers"
	"photorevive/internal/middleware"
)

// RouterOptions carries the cross-cutting pieces the route table needs.
type RouterOptions struct {
	JWTSecret       string
	AllowedOrigins  []string
	RateLimitPerMin int
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	StaticDir       string
}

func NewRouter(app *handlers.App, opts RouterOptions, logMW func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
	)
	if logMW != nil {
		r.Use(logMW)
	}
	if len(opts.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(opts.AllowedOrigins))
	}
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
	}
	r.Use(middleware.I18N(opts.DefaultLocale, opts.CountryLookup))

	r.Get("/v1/healthz", app.Health)

	// Vendor callbacks authenticate by external task id lookup, not JWT.
	r.Post("/v1/webhooks/{vendor}", app.WebhookReceive)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))

		r.Route("/v1/jobs", func(r chi.Router) {
			r.Post("/", app.JobsSubmit)
			r.Get("/", app.JobsList)
			r.Get("/{job_id}", app.JobGet)
			r.Get("/{job_id}/status", app.JobStatus)
			r.Get("/{job_id}/archive", app.JobArchive)
			r.Delete("/{job_id}", app.JobDelete)
		})

		r.Route("/v1/credits", func(r chi.Router) {
			r.Get("/balance", app.CreditsBalance)
			r.Get("/transactions", app.CreditsTransactions)
			r.Post("/confirm", app.CreditsConfirm)
		})

		r.Post("/v1/auth/bonus", app.AuthBonus)
	})

	if opts.StaticDir != "" {
		fs := http.StripPrefix("/files/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Get("/files/*", func(w http.ResponseWriter, req *http.Request) {
			fs.ServeHTTP(w, req)
		})
	}

	return r
}
