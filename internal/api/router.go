package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Service Scheduler
	DB      Pinger
	Cache   Pinger
	Logger  zerolog.Logger
	Env     string
	Version string
	// BookingRateLimit is POST /appointments requests per minute per IP; 0 disables it.
	BookingRateLimit int
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.DB, cfg.Cache, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/clinics", listClinicsHandler(cfg.Service, cfg.Logger))
	r.Get("/slots", listSlotsHandler(cfg.Service, cfg.Logger))
	r.Get("/availability", availabilityHandler(cfg.Service, cfg.Logger))

	r.Route("/appointments", func(r chi.Router) {
		r.Get("/", listAppointmentsHandler(cfg.Service, cfg.Logger))
		r.Group(func(r chi.Router) {
			if cfg.BookingRateLimit > 0 {
				r.Use(httprate.LimitByIP(cfg.BookingRateLimit, time.Minute))
			}
			r.Post("/", bookAppointmentHandler(cfg.Service, cfg.Logger))
		})
	})

	return r
}
