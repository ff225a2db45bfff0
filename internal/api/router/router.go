// Package router assembles the HTTP surface: the chat and FAQ endpoints,
// the direct scheduling API, the websocket widget, and operational routes.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/letsdeepchat/MedAppAuto/internal/http/handlers"
	httpmiddleware "github.com/letsdeepchat/MedAppAuto/internal/http/middleware"
	"github.com/letsdeepchat/MedAppAuto/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger       *logging.Logger
	Chat         *handlers.ChatHandler
	Appointments *handlers.AppointmentsHandler

	// WebchatHandler serves the websocket endpoint; optional.
	WebchatHandler http.Handler

	// MetricsHandler exposes Prometheus metrics; optional.
	MetricsHandler http.Handler

	CORSAllowedOrigins []string

	// ChatRatePerSecond throttles the conversational endpoints per session.
	// Zero disables rate limiting.
	ChatRatePerSecond float64
	ChatBurst         int
}

// New creates the chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/healthz", cfg.Appointments.Health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		api.Group(func(chat chi.Router) {
			if cfg.ChatRatePerSecond > 0 {
				burst := cfg.ChatBurst
				if burst <= 0 {
					burst = 5
				}
				chat.Use(httpmiddleware.RateLimit(cfg.ChatRatePerSecond, burst))
			}
			chat.Post("/chat", cfg.Chat.HandleMessage)
			chat.Post("/faq", cfg.Chat.HandleFAQ)
		})

		api.Get("/availability", cfg.Appointments.Availability)
		api.Post("/book", cfg.Appointments.Book)
		api.Route("/appointments/{id}", func(appt chi.Router) {
			appt.Get("/", cfg.Appointments.Get)
			appt.Put("/", cfg.Appointments.Reschedule)
			appt.Delete("/", cfg.Appointments.Cancel)
		})
	})

	if cfg.WebchatHandler != nil {
		r.Handle("/ws/chat", cfg.WebchatHandler)
	}

	return r
}
