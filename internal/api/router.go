package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterOptions struct {
	AllowedOrigins []string
	// Socket is mounted at /ws in push mode; nil leaves it out.
	Socket    http.Handler
	StaticDir string
}

func Router(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.ClientConfig)
		r.Get("/messages", h.ListMessages)
		r.Put("/messages/{id}", h.UpdateMessage)
		r.Post("/reply", h.Reply)
		r.Post("/webhook", h.Webhook)
	})

	if opts.Socket != nil {
		r.Handle("/ws", opts.Socket)
	}

	if opts.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(opts.StaticDir)))
	} else {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("sms-inbox"))
		})
	}

	return r
}
