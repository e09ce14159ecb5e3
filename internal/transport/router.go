package transport

import (
	"net/http"

	"github.com/rs/cors"
)

type Handler interface {
	submit(w http.ResponseWriter, r *http.Request)
	status(w http.ResponseWriter, r *http.Request)
	artifact(w http.ResponseWriter, r *http.Request)
	cancel(w http.ResponseWriter, r *http.Request)
	health(w http.ResponseWriter, r *http.Request)
}

type router struct {
	h Handler
}

func NewRouter(h Handler) *router {
	return &router{h: h}
}

func (r *router) MountRoutes(mux *http.ServeMux) *http.ServeMux {
	mux.HandleFunc("POST /jobs", r.h.submit)
	mux.HandleFunc("GET /jobs/{id}", r.h.status)
	mux.HandleFunc("GET /jobs/{id}/artifact", r.h.artifact)
	mux.HandleFunc("DELETE /jobs/{id}", r.h.cancel)
	mux.HandleFunc("GET /healthz", r.h.health)

	return mux
}

// Wrap applies the middleware chain in the order requests pass through it.
func Wrap(next http.Handler, corsOrigins []string) http.Handler {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	c := cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Location", "Content-Disposition"},
		MaxAge:         300,
	})

	return WithRecover(LogMiddleware(c.Handler(next)))
}
