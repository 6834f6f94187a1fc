package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Registrar mounts a group of routes under /api.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter builds the API router. Every /api route requires an actor.
func NewRouter(log *zap.Logger, groups ...Registrar) *chi.Mux {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, RequestLogger(log), middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Route("/api", func(api chi.Router) {
		api.Use(RequireActor)
		for _, g := range groups {
			g.Register(api)
		}
	})
	return r
}
