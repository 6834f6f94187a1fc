package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront/internal/authz"
)

// Identity headers set by the access facade in front of this service.
const (
	HeaderSubjectID   = "X-Subject-Id"
	HeaderSubjectRole = "X-Subject-Role"
)

func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("subject", r.Header.Get(HeaderSubjectID)))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// RequireActor turns the identity headers into an authz.Actor on the request
// context and answers 401 when they are missing or malformed.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := r.Header.Get(HeaderSubjectID)
		if subject == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + HeaderSubjectID, Code: "unauthenticated"})
			return
		}
		role, err := authz.ParseRole(r.Header.Get(HeaderSubjectRole))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error(), Code: "unauthenticated"})
			return
		}
		ctx := authz.WithActor(r.Context(), authz.Actor{SubjectID: subject, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(r *http.Request) authz.Actor {
	a, _ := authz.ActorFrom(r.Context())
	return a
}
