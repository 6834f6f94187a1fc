package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront/internal/redisx"
)

type feedReader interface {
	List(ctx context.Context, subject string) ([]redisx.Notification, error)
}

// NotificationsHandler serves the caller's own feed only.
type NotificationsHandler struct {
	Feed feedReader
	Log  *zap.Logger
}

func (h *NotificationsHandler) Register(r chi.Router) {
	r.Get("/notifications", h.list)
}

func (h *NotificationsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	feed, err := h.Feed.List(ctx, actorFrom(r).SubjectID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}
