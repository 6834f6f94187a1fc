package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/redisx"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type idempotency interface {
	Begin(ctx context.Context, subject, key string) (string, error)
	Complete(ctx context.Context, subject, key, orderID string) error
	Abort(ctx context.Context, subject, key string) error
}

type OrdersHandler struct {
	Engine      *orders.Engine
	Idempotency idempotency // optional
	Log         *zap.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/orders", h.list)
	r.Post("/orders", h.create)
	r.Get("/orders/{id}", h.get)
	r.Put("/orders/{id}/status", h.setStatus)
	r.Put("/orders/{id}/cancel", h.cancel)
}

func (h *OrdersHandler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

// settleCtx detaches from the request deadline so a claimed idempotency key is
// still released or recorded after the order call ran out of time.
func settleCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), time.Second)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Engine.ListOrders(ctx, actorFrom(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrders(list))
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Engine.GetOrder(ctx, actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

// create places an order. With an Idempotency-Key header a repeated request
// from the same subject returns the order the first one created.
func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	actor := actorFrom(r)

	key := r.Header.Get(HeaderIdempotencyKey)
	if key != "" && h.Idempotency != nil {
		existing, err := h.Idempotency.Begin(ctx, actor.SubjectID, key)
		switch {
		case errors.Is(err, redisx.ErrInFlight):
			writeError(w, h.Log, err)
			return
		case err != nil:
			// Redis is an optimisation here; the order store stays authoritative.
			h.log().Warn("idempotency unavailable", zap.String("subject", actor.SubjectID), zap.Error(err))
			key = ""
		case existing != "":
			o, err := h.Engine.GetOrder(ctx, actor, existing)
			if err != nil {
				writeError(w, h.Log, err)
				return
			}
			w.Header().Set("Idempotent-Replayed", "true")
			writeJSON(w, http.StatusOK, toOrder(o))
			return
		}
	} else {
		key = ""
	}

	o, err := h.Engine.CreateOrder(ctx, actor, req.Lines)
	if err != nil {
		if key != "" {
			sctx, scancel := settleCtx(ctx)
			if aerr := h.Idempotency.Abort(sctx, actor.SubjectID, key); aerr != nil {
				h.log().Warn("idempotency abort", zap.Error(aerr))
			}
			scancel()
		}
		writeError(w, h.Log, err)
		return
	}
	if key != "" {
		sctx, scancel := settleCtx(ctx)
		if cerr := h.Idempotency.Complete(sctx, actor.SubjectID, key, o.ID); cerr != nil {
			h.log().Warn("idempotency complete", zap.String("order_id", o.ID), zap.Error(cerr))
		}
		scancel()
	}
	w.Header().Set("Location", "/api/orders/"+o.ID)
	writeJSON(w, http.StatusCreated, toOrder(o))
}

func (h *OrdersHandler) setStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	target, err := orders.ParseStatus(req.Status)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Engine.SetStatus(ctx, actorFrom(r), chi.URLParam(r, "id"), target)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Engine.CancelOrder(ctx, actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}
