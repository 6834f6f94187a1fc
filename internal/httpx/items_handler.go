package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

type ItemsHandler struct {
	Engine *orders.Engine
	Log    *zap.Logger
}

func (h *ItemsHandler) Register(r chi.Router) {
	r.Get("/items", h.list(false))
	r.Get("/items/all", h.list(true))
	r.Get("/items/{id}", h.get)
	r.Post("/items", h.create)
	r.Put("/items/{id}", h.update)
	r.Delete("/items/{id}", h.deactivate)
	r.Post("/items/{id}/stock", h.adjustStock)
}

func (h *ItemsHandler) list(all bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		items, err := h.Engine.ListItems(ctx, actorFrom(r), all)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, toItems(items))
	}
}

func (h *ItemsHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	it, err := h.Engine.GetItem(ctx, actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(it))
}

func (h *ItemsHandler) create(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeItem(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	it, err := h.Engine.CreateItem(ctx, actorFrom(r), in)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItem(it))
}

func (h *ItemsHandler) update(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeItem(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	it, err := h.Engine.UpdateItem(ctx, actorFrom(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(it))
}

func (h *ItemsHandler) deactivate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	it, err := h.Engine.DeactivateItem(ctx, actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(it))
}

func (h *ItemsHandler) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	it, err := h.Engine.AdjustStock(ctx, actorFrom(r), chi.URLParam(r, "id"), req.Delta)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(it))
}

func decodeItem(w http.ResponseWriter, r *http.Request) (orders.ItemInput, bool) {
	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return orders.ItemInput{}, false
	}
	in, err := req.input()
	if err != nil {
		badRequest(w, err.Error())
		return orders.ItemInput{}, false
	}
	return in, true
}
