package http

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/robertarktes/event-sphere/internal/auth"
	"github.com/robertarktes/event-sphere/internal/domain"
	"github.com/robertarktes/event-sphere/internal/service"
)

// Stripe caps webhook payloads well below this.
const maxWebhookBytes = 64 << 10

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	var in service.CheckoutInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.svc.Orders.Checkout(r.Context(), auth.PrincipalFrom(r.Context()), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handlers) VerifySession(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.Orders.VerifySession(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "sessionId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.Orders.ListBuyerOrders(r.Context(), auth.PrincipalFrom(r.Context()), queryInt(r, "page"), queryInt(r, "limit"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.Orders.GetOrder(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// StripeWebhook acknowledges every verified event it has handled. A 5xx
// makes the provider redeliver, which reconciliation tolerates.
func (h *Handlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, r, h.logger, domain.Invalidf("unreadable webhook body"))
		return
	}
	if err := h.svc.Orders.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
