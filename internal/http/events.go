package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/robertarktes/event-sphere/internal/auth"
	"github.com/robertarktes/event-sphere/internal/domain"
	"github.com/robertarktes/event-sphere/internal/service"
)

func eventQuery(r *http.Request) domain.EventQuery {
	v := r.URL.Query()
	return domain.EventQuery{
		Query:      v.Get("q"),
		CategoryID: v.Get("category"),
		Page:       queryInt(r, "page"),
		Limit:      queryInt(r, "limit"),
		Cursor:     v.Get("cursor"),
	}
}

func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Events.Query(r.Context(), eventQuery(r)))
}

func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.Events.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *Handlers) RelatedEvents(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.Events.Related(r.Context(), chi.URLParam(r, "id"), eventQuery(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handlers) OrganizerEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Events.ByOrganizer(r.Context(), chi.URLParam(r, "id"), eventQuery(r)))
}

func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var in service.EventInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	event, err := h.svc.Events.Create(r.Context(), auth.PrincipalFrom(r.Context()), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (h *Handlers) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var patch service.EventPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	event, err := h.svc.Events.Update(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *Handlers) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Events.Delete(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) EventOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.Events.Orders(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": orders})
}
