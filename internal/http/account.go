package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/robertarktes/event-sphere/internal/auth"
	"github.com/robertarktes/event-sphere/internal/service"
)

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	me, err := h.svc.Users.Me(r.Context(), auth.PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, me)
}

func (h *Handlers) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var patch service.UserPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	me, err := h.svc.Users.Update(r.Context(), auth.PrincipalFrom(r.Context()), patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, me)
}

func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.Categories.List(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": categories})
}

func (h *Handlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var in service.CategoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	category, err := h.svc.Categories.Create(r.Context(), auth.PrincipalFrom(r.Context()), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (h *Handlers) SignUpload(w http.ResponseWriter, r *http.Request) {
	var in service.UploadInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	signed, err := h.svc.Uploads.Sign(r.Context(), auth.PrincipalFrom(r.Context()), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, signed)
}

func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	unread := r.URL.Query().Get("unread") == "true"
	list, err := h.svc.Notifications.List(r.Context(), auth.PrincipalFrom(r.Context()), unread)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": list})
}

func (h *Handlers) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Notifications.MarkRead(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Notifications.Delete(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
