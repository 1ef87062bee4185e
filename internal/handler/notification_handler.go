package handler

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"miniups-gateway/internal/domain"
	"miniups-gateway/internal/middleware"
	"miniups-gateway/internal/service"
	"miniups-gateway/pkg/response"
)

type NotificationHandler struct {
	service  *service.NotificationService
	validate *validator.Validate
}

func NewNotificationHandler(service *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		service:  service,
		validate: validator.New(),
	}
}

// filtersFromQuery reads ?type=a,b&priority=high&status=unread&entity=shipment.
// It returns nil when no filter parameter is present.
func filtersFromQuery(r *http.Request) *domain.NotificationFilters {
	q := r.URL.Query()
	if q.Get("type") == "" && q.Get("priority") == "" && q.Get("status") == "" && q.Get("entity") == "" {
		return nil
	}

	f := &domain.NotificationFilters{
		Status:            domain.NotificationStatus(q.Get("status")),
		RelatedEntityType: q.Get("entity"),
	}
	for _, t := range splitList(q.Get("type")) {
		f.Types = append(f.Types, domain.NotificationType(t))
	}
	for _, p := range splitList(q.Get("priority")) {
		f.Priorities = append(f.Priorities, domain.NotificationPriority(p))
	}
	return f
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	list := h.service.List(r.Context(), middleware.GetUserID(r), filtersFromQuery(r))
	if list == nil {
		list = []*domain.Notification{}
	}
	response.Success(w, list)
}

func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.Get(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, n)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]int{"unread": h.service.UnreadCount(r.Context(), middleware.GetUserID(r))})
}

func (h *NotificationHandler) Status(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]domain.ConnectionStatus{
		"status": h.service.ConnectionStatus(r.Context(), middleware.GetUserID(r)),
	})
}

func (h *NotificationHandler) Sync(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Sync(r.Context(), middleware.GetUserID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, result)
}

func (h *NotificationHandler) SetFilters(w http.ResponseWriter, r *http.Request) {
	var filters domain.NotificationFilters
	if !decodeAndValidate(w, r, h.validate, &filters) {
		return
	}
	h.service.SetFilters(r.Context(), middleware.GetUserID(r), filters)
	response.Success(w, filters)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.service.MarkRead(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w)
}

type markReadRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

func (h *NotificationHandler) MarkManyRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	marked, err := h.service.MarkManyRead(r.Context(), middleware.GetUserID(r), req.IDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, map[string]int{"marked": marked})
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	marked, err := h.service.MarkAllRead(r.Context(), middleware.GetUserID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, map[string]int{"marked": marked})
}

func (h *NotificationHandler) Archive(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Archive(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w)
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w)
}

func (h *NotificationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.service.Stats(r.Context(), middleware.GetUserID(r)))
}

func (h *NotificationHandler) Preferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.service.Preferences(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, prefs)
}

func (h *NotificationHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var prefs domain.NotificationPreferences
	if !decodeAndValidate(w, r, h.validate, &prefs) {
		return
	}

	updated, err := h.service.UpdatePreferences(r.Context(), &prefs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, updated)
}
