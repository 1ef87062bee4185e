package handler

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"miniups-gateway/internal/domain"
	"miniups-gateway/internal/middleware"
	"miniups-gateway/internal/service"
	"miniups-gateway/pkg/response"
)

const defaultHistoryLimit = 50

type ConflictHandler struct {
	service  *service.ConflictService
	validate *validator.Validate
}

func NewConflictHandler(service *service.ConflictService) *ConflictHandler {
	return &ConflictHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *ConflictHandler) List(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.service.List(r.Context(), middleware.GetUserID(r)))
}

func (h *ConflictHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Get(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, detail)
}

func (h *ConflictHandler) Activate(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Activate(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, detail)
}

func (h *ConflictHandler) Next(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Next(r.Context(), middleware.GetUserID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, detail)
}

type resolveResponse struct {
	ConflictID  string                 `json:"conflict_id"`
	Resolution  domain.ResolutionEntry `json:"resolution"`
	Resubmitted bool                   `json:"resubmitted"`
	Result      interface{}            `json:"result,omitempty"`
}

func (h *ConflictHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req domain.ResolveConflictRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	id := mux.Vars(r)["id"]
	outcome, err := h.service.Resolve(r.Context(), middleware.GetUserID(r), id, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.SuccessMessage(w, &resolveResponse{
		ConflictID:  id,
		Resolution:  outcome.Entry,
		Resubmitted: outcome.Resubmitted,
		Result:      outcome.Result,
	}, "Conflict resolved")
}

func (h *ConflictHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Cancel(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.SuccessMessage(w, rec, "Conflict resolution cancelled")
}

func (h *ConflictHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.service.History(r.Context(), middleware.GetUserID(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.ResolutionEntry{}
	}
	response.Success(w, entries)
}
