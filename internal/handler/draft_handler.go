package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"miniups-gateway/internal/domain"
	"miniups-gateway/internal/middleware"
	"miniups-gateway/internal/service"
	"miniups-gateway/pkg/response"
)

type DraftHandler struct {
	service  *service.DraftService
	validate *validator.Validate
}

func NewDraftHandler(service *service.DraftService) *DraftHandler {
	return &DraftHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *DraftHandler) List(w http.ResponseWriter, r *http.Request) {
	drafts, err := h.service.List(r.Context(), middleware.GetUserID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, drafts)
}

func (h *DraftHandler) Get(w http.ResponseWriter, r *http.Request) {
	draft, err := h.service.Get(middleware.GetUserID(r), mux.Vars(r)["name"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, draft)
}

func (h *DraftHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req domain.SaveDraftRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	draft, err := h.service.Save(middleware.GetUserID(r), mux.Vars(r)["name"], req.Payload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, draft)
}

func (h *DraftHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(middleware.GetUserID(r), mux.Vars(r)["name"]); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w)
}
