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

type ShipmentHandler struct {
	service  *service.ShipmentService
	validate *validator.Validate
}

func NewShipmentHandler(service *service.ShipmentService) *ShipmentHandler {
	return &ShipmentHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *ShipmentHandler) List(w http.ResponseWriter, r *http.Request) {
	shipments, err := h.service.List(r.Context(), middleware.GetUserID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, shipments)
}

func (h *ShipmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	shipment, err := h.service.Get(r.Context(), middleware.GetUserID(r), mux.Vars(r)["tn"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, shipment)
}

func (h *ShipmentHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.History(r.Context(), middleware.GetUserID(r), mux.Vars(r)["tn"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, history)
}

func (h *ShipmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateShipmentRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	created, err := h.service.Create(r.Context(), middleware.GetUserID(r), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, created)
}

func (h *ShipmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req domain.CancelShipmentRequest
	if r.ContentLength != 0 && !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	result, err := h.service.Cancel(r.Context(), middleware.GetUserID(r), mux.Vars(r)["tn"], req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.SuccessMessage(w, result, "Shipment cancelled")
}

func (h *ShipmentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateStatusRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	result, err := h.service.UpdateStatus(r.Context(), middleware.GetUserID(r), mux.Vars(r)["tn"], &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, result)
}

func (h *ShipmentHandler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateAddressRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	result, err := h.service.UpdateAddress(r.Context(), middleware.GetUserID(r), mux.Vars(r)["tn"], &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, result)
}

func (h *ShipmentHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdatePreferencesRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	if req.Preferences.Len() == 0 {
		response.BadRequest(w, "preferences must not be empty")
		return
	}

	result, err := h.service.UpdatePreferences(r.Context(), middleware.GetUserID(r), mux.Vars(r)["tn"], &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Success(w, result)
}

func (h *ShipmentHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req domain.AddCommentRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	result, err := h.service.AddComment(r.Context(), middleware.GetUserID(r), mux.Vars(r)["tn"], &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, result)
}
