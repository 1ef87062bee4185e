package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"miniups-gateway/pkg/response"
)

const maxBodyBytes = 1 << 20

// decodeAndValidate reads a JSON body into v and runs struct validation.
// It writes the 400 itself and reports false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, validate *validator.Validate, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return false
	}
	if err := validate.Struct(v); err != nil {
		response.BadRequest(w, validationMessage(err))
		return false
	}
	return true
}
