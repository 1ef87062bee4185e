package handler

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"miniups-gateway/internal/conflict"
	"miniups-gateway/internal/logging"
	"miniups-gateway/internal/notification"
	"miniups-gateway/internal/repository"
	"miniups-gateway/internal/service"
	"miniups-gateway/internal/upstream"
	"miniups-gateway/pkg/response"
)

var logger = logging.Component("handler")

// writeError maps service errors to HTTP answers. A resolution error wraps
// the detected conflict of a nested 409, so it is matched first.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		detected *conflict.DetectedError
		resErr   *conflict.ResolutionError
		apiErr   *upstream.APIError
	)

	switch {
	case errors.As(err, &resErr) && resErr.Kind == conflict.KindNestedConflict:
		response.ErrorWithData(w, http.StatusConflict, "nested_conflict", resErr.Error(), map[string]interface{}{
			"conflict_id":     resErr.ConflictID,
			"new_conflict_id": resErr.NewConflictID,
		})

	case errors.As(err, &resErr):
		response.ErrorWithData(w, http.StatusBadGateway, "resolution_failed", resErr.Error(), map[string]interface{}{
			"conflict_id": resErr.ConflictID,
		})

	case errors.As(err, &detected):
		response.ErrorWithData(w, http.StatusConflict, "version_conflict",
			"The record was changed by someone else", map[string]interface{}{
				"conflict_id": detected.ConflictID,
				"conflict":    detected.Record,
			})

	case errors.Is(err, conflict.ErrResolutionInProgress):
		response.Error(w, http.StatusConflict, err.Error())

	case errors.Is(err, conflict.ErrRetryUnavailable):
		response.Error(w, http.StatusGone, err.Error())

	case errors.Is(err, conflict.ErrConflictNotFound),
		errors.Is(err, notification.ErrNotificationNotFound),
		errors.Is(err, repository.ErrDraftNotFound),
		errors.Is(err, service.ErrNoPendingConflicts):
		response.NotFound(w, err.Error())

	case errors.Is(err, conflict.ErrEmptyMerge),
		errors.Is(err, conflict.ErrFieldNotMergeable),
		errors.Is(err, conflict.ErrInvalidSource),
		errors.Is(err, conflict.ErrUnknownResolution),
		errors.Is(err, service.ErrInvalidDraftName):
		response.BadRequest(w, err.Error())

	case errors.Is(err, upstream.ErrUnavailable):
		response.ServiceUnavailable(w, "Mini-UPS API is unavailable, try again later")

	case errors.As(err, &apiErr):
		message := apiErr.Message
		if message == "" {
			message = http.StatusText(apiErr.Status)
		}
		response.Error(w, apiErr.Status, message)

	default:
		logger.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("unhandled error")
		response.InternalError(w, "Internal server error")
	}
}

// validationMessage flattens validator errors into one line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	msg := ""
	for i, fe := range verrs {
		if i > 0 {
			msg += "; "
		}
		msg += fe.Namespace() + " failed " + fe.Tag()
	}
	return msg
}
