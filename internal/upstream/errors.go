package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"miniups-gateway/internal/domain"
)

var ErrUnavailable = errors.New("upstream unavailable")

// APIError is a non-2xx answer from the Mini-UPS API.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

// StatusOf returns the upstream HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// ConflictPayload is the body of a 409 version conflict.
type ConflictPayload struct {
	EntityID       string         `json:"entityId"`
	EntityType     string         `json:"entityType"`
	OurVersion     *int64         `json:"ourVersion"`
	ServerVersion  *int64         `json:"serverVersion"`
	ServerState    *domain.Fields `json:"serverState"`
	ConflictType   string         `json:"conflictType"`
	ConflictFields []string       `json:"conflictFields"`
	Message        string         `json:"message"`
}

// AsConflict extracts the conflict payload from a 409 error. A 409 without
// serverState is an ordinary error. The payload may sit at the top level or
// inside the response envelope's data.
func AsConflict(err error) (*ConflictPayload, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict || len(apiErr.Body) == 0 {
		return nil, false
	}

	var top ConflictPayload
	if json.Unmarshal(apiErr.Body, &top) == nil && top.ServerState != nil {
		return &top, true
	}

	var wrapped struct {
		Data *ConflictPayload `json:"data"`
	}
	if json.Unmarshal(apiErr.Body, &wrapped) == nil && wrapped.Data != nil && wrapped.Data.ServerState != nil {
		return wrapped.Data, true
	}

	return nil, false
}
