package domain

import "time"

type ShipmentDraft struct {
	Name      string                `json:"name"`
	Owner     string                `json:"owner"`
	Payload   CreateShipmentRequest `json:"payload"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Drafts are saved incomplete, so the payload is not validated.
type SaveDraftRequest struct {
	Payload CreateShipmentRequest `json:"payload" validate:"-"`
}
