package domain

import "time"

type ShipmentStatus string

const (
	ShipmentPending        ShipmentStatus = "PENDING"
	ShipmentCreated        ShipmentStatus = "CREATED"
	ShipmentConfirmed      ShipmentStatus = "CONFIRMED"
	ShipmentTruckAssigned  ShipmentStatus = "TRUCK_DISPATCHED"
	ShipmentPickedUp       ShipmentStatus = "PICKED_UP"
	ShipmentInTransit      ShipmentStatus = "IN_TRANSIT"
	ShipmentOutForDelivery ShipmentStatus = "OUT_FOR_DELIVERY"
	ShipmentDelivered      ShipmentStatus = "DELIVERED"
	ShipmentFailedDelivery ShipmentStatus = "FAILED_DELIVERY"
	ShipmentException      ShipmentStatus = "EXCEPTION"
	ShipmentReturned       ShipmentStatus = "RETURNED"
	ShipmentCancelled      ShipmentStatus = "CANCELLED"
)

const (
	EntityShipment        = "shipment"
	EntityShipmentComment = "shipment_comment"
)

type Location struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type TruckInfo struct {
	TruckID         int       `json:"truck_id"`
	Status          string    `json:"status"`
	CurrentLocation *Location `json:"current_location,omitempty"`
}

type Shipment struct {
	ShipmentID        string         `json:"shipment_id"`
	TrackingNumber    string         `json:"tracking_number"`
	Status            ShipmentStatus `json:"status"`
	StatusDisplay     string         `json:"status_display"`
	Origin            Location       `json:"origin"`
	Destination       Location       `json:"destination"`
	CreatedAt         time.Time      `json:"created_at"`
	EstimatedDelivery *time.Time     `json:"estimated_delivery"`
	ActualDelivery    *time.Time     `json:"actual_delivery"`
	PickupTime        *time.Time     `json:"pickup_time"`
	Truck             *TruckInfo     `json:"truck,omitempty"`
	Preferences       map[string]any `json:"preferences,omitempty"`
	Version           int64          `json:"version,omitempty"`
}

type ShipmentStatusHistory struct {
	Status        ShipmentStatus `json:"status"`
	StatusDisplay string         `json:"status_display"`
	Timestamp     time.Time      `json:"timestamp"`
	Comment       string         `json:"comment"`
}

type TrackingHistory struct {
	TrackingNumber string                  `json:"tracking_number"`
	History        []ShipmentStatusHistory `json:"history"`
	TotalEvents    int                     `json:"total_events"`
}

type UserShipments struct {
	UserID     string      `json:"user_id"`
	Shipments  []*Shipment `json:"shipments"`
	TotalCount int         `json:"total_count"`
}

type PackageDimensions struct {
	Length float64 `json:"length" validate:"gt=0"`
	Width  float64 `json:"width" validate:"gt=0"`
	Height float64 `json:"height" validate:"gt=0"`
}

type CreateShipmentRequest struct {
	RecipientName       string            `json:"recipient_name" validate:"required,max=200"`
	RecipientEmail      string            `json:"recipient_email" validate:"required,email"`
	RecipientPhone      string            `json:"recipient_phone" validate:"required"`
	RecipientAddress    string            `json:"recipient_address" validate:"required"`
	DestinationX        int               `json:"destination_x"`
	DestinationY        int               `json:"destination_y"`
	PackageDescription  string            `json:"package_description" validate:"required"`
	PackageWeight       float64           `json:"package_weight" validate:"gt=0"`
	PackageDimensions   PackageDimensions `json:"package_dimensions"`
	PackageValue        float64           `json:"package_value" validate:"gte=0"`
	DeliverySpeed       string            `json:"delivery_speed" validate:"required,oneof=STANDARD EXPRESS OVERNIGHT"`
	SpecialInstructions string            `json:"special_instructions,omitempty"`
}

type CreateShipmentResponse struct {
	ShipmentID        string    `json:"shipment_id"`
	TrackingNumber    string    `json:"tracking_number"`
	Status            string    `json:"status"`
	EstimatedDelivery string    `json:"estimated_delivery"`
	CreatedAt         time.Time `json:"created_at"`
}

type UpdateStatusRequest struct {
	Status  ShipmentStatus `json:"status" validate:"required,oneof=PENDING CREATED CONFIRMED TRUCK_DISPATCHED PICKED_UP IN_TRANSIT OUT_FOR_DELIVERY DELIVERED FAILED_DELIVERY EXCEPTION RETURNED CANCELLED"`
	Comment string         `json:"comment,omitempty" validate:"max=1000"`
	Version int64          `json:"version" validate:"gte=0"`
}

type UpdateAddressRequest struct {
	Address string `json:"address" validate:"required"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Version int64  `json:"version" validate:"gte=0"`
}

type UpdatePreferencesRequest struct {
	Preferences *Fields `json:"preferences" validate:"required"`
	Version     int64   `json:"version" validate:"gte=0"`
}

type AddCommentRequest struct {
	Comment    string `json:"comment" validate:"required,max=2000"`
	IsInternal bool   `json:"is_internal,omitempty"`
	Version    int64  `json:"version" validate:"gte=0"`
}

type CancelShipmentRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=1000"`
}

// MutationResult is what the gateway returns for a successful shipment
// mutation. Data is whatever the upstream answered with.
type MutationResult struct {
	TrackingNumber string `json:"tracking_number"`
	Data           any    `json:"data,omitempty"`
}
