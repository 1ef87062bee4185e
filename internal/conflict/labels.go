package conflict

import "miniups-gateway/internal/domain"

// shipmentLabels is keyed by the field names the shipment mutations send.
var shipmentLabels = map[string]string{
	"status":               "Shipment Status",
	"comment":              "Comment",
	"delivery_address":     "Delivery Address",
	"destination_x":        "Destination X Coordinate",
	"destination_y":        "Destination Y Coordinate",
	"is_internal":          "Internal Comment",
	"estimated_delivery":   "Estimated Delivery",
	"actual_delivery":      "Actual Delivery",
	"recipient_name":       "Recipient",
	"recipient_phone":      "Recipient Phone",
	"recipient_email":      "Recipient Email",
	"special_instructions": "Special Instructions",
	"delivery_speed":       "Delivery Speed",
	"preferences":          "Preferences",
}

// LabelsFor returns display names for the fields of an entity type.
func LabelsFor(entityType string) map[string]string {
	switch entityType {
	case domain.EntityShipment, domain.EntityShipmentComment:
		return shipmentLabels
	}
	return nil
}
