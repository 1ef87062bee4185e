package notification

import (
	"encoding/json"
	"fmt"
	"time"

	"miniups-gateway/internal/domain"
	"miniups-gateway/internal/upstream"
)

type systemAlert struct {
	ID        string                      `json:"id"`
	Message   string                      `json:"message"`
	Priority  domain.NotificationPriority `json:"priority"`
	ExpiresAt *time.Time                  `json:"expiresAt"`
}

// FromFeedEvent turns a feed event into the notification it announces.
// Events that do not produce a notification return nil.
func FromFeedEvent(evt upstream.FeedEvent, now time.Time) (*domain.Notification, error) {
	switch evt.Type {
	case upstream.EventNotification:
		var n domain.Notification
		if err := json.Unmarshal(evt.Payload, &n); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		if n.ID == "" {
			return nil, fmt.Errorf("notification without id")
		}
		return &n, nil

	case upstream.EventSystemAlert:
		var alert systemAlert
		if err := json.Unmarshal(evt.Payload, &alert); err != nil {
			return nil, fmt.Errorf("decode system alert: %w", err)
		}
		if alert.Priority == "" {
			alert.Priority = domain.PriorityHigh
		}
		return &domain.Notification{
			ID:        alert.ID,
			Type:      domain.NotificationSystemAlert,
			Priority:  alert.Priority,
			Status:    domain.StatusUnread,
			Title:     "System Alert",
			Message:   alert.Message,
			Timestamp: now,
			ExpiresAt: alert.ExpiresAt,
		}, nil

	case upstream.EventShipmentUpdate:
		var shipment domain.Shipment
		if err := json.Unmarshal(evt.Payload, &shipment); err != nil {
			return nil, fmt.Errorf("decode shipment update: %w", err)
		}
		return &domain.Notification{
			ID:                fmt.Sprintf("shipment_%s_%d", shipment.TrackingNumber, now.UnixMilli()),
			Type:              domain.NotificationShipmentStatus,
			Priority:          domain.PriorityMedium,
			Status:            domain.StatusUnread,
			Title:             "Shipment Status Updated",
			Message:           fmt.Sprintf("Shipment %s is now %s", shipment.TrackingNumber, shipment.Status),
			Timestamp:         now,
			RelatedEntityID:   shipment.TrackingNumber,
			RelatedEntityType: domain.EntityShipment,
			Data:              map[string]any{"shipment": shipment},
			Actions: []domain.NotificationAction{{
				ID:      "view_shipment",
				Label:   "View Details",
				Variant: "primary",
				Action:  "navigate",
				Payload: map[string]any{"url": "/shipments/tracking/" + shipment.TrackingNumber},
			}},
		}, nil
	}
	return nil, nil
}

// ShipmentRef extracts the tracking number from shipment and tracking
// update events.
func ShipmentRef(evt upstream.FeedEvent) string {
	var ref struct {
		TrackingNumber      string `json:"tracking_number"`
		TrackingNumberCamel string `json:"trackingNumber"`
	}
	if json.Unmarshal(evt.Payload, &ref) != nil {
		return ""
	}
	if ref.TrackingNumber != "" {
		return ref.TrackingNumber
	}
	return ref.TrackingNumberCamel
}
