package domain

import "time"

type NotificationType string

const (
	NotificationShipmentStatus       NotificationType = "shipment_status"
	NotificationShipmentCreated      NotificationType = "shipment_created"
	NotificationShipmentUpdated      NotificationType = "shipment_updated"
	NotificationSystemAlert          NotificationType = "system_alert"
	NotificationUserMessage          NotificationType = "user_message"
	NotificationConflictResolution   NotificationType = "conflict_resolution"
	NotificationDeliveryConfirmation NotificationType = "delivery_confirmation"
)

type NotificationPriority string

const (
	PriorityLow      NotificationPriority = "low"
	PriorityMedium   NotificationPriority = "medium"
	PriorityHigh     NotificationPriority = "high"
	PriorityCritical NotificationPriority = "critical"
)

type NotificationStatus string

const (
	StatusUnread   NotificationStatus = "unread"
	StatusRead     NotificationStatus = "read"
	StatusArchived NotificationStatus = "archived"
)

type NotificationAction struct {
	ID      string         `json:"id"`
	Label   string         `json:"label"`
	Variant string         `json:"variant"`
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload,omitempty"`
}

type Notification struct {
	ID                string               `json:"id"`
	Type              NotificationType     `json:"type"`
	Priority          NotificationPriority `json:"priority"`
	Status            NotificationStatus   `json:"status"`
	Title             string               `json:"title"`
	Message           string               `json:"message"`
	Timestamp         time.Time            `json:"timestamp"`
	Data              map[string]any       `json:"data,omitempty"`
	Actions           []NotificationAction `json:"actions,omitempty"`
	ExpiresAt         *time.Time           `json:"expiresAt,omitempty"`
	UserID            string               `json:"userId,omitempty"`
	RelatedEntityID   string               `json:"relatedEntityId,omitempty"`
	RelatedEntityType string               `json:"relatedEntityType,omitempty"`
}

func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && !n.ExpiresAt.After(now)
}

type NotificationFilters struct {
	Types             []NotificationType     `json:"types,omitempty"`
	Priorities        []NotificationPriority `json:"priorities,omitempty"`
	Status            NotificationStatus     `json:"status,omitempty"`
	DateFrom          *time.Time             `json:"dateFrom,omitempty"`
	DateTo            *time.Time             `json:"dateTo,omitempty"`
	RelatedEntityType string                 `json:"relatedEntityType,omitempty"`
}

// Match reports whether n passes every filter that is set.
func (f NotificationFilters) Match(n *Notification) bool {
	if f.Status != "" && n.Status != f.Status {
		return false
	}
	if len(f.Types) > 0 && !contains(f.Types, n.Type) {
		return false
	}
	if len(f.Priorities) > 0 && !contains(f.Priorities, n.Priority) {
		return false
	}
	if f.DateFrom != nil && n.Timestamp.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && n.Timestamp.After(*f.DateTo) {
		return false
	}
	if f.RelatedEntityType != "" && n.RelatedEntityType != f.RelatedEntityType {
		return false
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

type NotificationSyncResponse struct {
	Notifications []*Notification `json:"notifications"`
	HasMore       bool            `json:"hasMore"`
	LastID        string          `json:"lastId"`
}

type NotificationPreferences struct {
	EnablePushNotifications  bool                      `json:"enablePushNotifications"`
	EnableEmailNotifications bool                      `json:"enableEmailNotifications"`
	EnableSMSNotifications   bool                      `json:"enableSMSNotifications"`
	NotificationTypes        map[NotificationType]bool `json:"notificationTypes,omitempty"`
	QuietHoursStart          string                    `json:"quietHoursStart,omitempty" validate:"omitempty,datetime=15:04"`
	QuietHoursEnd            string                    `json:"quietHoursEnd,omitempty" validate:"omitempty,datetime=15:04"`
}

type NotificationStats struct {
	Total      int                          `json:"total"`
	Unread     int                          `json:"unread"`
	ByType     map[NotificationType]int     `json:"byType,omitempty"`
	ByPriority map[NotificationPriority]int `json:"byPriority,omitempty"`
}

// NotificationState is the persisted part of a user's notification cache.
type NotificationState struct {
	UserID        string                   `json:"userId"`
	Notifications map[string]*Notification `json:"notifications"`
	LastSyncID    string                   `json:"lastSyncId,omitempty"`
	Filters       NotificationFilters      `json:"filters"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

type ConnectionStatus string

const (
	ConnectionOnline  ConnectionStatus = "online"
	ConnectionOffline ConnectionStatus = "offline"
	ConnectionSyncing ConnectionStatus = "syncing"
)
