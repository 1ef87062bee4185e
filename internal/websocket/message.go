package websocket

import (
	"encoding/json"
	"time"

	"miniups-gateway/internal/domain"
)

type MessageType string

const (
	TypeNotification      MessageType = "notification"
	TypeNotificationSync  MessageType = "notification_sync"
	TypeConflictDetected  MessageType = "conflict_detected"
	TypeConflictResolved  MessageType = "conflict_resolved"
	TypeConflictCancelled MessageType = "conflict_cancelled"
	TypeConnectionStatus  MessageType = "connection_status"
	TypeError             MessageType = "error"
	TypePing              MessageType = "ping"
	TypePong              MessageType = "pong"
	TypeSyncRequest       MessageType = "sync_request"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type NotificationSyncPayload struct {
	Fetched    int    `json:"fetched"`
	Added      int    `json:"added"`
	LastSyncID string `json:"last_sync_id"`
	Unread     int    `json:"unread"`
}

type ConflictDetectedPayload struct {
	ConflictID string `json:"conflict_id"`
	EntityID   string `json:"entity_id"`
	EntityType string `json:"entity_type"`
	Operation  string `json:"operation"`
	Pending    int    `json:"pending"`
}

type ConflictResolvedPayload struct {
	ConflictID     string                `json:"conflict_id"`
	EntityID       string                `json:"entity_id"`
	EntityType     string                `json:"entity_type"`
	ResolutionType domain.ResolutionType `json:"resolution_type"`
	Pending        int                   `json:"pending"`
}

type ConflictCancelledPayload struct {
	ConflictID string `json:"conflict_id"`
	Pending    int    `json:"pending"`
}

type ConnectionStatusPayload struct {
	Status domain.ConnectionStatus `json:"status"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
