package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"miniups-gateway/internal/middleware"
	"miniups-gateway/internal/service"
	"miniups-gateway/internal/upstream"
	"miniups-gateway/internal/websocket"
	"miniups-gateway/pkg/jwt"
	"miniups-gateway/pkg/response"
)

type WebSocketHandler struct {
	manager    *websocket.Manager
	workspaces *service.WorkspaceService
	jwtSecret  string
	upgrader   ws.Upgrader
}

func NewWebSocketHandler(manager *websocket.Manager, workspaces *service.WorkspaceService, jwtSecret string, readBufferSize, writeBufferSize int) *WebSocketHandler {
	return &WebSocketHandler{
		manager:    manager,
		workspaces: workspaces,
		jwtSecret:  jwtSecret,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleConnection upgrades a dashboard connection. Browsers cannot set
// headers on a WebSocket handshake, so the token may come as ?token=.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = middleware.BearerToken(r)
	}
	if token == "" {
		response.Unauthorized(w, "Missing authorization token")
		return
	}

	claims, err := jwt.ValidateToken(token, h.jwtSecret)
	if err != nil {
		logger.WithError(err).Debug("websocket token rejected")
		response.Unauthorized(w, "Invalid or expired token")
		return
	}
	userID := claims.UserID

	// Loads the workspace and remembers the token before presence starts
	// the upstream feed.
	h.workspaces.Get(upstream.WithToken(r.Context(), token), userID)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).WithField("user_id", userID).Warn("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(uuid.New().String(), userID, conn, h.manager)
	h.manager.Register <- client

	logger.WithFields(logrus.Fields{
		"client_id": client.ID,
		"user_id":   userID,
	}).Info("dashboard connected")

	go client.WritePump()
	go client.ReadPump()
}

type WebSocketMessageHandler struct {
	manager       *websocket.Manager
	workspaces    *service.WorkspaceService
	notifications *service.NotificationService
}

func NewWebSocketMessageHandler(manager *websocket.Manager, workspaces *service.WorkspaceService, notifications *service.NotificationService) *WebSocketMessageHandler {
	return &WebSocketMessageHandler{
		manager:       manager,
		workspaces:    workspaces,
		notifications: notifications,
	}
}

func (h *WebSocketMessageHandler) HandleWebSocketMessage(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypePing:
		pong, err := websocket.NewMessage(websocket.TypePong, nil)
		if err != nil {
			return err
		}
		return h.manager.SendToClient(client.ID, pong)

	case websocket.TypeSyncRequest:
		return h.handleSyncRequest(ctx, client)

	default:
		logger.WithField("type", msg.Type).Debug("ignoring unknown message type")
	}
	return nil
}

// handleSyncRequest runs a catch-up sync. The result reaches every
// dashboard of the user through the notification_sync event.
func (h *WebSocketMessageHandler) handleSyncRequest(ctx context.Context, client *websocket.Client) error {
	workspace := h.workspaces.Get(ctx, client.UserID)
	_, err := h.notifications.Sync(upstream.WithToken(ctx, workspace.Token()), client.UserID)
	return err
}
