package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"miniups-gateway/internal/logging"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

// PresenceFunc is called when a user's first dashboard connects (online)
// and when the last one disconnects.
type PresenceFunc func(userID string, online bool)

type Manager struct {
	clients        map[string]*Client
	userIndex      map[string]map[string]bool
	clientsMutex   sync.RWMutex
	Register       chan *Client
	Unregister     chan *Client
	HandleMessage  chan *ClientMessage
	done           chan struct{}
	maxConnPerUser int
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	maxMessageSize int64
	messageHandler MessageHandler
	presence       PresenceFunc
	log            *logrus.Entry
}

type MessageHandler interface {
	HandleWebSocketMessage(ctx context.Context, client *Client, msg *Message) error
}

func NewManager(maxConnPerUser int, writeWait, pongWait, pingPeriod time.Duration) *Manager {
	return &Manager{
		clients:        make(map[string]*Client),
		userIndex:      make(map[string]map[string]bool),
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		HandleMessage:  make(chan *ClientMessage),
		done:           make(chan struct{}),
		maxConnPerUser: maxConnPerUser,
		writeWait:      writeWait,
		pongWait:       pongWait,
		pingPeriod:     pingPeriod,
		log:            logging.Component("websocket"),
	}
}

func (m *Manager) SetMessageHandler(handler MessageHandler) {
	m.messageHandler = handler
}

func (m *Manager) SetPresenceFunc(fn PresenceFunc) {
	m.presence = fn
}

// SetMaxMessageSize limits inbound frames. Zero means no limit.
func (m *Manager) SetMaxMessageSize(n int64) {
	m.maxMessageSize = n
}

// Run owns client registration until ctx is cancelled, then closes every
// client.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case client := <-m.Register:
			m.registerClient(client)

		case client := <-m.Unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.HandleMessage:
			m.processMessage(ctx, clientMsg)

		case <-ctx.Done():
			m.closeAll()
			return
		}
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()

	if m.userIndex[client.UserID] == nil {
		m.userIndex[client.UserID] = make(map[string]bool)
	}

	if m.maxConnPerUser > 0 && len(m.userIndex[client.UserID]) >= m.maxConnPerUser {
		if len(m.userIndex[client.UserID]) == 0 {
			delete(m.userIndex, client.UserID)
		}
		m.clientsMutex.Unlock()
		m.log.WithField("user_id", client.UserID).Warn("max connections reached")
		close(client.Send)
		return
	}

	first := len(m.userIndex[client.UserID]) == 0
	m.clients[client.ID] = client
	m.userIndex[client.UserID][client.ID] = true
	m.clientsMutex.Unlock()

	m.log.WithFields(logrus.Fields{
		"client_id": client.ID,
		"user_id":   client.UserID,
	}).Info("client registered")

	if first && m.presence != nil {
		m.presence(client.UserID, true)
	}
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()

	if _, ok := m.clients[client.ID]; !ok {
		m.clientsMutex.Unlock()
		return
	}

	delete(m.clients, client.ID)
	delete(m.userIndex[client.UserID], client.ID)

	last := len(m.userIndex[client.UserID]) == 0
	if last {
		delete(m.userIndex, client.UserID)
	}

	close(client.Send)
	m.clientsMutex.Unlock()

	m.log.WithField("client_id", client.ID).Info("client unregistered")

	if last && m.presence != nil {
		m.presence(client.UserID, false)
	}
}

func (m *Manager) closeAll() {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	for id, client := range m.clients {
		close(client.Send)
		delete(m.clients, id)
	}
	m.userIndex = make(map[string]map[string]bool)
}

func (m *Manager) processMessage(ctx context.Context, clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		m.log.WithError(err).Debug("dropping malformed client message")
		return
	}

	if m.messageHandler == nil {
		return
	}

	// Handlers may call the upstream, so they must not stall the loop.
	go func() {
		if err := m.messageHandler.HandleWebSocketMessage(ctx, clientMsg.Client, &msg); err != nil {
			m.log.WithError(err).WithField("type", msg.Type).Warn("error handling message")
			if reply, encErr := NewMessage(TypeError, &ErrorPayload{Message: err.Error()}); encErr == nil {
				m.SendToClient(clientMsg.Client.ID, reply)
			}
		}
	}()
}

// BroadcastToUser delivers message to every connection of userID except
// excludeClientID. Connections with a full buffer are dropped.
func (m *Manager) BroadcastToUser(userID string, message *Message, excludeClientID string) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	var slow []*Client

	m.clientsMutex.RLock()
	for clientID := range m.userIndex[userID] {
		if clientID == excludeClientID {
			continue
		}
		client := m.clients[clientID]
		select {
		case client.Send <- messageBytes:
		default:
			slow = append(slow, client)
		}
	}
	m.clientsMutex.RUnlock()

	for _, client := range slow {
		m.log.WithField("client_id", client.ID).Warn("send buffer full, closing connection")
		go m.unregister(client)
	}

	return nil
}

// Publish is BroadcastToUser for callers that only have a payload.
func (m *Manager) Publish(userID string, msgType MessageType, payload interface{}) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		m.log.WithError(err).WithField("type", msgType).Error("failed to encode message")
		return
	}
	if err := m.BroadcastToUser(userID, msg, ""); err != nil {
		m.log.WithError(err).WithField("type", msgType).Error("failed to broadcast message")
	}
}

func (m *Manager) SendToClient(clientID string, message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil
	}

	select {
	case client.Send <- messageBytes:
	default:
		m.log.WithField("client_id", clientID).Warn("send buffer full")
	}

	return nil
}

func (m *Manager) GetUserConnections(userID string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	if clients, exists := m.userIndex[userID]; exists {
		return len(clients)
	}
	return 0
}

func (m *Manager) unregister(client *Client) {
	select {
	case m.Unregister <- client:
	case <-m.done:
	}
}
