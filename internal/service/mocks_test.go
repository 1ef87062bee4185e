package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"miniups-gateway/internal/cache"
	"miniups-gateway/internal/domain"
	"miniups-gateway/internal/repository"
	"miniups-gateway/internal/upstream"
	"miniups-gateway/internal/websocket"
)

type mutationCall struct {
	Path    string
	Version int64
	Fields  *domain.Fields
}

// mockAPI answers like the Mini-UPS API. Mutation answers are consumed in
// order; a nil answer is a success.
type mockAPI struct {
	mu        sync.Mutex
	shipments map[string]*domain.Shipment
	getCalls  int
	answers   []error
	mutations []mutationCall

	pages     []*domain.NotificationSyncResponse
	syncErr   error
	readIDs   []string
	deleted   []string
	statsErr  error
	lastToken string
}

func newMockAPI() *mockAPI {
	return &mockAPI{shipments: map[string]*domain.Shipment{
		"UPS123": {TrackingNumber: "UPS123", Status: domain.ShipmentInTransit},
	}}
}

func (m *mockAPI) GetShipment(ctx context.Context, trackingNumber string) (*domain.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	m.lastToken = upstream.TokenFrom(ctx)
	s, ok := m.shipments[trackingNumber]
	if !ok {
		return nil, &upstream.APIError{Method: http.MethodGet, Path: "/tracking/" + trackingNumber, Status: http.StatusNotFound}
	}
	return s, nil
}

func (m *mockAPI) GetTrackingHistory(ctx context.Context, trackingNumber string) (*domain.TrackingHistory, error) {
	return &domain.TrackingHistory{TrackingNumber: trackingNumber}, nil
}

func (m *mockAPI) GetUserShipments(ctx context.Context, userID string) (*domain.UserShipments, error) {
	return &domain.UserShipments{}, nil
}

func (m *mockAPI) CreateShipment(ctx context.Context, req *domain.CreateShipmentRequest) (*domain.CreateShipmentResponse, error) {
	return &domain.CreateShipmentResponse{TrackingNumber: "UPS999", Status: string(domain.ShipmentCreated)}, nil
}

func (m *mockAPI) mutate(path string, version int64, fields *domain.Fields) (interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutations = append(m.mutations, mutationCall{Path: path, Version: version, Fields: fields.Clone()})
	if len(m.answers) > 0 {
		err := m.answers[0]
		m.answers = m.answers[1:]
		if err != nil {
			return nil, err
		}
	}
	return map[string]any{"ok": true}, nil
}

func (m *mockAPI) UpdateShipmentStatus(ctx context.Context, tn string, version int64, fields *domain.Fields) (interface{}, error) {
	return m.mutate("/shipments/"+tn+"/status", version, fields)
}

func (m *mockAPI) UpdateDeliveryAddress(ctx context.Context, tn string, version int64, fields *domain.Fields) (interface{}, error) {
	return m.mutate("/shipments/"+tn+"/address", version, fields)
}

func (m *mockAPI) UpdateShipmentPreferences(ctx context.Context, tn string, version int64, fields *domain.Fields) (interface{}, error) {
	return m.mutate("/shipments/"+tn+"/preferences", version, fields)
}

func (m *mockAPI) AddShipmentComment(ctx context.Context, tn string, version int64, fields *domain.Fields) (interface{}, error) {
	return m.mutate("/shipments/"+tn+"/comments", version, fields)
}

func (m *mockAPI) CancelShipment(ctx context.Context, tn, reason string) (interface{}, error) {
	return map[string]any{"cancelled": true}, nil
}

func (m *mockAPI) SyncNotifications(ctx context.Context, since string, limit int) (*domain.NotificationSyncResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.syncErr != nil {
		return nil, m.syncErr
	}
	if len(m.pages) == 0 {
		return &domain.NotificationSyncResponse{}, nil
	}
	page := m.pages[0]
	m.pages = m.pages[1:]
	return page, nil
}

func (m *mockAPI) MarkNotificationRead(ctx context.Context, id string) error {
	m.readIDs = append(m.readIDs, id)
	return nil
}

func (m *mockAPI) MarkNotificationsRead(ctx context.Context, ids []string) error {
	m.readIDs = append(m.readIDs, ids...)
	return nil
}

func (m *mockAPI) MarkAllNotificationsRead(ctx context.Context) error { return nil }

func (m *mockAPI) ArchiveNotification(ctx context.Context, id string) error { return nil }

func (m *mockAPI) DeleteNotification(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockAPI) NotificationStats(ctx context.Context) (*domain.NotificationStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return &domain.NotificationStats{Total: 42}, nil
}

func (m *mockAPI) NotificationPreferences(ctx context.Context) (*domain.NotificationPreferences, error) {
	return &domain.NotificationPreferences{EnableEmailNotifications: true}, nil
}

func (m *mockAPI) UpdateNotificationPreferences(ctx context.Context, prefs *domain.NotificationPreferences) (*domain.NotificationPreferences, error) {
	return prefs, nil
}

func (m *mockAPI) mutationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mutations)
}

func (m *mockAPI) lastMutation() mutationCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mutations[len(m.mutations)-1]
}

func conflict409(serverVersion int64, serverState string) error {
	body := fmt.Sprintf(`{"success":false,"message":"version conflict","data":{"entityId":"UPS123","entityType":"shipment","ourVersion":3,"serverVersion":%d,"serverState":%s}}`,
		serverVersion, serverState)
	return &upstream.APIError{Method: http.MethodPut, Path: "/shipments/UPS123/status", Status: http.StatusConflict, Body: []byte(body)}
}

type published struct {
	UserID  string
	Type    websocket.MessageType
	Payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(userID string, msgType websocket.MessageType, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{UserID: userID, Type: msgType, Payload: payload})
}

func (p *recordingPublisher) types() []websocket.MessageType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []websocket.MessageType
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type mockStateRepo struct {
	mu     sync.Mutex
	states map[string]*domain.NotificationState
	saves  int

	// held users block in Load until released; loading reports each
	// blocked Load as it starts.
	held    map[string]chan struct{}
	loading chan string
}

func newMockStateRepo() *mockStateRepo {
	return &mockStateRepo{
		states:  make(map[string]*domain.NotificationState),
		held:    make(map[string]chan struct{}),
		loading: make(chan string, 8),
	}
}

// holdLoad makes Load for userID block until the returned func is called.
func (m *mockStateRepo) holdLoad(userID string) (release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gate := make(chan struct{})
	m.held[userID] = gate
	return func() { close(gate) }
}

func (m *mockStateRepo) Load(ctx context.Context, userID string) (*domain.NotificationState, error) {
	m.mu.Lock()
	gate := m.held[userID]
	m.mu.Unlock()

	if gate != nil {
		m.loading <- userID
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[userID]; ok {
		return s, nil
	}
	return nil, repository.ErrNotificationStateNotFound
}

func (m *mockStateRepo) Save(ctx context.Context, state *domain.NotificationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.UserID] = state
	m.saves++
	return nil
}

type mockResolutionRepo struct {
	entries []domain.ResolutionEntry
	err     error
}

func (m *mockResolutionRepo) Append(ctx context.Context, entry *domain.ResolutionEntry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockResolutionRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.ResolutionEntry, error) {
	var out []domain.ResolutionEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].UserID == userID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

type mockDraftRepo struct {
	drafts map[string]*domain.ShipmentDraft
}

func newMockDraftRepo() *mockDraftRepo {
	return &mockDraftRepo{drafts: make(map[string]*domain.ShipmentDraft)}
}

func (m *mockDraftRepo) Save(draft *domain.ShipmentDraft) error {
	m.drafts[draft.Owner+"/"+draft.Name] = draft
	return nil
}

func (m *mockDraftRepo) Get(owner, name string) (*domain.ShipmentDraft, error) {
	if d, ok := m.drafts[owner+"/"+name]; ok {
		return d, nil
	}
	return nil, repository.ErrDraftNotFound
}

func (m *mockDraftRepo) List(ctx context.Context, owner string) ([]*domain.ShipmentDraft, error) {
	var out []*domain.ShipmentDraft
	for _, d := range m.drafts {
		if d.Owner == owner {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockDraftRepo) Delete(owner, name string) error {
	if _, ok := m.drafts[owner+"/"+name]; !ok {
		return repository.ErrDraftNotFound
	}
	delete(m.drafts, owner+"/"+name)
	return nil
}

// env wires the services the way cmd/server does, with mocks at the edges.
type env struct {
	api           *mockAPI
	cache         *cache.QueryCache
	states        *mockStateRepo
	resolutions   *mockResolutionRepo
	publisher     *recordingPublisher
	workspaces    *WorkspaceService
	shipments     *ShipmentService
	conflicts     *ConflictService
	notifications *NotificationService
}

func newEnv() *env {
	e := &env{
		api:         newMockAPI(),
		states:      newMockStateRepo(),
		resolutions: &mockResolutionRepo{},
		publisher:   &recordingPublisher{},
	}
	qc, err := cache.New(64)
	if err != nil {
		panic(err)
	}
	e.cache = qc
	e.workspaces = NewWorkspaceService(context.Background(), e.api, qc, e.states, e.publisher, WorkspaceOptions{})
	e.shipments = NewShipmentService(e.api, qc, e.workspaces, e.publisher)
	e.conflicts = NewConflictService(e.workspaces, e.resolutions, e.publisher)
	e.notifications = NewNotificationService(e.api, e.workspaces)
	return e
}

var errBoom = errors.New("boom")
