package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"miniups-gateway/internal/cache"
	"miniups-gateway/internal/conflict"
	"miniups-gateway/internal/domain"
	"miniups-gateway/internal/logging"
	"miniups-gateway/internal/notification"
	"miniups-gateway/internal/repository"
	"miniups-gateway/internal/upstream"
	"miniups-gateway/internal/websocket"
)

// Publisher pushes events to a user's connected dashboards.
type Publisher interface {
	Publish(userID string, msgType websocket.MessageType, payload interface{})
}

// Workspace is the gateway-side state of one user: pending conflicts and
// the notification cache.
type Workspace struct {
	UserID        string
	Conflicts     *conflict.Store
	Resolver      *conflict.Resolver
	Notifications *notification.Store
	Syncer        *notification.Syncer

	loadOnce   sync.Once
	mu         sync.Mutex
	token      string
	feedCancel context.CancelFunc
}

func (w *Workspace) setToken(token string) {
	if token == "" {
		return
	}
	w.mu.Lock()
	w.token = token
	w.mu.Unlock()
}

func (w *Workspace) Token() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.token
}

// withToken returns ctx carrying the last token the user authenticated
// with, for work that does not run inside one of their requests.
func (w *Workspace) withToken(ctx context.Context) context.Context {
	return upstream.WithToken(ctx, w.Token())
}

type WorkspaceOptions struct {
	FeedURL             string
	FeedInitialInterval time.Duration
	FeedMaxInterval     time.Duration
	Sync                notification.SyncOptions
	SweepInterval       time.Duration
}

type WorkspaceService struct {
	ctx        context.Context
	api        notification.Fetcher
	cache      *cache.QueryCache
	stateRepo  repository.NotificationStateRepository
	publisher  Publisher
	opts       WorkspaceOptions
	mu         sync.Mutex
	workspaces map[string]*Workspace
	log        *logrus.Entry
}

// NewWorkspaceService creates the registry. Background work (feeds, expiry
// sweeps) stops when ctx is cancelled.
func NewWorkspaceService(
	ctx context.Context,
	api notification.Fetcher,
	queryCache *cache.QueryCache,
	stateRepo repository.NotificationStateRepository,
	publisher Publisher,
	opts WorkspaceOptions,
) *WorkspaceService {
	return &WorkspaceService{
		ctx:        ctx,
		api:        api,
		cache:      queryCache,
		stateRepo:  stateRepo,
		publisher:  publisher,
		opts:       opts,
		workspaces: make(map[string]*Workspace),
		log:        logging.Component("workspaces"),
	}
}

// Get returns the user's workspace, creating it on first use and waiting
// for its persisted state to be restored. The bearer token carried by ctx is
// remembered for background syncs.
func (s *WorkspaceService) Get(ctx context.Context, userID string) *Workspace {
	ws := s.workspace(userID)
	s.load(ws)
	ws.setToken(upstream.TokenFrom(ctx))
	return ws
}

// workspace returns the registry entry for userID without loading it. The
// registry lock is never held across I/O.
func (s *WorkspaceService) workspace(userID string) *Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.workspaces[userID]
	if !ok {
		ws = s.newWorkspace(userID)
		s.workspaces[userID] = ws
	}
	return ws
}

// Lookup returns the workspace without creating it.
func (s *WorkspaceService) Lookup(userID string) (*Workspace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[userID]
	return ws, ok
}

func (s *WorkspaceService) newWorkspace(userID string) *Workspace {
	conflicts := conflict.NewStore()
	notifications := notification.NewStore()

	return &Workspace{
		UserID:        userID,
		Conflicts:     conflicts,
		Resolver:      conflict.NewResolver(conflicts, s.cache),
		Notifications: notifications,
		Syncer:        notification.NewSyncer(notifications, s.api, s.opts.Sync),
	}
}

// load restores the persisted notification state and starts the expiry
// sweep, once per workspace. Concurrent callers for the same user wait for
// the first one; other users are not held up.
func (s *WorkspaceService) load(ws *Workspace) {
	ws.loadOnce.Do(func() {
		log := s.log.WithField("user_id", ws.UserID)

		if s.stateRepo != nil {
			state, err := s.stateRepo.Load(s.ctx, ws.UserID)
			switch {
			case err == nil:
				ws.Notifications.Restore(state)
			case errors.Is(err, repository.ErrNotificationStateNotFound):
			default:
				log.WithError(err).Warn("could not restore notification state")
			}
		}

		if s.opts.SweepInterval > 0 {
			go ws.Notifications.RunExpirySweep(s.ctx, s.opts.SweepInterval, func(removed int) {
				log.WithField("removed", removed).Debug("expired notifications removed")
				s.Persist(s.ctx, ws)
			})
		}

		log.Debug("workspace loaded")
	})
}

// Persist saves the notification cache. Failures are logged, not returned:
// the in-memory cache stays authoritative.
func (s *WorkspaceService) Persist(ctx context.Context, ws *Workspace) {
	if s.stateRepo == nil {
		return
	}
	if err := s.stateRepo.Save(ctx, ws.Notifications.Snapshot(ws.UserID)); err != nil {
		s.log.WithError(err).WithField("user_id", ws.UserID).Error("failed to persist notification state")
	}
}

// HandlePresence starts the upstream feed when a user's first dashboard
// connects and stops it when the last one leaves.
// Both directions return without blocking on I/O, so a stop always sees
// the cancel func installed by the start before it.
func (s *WorkspaceService) HandlePresence(userID string, online bool) {
	if online {
		s.StartFeed(userID)
		return
	}
	s.StopFeed(userID)
}

// StartFeed installs the feed's cancel func right away and connects in the
// background once the workspace is loaded.
func (s *WorkspaceService) StartFeed(userID string) {
	if s.opts.FeedURL == "" {
		return
	}

	ws := s.workspace(userID)

	ws.mu.Lock()
	if ws.feedCancel != nil {
		ws.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	ws.feedCancel = cancel
	ws.mu.Unlock()

	go s.runFeed(ctx, ws)
}

func (s *WorkspaceService) runFeed(ctx context.Context, ws *Workspace) {
	s.load(ws)
	if ctx.Err() != nil {
		return
	}

	feed := upstream.NewFeed(upstream.FeedOptions{
		URL:             s.opts.FeedURL,
		Token:           ws.Token(),
		InitialInterval: s.opts.FeedInitialInterval,
		MaxInterval:     s.opts.FeedMaxInterval,
	},
		func(evt upstream.FeedEvent) { s.handleFeedEvent(ws, evt) },
		func(status upstream.FeedStatus) { go s.handleFeedStatus(ctx, ws, status) },
	)

	s.log.WithField("user_id", ws.UserID).Info("starting notification feed")
	feed.Run(ctx)
}

func (s *WorkspaceService) StopFeed(userID string) {
	ws, ok := s.Lookup(userID)
	if !ok {
		return
	}

	ws.mu.Lock()
	cancel := ws.feedCancel
	ws.feedCancel = nil
	ws.mu.Unlock()

	if cancel != nil {
		cancel()
		ws.Notifications.SetConnectionStatus(domain.ConnectionOffline)
		s.log.WithField("user_id", userID).Info("notification feed stopped")
	}
}

func (s *WorkspaceService) handleFeedStatus(ctx context.Context, ws *Workspace, status upstream.FeedStatus) {
	if status != upstream.FeedDisconnected && ctx.Err() != nil {
		return
	}
	result, err := ws.Syncer.HandleFeedStatus(ws.withToken(ctx), status)
	if err != nil {
		s.log.WithError(err).WithField("user_id", ws.UserID).Warn("sync after reconnect failed")
	}

	s.publish(ws.UserID, websocket.TypeConnectionStatus, &websocket.ConnectionStatusPayload{
		Status: ws.Notifications.ConnectionStatus(),
	})
	if result != nil {
		s.publishSync(ws, result)
		s.Persist(ctx, ws)
	}
}

func (s *WorkspaceService) handleFeedEvent(ws *Workspace, evt upstream.FeedEvent) {
	log := s.log.WithFields(logrus.Fields{"user_id": ws.UserID, "event": evt.Type})

	if evt.Type == upstream.EventShipmentUpdate || evt.Type == upstream.EventTrackingUpdate {
		if ref := notification.ShipmentRef(evt); ref != "" && s.cache != nil {
			s.cache.InvalidateEntity(domain.EntityShipment, ref)
		}
	}

	n, err := notification.FromFeedEvent(evt, time.Now())
	if err != nil {
		log.WithError(err).Warn("dropping feed event")
		return
	}
	if n == nil {
		return
	}

	ws.Notifications.Add(n)
	s.publish(ws.UserID, websocket.TypeNotification, n)
	s.Persist(s.ctx, ws)
}

func (s *WorkspaceService) publishSync(ws *Workspace, result *notification.SyncResult) {
	s.publish(ws.UserID, websocket.TypeNotificationSync, &websocket.NotificationSyncPayload{
		Fetched:    result.Fetched,
		Added:      result.Added,
		LastSyncID: result.LastSyncID,
		Unread:     ws.Notifications.UnreadCount(),
	})
}

func (s *WorkspaceService) publish(userID string, msgType websocket.MessageType, payload interface{}) {
	if s.publisher != nil {
		s.publisher.Publish(userID, msgType, payload)
	}
}
