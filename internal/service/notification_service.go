package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"miniups-gateway/internal/domain"
	"miniups-gateway/internal/logging"
	"miniups-gateway/internal/notification"
)

// NotificationAPI is the upstream surface for notifications.
type NotificationAPI interface {
	notification.Fetcher
	MarkNotificationRead(ctx context.Context, id string) error
	MarkNotificationsRead(ctx context.Context, ids []string) error
	MarkAllNotificationsRead(ctx context.Context) error
	ArchiveNotification(ctx context.Context, id string) error
	DeleteNotification(ctx context.Context, id string) error
	NotificationStats(ctx context.Context) (*domain.NotificationStats, error)
	NotificationPreferences(ctx context.Context) (*domain.NotificationPreferences, error)
	UpdateNotificationPreferences(ctx context.Context, prefs *domain.NotificationPreferences) (*domain.NotificationPreferences, error)
}

type NotificationService struct {
	api        NotificationAPI
	workspaces *WorkspaceService
	log        *logrus.Entry
}

func NewNotificationService(api NotificationAPI, workspaces *WorkspaceService) *NotificationService {
	return &NotificationService{
		api:        api,
		workspaces: workspaces,
		log:        logging.Component("notifications"),
	}
}

// List returns cached notifications, newest first. A nil filter uses the
// filters saved for the user.
func (s *NotificationService) List(ctx context.Context, userID string, filters *domain.NotificationFilters) []*domain.Notification {
	ws := s.workspaces.Get(ctx, userID)
	if filters == nil {
		return ws.Notifications.Filtered()
	}
	return ws.Notifications.List(*filters)
}

func (s *NotificationService) Get(ctx context.Context, userID, id string) (*domain.Notification, error) {
	return s.workspaces.Get(ctx, userID).Notifications.Get(id)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) int {
	return s.workspaces.Get(ctx, userID).Notifications.UnreadCount()
}

func (s *NotificationService) ConnectionStatus(ctx context.Context, userID string) domain.ConnectionStatus {
	return s.workspaces.Get(ctx, userID).Notifications.ConnectionStatus()
}

func (s *NotificationService) SetFilters(ctx context.Context, userID string, filters domain.NotificationFilters) {
	ws := s.workspaces.Get(ctx, userID)
	ws.Notifications.SetFilters(filters)
	s.workspaces.Persist(ctx, ws)
}

// Sync pulls missed notifications and tells the user's dashboards.
func (s *NotificationService) Sync(ctx context.Context, userID string) (*notification.SyncResult, error) {
	ws := s.workspaces.Get(ctx, userID)
	result, err := ws.Syncer.Sync(ctx)
	if result != nil && result.Pages > 0 {
		s.workspaces.publishSync(ws, result)
		s.workspaces.Persist(ctx, ws)
	}
	return result, err
}

// MarkRead marks the notification read upstream, then in the cache.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	ws := s.workspaces.Get(ctx, userID)
	if !ws.Notifications.Has(id) {
		return notification.ErrNotificationNotFound
	}
	if err := s.api.MarkNotificationRead(ctx, id); err != nil {
		return err
	}
	if err := ws.Notifications.MarkRead(id); err != nil {
		return err
	}
	s.workspaces.Persist(ctx, ws)
	return nil
}

// MarkManyRead marks ids read. IDs missing from the cache are still sent
// upstream.
func (s *NotificationService) MarkManyRead(ctx context.Context, userID string, ids []string) (int, error) {
	ws := s.workspaces.Get(ctx, userID)
	if err := s.api.MarkNotificationsRead(ctx, ids); err != nil {
		return 0, err
	}

	marked := 0
	for _, id := range ids {
		if err := ws.Notifications.MarkRead(id); err == nil {
			marked++
		}
	}
	s.workspaces.Persist(ctx, ws)
	return marked, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int, error) {
	ws := s.workspaces.Get(ctx, userID)
	if err := s.api.MarkAllNotificationsRead(ctx); err != nil {
		return 0, err
	}
	marked := ws.Notifications.MarkAllRead()
	s.workspaces.Persist(ctx, ws)
	return marked, nil
}

func (s *NotificationService) Archive(ctx context.Context, userID, id string) error {
	ws := s.workspaces.Get(ctx, userID)
	if !ws.Notifications.Has(id) {
		return notification.ErrNotificationNotFound
	}
	if err := s.api.ArchiveNotification(ctx, id); err != nil {
		return err
	}
	if err := ws.Notifications.Archive(id); err != nil {
		return err
	}
	s.workspaces.Persist(ctx, ws)
	return nil
}

func (s *NotificationService) Delete(ctx context.Context, userID, id string) error {
	ws := s.workspaces.Get(ctx, userID)
	if !ws.Notifications.Has(id) {
		return notification.ErrNotificationNotFound
	}
	if err := s.api.DeleteNotification(ctx, id); err != nil {
		return err
	}
	if err := ws.Notifications.Remove(id); err != nil {
		return err
	}
	s.workspaces.Persist(ctx, ws)
	return nil
}

// Stats prefers the upstream numbers and falls back to the cache when the
// upstream cannot answer.
func (s *NotificationService) Stats(ctx context.Context, userID string) *domain.NotificationStats {
	stats, err := s.api.NotificationStats(ctx)
	if err == nil && stats != nil {
		return stats
	}
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("upstream stats unavailable, using cache")
	}
	local := s.workspaces.Get(ctx, userID).Notifications.Stats()
	return &local
}

func (s *NotificationService) Preferences(ctx context.Context) (*domain.NotificationPreferences, error) {
	return s.api.NotificationPreferences(ctx)
}

func (s *NotificationService) UpdatePreferences(ctx context.Context, prefs *domain.NotificationPreferences) (*domain.NotificationPreferences, error) {
	return s.api.UpdateNotificationPreferences(ctx, prefs)
}
