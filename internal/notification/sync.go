package notification

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"miniups-gateway/internal/domain"
	"miniups-gateway/internal/upstream"
)

// Fetcher pulls notifications the user missed.
type Fetcher interface {
	SyncNotifications(ctx context.Context, since string, limit int) (*domain.NotificationSyncResponse, error)
}

type SyncOptions struct {
	PageSize int
	MaxPages int
}

type SyncResult struct {
	Fetched    int    `json:"fetched"`
	Added      int    `json:"added"`
	Pages      int    `json:"pages"`
	LastSyncID string `json:"lastSyncId"`
}

// Syncer fills the gap between the cached notifications and the server
// after a reconnect. Syncs run one at a time.
type Syncer struct {
	store *Store
	fetch Fetcher
	opts  SyncOptions
	mu    sync.Mutex
	log   *logrus.Entry
}

func NewSyncer(store *Store, fetch Fetcher, opts SyncOptions) *Syncer {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 10
	}
	return &Syncer{
		store: store,
		fetch: fetch,
		opts:  opts,
		log:   logrus.WithField("component", "notification_sync"),
	}
}

// Sync fetches everything after the last synced ID, merging it into the
// store by ID. The last synced ID advances after every page, so a failed
// page keeps the progress of the ones before it.
func (s *Syncer) Sync(ctx context.Context) (*SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.store.SetConnectionStatus(domain.ConnectionSyncing)
	defer func() {
		if s.store.ConnectionStatus() == domain.ConnectionSyncing {
			s.store.SetConnectionStatus(prev)
		}
	}()

	result := &SyncResult{LastSyncID: s.store.LastSyncID()}
	since := result.LastSyncID

	for result.Pages < s.opts.MaxPages {
		resp, err := s.fetch.SyncNotifications(ctx, since, s.opts.PageSize)
		if err != nil {
			s.log.WithError(err).WithField("since", since).Warn("notification sync failed")
			return result, fmt.Errorf("sync notifications since %q: %w", since, err)
		}
		result.Pages++
		result.Fetched += len(resp.Notifications)
		result.Added += s.store.AddMany(resp.Notifications)

		next := resp.LastID
		if next == "" {
			next = newestID(resp.Notifications)
		}
		if next != "" {
			s.store.SetLastSyncID(next)
			result.LastSyncID = next
		}

		if !resp.HasMore || len(resp.Notifications) == 0 || next == "" || next == since {
			break
		}
		since = next
	}

	if result.Fetched > 0 {
		s.log.WithFields(logrus.Fields{
			"fetched":      result.Fetched,
			"added":        result.Added,
			"last_sync_id": result.LastSyncID,
		}).Info("synced missed notifications")
	}
	return result, nil
}

// HandleFeedStatus mirrors the upstream feed state into the store. A new
// connection triggers a sync; the returned result is nil otherwise.
func (s *Syncer) HandleFeedStatus(ctx context.Context, status upstream.FeedStatus) (*SyncResult, error) {
	switch status {
	case upstream.FeedConnected:
		s.store.SetConnectionStatus(domain.ConnectionOnline)
		return s.Sync(ctx)
	default:
		s.store.SetConnectionStatus(domain.ConnectionOffline)
		return nil, nil
	}
}

func newestID(list []*domain.Notification) string {
	var newest *domain.Notification
	for _, n := range list {
		if n == nil || n.ID == "" {
			continue
		}
		if newest == nil || !n.Timestamp.Before(newest.Timestamp) {
			newest = n
		}
	}
	if newest == nil {
		return ""
	}
	return newest.ID
}
