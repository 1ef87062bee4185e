package notification

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"miniups-gateway/internal/domain"
)

var ErrNotificationNotFound = errors.New("notification not found")

// Store is one user's notification cache, keyed by notification ID. Adding
// a notification whose ID is already held replaces it.
type Store struct {
	mu            sync.RWMutex
	notifications map[string]*domain.Notification
	lastSyncID    string
	filters       domain.NotificationFilters
	status        domain.ConnectionStatus
	now           func() time.Time
}

func NewStore() *Store {
	return &Store{
		notifications: make(map[string]*domain.Notification),
		status:        domain.ConnectionOffline,
		now:           time.Now,
	}
}

// Add stores n and reports whether its ID was new.
func (s *Store) Add(n *domain.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(n)
}

// AddMany stores every notification and returns how many IDs were new.
func (s *Store) AddMany(list []*domain.Notification) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, n := range list {
		if s.addLocked(n) {
			added++
		}
	}
	return added
}

func (s *Store) addLocked(n *domain.Notification) bool {
	if n == nil || n.ID == "" {
		return false
	}
	cp := *n
	if cp.Status == "" {
		cp.Status = domain.StatusUnread
	}
	if cp.Timestamp.IsZero() {
		cp.Timestamp = s.now()
	}
	_, exists := s.notifications[cp.ID]
	s.notifications[cp.ID] = &cp
	return !exists
}

func (s *Store) Get(id string) (*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.notifications[id]
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notifications)
}

func (s *Store) MarkRead(id string) error {
	return s.setStatus(id, domain.StatusRead)
}

func (s *Store) Archive(id string) error {
	return s.setStatus(id, domain.StatusArchived)
}

func (s *Store) setStatus(id string, status domain.NotificationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return ErrNotificationNotFound
	}
	n.Status = status
	return nil
}

// MarkAllRead marks every unread notification read and returns how many
// changed.
func (s *Store) MarkAllRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, n := range s.notifications {
		if n.Status == domain.StatusUnread {
			n.Status = domain.StatusRead
			changed++
		}
	}
	return changed
}

func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notifications[id]; !ok {
		return ErrNotificationNotFound
	}
	delete(s.notifications, id)
	return nil
}

// ClearExpired drops notifications past their expiry and returns how many
// were dropped.
func (s *Store) ClearExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, n := range s.notifications {
		if n.Expired(now) {
			delete(s.notifications, id)
			removed++
		}
	}
	return removed
}

// RunExpirySweep calls ClearExpired every interval until ctx ends.
func (s *Store) RunExpirySweep(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.ClearExpired(); removed > 0 && onSweep != nil {
				onSweep(removed)
			}
		}
	}
}

func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications {
		if n.Status == domain.StatusUnread {
			count++
		}
	}
	return count
}

// List returns the notifications matching filters, newest first.
func (s *Store) List(filters domain.NotificationFilters) []*domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if filters.Match(n) {
			cp := *n
			out = append(out, &cp)
		}
	}
	sortNewestFirst(out)
	return out
}

// Filtered lists notifications with the user's saved filters.
func (s *Store) Filtered() []*domain.Notification {
	return s.List(s.Filters())
}

func (s *Store) Filters() domain.NotificationFilters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters
}

func (s *Store) SetFilters(filters domain.NotificationFilters) {
	s.mu.Lock()
	s.filters = filters
	s.mu.Unlock()
}

func (s *Store) LastSyncID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSyncID
}

func (s *Store) SetLastSyncID(id string) {
	s.mu.Lock()
	s.lastSyncID = id
	s.mu.Unlock()
}

func (s *Store) ConnectionStatus() domain.ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetConnectionStatus returns the previous status.
func (s *Store) SetConnectionStatus(status domain.ConnectionStatus) domain.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.status
	s.status = status
	return prev
}

func (s *Store) Stats() domain.NotificationStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.NotificationStats{
		Total:      len(s.notifications),
		ByType:     make(map[domain.NotificationType]int),
		ByPriority: make(map[domain.NotificationPriority]int),
	}
	for _, n := range s.notifications {
		if n.Status == domain.StatusUnread {
			stats.Unread++
		}
		stats.ByType[n.Type]++
		stats.ByPriority[n.Priority]++
	}
	return stats
}

// Snapshot captures the persisted part of the cache.
func (s *Store) Snapshot(userID string) *domain.NotificationState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := &domain.NotificationState{
		UserID:        userID,
		Notifications: make(map[string]*domain.Notification, len(s.notifications)),
		LastSyncID:    s.lastSyncID,
		Filters:       s.filters,
		UpdatedAt:     s.now(),
	}
	for id, n := range s.notifications {
		cp := *n
		state.Notifications[id] = &cp
	}
	return state
}

// Restore replaces the cache content with a persisted state.
func (s *Store) Restore(state *domain.NotificationState) {
	if state == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifications = make(map[string]*domain.Notification, len(state.Notifications))
	for id, n := range state.Notifications {
		if n == nil {
			continue
		}
		cp := *n
		cp.ID = id
		s.notifications[id] = &cp
	}
	s.lastSyncID = state.LastSyncID
	s.filters = state.Filters
}

func sortNewestFirst(list []*domain.Notification) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Timestamp.Equal(list[j].Timestamp) {
			return list[i].ID > list[j].ID
		}
		return list[i].Timestamp.After(list[j].Timestamp)
	})
}
