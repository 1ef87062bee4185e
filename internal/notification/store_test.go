package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miniups-gateway/internal/domain"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func note(id string, minutes int) *domain.Notification {
	return &domain.Notification{
		ID:        id,
		Type:      domain.NotificationShipmentStatus,
		Priority:  domain.PriorityMedium,
		Title:     "t-" + id,
		Timestamp: base.Add(time.Duration(minutes) * time.Minute),
	}
}

func TestStoreDedupesByID(t *testing.T) {
	store := NewStore()

	assert.True(t, store.Add(note("n1", 1)))
	updated := note("n1", 1)
	updated.Title = "second"
	assert.False(t, store.Add(updated))

	assert.Equal(t, 1, store.Len())
	got, err := store.Get("n1")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Title)
	assert.Equal(t, domain.StatusUnread, got.Status)
}

func TestStoreReadAndArchive(t *testing.T) {
	store := NewStore()
	store.AddMany([]*domain.Notification{note("n1", 1), note("n2", 2), note("n3", 3)})
	assert.Equal(t, 3, store.UnreadCount())

	require.NoError(t, store.MarkRead("n1"))
	require.NoError(t, store.Archive("n2"))
	assert.Equal(t, 1, store.UnreadCount())

	assert.Equal(t, 1, store.MarkAllRead())
	assert.Equal(t, 0, store.UnreadCount())

	assert.ErrorIs(t, store.MarkRead("missing"), ErrNotificationNotFound)
	assert.ErrorIs(t, store.Remove("missing"), ErrNotificationNotFound)

	require.NoError(t, store.Remove("n3"))
	assert.Equal(t, 2, store.Len())
}

func TestStoreClearExpired(t *testing.T) {
	store := NewStore()
	store.now = func() time.Time { return base.Add(time.Hour) }

	expired := note("old", 0)
	past := base.Add(30 * time.Minute)
	expired.ExpiresAt = &past

	fresh := note("fresh", 0)
	future := base.Add(2 * time.Hour)
	fresh.ExpiresAt = &future

	store.AddMany([]*domain.Notification{expired, fresh, note("forever", 0)})

	assert.Equal(t, 1, store.ClearExpired())
	assert.False(t, store.Has("old"))
	assert.True(t, store.Has("fresh"))
	assert.True(t, store.Has("forever"))
}

func TestStoreListFiltersNewestFirst(t *testing.T) {
	store := NewStore()
	alert := note("a1", 5)
	alert.Type = domain.NotificationSystemAlert
	alert.Priority = domain.PriorityCritical
	related := note("s1", 10)
	related.RelatedEntityType = domain.EntityShipment

	store.AddMany([]*domain.Notification{note("n1", 1), alert, related})
	require.NoError(t, store.MarkRead("n1"))

	all := store.List(domain.NotificationFilters{})
	require.Len(t, all, 3)
	assert.Equal(t, []string{"s1", "a1", "n1"}, ids(all))

	tests := []struct {
		name    string
		filters domain.NotificationFilters
		want    []string
	}{
		{"by status", domain.NotificationFilters{Status: domain.StatusUnread}, []string{"s1", "a1"}},
		{"by type", domain.NotificationFilters{Types: []domain.NotificationType{domain.NotificationSystemAlert}}, []string{"a1"}},
		{"by priority", domain.NotificationFilters{Priorities: []domain.NotificationPriority{domain.PriorityMedium}}, []string{"s1", "n1"}},
		{"by related entity", domain.NotificationFilters{RelatedEntityType: domain.EntityShipment}, []string{"s1"}},
		{"by date range", domain.NotificationFilters{DateFrom: timePtr(base.Add(2 * time.Minute)), DateTo: timePtr(base.Add(6 * time.Minute))}, []string{"a1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(store.List(tt.filters)))
		})
	}

	store.SetFilters(domain.NotificationFilters{Status: domain.StatusRead})
	assert.Equal(t, []string{"n1"}, ids(store.Filtered()))
}

func TestStoreSnapshotRestore(t *testing.T) {
	store := NewStore()
	store.AddMany([]*domain.Notification{note("n1", 1), note("n2", 2)})
	store.SetLastSyncID("n2")
	store.SetFilters(domain.NotificationFilters{Status: domain.StatusUnread})

	state := store.Snapshot("user-1")
	assert.Equal(t, "user-1", state.UserID)
	assert.Len(t, state.Notifications, 2)

	restored := NewStore()
	restored.Restore(state)
	assert.Equal(t, 2, restored.Len())
	assert.Equal(t, "n2", restored.LastSyncID())
	assert.Equal(t, domain.StatusUnread, restored.Filters().Status)
}

func TestStoreStats(t *testing.T) {
	store := NewStore()
	alert := note("a1", 1)
	alert.Type = domain.NotificationSystemAlert
	store.AddMany([]*domain.Notification{note("n1", 1), alert})
	require.NoError(t, store.MarkRead("n1"))

	stats := store.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Unread)
	assert.Equal(t, 1, stats.ByType[domain.NotificationSystemAlert])
	assert.Equal(t, 2, stats.ByPriority[domain.PriorityMedium])
}

func ids(list []*domain.Notification) []string {
	out := make([]string, 0, len(list))
	for _, n := range list {
		out = append(out, n.ID)
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	return &t
}
