package upstream

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"miniups-gateway/internal/domain"
)

// SyncNotifications fetches notifications newer than since. An empty since
// asks for the most recent page.
func (c *Client) SyncNotifications(ctx context.Context, since string, limit int) (*domain.NotificationSyncResponse, error) {
	query := url.Values{}
	if since != "" {
		query.Set("since", since)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp domain.NotificationSyncResponse
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/notifications/sync", Query: query}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: "/notifications/" + url.PathEscape(id) + "/read"}, nil)
}

func (c *Client) MarkNotificationsRead(ctx context.Context, ids []string) error {
	body := map[string][]string{"notificationIds": ids}
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: "/notifications/bulk/read", Body: body}, nil)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: "/notifications/read-all"}, nil)
}

func (c *Client) ArchiveNotification(ctx context.Context, id string) error {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: "/notifications/" + url.PathEscape(id) + "/archive"}, nil)
}

func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: "/notifications/" + url.PathEscape(id)}, nil)
}

func (c *Client) NotificationStats(ctx context.Context) (*domain.NotificationStats, error) {
	var stats domain.NotificationStats
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/notifications/stats"}, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) NotificationPreferences(ctx context.Context) (*domain.NotificationPreferences, error) {
	var prefs domain.NotificationPreferences
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/user/notification-preferences"}, &prefs); err != nil {
		return nil, err
	}
	return &prefs, nil
}

func (c *Client) UpdateNotificationPreferences(ctx context.Context, prefs *domain.NotificationPreferences) (*domain.NotificationPreferences, error) {
	var updated domain.NotificationPreferences
	if err := c.Do(ctx, Request{Method: http.MethodPatch, Path: "/user/notification-preferences", Body: prefs}, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}
