package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-kivik/kivik/v4"

	"miniups-gateway/internal/domain"
)

var ErrNotificationStateNotFound = errors.New("notification state not found")

type NotificationStateRepository interface {
	Load(ctx context.Context, userID string) (*domain.NotificationState, error)
	Save(ctx context.Context, state *domain.NotificationState) error
}

type CouchDBNotificationStateRepository struct {
	db *kivik.DB
}

type notificationStateDoc struct {
	ID            string                          `json:"_id"`
	Rev           string                          `json:"_rev,omitempty"`
	DocType       string                          `json:"doc_type"`
	UserID        string                          `json:"user_id"`
	Notifications map[string]*domain.Notification `json:"notifications"`
	LastSyncID    string                          `json:"last_sync_id,omitempty"`
	Filters       domain.NotificationFilters      `json:"filters"`
	UpdatedAt     string                          `json:"updated_at"`
}

func NewNotificationStateRepository(client *kivik.Client, dbName string) *CouchDBNotificationStateRepository {
	return &CouchDBNotificationStateRepository{
		db: client.DB(dbName),
	}
}

func notificationStateID(userID string) string {
	return "notification_state:" + userID
}

func (r *CouchDBNotificationStateRepository) Load(ctx context.Context, userID string) (*domain.NotificationState, error) {
	var doc notificationStateDoc
	if err := r.db.Get(ctx, notificationStateID(userID)).ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, ErrNotificationStateNotFound
		}
		return nil, fmt.Errorf("failed to get notification state: %w", err)
	}

	updatedAt, err := parseTime(doc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &domain.NotificationState{
		UserID:        doc.UserID,
		Notifications: doc.Notifications,
		LastSyncID:    doc.LastSyncID,
		Filters:       doc.Filters,
		UpdatedAt:     updatedAt,
	}, nil
}

// Save overwrites the stored state. The document is written with the
// current revision; a concurrent write is retried once with the new one.
func (r *CouchDBNotificationStateRepository) Save(ctx context.Context, state *domain.NotificationState) error {
	doc := notificationStateDoc{
		ID:            notificationStateID(state.UserID),
		DocType:       "notification_state",
		UserID:        state.UserID,
		Notifications: state.Notifications,
		LastSyncID:    state.LastSyncID,
		Filters:       state.Filters,
		UpdatedAt:     formatTime(state.UpdatedAt),
	}

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		doc.Rev, err = r.currentRev(ctx, doc.ID)
		if err != nil {
			return err
		}

		_, err = r.db.Put(ctx, doc.ID, doc)
		if err == nil {
			return nil
		}
		if kivik.HTTPStatus(err) != http.StatusConflict {
			break
		}
	}
	return fmt.Errorf("failed to save notification state: %w", err)
}

func (r *CouchDBNotificationStateRepository) currentRev(ctx context.Context, id string) (string, error) {
	var existing struct {
		Rev string `json:"_rev"`
	}
	if err := r.db.Get(ctx, id).ScanDoc(&existing); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to get notification state revision: %w", err)
	}
	return existing.Rev, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
