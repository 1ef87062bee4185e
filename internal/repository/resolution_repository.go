package repository

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-kivik/kivik/v4"
	"github.com/google/uuid"

	"miniups-gateway/internal/domain"
)

// ResolutionRepository is the append-only audit trail of resolved
// conflicts.
type ResolutionRepository interface {
	Append(ctx context.Context, entry *domain.ResolutionEntry) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.ResolutionEntry, error)
}

type CouchDBResolutionRepository struct {
	db *kivik.DB
}

type resolutionDoc struct {
	ID         string                    `json:"_id"`
	Rev        string                    `json:"_rev,omitempty"`
	DocType    string                    `json:"doc_type"`
	UserID     string                    `json:"user_id"`
	ConflictID string                    `json:"conflict_id"`
	EntityID   string                    `json:"entity_id"`
	EntityType string                    `json:"entity_type"`
	Resolution domain.ConflictResolution `json:"resolution"`
	Timestamp  string                    `json:"timestamp"`
}

func NewResolutionRepository(client *kivik.Client, dbName string) *CouchDBResolutionRepository {
	return &CouchDBResolutionRepository{
		db: client.DB(dbName),
	}
}

func (r *CouchDBResolutionRepository) Append(ctx context.Context, entry *domain.ResolutionEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	doc := resolutionDoc{
		ID:         "resolution:" + entry.ID,
		DocType:    "resolution",
		UserID:     entry.UserID,
		ConflictID: entry.ConflictID,
		EntityID:   entry.EntityID,
		EntityType: entry.EntityType,
		Resolution: entry.Resolution,
		Timestamp:  formatTime(entry.Timestamp),
	}

	if _, err := r.db.Put(ctx, doc.ID, doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusConflict {
			return fmt.Errorf("resolution %s already recorded", entry.ID)
		}
		return fmt.Errorf("failed to record resolution: %w", err)
	}
	return nil
}

// ListByUser returns the user's resolutions, newest first.
func (r *CouchDBResolutionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.ResolutionEntry, error) {
	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"doc_type": "resolution",
			"user_id":  userID,
		},
	}

	rows := r.db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query resolutions: %w", err)
	}
	defer rows.Close()

	var entries []domain.ResolutionEntry
	for rows.Next() {
		var doc resolutionDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan resolution: %w", err)
		}

		ts, err := parseTime(doc.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}

		entries = append(entries, domain.ResolutionEntry{
			ID:         doc.ID[len("resolution:"):],
			UserID:     doc.UserID,
			ConflictID: doc.ConflictID,
			EntityID:   doc.EntityID,
			EntityType: doc.EntityType,
			Resolution: doc.Resolution,
			Timestamp:  ts,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate resolutions: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
