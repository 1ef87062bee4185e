package conflict

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"miniups-gateway/internal/domain"
)

var ErrRetryUnavailable = errors.New("original operation not found, please try the operation again")

// Invalidator drops cached reads for an entity.
type Invalidator interface {
	InvalidateEntity(entityType, entityID string) int
}

type ResolutionErrorKind string

const (
	KindNestedConflict ResolutionErrorKind = "nested_conflict"
	KindFailure        ResolutionErrorKind = "failure"
)

// ResolutionError reports a resubmission that did not go through. The
// conflict being resolved is kept in the store in both cases.
type ResolutionError struct {
	Kind       ResolutionErrorKind
	ConflictID string
	// NewConflictID is set for nested conflicts.
	NewConflictID string
	Err           error
}

func (e *ResolutionError) Error() string {
	if e.Kind == KindNestedConflict {
		return "another conflict occurred, please try resolving again"
	}
	return fmt.Sprintf("failed to resolve conflict: %v", e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

type Outcome struct {
	Record      *domain.ConflictRecord
	Entry       domain.ResolutionEntry
	Result      any
	Resubmitted bool
	Invalidated int
}

// Resolver executes resolutions against the records of one store.
type Resolver struct {
	store *Store
	cache Invalidator
	now   func() time.Time
	log   *logrus.Entry
}

func NewResolver(store *Store, cache Invalidator) *Resolver {
	return &Resolver{
		store: store,
		cache: cache,
		now:   time.Now,
		log:   logrus.WithField("component", "conflict_resolver"),
	}
}

// Resolve applies res to the conflict id. Force and merge resolutions replay
// the original mutation with the resolution payload; accept_server only
// drops cached reads. On success the resolution is recorded and the
// conflict removed.
func (r *Resolver) Resolve(ctx context.Context, id string, res domain.ConflictResolution) (*Outcome, error) {
	if !res.ResolutionType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResolution, res.ResolutionType)
	}
	rec, err := r.store.Claim(id)
	if err != nil {
		return nil, err
	}
	defer r.store.Release(id)
	if res.Comment == "" {
		res.Comment = res.ResolutionType.DefaultComment()
	}

	outcome := &Outcome{Record: rec}
	log := r.log.WithFields(logrus.Fields{
		"conflict_id": id,
		"entity_type": rec.EntityType,
		"entity_id":   rec.EntityID,
		"resolution":  res.ResolutionType,
	})

	if res.ResolutionType != domain.ResolutionAcceptServer {
		if !rec.HasRetry() {
			r.store.Remove(id)
			log.Warn("retry unavailable, conflict dropped")
			return nil, ErrRetryUnavailable
		}

		if res.ForceVersion == nil {
			v := rec.ServerVersion
			res.ForceVersion = &v
		}
		payload := ResubmissionPayload(rec, res)

		result, err := rec.Retry(ctx, *res.ForceVersion, payload)
		if err != nil {
			var detected *DetectedError
			if errors.As(err, &detected) {
				log.WithField("new_conflict_id", detected.ConflictID).Warn("resubmission conflicted again")
				return nil, &ResolutionError{Kind: KindNestedConflict, ConflictID: id, NewConflictID: detected.ConflictID, Err: err}
			}
			log.WithError(err).Error("resubmission failed")
			return nil, &ResolutionError{Kind: KindFailure, ConflictID: id, Err: err}
		}
		outcome.Result = result
		outcome.Resubmitted = true
	}

	if r.cache != nil {
		outcome.Invalidated = r.cache.InvalidateEntity(rec.EntityType, rec.EntityID)
	}

	outcome.Entry = domain.ResolutionEntry{
		ID:         uuid.New().String(),
		ConflictID: id,
		EntityID:   rec.EntityID,
		EntityType: rec.EntityType,
		Resolution: res,
		Timestamp:  r.now(),
	}
	r.store.AddResolution(outcome.Entry)
	r.store.Remove(id)

	log.Info("conflict resolved")
	return outcome, nil
}

// Cancel drops the conflict and its retry without contacting the server.
func (r *Resolver) Cancel(id string) (*domain.ConflictRecord, error) {
	rec, err := r.store.Take(id)
	if err != nil {
		return nil, err
	}
	rec.Retry = nil
	r.log.WithField("conflict_id", id).Info("conflict resolution cancelled")
	return snapshot(rec), nil
}

// ResubmissionPayload builds the body sent when a force or merge resolution
// is replayed: the resolved data (or our changes, or the merged server
// state) annotated with the forced version and the comment.
func ResubmissionPayload(rec *domain.ConflictRecord, res domain.ConflictResolution) *domain.Fields {
	var payload *domain.Fields
	switch {
	case res.ResolvedData != nil && res.ResolvedData.Len() > 0:
		payload = res.ResolvedData.Clone()
	case res.ResolutionType == domain.ResolutionMergeFields:
		payload = rec.ServerState.Clone()
		fields := make([]string, 0, len(res.MergedFields))
		for field := range res.MergedFields {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			payload.Set(field, res.MergedFields[field].Value)
		}
	default:
		payload = rec.OurChanges.Clone()
	}

	forceVersion := rec.ServerVersion
	if res.ForceVersion != nil {
		forceVersion = *res.ForceVersion
	}
	payload.Set(domain.FieldForceVersion, forceVersion)
	payload.Set(domain.FieldResolutionComment, res.Comment)
	if res.ResolutionType == domain.ResolutionMergeFields {
		payload.Set(domain.FieldMergedFields, res.MergedFields)
	}
	return payload
}
