package conflict

import (
	"context"
	"fmt"

	"miniups-gateway/internal/domain"
	"miniups-gateway/internal/upstream"
)

const (
	defaultOperation = "mutation"
	unknownEntity    = "unknown"
)

// Call is one invocation of a versioned mutation.
type Call struct {
	EntityID string
	Version  int64
	Fields   *domain.Fields
	Metadata map[string]any
}

type Mutation func(ctx context.Context, call Call) (any, error)

type Options struct {
	EntityType string
	Operation  string
	// EntityID overrides how the conflicting entity is named.
	EntityID   func(call Call) string
	OnConflict func(ctx context.Context, rec *domain.ConflictRecord)
}

// DetectedError is returned when a mutation hit a version conflict that was
// registered in the store. The underlying upstream error is still reachable
// through errors.As.
type DetectedError struct {
	ConflictID string
	Record     *domain.ConflictRecord
	Err        error
}

func (e *DetectedError) Error() string {
	return fmt.Sprintf("version conflict on %s %s (conflict %s)", e.Record.EntityType, e.Record.EntityID, e.ConflictID)
}

func (e *DetectedError) Unwrap() error {
	return e.Err
}

// Wrap returns a mutation that behaves like mutate, except that a version
// conflict is turned into a ConflictRecord held by store. The record can
// replay the wrapped mutation, so a replay that conflicts again is detected
// the same way.
func Wrap(store *Store, mutate Mutation, opts Options) Mutation {
	var wrapped Mutation
	wrapped = func(ctx context.Context, call Call) (any, error) {
		result, err := mutate(ctx, call)
		if err == nil {
			return result, nil
		}

		payload, ok := upstream.AsConflict(err)
		if !ok {
			return nil, err
		}

		rec := newRecord(payload, call, opts)
		rec.Retry = func(ctx context.Context, version int64, fields *domain.Fields) (any, error) {
			replay := call
			replay.Version = version
			replay.Fields = fields
			return wrapped(ctx, replay)
		}

		id := store.Add(rec)
		if opts.OnConflict != nil {
			opts.OnConflict(ctx, snapshot(rec))
		}

		return nil, &DetectedError{ConflictID: id, Record: snapshot(rec), Err: err}
	}
	return wrapped
}

func newRecord(payload *upstream.ConflictPayload, call Call, opts Options) *domain.ConflictRecord {
	entityID := call.EntityID
	if opts.EntityID != nil {
		entityID = opts.EntityID(call)
	}
	entityID = firstNonEmpty(entityID, payload.EntityID, unknownEntity)

	ourVersion := call.Version
	if payload.OurVersion != nil {
		ourVersion = *payload.OurVersion
	}
	var serverVersion int64
	if payload.ServerVersion != nil {
		serverVersion = *payload.ServerVersion
	}

	metadata := map[string]any{"version": call.Version}
	for k, v := range call.Metadata {
		metadata[k] = v
	}

	return &domain.ConflictRecord{
		EntityID:          entityID,
		EntityType:        firstNonEmpty(opts.EntityType, payload.EntityType, unknownEntity),
		OurVersion:        ourVersion,
		ServerVersion:     serverVersion,
		OurChanges:        call.Fields.Clone(),
		ServerState:       payload.ServerState.Clone(),
		ConflictType:      firstNonEmpty(payload.ConflictType, domain.DefaultConflictType),
		ConflictFields:    payload.ConflictFields,
		Operation:         firstNonEmpty(opts.Operation, defaultOperation),
		OperationMetadata: metadata,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
