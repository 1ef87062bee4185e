package domain

import (
	"context"
	"time"
)

const DefaultConflictType = "data_conflict"

// Annotation keys added to a payload when a resolution is resubmitted.
const (
	FieldForceVersion      = "_forceVersion"
	FieldResolutionComment = "_resolutionComment"
	FieldMergedFields      = "_mergedFields"
)

type ResolutionType string

const (
	ResolutionForceOverwrite ResolutionType = "force_overwrite"
	ResolutionAcceptServer   ResolutionType = "accept_server"
	ResolutionMergeFields    ResolutionType = "merge_fields"
)

func (t ResolutionType) Valid() bool {
	switch t {
	case ResolutionForceOverwrite, ResolutionAcceptServer, ResolutionMergeFields:
		return true
	}
	return false
}

// DefaultComment is used when a resolution is submitted without one.
func (t ResolutionType) DefaultComment() string {
	switch t {
	case ResolutionForceOverwrite:
		return "Force overwrite with user changes"
	case ResolutionAcceptServer:
		return "Accept server version"
	case ResolutionMergeFields:
		return "Merged changes from both versions"
	}
	return ""
}

type FieldSource string

const (
	SourceOurs   FieldSource = "ours"
	SourceServer FieldSource = "server"
)

// RetryFunc replays the mutation that produced a conflict. version is the
// version the replay should be checked against.
type RetryFunc func(ctx context.Context, version int64, payload *Fields) (any, error)

type ConflictRecord struct {
	ID                string         `json:"id"`
	EntityID          string         `json:"entityId"`
	EntityType        string         `json:"entityType"`
	OurVersion        int64          `json:"ourVersion"`
	ServerVersion     int64          `json:"serverVersion"`
	OurChanges        *Fields        `json:"ourChanges"`
	ServerState       *Fields        `json:"serverState"`
	ConflictType      string         `json:"conflictType"`
	Timestamp         time.Time      `json:"timestamp"`
	ConflictFields    []string       `json:"conflictFields,omitempty"`
	Operation         string         `json:"operation"`
	OperationMetadata map[string]any `json:"operationMetadata,omitempty"`

	Retry RetryFunc `json:"-"`
}

// HasRetry reports whether the originating operation can still be replayed.
func (c *ConflictRecord) HasRetry() bool {
	return c != nil && c.Retry != nil
}

type FieldDiff struct {
	FieldName   string    `json:"fieldName"`
	DisplayName string    `json:"displayName"`
	Type        ValueKind `json:"type"`
	OurValue    any       `json:"ourValue"`
	ServerValue any       `json:"serverValue"`
	CanMerge    bool      `json:"canMerge"`
}

type MergedField struct {
	Source FieldSource `json:"source"`
	Value  any         `json:"value"`
}

type ConflictResolution struct {
	ResolutionType ResolutionType         `json:"resolutionType"`
	ResolvedData   *Fields                `json:"resolvedData,omitempty"`
	MergedFields   map[string]MergedField `json:"mergedFields,omitempty"`
	ForceVersion   *int64                 `json:"forceVersion,omitempty"`
	Comment        string                 `json:"comment,omitempty"`
}

type ResolutionEntry struct {
	ID         string             `json:"id"`
	UserID     string             `json:"userId,omitempty"`
	ConflictID string             `json:"conflictId"`
	EntityID   string             `json:"entityId"`
	EntityType string             `json:"entityType"`
	Resolution ConflictResolution `json:"resolution"`
	Timestamp  time.Time          `json:"timestamp"`
}

type ResolveConflictRequest struct {
	ResolutionType ResolutionType         `json:"resolution_type" validate:"required,oneof=force_overwrite accept_server merge_fields"`
	Comment        string                 `json:"comment" validate:"max=1000"`
	SelectedFields map[string]FieldSource `json:"selected_fields,omitempty" validate:"omitempty,dive,keys,required,endkeys,oneof=ours server"`
}

// ConflictSummary is the queue view handed to dashboards.
type ConflictSummary struct {
	Pending  []*ConflictRecord `json:"pending"`
	ActiveID string            `json:"active_id,omitempty"`
	Count    int               `json:"count"`
}

type ConflictDetail struct {
	Conflict *ConflictRecord `json:"conflict"`
	Diffs    []FieldDiff     `json:"diffs"`
	Position int             `json:"position"`
	Total    int             `json:"total"`
	Active   bool            `json:"active"`
}
