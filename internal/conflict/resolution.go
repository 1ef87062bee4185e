package conflict

import (
	"errors"
	"fmt"

	"miniups-gateway/internal/domain"
)

var (
	ErrUnknownResolution = errors.New("unknown resolution type")
	ErrEmptyMerge        = errors.New("merge requires at least one selected field")
	ErrFieldNotMergeable = errors.New("field cannot be merged")
	ErrInvalidSource     = errors.New("field source must be ours or server")
)

// BuildResolution turns a user's choice into a resolution command for rec.
// selections is only read for merges; it must pick at least one mergeable
// field that actually differs.
func BuildResolution(rec *domain.ConflictRecord, kind domain.ResolutionType, comment string, selections map[string]domain.FieldSource) (domain.ConflictResolution, error) {
	if !kind.Valid() {
		return domain.ConflictResolution{}, fmt.Errorf("%w: %q", ErrUnknownResolution, kind)
	}
	if comment == "" {
		comment = kind.DefaultComment()
	}

	res := domain.ConflictResolution{ResolutionType: kind, Comment: comment}
	forceVersion := rec.ServerVersion

	switch kind {
	case domain.ResolutionForceOverwrite:
		res.ResolvedData = rec.OurChanges.Clone()
		res.ForceVersion = &forceVersion

	case domain.ResolutionAcceptServer:
		res.ResolvedData = rec.ServerState.Clone()

	case domain.ResolutionMergeFields:
		diffs := Diff(rec.OurChanges, rec.ServerState, nil)
		if len(diffs) == 0 || len(selections) == 0 {
			return domain.ConflictResolution{}, ErrEmptyMerge
		}

		byName := make(map[string]domain.FieldDiff, len(diffs))
		for _, d := range diffs {
			byName[d.FieldName] = d
		}
		for field, source := range selections {
			d, ok := byName[field]
			if !ok || !d.CanMerge {
				return domain.ConflictResolution{}, fmt.Errorf("%w: %s", ErrFieldNotMergeable, field)
			}
			if source != domain.SourceOurs && source != domain.SourceServer {
				return domain.ConflictResolution{}, fmt.Errorf("%w: %s=%q", ErrInvalidSource, field, source)
			}
		}

		merged := rec.ServerState.Clone()
		res.MergedFields = make(map[string]domain.MergedField, len(selections))
		for _, d := range diffs {
			source, ok := selections[d.FieldName]
			if !ok {
				continue
			}
			value := d.ServerValue
			if source == domain.SourceOurs {
				value = d.OurValue
			}
			merged.Set(d.FieldName, value)
			res.MergedFields[d.FieldName] = domain.MergedField{Source: source, Value: value}
		}
		res.ResolvedData = merged
		res.ForceVersion = &forceVersion
	}

	return res, nil
}
