package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"miniups-gateway/internal/conflict"
	"miniups-gateway/internal/domain"
	"miniups-gateway/internal/logging"
	"miniups-gateway/internal/repository"
	"miniups-gateway/internal/websocket"
)

type ConflictService struct {
	workspaces *WorkspaceService
	history    repository.ResolutionRepository
	publisher  Publisher
	log        *logrus.Entry
}

func NewConflictService(workspaces *WorkspaceService, history repository.ResolutionRepository, publisher Publisher) *ConflictService {
	return &ConflictService{
		workspaces: workspaces,
		history:    history,
		publisher:  publisher,
		log:        logging.Component("conflicts"),
	}
}

func (s *ConflictService) List(ctx context.Context, userID string) *domain.ConflictSummary {
	ws := s.workspaces.Get(ctx, userID)
	pending := ws.Conflicts.Pending()
	return &domain.ConflictSummary{
		Pending:  pending,
		ActiveID: ws.Conflicts.ActiveID(),
		Count:    len(pending),
	}
}

func (s *ConflictService) Get(ctx context.Context, userID, id string) (*domain.ConflictDetail, error) {
	ws := s.workspaces.Get(ctx, userID)
	rec, err := ws.Conflicts.Get(id)
	if err != nil {
		return nil, err
	}
	return detail(ws, rec), nil
}

// Activate makes id the conflict under review.
func (s *ConflictService) Activate(ctx context.Context, userID, id string) (*domain.ConflictDetail, error) {
	ws := s.workspaces.Get(ctx, userID)
	if !ws.Conflicts.SetActive(id) {
		return nil, conflict.ErrConflictNotFound
	}
	return s.Get(ctx, userID, id)
}

// Next moves review to the conflict queued after the active one.
func (s *ConflictService) Next(ctx context.Context, userID string) (*domain.ConflictDetail, error) {
	ws := s.workspaces.Get(ctx, userID)
	rec := ws.Conflicts.ActivateNext()
	if rec == nil {
		return nil, ErrNoPendingConflicts
	}
	return detail(ws, rec), nil
}

func (s *ConflictService) Resolve(ctx context.Context, userID, id string, req *domain.ResolveConflictRequest) (*conflict.Outcome, error) {
	ws := s.workspaces.Get(ctx, userID)
	rec, err := ws.Conflicts.Get(id)
	if err != nil {
		return nil, err
	}

	res, err := conflict.BuildResolution(rec, req.ResolutionType, req.Comment, req.SelectedFields)
	if err != nil {
		return nil, err
	}

	outcome, err := ws.Resolver.Resolve(ctx, id, res)
	if err != nil {
		return nil, err
	}

	outcome.Entry.UserID = userID
	if s.history != nil {
		if err := s.history.Append(ctx, &outcome.Entry); err != nil {
			s.log.WithError(err).WithField("conflict_id", id).Error("failed to record resolution")
		}
	}

	s.publish(userID, websocket.TypeConflictResolved, &websocket.ConflictResolvedPayload{
		ConflictID:     id,
		EntityID:       rec.EntityID,
		EntityType:     rec.EntityType,
		ResolutionType: res.ResolutionType,
		Pending:        ws.Conflicts.Len(),
	})
	return outcome, nil
}

// Cancel abandons the conflict. Nothing is sent upstream.
func (s *ConflictService) Cancel(ctx context.Context, userID, id string) (*domain.ConflictRecord, error) {
	ws := s.workspaces.Get(ctx, userID)
	rec, err := ws.Resolver.Cancel(id)
	if err != nil {
		return nil, err
	}

	s.publish(userID, websocket.TypeConflictCancelled, &websocket.ConflictCancelledPayload{
		ConflictID: id,
		Pending:    ws.Conflicts.Len(),
	})
	return rec, nil
}

// History lists past resolutions, newest first. The persisted trail is used
// when available; otherwise the in-memory history of this process.
func (s *ConflictService) History(ctx context.Context, userID string, limit int) ([]domain.ResolutionEntry, error) {
	if s.history != nil {
		entries, err := s.history.ListByUser(ctx, userID, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list resolutions: %w", err)
		}
		return entries, nil
	}

	entries := s.workspaces.Get(ctx, userID).Conflicts.History()
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *ConflictService) publish(userID string, msgType websocket.MessageType, payload interface{}) {
	if s.publisher != nil {
		s.publisher.Publish(userID, msgType, payload)
	}
}

func detail(ws *Workspace, rec *domain.ConflictRecord) *domain.ConflictDetail {
	return &domain.ConflictDetail{
		Conflict: rec,
		Diffs:    conflict.Diff(rec.OurChanges, rec.ServerState, conflict.LabelsFor(rec.EntityType)),
		Position: ws.Conflicts.Position(rec.ID),
		Total:    ws.Conflicts.Len(),
		Active:   ws.Conflicts.ActiveID() == rec.ID,
	}
}
