package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"miniups-gateway/internal/cache"
	"miniups-gateway/internal/conflict"
	"miniups-gateway/internal/domain"
	"miniups-gateway/internal/logging"
	"miniups-gateway/internal/websocket"
)

const (
	OpUpdateStatus      = "update_status"
	OpUpdateAddress     = "update_address"
	OpUpdatePreferences = "update_preferences"
	OpAddComment        = "add_comment"
)

// ShipmentAPI is the upstream surface for shipments.
type ShipmentAPI interface {
	GetShipment(ctx context.Context, trackingNumber string) (*domain.Shipment, error)
	GetTrackingHistory(ctx context.Context, trackingNumber string) (*domain.TrackingHistory, error)
	GetUserShipments(ctx context.Context, userID string) (*domain.UserShipments, error)
	CreateShipment(ctx context.Context, req *domain.CreateShipmentRequest) (*domain.CreateShipmentResponse, error)
	UpdateShipmentStatus(ctx context.Context, trackingNumber string, version int64, fields *domain.Fields) (interface{}, error)
	UpdateDeliveryAddress(ctx context.Context, trackingNumber string, version int64, fields *domain.Fields) (interface{}, error)
	UpdateShipmentPreferences(ctx context.Context, trackingNumber string, version int64, fields *domain.Fields) (interface{}, error)
	AddShipmentComment(ctx context.Context, trackingNumber string, version int64, fields *domain.Fields) (interface{}, error)
	CancelShipment(ctx context.Context, trackingNumber, reason string) (interface{}, error)
}

type ShipmentService struct {
	api        ShipmentAPI
	cache      *cache.QueryCache
	workspaces *WorkspaceService
	publisher  Publisher
	log        *logrus.Entry
}

func NewShipmentService(api ShipmentAPI, queryCache *cache.QueryCache, workspaces *WorkspaceService, publisher Publisher) *ShipmentService {
	return &ShipmentService{
		api:        api,
		cache:      queryCache,
		workspaces: workspaces,
		publisher:  publisher,
		log:        logging.Component("shipments"),
	}
}

func shipmentKey(userID, kind, id string) cache.Key {
	return cache.Key{Scope: userID, Domain: domain.EntityShipment, Kind: kind, ID: id}
}

func (s *ShipmentService) Get(ctx context.Context, userID, trackingNumber string) (*domain.Shipment, error) {
	return cache.ReadThrough(ctx, s.cache, shipmentKey(userID, cache.KindDetail, trackingNumber),
		func(ctx context.Context) (*domain.Shipment, error) {
			return s.api.GetShipment(ctx, trackingNumber)
		})
}

func (s *ShipmentService) History(ctx context.Context, userID, trackingNumber string) (*domain.TrackingHistory, error) {
	return cache.ReadThrough(ctx, s.cache, shipmentKey(userID, cache.KindHistory, trackingNumber),
		func(ctx context.Context) (*domain.TrackingHistory, error) {
			return s.api.GetTrackingHistory(ctx, trackingNumber)
		})
}

func (s *ShipmentService) List(ctx context.Context, userID string) (*domain.UserShipments, error) {
	return cache.ReadThrough(ctx, s.cache, shipmentKey(userID, cache.KindList, ""),
		func(ctx context.Context) (*domain.UserShipments, error) {
			return s.api.GetUserShipments(ctx, userID)
		})
}

func (s *ShipmentService) Create(ctx context.Context, userID string, req *domain.CreateShipmentRequest) (*domain.CreateShipmentResponse, error) {
	created, err := s.api.CreateShipment(ctx, req)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateEntity(domain.EntityShipment, created.TrackingNumber)
	s.log.WithFields(logrus.Fields{"user_id": userID, "tracking_number": created.TrackingNumber}).Info("shipment created")
	return created, nil
}

// Cancel is not version checked upstream, so it never produces a conflict.
func (s *ShipmentService) Cancel(ctx context.Context, userID, trackingNumber, reason string) (*domain.MutationResult, error) {
	result, err := s.api.CancelShipment(ctx, trackingNumber, reason)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateEntity(domain.EntityShipment, trackingNumber)
	s.log.WithFields(logrus.Fields{"user_id": userID, "tracking_number": trackingNumber}).Info("shipment cancelled")
	return &domain.MutationResult{TrackingNumber: trackingNumber, Data: result}, nil
}

func (s *ShipmentService) UpdateStatus(ctx context.Context, userID, trackingNumber string, req *domain.UpdateStatusRequest) (*domain.MutationResult, error) {
	fields := domain.FieldsOf("status", string(req.Status))
	if req.Comment != "" {
		fields.Set("comment", req.Comment)
	}
	return s.mutate(ctx, userID, domain.EntityShipment, OpUpdateStatus, s.api.UpdateShipmentStatus, trackingNumber, req.Version, fields)
}

func (s *ShipmentService) UpdateAddress(ctx context.Context, userID, trackingNumber string, req *domain.UpdateAddressRequest) (*domain.MutationResult, error) {
	fields := domain.FieldsOf(
		"delivery_address", req.Address,
		"destination_x", req.X,
		"destination_y", req.Y,
	)
	return s.mutate(ctx, userID, domain.EntityShipment, OpUpdateAddress, s.api.UpdateDeliveryAddress, trackingNumber, req.Version, fields)
}

func (s *ShipmentService) UpdatePreferences(ctx context.Context, userID, trackingNumber string, req *domain.UpdatePreferencesRequest) (*domain.MutationResult, error) {
	return s.mutate(ctx, userID, domain.EntityShipment, OpUpdatePreferences, s.api.UpdateShipmentPreferences, trackingNumber, req.Version, req.Preferences.Clone())
}

func (s *ShipmentService) AddComment(ctx context.Context, userID, trackingNumber string, req *domain.AddCommentRequest) (*domain.MutationResult, error) {
	fields := domain.FieldsOf("comment", req.Comment)
	if req.IsInternal {
		fields.Set("is_internal", true)
	}
	return s.mutate(ctx, userID, domain.EntityShipmentComment, OpAddComment, s.api.AddShipmentComment, trackingNumber, req.Version, fields)
}

type versionedCall func(ctx context.Context, trackingNumber string, version int64, fields *domain.Fields) (interface{}, error)

// mutate runs a versioned upstream call through the user's conflict store.
// A version conflict comes back as *conflict.DetectedError.
func (s *ShipmentService) mutate(
	ctx context.Context,
	userID, entityType, operation string,
	call versionedCall,
	trackingNumber string,
	version int64,
	fields *domain.Fields,
) (*domain.MutationResult, error) {
	ws := s.workspaces.Get(ctx, userID)

	wrapped := conflict.Wrap(ws.Conflicts, func(ctx context.Context, c conflict.Call) (any, error) {
		result, err := call(ctx, c.EntityID, c.Version, c.Fields)
		if err == nil {
			s.cache.InvalidateEntity(entityType, c.EntityID)
		}
		return result, err
	}, conflict.Options{
		EntityType: entityType,
		Operation:  operation,
		OnConflict: func(_ context.Context, rec *domain.ConflictRecord) {
			s.log.WithFields(logrus.Fields{
				"user_id":     userID,
				"conflict_id": rec.ID,
				"entity_id":   rec.EntityID,
				"operation":   operation,
			}).Warn("version conflict detected")
			if s.publisher != nil {
				s.publisher.Publish(userID, websocket.TypeConflictDetected, &websocket.ConflictDetectedPayload{
					ConflictID: rec.ID,
					EntityID:   rec.EntityID,
					EntityType: rec.EntityType,
					Operation:  rec.Operation,
					Pending:    ws.Conflicts.Len(),
				})
			}
		},
	})

	result, err := wrapped(ctx, conflict.Call{
		EntityID: trackingNumber,
		Version:  version,
		Fields:   fields,
		Metadata: map[string]any{"tracking_number": trackingNumber},
	})
	if err != nil {
		var detected *conflict.DetectedError
		if !errors.As(err, &detected) {
			s.log.WithError(err).WithFields(logrus.Fields{
				"user_id":         userID,
				"tracking_number": trackingNumber,
				"operation":       operation,
			}).Debug("shipment mutation failed")
		}
		return nil, err
	}

	return &domain.MutationResult{TrackingNumber: trackingNumber, Data: result}, nil
}
