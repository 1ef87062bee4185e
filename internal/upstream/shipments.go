package upstream

import (
	"context"
	"net/http"
	"net/url"

	"miniups-gateway/internal/domain"
)

func (c *Client) GetShipment(ctx context.Context, trackingNumber string) (*domain.Shipment, error) {
	var shipment domain.Shipment
	err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/tracking/" + url.PathEscape(trackingNumber)}, &shipment)
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

func (c *Client) GetTrackingHistory(ctx context.Context, trackingNumber string) (*domain.TrackingHistory, error) {
	var history domain.TrackingHistory
	err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/tracking/" + url.PathEscape(trackingNumber) + "/history"}, &history)
	if err != nil {
		return nil, err
	}
	return &history, nil
}

func (c *Client) GetUserShipments(ctx context.Context, userID string) (*domain.UserShipments, error) {
	var shipments domain.UserShipments
	err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/tracking/user/" + url.PathEscape(userID)}, &shipments)
	if err != nil {
		return nil, err
	}
	return &shipments, nil
}

func (c *Client) CreateShipment(ctx context.Context, req *domain.CreateShipmentRequest) (*domain.CreateShipmentResponse, error) {
	var created domain.CreateShipmentResponse
	if err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/shipments", Body: req}, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) UpdateShipmentStatus(ctx context.Context, trackingNumber string, version int64, fields *domain.Fields) (interface{}, error) {
	return c.mutateShipment(ctx, http.MethodPut, trackingNumber, "/status", version, fields)
}

func (c *Client) UpdateDeliveryAddress(ctx context.Context, trackingNumber string, version int64, fields *domain.Fields) (interface{}, error) {
	return c.mutateShipment(ctx, http.MethodPut, trackingNumber, "/address", version, fields)
}

func (c *Client) UpdateShipmentPreferences(ctx context.Context, trackingNumber string, version int64, fields *domain.Fields) (interface{}, error) {
	return c.mutateShipment(ctx, http.MethodPut, trackingNumber, "/preferences", version, fields)
}

func (c *Client) AddShipmentComment(ctx context.Context, trackingNumber string, version int64, fields *domain.Fields) (interface{}, error) {
	return c.mutateShipment(ctx, http.MethodPost, trackingNumber, "/comments", version, fields)
}

func (c *Client) CancelShipment(ctx context.Context, trackingNumber, reason string) (interface{}, error) {
	body := map[string]string{"reason": reason}
	var out interface{}
	err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/shipments/" + url.PathEscape(trackingNumber) + "/cancel",
		Body:   body,
	}, &out)
	return out, err
}

func (c *Client) mutateShipment(ctx context.Context, method, trackingNumber, suffix string, version int64, fields *domain.Fields) (interface{}, error) {
	var out interface{}
	err := c.Do(ctx, Request{
		Method:  method,
		Path:    "/shipments/" + url.PathEscape(trackingNumber) + suffix,
		Body:    fields,
		Version: version,
	}, &out)
	return out, err
}
