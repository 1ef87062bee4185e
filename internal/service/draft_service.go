package service

import (
	"context"
	"strings"
	"time"

	"miniups-gateway/internal/domain"
	"miniups-gateway/internal/repository"
)

const maxDraftNameLength = 100

type DraftService struct {
	repo repository.DraftRepository
	now  func() time.Time
}

func NewDraftService(repo repository.DraftRepository) *DraftService {
	return &DraftService{repo: repo, now: time.Now}
}

func (s *DraftService) Save(userID, name string, payload domain.CreateShipmentRequest) (*domain.ShipmentDraft, error) {
	name, err := cleanDraftName(name)
	if err != nil {
		return nil, err
	}

	draft := &domain.ShipmentDraft{
		Name:      name,
		Owner:     userID,
		Payload:   payload,
		UpdatedAt: s.now(),
	}
	if err := s.repo.Save(draft); err != nil {
		return nil, err
	}
	return draft, nil
}

func (s *DraftService) Get(userID, name string) (*domain.ShipmentDraft, error) {
	name, err := cleanDraftName(name)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(userID, name)
}

func (s *DraftService) List(ctx context.Context, userID string) ([]*domain.ShipmentDraft, error) {
	drafts, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if drafts == nil {
		drafts = []*domain.ShipmentDraft{}
	}
	return drafts, nil
}

func (s *DraftService) Delete(userID, name string) error {
	name, err := cleanDraftName(name)
	if err != nil {
		return err
	}
	return s.repo.Delete(userID, name)
}

func cleanDraftName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxDraftNameLength {
		return "", ErrInvalidDraftName
	}
	return name, nil
}
