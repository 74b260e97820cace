package service

import (
	"context"
	"strings"

	"smartseller/backend/internal/domain"
)

func (s *Service) ListMarketItems(ctx context.Context) ([]domain.MarketItem, error) {
	return s.repo.ListMarketItems(ctx)
}

func (s *Service) CreateMarketItem(ctx context.Context, req domain.MarketItemCreateRequest) (domain.MarketItem, error) {
	item := domain.MarketItem{
		Item:     strings.TrimSpace(req.Item),
		Quantity: defaultString(strings.TrimSpace(req.Quantity), "1"),
		Priority: req.Priority,
		Notes:    strings.TrimSpace(req.Notes),
		Status:   domain.MarketOpen,
	}
	if item.Priority == "" {
		item.Priority = domain.PriorityMedium
	}
	if err := validateMarketItem(item); err != nil {
		return domain.MarketItem{}, err
	}

	created, err := s.repo.CreateMarketItem(ctx, item)
	if err != nil {
		return domain.MarketItem{}, err
	}
	return *created, nil
}

func (s *Service) UpdateMarketItem(ctx context.Context, id int64, req domain.MarketItemUpdateRequest) (domain.MarketItem, error) {
	existing, err := s.repo.GetMarketItem(ctx, id)
	if err != nil {
		return domain.MarketItem{}, err
	}

	item := *existing
	if req.Item != nil {
		item.Item = strings.TrimSpace(*req.Item)
	}
	if req.Quantity != nil {
		item.Quantity = defaultString(strings.TrimSpace(*req.Quantity), "1")
	}
	if req.Priority != nil {
		item.Priority = *req.Priority
	}
	if req.Notes != nil {
		item.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.Status != nil {
		item.Status = *req.Status
	}
	if err := validateMarketItem(item); err != nil {
		return domain.MarketItem{}, err
	}

	updated, err := s.repo.UpdateMarketItem(ctx, item)
	if err != nil {
		return domain.MarketItem{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteMarketItem(ctx context.Context, id int64) error {
	return s.repo.DeleteMarketItem(ctx, id)
}

func validateMarketItem(item domain.MarketItem) error {
	switch {
	case item.Item == "":
		return &domain.ValidationError{Field: "item", Message: "is required"}
	case !item.Priority.Valid():
		return &domain.ValidationError{Field: "priority", Message: "must be low, medium or high"}
	case !item.Status.Valid():
		return &domain.ValidationError{Field: "status", Message: "must be open or done"}
	}
	return nil
}
