package service

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"smartseller/backend/internal/domain"
)

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	values, err := s.settingValues(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	return domain.SettingsFromValues(values), nil
}

// UpdateSettings upserts the given keys and leaves every other key as is.
func (s *Service) UpdateSettings(ctx context.Context, values map[string]json.RawMessage) (domain.Settings, error) {
	if len(values) == 0 {
		return domain.Settings{}, &domain.ValidationError{Field: "settings", Message: "no settings supplied"}
	}
	for key, raw := range values {
		if err := domain.ValidateSettingValue(key, raw); err != nil {
			return domain.Settings{}, err
		}
	}

	if err := s.repo.UpsertSettingValues(ctx, values); err != nil {
		return domain.Settings{}, err
	}
	if err := s.settings.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate settings cache", "error", err)
	}
	return s.GetSettings(ctx)
}

// DeliveryFee is the configured fee, 100 when unset and never negative.
func (s *Service) DeliveryFee(ctx context.Context) (decimal.Decimal, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return settings.DeliveryFee, nil
}

func (s *Service) settingValues(ctx context.Context) (map[string]json.RawMessage, error) {
	if cached, ok, err := s.settings.Get(ctx); err != nil {
		s.logger.Warn("read settings cache", "error", err)
	} else if ok {
		return cached, nil
	}

	values, err := s.repo.GetSettingValues(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.settings.Set(ctx, values, s.settingsTTL); err != nil {
		s.logger.Warn("write settings cache", "error", err)
	}
	return values, nil
}
