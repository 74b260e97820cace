package service

import (
	"context"
	"log/slog"
	"time"

	"smartseller/backend/internal/cache"
	"smartseller/backend/internal/domain"
	"smartseller/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Publisher receives order events after the unit of work that produced them
// has committed.
type Publisher interface {
	Publish(evt domain.OrderEvent)
}

type noopPublisher struct{}

func (noopPublisher) Publish(domain.OrderEvent) {}

type Service struct {
	repo        store.Store
	settings    cache.SettingsCache
	settingsTTL time.Duration
	events      Publisher
	logger      *slog.Logger
	now         func() time.Time
}

func New(repo store.Store, settingsCache cache.SettingsCache, settingsTTL time.Duration, events Publisher, logger *slog.Logger) *Service {
	if settingsCache == nil {
		settingsCache = cache.NoopSettingsCache{}
	}
	if events == nil {
		events = noopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		repo:        repo,
		settings:    settingsCache,
		settingsTTL: settingsTTL,
		events:      events,
		logger:      logger.With("component", "service"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) publish(ctx context.Context, evtType domain.OrderEventType, order *domain.Order, orderID int64) {
	evt := domain.OrderEvent{Type: evtType, OrderID: orderID, At: s.now(), Order: order}
	if order != nil {
		evt.Status = order.Status
	}
	s.events.Publish(evt)

	attrs := []any{"event", evtType, "order_id", orderID}
	if actor, ok := ActorFromContext(ctx); ok {
		attrs = append(attrs, "actor", actor.Subject)
	}
	s.logger.Info("order event", attrs...)
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
