package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"smartseller/backend/internal/domain"
	"smartseller/backend/internal/fulfillment"
	"smartseller/backend/internal/pricing"
	"smartseller/backend/internal/store"
)

func (s *Service) ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	if status != "" && !status.Valid() {
		return nil, &domain.ValidationError{Field: "status", Message: "must be one of pending, delivered, debt, credit"}
	}
	return s.repo.ListOrders(ctx, status)
}

func (s *Service) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

// CreateOrder resolves, prices and persists an order in one unit of work.
// Stock leaves inventory immediately unless the resolved status is pending.
func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	items, err := domain.ParseLineItems(req.Items)
	if err != nil {
		return domain.Order{}, err
	}

	payment := req.PaymentType
	if payment == "" {
		payment = domain.PaymentCash
	}
	if !payment.Valid() {
		return domain.Order{}, &domain.ValidationError{Field: "payment_type", Message: "must be cash or credit"}
	}
	if req.Status != "" && !req.Status.Valid() {
		return domain.Order{}, &domain.ValidationError{Field: "status", Message: "must be one of pending, delivered, debt, credit"}
	}
	if req.DebtAmount.IsNegative() {
		return domain.Order{}, &domain.ValidationError{Field: "debt_amount", Message: "must not be negative"}
	}
	debt := pricing.Round(req.DebtAmount)
	if !debt.IsZero() && (payment == domain.PaymentCredit || req.Status == domain.StatusCredit) {
		return domain.Order{}, domain.ErrIncompatibleDebtCredit
	}

	fee := decimal.Zero
	if req.IncludeDeliveryFee {
		fee, err = s.DeliveryFee(ctx)
		if err != nil {
			return domain.Order{}, err
		}
	}

	var created *domain.Order
	err = s.repo.WithTx(ctx, func(tx store.Tx) error {
		combos, err := tx.Combos(ctx, domain.ComboIDs(items))
		if err != nil {
			return err
		}
		requirements, err := fulfillment.Resolve(items, combos)
		if err != nil {
			return err
		}
		products, err := tx.LockProducts(ctx, requirements.ProductIDs())
		if err != nil {
			return err
		}

		lines, err := pricing.Lines(items, products, combos)
		if err != nil {
			return err
		}
		quote, err := pricing.NewQuote(pricing.Input{
			Lines:              lines,
			Discount:           req.Discount,
			IncludeDeliveryFee: req.IncludeDeliveryFee,
			DeliveryFee:        fee,
		})
		if err != nil {
			return err
		}

		status := fulfillment.ResolveStatus(req.Status, payment, debt)
		if err := fulfillment.CheckStock(requirements, products); err != nil {
			return err
		}
		if fulfillment.ReservesStock(status) {
			if err := decrementStock(ctx, tx, requirements); err != nil {
				return err
			}
		}

		sessionID, err := tx.ActiveSessionID(ctx)
		if err != nil {
			return err
		}
		order := domain.Order{
			CustomerName:    defaultString(strings.TrimSpace(req.CustomerName), "Guest"),
			CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
			Status:          status,
			PaymentType:     payment,
			Subtotal:        quote.Subtotal,
			Discount:        quote.Discount,
			DeliveryFee:     quote.DeliveryFee,
			TotalAmount:     quote.Total,
			AmountPaid:      pricing.AmountPaid(status, quote.Total, debt),
			ReportSessionID: &sessionID,
			Items:           lines,
		}
		if status == domain.StatusDelivered {
			now := s.now()
			order.DeliveredAt = &now
		}

		created, err = tx.InsertOrder(ctx, order)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.publish(ctx, domain.EventOrderCreated, created, created.ID)
	return *created, nil
}

// UpdateOrderStatus moves an order between statuses. Entering a fulfilled
// status from pending takes the order's full requirement out of inventory.
func (s *Service) UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus) (domain.Order, error) {
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		plan, err := fulfillment.PlanTransition(order.Status, status)
		if err != nil {
			return err
		}

		if plan.Decrement {
			requirements, err := orderRequirements(ctx, tx, *order)
			if err != nil {
				return err
			}
			products, err := tx.LockProducts(ctx, requirements.ProductIDs())
			if err != nil {
				return err
			}
			if err := fulfillment.CheckStock(requirements, products); err != nil {
				return err
			}
			if err := decrementStock(ctx, tx, requirements); err != nil {
				return err
			}
		}

		order.Status = status
		if plan.Deliver {
			if err := s.deliver(ctx, tx, order); err != nil {
				return err
			}
		}
		return tx.UpdateOrderState(ctx, *order)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return s.afterOrderChange(ctx, id)
}

func (s *Service) MarkDebtPaid(ctx context.Context, id int64) (domain.Order, error) {
	return s.settle(ctx, id, fulfillment.SettleDebt)
}

func (s *Service) MarkCreditPaid(ctx context.Context, id int64) (domain.Order, error) {
	return s.settle(ctx, id, fulfillment.SettleCredit)
}

func (s *Service) settle(ctx context.Context, id int64, settlement fulfillment.Settlement) (domain.Order, error) {
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		settled, err := fulfillment.PlanSettlement(settlement, *order)
		if err != nil {
			return err
		}
		if err := s.deliver(ctx, tx, &settled); err != nil {
			return err
		}
		return tx.UpdateOrderState(ctx, settled)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return s.afterOrderChange(ctx, id)
}

// DeleteOrder removes a delivered order and returns its stock to inventory.
func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.Status != domain.StatusDelivered {
			return fmt.Errorf("order %d is %s: %w", id, order.Status, domain.ErrNotDelivered)
		}

		requirements, err := orderRequirements(ctx, tx, *order)
		if err != nil {
			return err
		}
		if _, err := tx.LockProducts(ctx, requirements.ProductIDs()); err != nil {
			return err
		}
		for _, productID := range requirements.ProductIDs() {
			if err := tx.IncrementStock(ctx, productID, requirements[productID]); err != nil {
				return err
			}
		}
		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, domain.EventOrderDeleted, nil, id)
	return nil
}

// deliver assigns the active report session and stamps delivered_at once.
func (s *Service) deliver(ctx context.Context, tx store.Tx, order *domain.Order) error {
	sessionID, err := tx.ActiveSessionID(ctx)
	if err != nil {
		return err
	}
	order.ReportSessionID = &sessionID
	if order.DeliveredAt == nil {
		now := s.now()
		order.DeliveredAt = &now
	}
	return nil
}

func (s *Service) afterOrderChange(ctx context.Context, id int64) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	s.publish(ctx, domain.EventOrderUpdated, order, id)
	return *order, nil
}

// orderRequirements resolves a persisted order's lines against the current
// combo definitions.
func orderRequirements(ctx context.Context, tx store.Tx, order domain.Order) (fulfillment.Requirements, error) {
	items := make([]domain.LineItem, 0, len(order.Items))
	for _, line := range order.Items {
		item, err := line.Item()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	combos, err := tx.Combos(ctx, domain.ComboIDs(items))
	if err != nil {
		return nil, err
	}
	return fulfillment.Resolve(items, combos)
}

func decrementStock(ctx context.Context, tx store.Tx, requirements fulfillment.Requirements) error {
	for _, productID := range requirements.ProductIDs() {
		ok, err := tx.TryDecrementStock(ctx, productID, requirements[productID])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("product %d: %w", productID, domain.ErrStockConflict)
		}
	}
	return nil
}
