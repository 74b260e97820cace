package fulfillment

import (
	"fmt"

	"github.com/shopspring/decimal"

	"smartseller/backend/internal/domain"
)

// ResolveStatus picks the status of a new order.
func ResolveStatus(requested domain.OrderStatus, payment domain.PaymentType, debt decimal.Decimal) domain.OrderStatus {
	switch {
	case requested != "":
		return requested
	case payment == domain.PaymentCredit:
		return domain.StatusCredit
	case debt.IsPositive():
		return domain.StatusDebt
	default:
		return domain.StatusPending
	}
}

// ReservesStock reports whether entering status takes goods out of inventory.
func ReservesStock(status domain.OrderStatus) bool {
	return status.Fulfilled()
}

// Transition describes the side effects of moving an order between statuses.
type Transition struct {
	From domain.OrderStatus
	To   domain.OrderStatus
	// Decrement is set when the order's full requirement leaves inventory now.
	Decrement bool
	// Deliver assigns the active report session and stamps delivered_at.
	Deliver bool
}

// PlanTransition validates a status update. A fulfilled order cannot return
// to pending since its stock has already been taken.
func PlanTransition(from, to domain.OrderStatus) (Transition, error) {
	if !to.Valid() {
		return Transition{}, &domain.ValidationError{Field: "status", Message: "must be one of pending, delivered, debt, credit"}
	}
	if from.Fulfilled() && !to.Fulfilled() {
		return Transition{}, fmt.Errorf("%s -> %s: %w", from, to, domain.ErrInvalidTransition)
	}
	return Transition{
		From:      from,
		To:        to,
		Decrement: !from.Fulfilled() && to.Fulfilled(),
		Deliver:   to == domain.StatusDelivered,
	}, nil
}

type Settlement int

const (
	SettleDebt Settlement = iota
	SettleCredit
)

// Source is the only status a settlement can be applied to.
func (s Settlement) Source() domain.OrderStatus {
	if s == SettleCredit {
		return domain.StatusCredit
	}
	return domain.StatusDebt
}

// PlanSettlement checks that order can be settled and returns the settled
// copy. Credit settlement marks the order paid in full.
func PlanSettlement(s Settlement, order domain.Order) (domain.Order, error) {
	if order.Status != s.Source() {
		return domain.Order{}, fmt.Errorf("order %d is %s: %w", order.ID, order.Status, domain.ErrWrongStatus)
	}
	settled := order
	settled.Status = domain.StatusDelivered
	if s == SettleCredit {
		settled.AmountPaid = order.TotalAmount
	}
	return settled, nil
}
