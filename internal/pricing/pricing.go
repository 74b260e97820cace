// Package pricing computes order money: line snapshots, subtotal, the
// discount cap, delivery fee, total and amount paid. Every boundary value is
// rounded to two decimal places.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"smartseller/backend/internal/domain"
)

const moneyPlaces = 2

var maxDiscountRate = decimal.RequireFromString("0.5")

func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// ComboUnit is the live price and cost of one combo unit: the sum of its
// ingredients' current price and cost times the per-unit quantity.
func ComboUnit(ingredients []domain.ComboIngredient, products map[int64]domain.Product) (price, cost decimal.Decimal) {
	price, cost = decimal.Zero, decimal.Zero
	for _, ing := range ingredients {
		p := products[ing.ProductID]
		qty := decimal.NewFromInt(int64(ing.Quantity))
		price = price.Add(p.Price.Mul(qty))
		cost = cost.Add(p.CostPrice.Mul(qty))
	}
	return Round(price), Round(cost)
}

// Lines snapshots name, unit price and unit cost for each item.
func Lines(items []domain.LineItem, products map[int64]domain.Product, combos map[int64]domain.Combo) ([]domain.OrderLine, error) {
	lines := make([]domain.OrderLine, 0, len(items))
	for _, item := range items {
		switch it := item.(type) {
		case domain.ProductLine:
			p, ok := products[it.ProductID]
			if !ok {
				return nil, fmt.Errorf("product %d: %w", it.ProductID, domain.ErrProductNotFound)
			}
			id := it.ProductID
			lines = append(lines, domain.OrderLine{
				ItemType:        domain.LineProduct,
				ProductID:       &id,
				Quantity:        it.Quantity,
				NameAtTime:      p.Name,
				UnitPriceAtTime: Round(p.Price),
				UnitCostAtTime:  Round(p.CostPrice),
			})
		case domain.ComboLine:
			c, ok := combos[it.ComboID]
			if !ok || len(c.Ingredients) == 0 {
				return nil, fmt.Errorf("combo %d: %w", it.ComboID, domain.ErrInvalidCombo)
			}
			price, cost := ComboUnit(c.Ingredients, products)
			id := it.ComboID
			lines = append(lines, domain.OrderLine{
				ItemType:        domain.LineCombo,
				ComboID:         &id,
				Quantity:        it.Quantity,
				NameAtTime:      c.Name,
				UnitPriceAtTime: price,
				UnitCostAtTime:  cost,
			})
		default:
			return nil, &domain.ValidationError{Field: "items", Message: fmt.Sprintf("unsupported line %T", item)}
		}
	}
	return lines, nil
}

type Input struct {
	Lines              []domain.OrderLine
	Discount           decimal.Decimal
	IncludeDeliveryFee bool
	DeliveryFee        decimal.Decimal
}

type Quote struct {
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	MaxDiscount decimal.Decimal
	DeliveryFee decimal.Decimal
	Total       decimal.Decimal
}

// NewQuote prices the snapshotted lines and applies discount and fee policy.
func NewQuote(in Input) (Quote, error) {
	if in.Discount.IsNegative() {
		return Quote{}, &domain.ValidationError{Field: "discount", Message: "must not be negative"}
	}

	subtotal := decimal.Zero
	for _, line := range in.Lines {
		subtotal = subtotal.Add(line.UnitPriceAtTime.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	subtotal = Round(subtotal)

	maxDiscount := Round(subtotal.Mul(maxDiscountRate))
	discount := Round(in.Discount)
	if discount.GreaterThan(maxDiscount) {
		return Quote{}, &domain.DiscountExceededError{Max: maxDiscount}
	}

	fee := decimal.Zero
	if in.IncludeDeliveryFee {
		fee = Round(decimal.Max(decimal.Zero, in.DeliveryFee))
	}

	total := Round(decimal.Max(decimal.Zero, subtotal.Sub(discount).Add(fee)))
	return Quote{
		Subtotal:    subtotal,
		Discount:    discount,
		MaxDiscount: maxDiscount,
		DeliveryFee: fee,
		Total:       total,
	}, nil
}

// AmountPaid is what the customer handed over for an order created in status.
// Debt orders include the change the vendor still owes back.
func AmountPaid(status domain.OrderStatus, total, debt decimal.Decimal) decimal.Decimal {
	switch status {
	case domain.StatusCredit:
		return decimal.Zero
	case domain.StatusDebt:
		return Round(total.Add(debt))
	default:
		return total
	}
}
