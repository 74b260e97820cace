// Package fulfillment holds the pure inventory rules for orders and combos:
// expanding order lines into per-product requirements, checking them against
// stock, computing combo availability, and deciding when stock moves.
package fulfillment

import (
	"fmt"
	"slices"

	"smartseller/backend/internal/domain"
)

// Requirements maps product id to the total units an operation needs.
type Requirements map[int64]int

// add accumulates units in int64 so totals past domain.MaxQuantity are
// reported instead of wrapping.
func (r Requirements) add(productID int64, units int64) error {
	total := int64(r[productID]) + units
	if units > domain.MaxQuantity || total > domain.MaxQuantity {
		return errQuantityTooLarge(productID)
	}
	r[productID] = int(total)
	return nil
}

func errQuantityTooLarge(productID int64) error {
	return &domain.ValidationError{
		Field:   "items",
		Message: fmt.Sprintf("requested quantity of product %d exceeds %d", productID, domain.MaxQuantity),
	}
}

// ProductIDs returns the ids in ascending order, the order rows must be locked in.
func (r Requirements) ProductIDs() []int64 {
	ids := make([]int64, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Resolve expands items into product requirements. combos must hold the
// ingredient list of every combo referenced by items.
func Resolve(items []domain.LineItem, combos map[int64]domain.Combo) (Requirements, error) {
	req := make(Requirements)
	for _, item := range items {
		switch line := item.(type) {
		case domain.ProductLine:
			if err := req.add(line.ProductID, int64(line.Quantity)); err != nil {
				return nil, err
			}
		case domain.ComboLine:
			combo, ok := combos[line.ComboID]
			if !ok || len(combo.Ingredients) == 0 {
				return nil, fmt.Errorf("combo %d: %w", line.ComboID, domain.ErrInvalidCombo)
			}
			for _, ing := range combo.Ingredients {
				if ing.Quantity > domain.MaxQuantity || line.Quantity > domain.MaxQuantity {
					return nil, errQuantityTooLarge(ing.ProductID)
				}
				if err := req.add(ing.ProductID, int64(ing.Quantity)*int64(line.Quantity)); err != nil {
					return nil, err
				}
			}
		default:
			return nil, &domain.ValidationError{Field: "items", Message: fmt.Sprintf("unsupported line %T", item)}
		}
	}
	return req, nil
}

// Shortfalls lists every required product whose stock cannot cover the
// requirement, ordered by product id. products must contain every id in req.
func Shortfalls(req Requirements, products map[int64]domain.Product) []domain.Shortfall {
	var out []domain.Shortfall
	for _, id := range req.ProductIDs() {
		p := products[id]
		if p.Stock < req[id] {
			out = append(out, domain.Shortfall{
				ProductID: id,
				Name:      p.Name,
				Required:  req[id],
				InStock:   p.Stock,
			})
		}
	}
	return out
}

// CheckStock wraps Shortfalls into an InsufficientStockError.
func CheckStock(req Requirements, products map[int64]domain.Product) error {
	if short := Shortfalls(req, products); len(short) > 0 {
		return &domain.InsufficientStockError{Shortfalls: short}
	}
	return nil
}
