package domain

import (
	"fmt"
	"math"
)

// MaxQuantity bounds a single line quantity and any per-product total derived
// from an order. Stock columns are 32-bit integers.
const MaxQuantity = math.MaxInt32

// LineItem is an order line request: either a ProductLine or a ComboLine.
type LineItem interface {
	Kind() LineKind
	Units() int
}

type ProductLine struct {
	ProductID int64
	Quantity  int
}

func (ProductLine) Kind() LineKind { return LineProduct }
func (l ProductLine) Units() int   { return l.Quantity }

type ComboLine struct {
	ComboID  int64
	Quantity int
}

func (ComboLine) Kind() LineKind { return LineCombo }
func (l ComboLine) Units() int   { return l.Quantity }

// OrderItemInput is the wire shape of an order line.
type OrderItemInput struct {
	Type      LineKind `json:"type"`
	ProductID *int64   `json:"product_id,omitempty"`
	ComboID   *int64   `json:"combo_id,omitempty"`
	Quantity  int      `json:"quantity"`
}

// ParseLineItems validates wire lines and converts them to their variants.
func ParseLineItems(inputs []OrderItemInput) ([]LineItem, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyOrder
	}

	items := make([]LineItem, 0, len(inputs))
	for i, in := range inputs {
		field := fmt.Sprintf("items[%d]", i)
		if in.Quantity < 1 {
			return nil, &ValidationError{Field: field + ".quantity", Message: "must be a positive integer"}
		}
		if in.Quantity > MaxQuantity {
			return nil, &ValidationError{Field: field + ".quantity", Message: fmt.Sprintf("must not exceed %d", MaxQuantity)}
		}

		kind := in.Type
		if kind == "" {
			// Untyped lines are product lines unless only combo_id is present.
			kind = LineProduct
			if in.ProductID == nil && in.ComboID != nil {
				kind = LineCombo
			}
		}

		switch kind {
		case LineProduct:
			if in.ProductID == nil || *in.ProductID < 1 {
				return nil, &ValidationError{Field: field + ".product_id", Message: "is required for product lines"}
			}
			if in.ComboID != nil {
				return nil, &ValidationError{Field: field + ".combo_id", Message: "not allowed on product lines"}
			}
			items = append(items, ProductLine{ProductID: *in.ProductID, Quantity: in.Quantity})
		case LineCombo:
			if in.ComboID == nil || *in.ComboID < 1 {
				return nil, &ValidationError{Field: field + ".combo_id", Message: "is required for combo lines"}
			}
			if in.ProductID != nil {
				return nil, &ValidationError{Field: field + ".product_id", Message: "not allowed on combo lines"}
			}
			items = append(items, ComboLine{ComboID: *in.ComboID, Quantity: in.Quantity})
		default:
			return nil, &ValidationError{Field: field + ".type", Message: "must be product or combo"}
		}
	}
	return items, nil
}

// ComboIDs returns the distinct combo ids referenced by items, in first-seen order.
func ComboIDs(items []LineItem) []int64 {
	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, item := range items {
		line, ok := item.(ComboLine)
		if !ok {
			continue
		}
		if _, dup := seen[line.ComboID]; dup {
			continue
		}
		seen[line.ComboID] = struct{}{}
		ids = append(ids, line.ComboID)
	}
	return ids
}
