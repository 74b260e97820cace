package fulfillment

import (
	"fmt"

	"smartseller/backend/internal/domain"
)

// AvailableUnits is how many whole combo units current stock can assemble:
// the minimum of stock/quantity over the ingredients, or 0 with no ingredients.
func AvailableUnits(ingredients []domain.ComboIngredient, stock map[int64]int) int {
	if len(ingredients) == 0 {
		return 0
	}
	units := -1
	for _, ing := range ingredients {
		if ing.Quantity < 1 {
			return 0
		}
		n := stock[ing.ProductID] / ing.Quantity
		if units < 0 || n < units {
			units = n
		}
	}
	if units < 0 {
		return 0
	}
	return units
}

// ValidateIngredients checks a combo definition before any store access.
func ValidateIngredients(inputs []domain.ComboIngredientInput) error {
	if len(inputs) == 0 {
		return &domain.ValidationError{Field: "items", Message: "combo needs at least one ingredient"}
	}
	seen := make(map[int64]struct{}, len(inputs))
	for i, in := range inputs {
		if in.ProductID < 1 {
			return &domain.ValidationError{Field: fmt.Sprintf("items[%d].product_id", i), Message: "is required"}
		}
		if in.Quantity < 1 {
			return &domain.ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Message: "must be a positive integer"}
		}
		if in.Quantity > domain.MaxQuantity {
			return &domain.ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Message: fmt.Sprintf("must not exceed %d", domain.MaxQuantity)}
		}
		if _, dup := seen[in.ProductID]; dup {
			return fmt.Errorf("product %d: %w", in.ProductID, domain.ErrDuplicateIngredient)
		}
		seen[in.ProductID] = struct{}{}
	}
	return nil
}

// IngredientRequirements is what assembling one unit of the combo needs.
// Inputs must already have passed ValidateIngredients.
func IngredientRequirements(inputs []domain.ComboIngredientInput) Requirements {
	req := make(Requirements, len(inputs))
	for _, in := range inputs {
		req[in.ProductID] = in.Quantity
	}
	return req
}
