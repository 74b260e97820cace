package service

import (
	"context"
	"strings"

	"smartseller/backend/internal/domain"
	"smartseller/backend/internal/fulfillment"
	"smartseller/backend/internal/pricing"
	"smartseller/backend/internal/store"
)

func (s *Service) ListCombos(ctx context.Context) ([]domain.Combo, error) {
	combos, err := s.repo.ListCombos(ctx)
	if err != nil {
		return nil, err
	}
	for i := range combos {
		combos[i] = withDerived(combos[i])
	}
	return combos, nil
}

func (s *Service) GetCombo(ctx context.Context, id int64) (domain.Combo, error) {
	combo, err := s.repo.GetCombo(ctx, id)
	if err != nil {
		return domain.Combo{}, err
	}
	return withDerived(*combo), nil
}

// CreateCombo rejects definitions that current stock cannot assemble at
// least once.
func (s *Service) CreateCombo(ctx context.Context, req domain.ComboCreateRequest) (domain.Combo, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Combo{}, &domain.ValidationError{Field: "name", Message: "is required"}
	}
	if err := fulfillment.ValidateIngredients(req.Ingredients); err != nil {
		return domain.Combo{}, err
	}

	var id int64
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		if err := checkAssemblable(ctx, tx, req.Ingredients); err != nil {
			return err
		}
		var err error
		id, err = tx.InsertCombo(ctx, domain.Combo{
			Name:        name,
			ImageURL:    strings.TrimSpace(req.ImageURL),
			Ingredients: toIngredients(req.Ingredients),
		})
		return err
	})
	if err != nil {
		return domain.Combo{}, err
	}

	s.logger.Info("combo created", "combo_id", id, "name", name)
	return s.GetCombo(ctx, id)
}

func (s *Service) UpdateCombo(ctx context.Context, id int64, req domain.ComboUpdateRequest) (domain.Combo, error) {
	if req.Ingredients != nil {
		if err := fulfillment.ValidateIngredients(*req.Ingredients); err != nil {
			return domain.Combo{}, err
		}
	}

	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		current, err := tx.Combos(ctx, []int64{id})
		if err != nil {
			return err
		}
		combo, ok := current[id]
		if !ok {
			return domain.ErrComboNotFound
		}

		if req.Name != nil {
			combo.Name = strings.TrimSpace(*req.Name)
			if combo.Name == "" {
				return &domain.ValidationError{Field: "name", Message: "is required"}
			}
		}
		if req.ImageURL != nil {
			combo.ImageURL = strings.TrimSpace(*req.ImageURL)
		}
		if req.Ingredients != nil {
			if err := checkAssemblable(ctx, tx, *req.Ingredients); err != nil {
				return err
			}
			combo.Ingredients = toIngredients(*req.Ingredients)
		}
		return tx.UpdateCombo(ctx, combo, req.Ingredients != nil)
	})
	if err != nil {
		return domain.Combo{}, err
	}
	return s.GetCombo(ctx, id)
}

func (s *Service) DeleteCombo(ctx context.Context, id int64) error {
	return s.repo.DeleteCombo(ctx, id)
}

func checkAssemblable(ctx context.Context, tx store.Tx, inputs []domain.ComboIngredientInput) error {
	requirements := fulfillment.IngredientRequirements(inputs)
	products, err := tx.LockProducts(ctx, requirements.ProductIDs())
	if err != nil {
		return err
	}
	return fulfillment.CheckStock(requirements, products)
}

func toIngredients(inputs []domain.ComboIngredientInput) []domain.ComboIngredient {
	out := make([]domain.ComboIngredient, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, domain.ComboIngredient{ProductID: in.ProductID, Quantity: in.Quantity})
	}
	return out
}

// withDerived fills the live unit price, unit cost and available units from
// the ingredient details the store attached.
func withDerived(c domain.Combo) domain.Combo {
	products := make(map[int64]domain.Product, len(c.Ingredients))
	stock := make(map[int64]int, len(c.Ingredients))
	for _, ing := range c.Ingredients {
		products[ing.ProductID] = domain.Product{ID: ing.ProductID, Price: ing.ProductPrice, CostPrice: ing.ProductCost}
		stock[ing.ProductID] = ing.ProductStock
	}
	c.UnitPrice, c.UnitCost = pricing.ComboUnit(c.Ingredients, products)
	c.AvailableUnits = fulfillment.AvailableUnits(c.Ingredients, stock)
	return c
}
