package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"smartseller/backend/internal/domain"
	"smartseller/backend/internal/pricing"
	"smartseller/backend/internal/store"
)

const defaultLowStockThreshold = 5

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListLowStockProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	product := domain.Product{
		Name:              strings.TrimSpace(req.Name),
		Price:             pricing.Round(req.Price),
		CostPrice:         decimal.Zero,
		Stock:             req.Stock,
		LowStockThreshold: defaultLowStockThreshold,
	}
	if req.CostPrice != nil {
		product.CostPrice = pricing.Round(*req.CostPrice)
	}
	if req.LowStockThreshold != nil {
		product.LowStockThreshold = *req.LowStockThreshold
	}
	if err := validateProduct(product); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.logger.Info("product created", "product_id", created.ID, "name", created.Name, "stock", created.Stock)
	return *created, nil
}

// UpdateProduct is the direct inventory edit path. It holds the product's
// row lock so it cannot interleave with an order taking stock.
func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		locked, err := tx.LockProducts(ctx, []int64{id})
		if err != nil {
			return err
		}
		product := locked[id]

		if req.Name != nil {
			product.Name = strings.TrimSpace(*req.Name)
		}
		if req.Price != nil {
			product.Price = pricing.Round(*req.Price)
		}
		if req.CostPrice != nil {
			product.CostPrice = pricing.Round(*req.CostPrice)
		}
		if req.Stock != nil {
			product.Stock = *req.Stock
		}
		if req.LowStockThreshold != nil {
			product.LowStockThreshold = *req.LowStockThreshold
		}
		if err := validateProduct(product); err != nil {
			return err
		}
		return tx.UpdateProduct(ctx, product)
	})
	if err != nil {
		return domain.Product{}, err
	}
	return s.GetProduct(ctx, id)
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	return s.repo.DeleteProduct(ctx, id)
}

func validateProduct(p domain.Product) error {
	switch {
	case p.Name == "":
		return &domain.ValidationError{Field: "name", Message: "is required"}
	case p.Price.IsNegative():
		return &domain.ValidationError{Field: "price", Message: "must not be negative"}
	case p.CostPrice.IsNegative():
		return &domain.ValidationError{Field: "cost_price", Message: "must not be negative"}
	case p.Stock < 0:
		return &domain.ValidationError{Field: "stock", Message: "must not be negative"}
	case p.Stock > domain.MaxQuantity:
		return &domain.ValidationError{Field: "stock", Message: fmt.Sprintf("must not exceed %d", domain.MaxQuantity)}
	case p.LowStockThreshold < 0:
		return &domain.ValidationError{Field: "low_stock_threshold", Message: "must not be negative"}
	}
	return nil
}
