package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyOrder             = errors.New("order must contain at least one item")
	ErrInvalidCombo           = errors.New("combo not found or has no ingredients")
	ErrProductNotFound        = errors.New("product not found")
	ErrComboNotFound          = errors.New("combo not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrMarketItemNotFound     = errors.New("market item not found")
	ErrSessionNotFound        = errors.New("report session not found")
	ErrNoActiveSession        = errors.New("no active report session")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrDiscountExceeded       = errors.New("discount cannot exceed 50% of subtotal")
	ErrIncompatibleDebtCredit = errors.New("debt amount is not allowed for credit orders")
	ErrStockConflict          = errors.New("stock changed; please retry")
	ErrDuplicateIngredient    = errors.New("duplicate product in combo ingredients")
	ErrComboInUse             = errors.New("combo is used in orders")
	ErrProductInUse           = errors.New("product is used in combos or orders")
	ErrNotDelivered           = errors.New("only delivered orders can be deleted")
	ErrWrongStatus            = errors.New("order is not in the expected status")
	ErrInvalidTransition      = errors.New("status transition not allowed")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + " " + e.Message
}

type Shortfall struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Required  int    `json:"required"`
	InStock   int    `json:"in_stock"`
}

// InsufficientStockError lists every product that cannot cover its requirement.
type InsufficientStockError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s (need %d, have %d)", s.Name, s.Required, s.InStock))
	}
	return ErrInsufficientStock.Error() + ": " + strings.Join(parts, ", ")
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type DiscountExceededError struct {
	Max decimal.Decimal
}

func (e *DiscountExceededError) Error() string {
	return fmt.Sprintf("%s (max %s)", ErrDiscountExceeded.Error(), e.Max.StringFixed(2))
}

func (e *DiscountExceededError) Unwrap() error { return ErrDiscountExceeded }

func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrComboNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrMarketItemNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrNoActiveSession)
}
