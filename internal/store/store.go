package store

import (
	"context"
	"encoding/json"
	"fmt"

	"smartseller/backend/internal/domain"
)

// Store is the persistence boundary. Reads outside WithTx see committed data
// only on the postgres backend; every stock mutation goes through a Tx.
type Store interface {
	// WithTx runs fn as one unit of work. It commits when fn returns nil and
	// rolls back every change, stock included, otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	ListLowStockProducts(ctx context.Context) ([]domain.Product, error)

	// ListCombos and GetCombo fill ingredient product details; derived price
	// and availability are left to the caller.
	ListCombos(ctx context.Context) ([]domain.Combo, error)
	GetCombo(ctx context.Context, id int64) (*domain.Combo, error)
	DeleteCombo(ctx context.Context, id int64) error

	ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)

	ListMarketItems(ctx context.Context) ([]domain.MarketItem, error)
	CreateMarketItem(ctx context.Context, item domain.MarketItem) (*domain.MarketItem, error)
	GetMarketItem(ctx context.Context, id int64) (*domain.MarketItem, error)
	UpdateMarketItem(ctx context.Context, item domain.MarketItem) (*domain.MarketItem, error)
	DeleteMarketItem(ctx context.Context, id int64) error

	GetSettingValues(ctx context.Context) (map[string]json.RawMessage, error)
	UpsertSettingValues(ctx context.Context, values map[string]json.RawMessage) error

	ActiveSession(ctx context.Context) (*domain.ReportSession, error)
	GetSession(ctx context.Context, id int64) (*domain.ReportSession, error)
	// StartSession ends any active session and opens a new one.
	StartSession(ctx context.Context) (*domain.ReportSession, error)
	StopSession(ctx context.Context) (*domain.ReportSession, error)
	SessionDailyReport(ctx context.Context, sessionID int64) ([]domain.DailyReportRow, error)

	Dashboard(ctx context.Context) (domain.Dashboard, error)
}

// Tx is a unit of work handle. Row locks taken through it are held until the
// enclosing WithTx returns.
type Tx interface {
	// LockProducts takes exclusive row locks on ids in ascending order and
	// returns the locked rows. Any missing id fails with ErrProductNotFound.
	LockProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
	// TryDecrementStock subtracts amount only when stock covers it. Both stock
	// adjustments reject a non-positive or oversized amount with CheckStockAmount.
	TryDecrementStock(ctx context.Context, productID int64, amount int) (bool, error)
	IncrementStock(ctx context.Context, productID int64, amount int) error
	// UpdateProduct writes a product whose row is already locked.
	UpdateProduct(ctx context.Context, product domain.Product) error

	// Combos returns the current ingredient lists of the requested combos.
	// Unknown ids are absent from the result.
	Combos(ctx context.Context, ids []int64) (map[int64]domain.Combo, error)
	InsertCombo(ctx context.Context, combo domain.Combo) (int64, error)
	// UpdateCombo replaces name and image, and the ingredient list when
	// replaceIngredients is set.
	UpdateCombo(ctx context.Context, combo domain.Combo, replaceIngredients bool) error

	InsertOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	// GetOrderForUpdate locks the order row and returns it with its lines.
	GetOrderForUpdate(ctx context.Context, id int64) (*domain.Order, error)
	// UpdateOrderState writes status, amount_paid, delivered_at and
	// report_session_id.
	UpdateOrderState(ctx context.Context, order domain.Order) error
	DeleteOrder(ctx context.Context, id int64) error

	// ActiveSessionID returns the active report session, opening one if none is active.
	ActiveSessionID(ctx context.Context) (int64, error)
}

// CheckStockAmount validates a stock adjustment before it reaches a backend.
func CheckStockAmount(amount int) error {
	if amount < 1 || amount > domain.MaxQuantity {
		return &domain.ValidationError{
			Field:   "quantity",
			Message: fmt.Sprintf("stock adjustment must be between 1 and %d, got %d", domain.MaxQuantity, amount),
		}
	}
	return nil
}
