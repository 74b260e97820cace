package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusDelivered OrderStatus = "delivered"
	StatusDebt      OrderStatus = "debt"
	StatusCredit    OrderStatus = "credit"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusDelivered, StatusDebt, StatusCredit:
		return true
	}
	return false
}

// Fulfilled reports whether goods for an order in this status have left inventory.
func (s OrderStatus) Fulfilled() bool {
	return s == StatusDelivered || s == StatusDebt || s == StatusCredit
}

type PaymentType string

const (
	PaymentCash   PaymentType = "cash"
	PaymentCredit PaymentType = "credit"
)

func (p PaymentType) Valid() bool {
	return p == PaymentCash || p == PaymentCredit
}

type LineKind string

const (
	LineProduct LineKind = "product"
	LineCombo   LineKind = "combo"
)

type Product struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	CostPrice         decimal.Decimal `json:"cost_price"`
	Stock             int             `json:"stock"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (p Product) LowStock() bool {
	return p.Stock <= p.LowStockThreshold
}

type ProductCreateRequest struct {
	Name              string           `json:"name"`
	Price             decimal.Decimal  `json:"price"`
	CostPrice         *decimal.Decimal `json:"cost_price,omitempty"`
	Stock             int              `json:"stock"`
	LowStockThreshold *int             `json:"low_stock_threshold,omitempty"`
}

type ProductUpdateRequest struct {
	Name              *string          `json:"name,omitempty"`
	Price             *decimal.Decimal `json:"price,omitempty"`
	CostPrice         *decimal.Decimal `json:"cost_price,omitempty"`
	Stock             *int             `json:"stock,omitempty"`
	LowStockThreshold *int             `json:"low_stock_threshold,omitempty"`
}

// ComboIngredient is one product requirement per combo unit. The product_*
// fields are filled on reads for display only.
type ComboIngredient struct {
	ProductID    int64           `json:"product_id"`
	Quantity     int             `json:"quantity"`
	ProductName  string          `json:"product_name,omitempty"`
	ProductPrice decimal.Decimal `json:"product_price"`
	ProductCost  decimal.Decimal `json:"product_cost"`
	ProductStock int             `json:"product_stock"`
}

type Combo struct {
	ID             int64             `json:"id"`
	Name           string            `json:"name"`
	ImageURL       string            `json:"image_url,omitempty"`
	Ingredients    []ComboIngredient `json:"items"`
	UnitPrice      decimal.Decimal   `json:"unit_price"`
	UnitCost       decimal.Decimal   `json:"unit_cost"`
	AvailableUnits int               `json:"available_units"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

type ComboIngredientInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type ComboCreateRequest struct {
	Name        string                 `json:"name"`
	ImageURL    string                 `json:"image_url,omitempty"`
	Ingredients []ComboIngredientInput `json:"items"`
}

// ComboUpdateRequest leaves a field untouched when it is nil.
type ComboUpdateRequest struct {
	Name        *string                 `json:"name,omitempty"`
	ImageURL    *string                 `json:"image_url,omitempty"`
	Ingredients *[]ComboIngredientInput `json:"items,omitempty"`
}

type Order struct {
	ID              int64           `json:"id"`
	CustomerName    string          `json:"customer_name"`
	CustomerPhone   string          `json:"customer_phone,omitempty"`
	Status          OrderStatus     `json:"status"`
	PaymentType     PaymentType     `json:"payment_type"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Discount        decimal.Decimal `json:"discount"`
	DeliveryFee     decimal.Decimal `json:"delivery_fee"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
	ReportSessionID *int64          `json:"report_session_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Items           []OrderLine     `json:"items"`
}

// OrderLine is an immutable snapshot of what was sold. Exactly one of
// ProductID and ComboID is set, matching ItemType.
type OrderLine struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	ItemType        LineKind        `json:"item_type"`
	ProductID       *int64          `json:"product_id,omitempty"`
	ComboID         *int64          `json:"combo_id,omitempty"`
	Quantity        int             `json:"quantity"`
	NameAtTime      string          `json:"name_at_time"`
	UnitPriceAtTime decimal.Decimal `json:"price_at_time"`
	UnitCostAtTime  decimal.Decimal `json:"cost_at_time"`
}

// Item rebuilds the request-side variant from a persisted line.
func (l OrderLine) Item() (LineItem, error) {
	switch l.ItemType {
	case LineProduct:
		if l.ProductID == nil {
			return nil, &ValidationError{Field: "items", Message: "product line without product_id"}
		}
		return ProductLine{ProductID: *l.ProductID, Quantity: l.Quantity}, nil
	case LineCombo:
		if l.ComboID == nil {
			return nil, &ValidationError{Field: "items", Message: "combo line without combo_id"}
		}
		return ComboLine{ComboID: *l.ComboID, Quantity: l.Quantity}, nil
	}
	return nil, &ValidationError{Field: "items", Message: "unknown item type " + string(l.ItemType)}
}

type OrderCreateRequest struct {
	CustomerName       string           `json:"customer_name"`
	CustomerPhone      string           `json:"customer_phone,omitempty"`
	PaymentType        PaymentType      `json:"payment_type"`
	Items              []OrderItemInput `json:"items"`
	Discount           decimal.Decimal  `json:"discount"`
	IncludeDeliveryFee bool             `json:"include_delivery_fee"`
	DebtAmount         decimal.Decimal  `json:"debt_amount"`
	Status             OrderStatus      `json:"status,omitempty"`
}

type OrderStatusUpdateRequest struct {
	Status OrderStatus `json:"status"`
}

type ReportSession struct {
	ID        int64      `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

func (s ReportSession) Active() bool {
	return s.EndedAt == nil
}

type DailyReportRow struct {
	Date            string          `json:"date"`
	DeliveredOrders int             `json:"delivered_orders"`
	Revenue         decimal.Decimal `json:"revenue"`
	Profit          decimal.Decimal `json:"profit"`
}

type ReportTotals struct {
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalOrders  int             `json:"total_orders"`
	TotalProfit  decimal.Decimal `json:"total_profit"`
}

type SessionReport struct {
	Session ReportSession    `json:"session"`
	Totals  ReportTotals     `json:"totals"`
	Days    []DailyReportRow `json:"days"`
}

type StatusCount struct {
	Status OrderStatus `json:"status"`
	Count  int         `json:"count"`
}

type Dashboard struct {
	Revenue        decimal.Decimal `json:"revenue"`
	TotalOrders    int             `json:"total_orders"`
	OrdersByStatus []StatusCount   `json:"orders_by_status"`
	LowStockItems  []Product       `json:"low_stock_items"`
	DebtCount      int             `json:"debt_count"`
	CreditCount    int             `json:"credit_count"`
	TotalDebt      decimal.Decimal `json:"total_debt"`
	TotalCredit    decimal.Decimal `json:"total_credit"`
}

type MarketPriority string

const (
	PriorityLow    MarketPriority = "low"
	PriorityMedium MarketPriority = "medium"
	PriorityHigh   MarketPriority = "high"
)

func (p MarketPriority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

type MarketStatus string

const (
	MarketOpen MarketStatus = "open"
	MarketDone MarketStatus = "done"
)

func (s MarketStatus) Valid() bool {
	return s == MarketOpen || s == MarketDone
}

type MarketItem struct {
	ID        int64          `json:"id"`
	Item      string         `json:"item"`
	Quantity  string         `json:"quantity"`
	Priority  MarketPriority `json:"priority"`
	Notes     string         `json:"notes,omitempty"`
	Status    MarketStatus   `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type MarketItemCreateRequest struct {
	Item     string         `json:"item"`
	Quantity string         `json:"quantity,omitempty"`
	Priority MarketPriority `json:"priority,omitempty"`
	Notes    string         `json:"notes,omitempty"`
}

type MarketItemUpdateRequest struct {
	Item     *string         `json:"item,omitempty"`
	Quantity *string         `json:"quantity,omitempty"`
	Priority *MarketPriority `json:"priority,omitempty"`
	Notes    *string         `json:"notes,omitempty"`
	Status   *MarketStatus   `json:"status,omitempty"`
}

type LoginRequest struct {
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Subject string
}

type OrderEventType string

const (
	EventOrderCreated OrderEventType = "order.created"
	EventOrderUpdated OrderEventType = "order.updated"
	EventOrderDeleted OrderEventType = "order.deleted"
)

type OrderEvent struct {
	Type    OrderEventType `json:"type"`
	OrderID int64          `json:"order_id"`
	Status  OrderStatus    `json:"status,omitempty"`
	At      time.Time      `json:"at"`
	Order   *Order         `json:"order,omitempty"`
}
