package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"smartseller/backend/internal/domain"
	"smartseller/backend/internal/store"
)

// Store keeps everything in maps. Row locks are one-slot channels so a
// waiting unit of work can give up when its context ends.
type Store struct {
	mu       sync.RWMutex
	products map[int64]domain.Product
	combos   map[int64]domain.Combo
	orders   map[int64]domain.Order
	market   map[int64]domain.MarketItem
	settings map[string]json.RawMessage
	sessions map[int64]domain.ReportSession
	seq      map[string]int64

	locksMu      sync.Mutex
	productLocks map[int64]rowLock
	orderLocks   map[int64]rowLock

	now func() time.Time
}

type rowLock chan struct{}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		products:     make(map[int64]domain.Product),
		combos:       make(map[int64]domain.Combo),
		orders:       make(map[int64]domain.Order),
		market:       make(map[int64]domain.MarketItem),
		settings:     make(map[string]json.RawMessage),
		sessions:     make(map[int64]domain.ReportSession),
		seq:          make(map[string]int64),
		productLocks: make(map[int64]rowLock),
		orderLocks:   make(map[int64]rowLock),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// NewSeeded returns a store with a small demo catalog for local runs.
func NewSeeded() *Store {
	s := New()
	now := s.now()
	products := []domain.Product{
		{Name: "Fried Chicken", Price: decimal.NewFromInt(1500), CostPrice: decimal.NewFromInt(900), Stock: 40, LowStockThreshold: 5},
		{Name: "French Fries", Price: decimal.NewFromInt(500), CostPrice: decimal.NewFromInt(200), Stock: 60, LowStockThreshold: 10},
		{Name: "Soda Can", Price: decimal.NewFromInt(400), CostPrice: decimal.NewFromInt(250), Stock: 48, LowStockThreshold: 12},
		{Name: "Coleslaw", Price: decimal.NewFromInt(300), CostPrice: decimal.NewFromInt(120), Stock: 20, LowStockThreshold: 5},
	}
	for _, p := range products {
		p.ID = s.nextID("products")
		p.CreatedAt, p.UpdatedAt = now, now
		s.products[p.ID] = p
	}
	combo := domain.Combo{
		ID:   s.nextID("combos"),
		Name: "Chicken Meal",
		Ingredients: []domain.ComboIngredient{
			{ProductID: 1, Quantity: 1},
			{ProductID: 2, Quantity: 1},
			{ProductID: 3, Quantity: 1},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.combos[combo.ID] = combo
	slog.Default().Info("memory store seeded", "component", "memory-store", "products", len(products), "combos", 1)
	return s
}

// SetClock replaces the time source. Tests use it for deterministic dates.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) nextID(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func (s *Store) lockFor(table map[int64]rowLock, id int64) rowLock {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := table[id]
	if !ok {
		l = make(rowLock, 1)
		table[id] = l
	}
	return l
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{
		s:            s,
		heldProducts: make(map[int64]bool),
		heldOrders:   make(map[int64]bool),
	}
	defer tx.release()
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Product) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	product.ID = s.nextID("products")
	product.CreatedAt, product.UpdatedAt = now, now
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	for _, c := range s.combos {
		for _, ing := range c.Ingredients {
			if ing.ProductID == id {
				return domain.ErrProductInUse
			}
		}
	}
	for _, o := range s.orders {
		for _, line := range o.Items {
			if line.ProductID != nil && *line.ProductID == id {
				return domain.ErrProductInUse
			}
		}
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ListLowStockProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lowStockLocked(), nil
}

func (s *Store) lowStockLocked() []domain.Product {
	out := make([]domain.Product, 0)
	for _, p := range s.products {
		if p.LowStock() {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Product) int {
		if a.Stock != b.Stock {
			return a.Stock - b.Stock
		}
		return cmpID(a.ID, b.ID)
	})
	return out
}

func (s *Store) ListCombos(_ context.Context) ([]domain.Combo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Combo, 0, len(s.combos))
	for _, c := range s.combos {
		out = append(out, s.withDetailsLocked(c))
	}
	slices.SortFunc(out, func(a, b domain.Combo) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

func (s *Store) GetCombo(_ context.Context, id int64) (*domain.Combo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.combos[id]
	if !ok {
		return nil, domain.ErrComboNotFound
	}
	c = s.withDetailsLocked(c)
	return &c, nil
}

func (s *Store) withDetailsLocked(c domain.Combo) domain.Combo {
	ings := make([]domain.ComboIngredient, 0, len(c.Ingredients))
	for _, ing := range c.Ingredients {
		p := s.products[ing.ProductID]
		ing.ProductName = p.Name
		ing.ProductPrice = p.Price
		ing.ProductCost = p.CostPrice
		ing.ProductStock = p.Stock
		ings = append(ings, ing)
	}
	c.Ingredients = ings
	return c
}

func (s *Store) DeleteCombo(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.combos[id]; !ok {
		return domain.ErrComboNotFound
	}
	for _, o := range s.orders {
		for _, line := range o.Items {
			if line.ComboID != nil && *line.ComboID == id {
				return domain.ErrComboInUse
			}
		}
	}
	delete(s.combos, id)
	return nil
}

func (s *Store) ListOrders(_ context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	slices.SortFunc(out, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmpID(b.ID, a.ID)
	})
	return out, nil
}

func (s *Store) GetOrder(_ context.Context, id int64) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

func (s *Store) ListMarketItems(_ context.Context) ([]domain.MarketItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.MarketItem, 0, len(s.market))
	for _, item := range s.market {
		out = append(out, item)
	}
	slices.SortFunc(out, func(a, b domain.MarketItem) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmpID(b.ID, a.ID)
	})
	return out, nil
}

func (s *Store) CreateMarketItem(_ context.Context, item domain.MarketItem) (*domain.MarketItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	item.ID = s.nextID("market_items")
	item.CreatedAt, item.UpdatedAt = now, now
	s.market[item.ID] = item
	return &item, nil
}

func (s *Store) GetMarketItem(_ context.Context, id int64) (*domain.MarketItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.market[id]
	if !ok {
		return nil, domain.ErrMarketItemNotFound
	}
	return &item, nil
}

func (s *Store) UpdateMarketItem(_ context.Context, item domain.MarketItem) (*domain.MarketItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.market[item.ID]
	if !ok {
		return nil, domain.ErrMarketItemNotFound
	}
	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = s.now()
	s.market[item.ID] = item
	return &item, nil
}

func (s *Store) DeleteMarketItem(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.market[id]; !ok {
		return domain.ErrMarketItemNotFound
	}
	delete(s.market, id)
	return nil
}

func (s *Store) GetSettingValues(_ context.Context) (map[string]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]json.RawMessage, len(s.settings))
	for k, v := range s.settings {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out, nil
}

func (s *Store) UpsertSettingValues(_ context.Context, values map[string]json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range values {
		s.settings[k] = append(json.RawMessage(nil), v...)
	}
	return nil
}

func (s *Store) ActiveSession(_ context.Context) (*domain.ReportSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.activeSessionLocked()
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (s *Store) activeSessionLocked() (domain.ReportSession, bool) {
	var active domain.ReportSession
	found := false
	for _, session := range s.sessions {
		if !session.Active() {
			continue
		}
		if !found || session.StartedAt.After(active.StartedAt) {
			active = session
			found = true
		}
	}
	return active, found
}

func (s *Store) GetSession(_ context.Context, id int64) (*domain.ReportSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &session, nil
}

func (s *Store) StartSession(_ context.Context) (*domain.ReportSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, session := range s.sessions {
		if session.Active() {
			ended := now
			session.EndedAt = &ended
			s.sessions[id] = session
		}
	}
	session := domain.ReportSession{ID: s.nextID("report_sessions"), StartedAt: now}
	s.sessions[session.ID] = session
	return &session, nil
}

func (s *Store) StopSession(_ context.Context) (*domain.ReportSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.activeSessionLocked()
	if !ok {
		return nil, domain.ErrNoActiveSession
	}
	ended := s.now()
	session.EndedAt = &ended
	s.sessions[session.ID] = session
	return &session, nil
}

func (s *Store) SessionDailyReport(_ context.Context, sessionID int64) ([]domain.DailyReportRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDate := make(map[string]*domain.DailyReportRow)
	for _, o := range s.orders {
		if o.Status != domain.StatusDelivered || o.DeliveredAt == nil {
			continue
		}
		if o.ReportSessionID == nil || *o.ReportSessionID != sessionID {
			continue
		}
		date := o.DeliveredAt.UTC().Format(time.DateOnly)
		row, ok := byDate[date]
		if !ok {
			row = &domain.DailyReportRow{Date: date, Revenue: decimal.Zero, Profit: decimal.Zero}
			byDate[date] = row
		}
		row.DeliveredOrders++
		row.Revenue = row.Revenue.Add(o.TotalAmount)
		row.Profit = row.Profit.Add(orderProfit(o))
	}

	rows := make([]domain.DailyReportRow, 0, len(byDate))
	for _, row := range byDate {
		rows = append(rows, *row)
	}
	slices.SortFunc(rows, func(a, b domain.DailyReportRow) int { return strings.Compare(b.Date, a.Date) })
	return rows, nil
}

func (s *Store) Dashboard(_ context.Context) (domain.Dashboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dash := domain.Dashboard{
		Revenue:     decimal.Zero,
		TotalDebt:   decimal.Zero,
		TotalCredit: decimal.Zero,
	}
	counts := make(map[domain.OrderStatus]int)
	for _, o := range s.orders {
		counts[o.Status]++
		switch o.Status {
		case domain.StatusDelivered:
			dash.Revenue = dash.Revenue.Add(o.TotalAmount)
			dash.TotalOrders++
		case domain.StatusDebt:
			dash.DebtCount++
			dash.TotalDebt = dash.TotalDebt.Add(o.AmountPaid.Sub(o.TotalAmount))
		case domain.StatusCredit:
			dash.CreditCount++
			dash.TotalCredit = dash.TotalCredit.Add(o.TotalAmount.Sub(o.AmountPaid))
		}
	}
	for _, status := range []domain.OrderStatus{domain.StatusCredit, domain.StatusDebt, domain.StatusDelivered, domain.StatusPending} {
		if counts[status] > 0 {
			dash.OrdersByStatus = append(dash.OrdersByStatus, domain.StatusCount{Status: status, Count: counts[status]})
		}
	}
	dash.LowStockItems = s.lowStockLocked()
	return dash, nil
}

func orderProfit(o domain.Order) decimal.Decimal {
	profit := decimal.Zero
	for _, line := range o.Items {
		margin := line.UnitPriceAtTime.Sub(line.UnitCostAtTime)
		profit = profit.Add(margin.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return profit
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	return o
}

func cloneCombo(c domain.Combo) domain.Combo {
	c.Ingredients = slices.Clone(c.Ingredients)
	return c
}

func cmpID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func comboNameTakenLocked(s *Store, name string, exceptID int64) bool {
	for id, c := range s.combos {
		if id != exceptID && c.Name == name {
			return true
		}
	}
	return false
}

func errNotLocked(kind string, id int64) error {
	return fmt.Errorf("%s %d is not locked by this unit of work", kind, id)
}
