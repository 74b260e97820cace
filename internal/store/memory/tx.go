package memory

import (
	"context"
	"fmt"
	"slices"

	"smartseller/backend/internal/domain"
	"smartseller/backend/internal/store"
)

// memTx applies writes directly and records an undo step for each one.
// Rollback replays the undo log in reverse under the data lock.
type memTx struct {
	s            *Store
	held         []rowLock
	heldProducts map[int64]bool
	heldOrders   map[int64]bool
	undo         []func()
}

func (t *memTx) acquire(ctx context.Context, l rowLock) error {
	select {
	case l <- struct{}{}:
		t.held = append(t.held, l)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *memTx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		<-t.held[i]
	}
	t.held = nil
}

func (t *memTx) rollback() {
	if len(t.undo) == 0 {
		return
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) LockProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	for _, id := range sorted {
		if t.heldProducts[id] {
			continue
		}
		if err := t.acquire(ctx, t.s.lockFor(t.s.productLocks, id)); err != nil {
			return nil, err
		}
		t.heldProducts[id] = true
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	out := make(map[int64]domain.Product, len(sorted))
	for _, id := range sorted {
		p, ok := t.s.products[id]
		if !ok {
			return nil, domain.ErrProductNotFound
		}
		out[id] = p
	}
	return out, nil
}

func (t *memTx) TryDecrementStock(ctx context.Context, productID int64, amount int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := store.CheckStockAmount(amount); err != nil {
		return false, err
	}
	if !t.heldProducts[productID] {
		return false, errNotLocked("product", productID)
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.products[productID]
	if !ok {
		return false, domain.ErrProductNotFound
	}
	if p.Stock < amount {
		return false, nil
	}
	prev := p
	p.Stock -= amount
	p.UpdatedAt = t.s.now()
	t.s.products[productID] = p
	t.undo = append(t.undo, func() { t.s.products[productID] = prev })
	return true, nil
}

func (t *memTx) IncrementStock(ctx context.Context, productID int64, amount int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.CheckStockAmount(amount); err != nil {
		return err
	}
	if !t.heldProducts[productID] {
		return errNotLocked("product", productID)
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	prev := p
	p.Stock += amount
	p.UpdatedAt = t.s.now()
	t.s.products[productID] = p
	t.undo = append(t.undo, func() { t.s.products[productID] = prev })
	return nil
}

func (t *memTx) UpdateProduct(ctx context.Context, product domain.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !t.heldProducts[product.ID] {
		return errNotLocked("product", product.ID)
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	prev, ok := t.s.products[product.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.CreatedAt = prev.CreatedAt
	product.UpdatedAt = t.s.now()
	t.s.products[product.ID] = product
	t.undo = append(t.undo, func() { t.s.products[product.ID] = prev })
	return nil
}

func (t *memTx) Combos(ctx context.Context, ids []int64) (map[int64]domain.Combo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	out := make(map[int64]domain.Combo, len(ids))
	for _, id := range ids {
		if c, ok := t.s.combos[id]; ok {
			out[id] = cloneCombo(c)
		}
	}
	return out, nil
}

func (t *memTx) InsertCombo(ctx context.Context, combo domain.Combo) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if comboNameTakenLocked(t.s, combo.Name, 0) {
		return 0, &domain.ValidationError{Field: "name", Message: "combo name already exists"}
	}
	now := t.s.now()
	combo.ID = t.s.nextID("combos")
	combo.CreatedAt, combo.UpdatedAt = now, now
	combo = cloneCombo(combo)
	t.s.combos[combo.ID] = combo
	id := combo.ID
	t.undo = append(t.undo, func() { delete(t.s.combos, id) })
	return id, nil
}

func (t *memTx) UpdateCombo(ctx context.Context, combo domain.Combo, replaceIngredients bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	prev, ok := t.s.combos[combo.ID]
	if !ok {
		return domain.ErrComboNotFound
	}
	if comboNameTakenLocked(t.s, combo.Name, combo.ID) {
		return &domain.ValidationError{Field: "name", Message: "combo name already exists"}
	}
	next := cloneCombo(prev)
	next.Name = combo.Name
	next.ImageURL = combo.ImageURL
	if replaceIngredients {
		next.Ingredients = slices.Clone(combo.Ingredients)
	}
	next.UpdatedAt = t.s.now()
	t.s.combos[combo.ID] = next
	t.undo = append(t.undo, func() { t.s.combos[prev.ID] = prev })
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	// Deletes check references under the same lock, so a product or combo
	// removed since it was read must not end up on a stored line.
	for _, line := range order.Items {
		if line.ProductID != nil {
			if _, ok := t.s.products[*line.ProductID]; !ok {
				return nil, fmt.Errorf("product %d: %w", *line.ProductID, domain.ErrProductNotFound)
			}
		}
		if line.ComboID != nil {
			if _, ok := t.s.combos[*line.ComboID]; !ok {
				return nil, fmt.Errorf("combo %d: %w", *line.ComboID, domain.ErrInvalidCombo)
			}
		}
	}

	now := t.s.now()
	order.ID = t.s.nextID("orders")
	order.CreatedAt, order.UpdatedAt = now, now
	order.Items = slices.Clone(order.Items)
	for i := range order.Items {
		order.Items[i].ID = t.s.nextID("order_items")
		order.Items[i].OrderID = order.ID
	}
	t.s.orders[order.ID] = order
	id := order.ID
	t.undo = append(t.undo, func() { delete(t.s.orders, id) })

	out := cloneOrder(order)
	return &out, nil
}

func (t *memTx) GetOrderForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	if !t.heldOrders[id] {
		if err := t.acquire(ctx, t.s.lockFor(t.s.orderLocks, id)); err != nil {
			return nil, err
		}
		t.heldOrders[id] = true
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	o, ok := t.s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

func (t *memTx) UpdateOrderState(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !t.heldOrders[order.ID] {
		return errNotLocked("order", order.ID)
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	prev, ok := t.s.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	next := prev
	next.Status = order.Status
	next.AmountPaid = order.AmountPaid
	next.DeliveredAt = order.DeliveredAt
	next.ReportSessionID = order.ReportSessionID
	next.UpdatedAt = t.s.now()
	t.s.orders[order.ID] = next
	t.undo = append(t.undo, func() { t.s.orders[prev.ID] = prev })
	return nil
}

func (t *memTx) DeleteOrder(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !t.heldOrders[id] {
		return errNotLocked("order", id)
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	prev, ok := t.s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	delete(t.s.orders, id)
	t.undo = append(t.undo, func() { t.s.orders[id] = prev })
	return nil
}

// ActiveSessionID opens sessions outside the undo log: a session created by
// a unit of work that later rolls back stays open and empty. Other units of
// work see it immediately and may already have attached orders to it. The
// postgres backend drops such a session with its transaction instead.
func (t *memTx) ActiveSessionID(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if session, ok := t.s.activeSessionLocked(); ok {
		return session.ID, nil
	}
	session := domain.ReportSession{ID: t.s.nextID("report_sessions"), StartedAt: t.s.now()}
	t.s.sessions[session.ID] = session
	return session.ID, nil
}
