package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"smartseller/backend/internal/domain"
	"smartseller/backend/internal/store"
)

type pgTx struct {
	tx *sql.Tx
}

var _ store.Tx = (*pgTx)(nil)

func (t *pgTx) LockProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	out := make(map[int64]domain.Product, len(sorted))
	if len(sorted) == 0 {
		return out, nil
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
		ORDER BY id ASC
		FOR UPDATE
	`, sorted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) != len(sorted) {
		return nil, domain.ErrProductNotFound
	}
	return out, nil
}

func (t *pgTx) TryDecrementStock(ctx context.Context, productID int64, amount int) (bool, error) {
	if err := store.CheckStockAmount(amount); err != nil {
		return false, err
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $1, updated_at = now()
		WHERE id = $2 AND stock >= $1
	`, amount, productID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (t *pgTx) IncrementStock(ctx context.Context, productID int64, amount int) error {
	if err := store.CheckStockAmount(amount); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $1, updated_at = now()
		WHERE id = $2
	`, amount, productID)
	if err != nil {
		return err
	}
	return expectOneRow(res, domain.ErrProductNotFound)
}

func (t *pgTx) UpdateProduct(ctx context.Context, product domain.Product) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET name = $2, price = $3, cost_price = $4, stock = $5, low_stock_threshold = $6, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Price, product.CostPrice, product.Stock, product.LowStockThreshold)
	if err != nil {
		return err
	}
	return expectOneRow(res, domain.ErrProductNotFound)
}

func (t *pgTx) Combos(ctx context.Context, ids []int64) (map[int64]domain.Combo, error) {
	out := make(map[int64]domain.Combo, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := t.tx.QueryContext(ctx, `SELECT id, name, image_url, created_at, updated_at FROM combos WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		c, err := scanCombo(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	itemRows, err := t.tx.QueryContext(ctx, `
		SELECT combo_id, product_id, quantity
		FROM combo_items
		WHERE combo_id = ANY($1)
		ORDER BY combo_id ASC, position ASC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var comboID int64
		var ing domain.ComboIngredient
		if err := itemRows.Scan(&comboID, &ing.ProductID, &ing.Quantity); err != nil {
			return nil, err
		}
		c := out[comboID]
		c.Ingredients = append(c.Ingredients, ing)
		out[comboID] = c
	}
	return out, itemRows.Err()
}

func (t *pgTx) InsertCombo(ctx context.Context, combo domain.Combo) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO combos (name, image_url, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		RETURNING id
	`, combo.Name, nullIfEmpty(combo.ImageURL)).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, &domain.ValidationError{Field: "name", Message: "combo name already exists"}
		}
		return 0, err
	}
	if err := t.insertComboItems(ctx, id, combo.Ingredients); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *pgTx) UpdateCombo(ctx context.Context, combo domain.Combo, replaceIngredients bool) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE combos
		SET name = $2, image_url = $3, updated_at = now()
		WHERE id = $1
	`, combo.ID, combo.Name, nullIfEmpty(combo.ImageURL))
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.ValidationError{Field: "name", Message: "combo name already exists"}
		}
		return err
	}
	if err := expectOneRow(res, domain.ErrComboNotFound); err != nil {
		return err
	}
	if !replaceIngredients {
		return nil
	}

	if _, err := t.tx.ExecContext(ctx, `DELETE FROM combo_items WHERE combo_id = $1`, combo.ID); err != nil {
		return err
	}
	return t.insertComboItems(ctx, combo.ID, combo.Ingredients)
}

func (t *pgTx) insertComboItems(ctx context.Context, comboID int64, ingredients []domain.ComboIngredient) error {
	for i, ing := range ingredients {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO combo_items (combo_id, product_id, quantity, position)
			VALUES ($1, $2, $3, $4)
		`, comboID, ing.ProductID, ing.Quantity, i); err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("product %d: %w", ing.ProductID, domain.ErrProductNotFound)
			}
			if isUniqueViolation(err) {
				return domain.ErrDuplicateIngredient
			}
			return err
		}
	}
	return nil
}

func (t *pgTx) InsertOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	created, err := scanOrder(t.tx.QueryRowContext(ctx, `
		INSERT INTO orders (
			customer_name, customer_phone, status, payment_type, subtotal, discount,
			delivery_fee, total_amount, amount_paid, delivered_at, report_session_id,
			created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())
		RETURNING `+orderColumns,
		order.CustomerName,
		nullIfEmpty(order.CustomerPhone),
		string(order.Status),
		string(order.PaymentType),
		order.Subtotal,
		order.Discount,
		order.DeliveryFee,
		order.TotalAmount,
		order.AmountPaid,
		order.DeliveredAt,
		order.ReportSessionID,
	))
	if err != nil {
		return nil, err
	}

	created.Items = make([]domain.OrderLine, 0, len(order.Items))
	for _, line := range order.Items {
		line.OrderID = created.ID
		if err := t.tx.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, item_type, product_id, combo_id, quantity, name_at_time, price_at_time, cost_at_time)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING id
		`,
			created.ID,
			string(line.ItemType),
			line.ProductID,
			line.ComboID,
			line.Quantity,
			line.NameAtTime,
			line.UnitPriceAtTime,
			line.UnitCostAtTime,
		).Scan(&line.ID); err != nil {
			return nil, err
		}
		created.Items = append(created.Items, line)
	}
	return &created, nil
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := scanOrder(t.tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	lines, err := orderLines(ctx, t.tx, []int64{id})
	if err != nil {
		return nil, err
	}
	o.Items = lines[id]
	return &o, nil
}

func (t *pgTx) UpdateOrderState(ctx context.Context, order domain.Order) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, amount_paid = $3, delivered_at = $4, report_session_id = $5, updated_at = now()
		WHERE id = $1
	`, order.ID, string(order.Status), order.AmountPaid, order.DeliveredAt, order.ReportSessionID)
	if err != nil {
		return err
	}
	return expectOneRow(res, domain.ErrOrderNotFound)
}

func (t *pgTx) DeleteOrder(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOneRow(res, domain.ErrOrderNotFound)
}

// ActiveSessionID relies on the one-active partial index: a concurrent
// opener makes the insert a no-op and the follow-up select sees its row.
func (t *pgTx) ActiveSessionID(ctx context.Context) (int64, error) {
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO report_sessions (started_at)
		SELECT now()
		WHERE NOT EXISTS (SELECT 1 FROM report_sessions WHERE ended_at IS NULL)
		ON CONFLICT DO NOTHING
	`); err != nil {
		return 0, err
	}

	var id int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT id FROM report_sessions
		WHERE ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1
	`).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}
