package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"smartseller/backend/internal/domain"
	"smartseller/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn in a READ COMMITTED transaction. Correctness of stock
// updates relies on row locks and conditional updates, not on isolation.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return translateError(err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		return translateError(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return translateError(err)
	}
	return nil
}

const productColumns = `id, name, price, cost_price, stock, low_stock_threshold, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.CostPrice, &p.Stock, &p.LowStockThreshold, &p.CreatedAt, &p.UpdatedAt)
	p.CreatedAt, p.UpdatedAt = p.CreatedAt.UTC(), p.UpdatedAt.UTC()
	return p, err
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY id ASC`)
}

func (s *Store) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return s.queryProducts(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE stock <= low_stock_threshold
		ORDER BY stock ASC, id ASC
	`)
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	created, err := scanProduct(s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, price, cost_price, stock, low_stock_threshold, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
		RETURNING `+productColumns,
		product.Name, product.Price, product.CostPrice, product.Stock, product.LowStockThreshold))
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrProductInUse
		}
		return err
	}
	return expectOneRow(res, domain.ErrProductNotFound)
}

func (s *Store) ListCombos(ctx context.Context) ([]domain.Combo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, image_url, created_at, updated_at FROM combos ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	combos := make([]domain.Combo, 0, 16)
	ids := make([]int64, 0, 16)
	for rows.Next() {
		c, err := scanCombo(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		combos = append(combos, c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	ingredients, err := s.comboIngredientDetails(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range combos {
		combos[i].Ingredients = ingredients[combos[i].ID]
	}
	return combos, nil
}

func (s *Store) GetCombo(ctx context.Context, id int64) (*domain.Combo, error) {
	c, err := scanCombo(s.db.QueryRowContext(ctx, `SELECT id, name, image_url, created_at, updated_at FROM combos WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrComboNotFound
		}
		return nil, err
	}
	ingredients, err := s.comboIngredientDetails(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	c.Ingredients = ingredients[id]
	return &c, nil
}

func scanCombo(row rowScanner) (domain.Combo, error) {
	var c domain.Combo
	var image sql.NullString
	if err := row.Scan(&c.ID, &c.Name, &image, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.Combo{}, err
	}
	c.ImageURL = image.String
	c.CreatedAt, c.UpdatedAt = c.CreatedAt.UTC(), c.UpdatedAt.UTC()
	return c, nil
}

func (s *Store) comboIngredientDetails(ctx context.Context, comboIDs []int64) (map[int64][]domain.ComboIngredient, error) {
	out := make(map[int64][]domain.ComboIngredient, len(comboIDs))
	if len(comboIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ci.combo_id, ci.product_id, ci.quantity, p.name, p.price, p.cost_price, p.stock
		FROM combo_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.combo_id = ANY($1)
		ORDER BY ci.combo_id ASC, ci.position ASC
	`, comboIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var comboID int64
		var ing domain.ComboIngredient
		if err := rows.Scan(&comboID, &ing.ProductID, &ing.Quantity, &ing.ProductName, &ing.ProductPrice, &ing.ProductCost, &ing.ProductStock); err != nil {
			return nil, err
		}
		out[comboID] = append(out[comboID], ing)
	}
	return out, rows.Err()
}

func (s *Store) DeleteCombo(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM combos WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrComboInUse
		}
		return err
	}
	return expectOneRow(res, domain.ErrComboNotFound)
}

const orderColumns = `id, customer_name, customer_phone, status, payment_type, subtotal, discount,
	delivery_fee, total_amount, amount_paid, delivered_at, report_session_id, created_at, updated_at`

func scanOrder(row rowScanner) (domain.Order, error) {
	var o domain.Order
	var phone sql.NullString
	var status, payment string
	var deliveredAt sql.NullTime
	var sessionID sql.NullInt64
	err := row.Scan(&o.ID, &o.CustomerName, &phone, &status, &payment, &o.Subtotal, &o.Discount,
		&o.DeliveryFee, &o.TotalAmount, &o.AmountPaid, &deliveredAt, &sessionID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	o.CustomerPhone = phone.String
	o.Status = domain.OrderStatus(status)
	o.PaymentType = domain.PaymentType(payment)
	if deliveredAt.Valid {
		t := deliveredAt.Time.UTC()
		o.DeliveredAt = &t
	}
	if sessionID.Valid {
		id := sessionID.Int64
		o.ReportSessionID = &id
	}
	o.CreatedAt, o.UpdatedAt = o.CreatedAt.UTC(), o.UpdatedAt.UTC()
	return o, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func orderLines(ctx context.Context, q queryer, orderIDs []int64) (map[int64][]domain.OrderLine, error) {
	out := make(map[int64][]domain.OrderLine, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, item_type, product_id, combo_id, quantity, name_at_time, price_at_time, cost_at_time
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id ASC, id ASC
	`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.OrderLine
		var kind string
		var productID, comboID sql.NullInt64
		if err := rows.Scan(&line.ID, &line.OrderID, &kind, &productID, &comboID, &line.Quantity,
			&line.NameAtTime, &line.UnitPriceAtTime, &line.UnitCostAtTime); err != nil {
			return nil, err
		}
		line.ItemType = domain.LineKind(kind)
		if productID.Valid {
			id := productID.Int64
			line.ProductID = &id
		}
		if comboID.Valid {
			id := comboID.Int64
			line.ComboID = &id
		}
		out[line.OrderID] = append(out[line.OrderID], line)
	}
	return out, rows.Err()
}

func (s *Store) ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id DESC`
	args := []any{}
	if status != "" {
		query = `SELECT ` + orderColumns + ` FROM orders WHERE status = $1 ORDER BY created_at DESC, id DESC`
		args = append(args, string(status))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, 64)
	ids := make([]int64, 0, 64)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	lines, err := orderLines(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = lines[orders[i].ID]
	}
	return orders, nil
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	lines, err := orderLines(ctx, s.db, []int64{id})
	if err != nil {
		return nil, err
	}
	o.Items = lines[id]
	return &o, nil
}

const marketColumns = `id, item, quantity, priority, notes, status, created_at, updated_at`

func scanMarketItem(row rowScanner) (domain.MarketItem, error) {
	var item domain.MarketItem
	var priority, status string
	var notes sql.NullString
	if err := row.Scan(&item.ID, &item.Item, &item.Quantity, &priority, &notes, &status, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return domain.MarketItem{}, err
	}
	item.Priority = domain.MarketPriority(priority)
	item.Status = domain.MarketStatus(status)
	item.Notes = notes.String
	item.CreatedAt, item.UpdatedAt = item.CreatedAt.UTC(), item.UpdatedAt.UTC()
	return item, nil
}

func (s *Store) ListMarketItems(ctx context.Context) ([]domain.MarketItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+marketColumns+` FROM market_items ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.MarketItem, 0, 32)
	for rows.Next() {
		item, err := scanMarketItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) CreateMarketItem(ctx context.Context, item domain.MarketItem) (*domain.MarketItem, error) {
	created, err := scanMarketItem(s.db.QueryRowContext(ctx, `
		INSERT INTO market_items (item, quantity, priority, notes, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
		RETURNING `+marketColumns,
		item.Item, item.Quantity, string(item.Priority), nullIfEmpty(item.Notes), string(item.Status)))
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) GetMarketItem(ctx context.Context, id int64) (*domain.MarketItem, error) {
	item, err := scanMarketItem(s.db.QueryRowContext(ctx, `SELECT `+marketColumns+` FROM market_items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMarketItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateMarketItem(ctx context.Context, item domain.MarketItem) (*domain.MarketItem, error) {
	updated, err := scanMarketItem(s.db.QueryRowContext(ctx, `
		UPDATE market_items
		SET item = $2, quantity = $3, priority = $4, notes = $5, status = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+marketColumns,
		item.ID, item.Item, item.Quantity, string(item.Priority), nullIfEmpty(item.Notes), string(item.Status)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMarketItemNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteMarketItem(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM market_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOneRow(res, domain.ErrMarketItemNotFound)
}

func (s *Store) GetSettingValues(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]json.RawMessage)
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		values[key] = json.RawMessage(raw)
	}
	return values, rows.Err()
}

func (s *Store) UpsertSettingValues(ctx context.Context, values map[string]json.RawMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for key, raw := range values {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value, updated_at)
			VALUES ($1, $2::jsonb, now())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
		`, key, string(raw)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func scanSession(row rowScanner) (domain.ReportSession, error) {
	var session domain.ReportSession
	var ended sql.NullTime
	if err := row.Scan(&session.ID, &session.StartedAt, &ended); err != nil {
		return domain.ReportSession{}, err
	}
	session.StartedAt = session.StartedAt.UTC()
	if ended.Valid {
		t := ended.Time.UTC()
		session.EndedAt = &t
	}
	return session, nil
}

func (s *Store) ActiveSession(ctx context.Context) (*domain.ReportSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, started_at, ended_at
		FROM report_sessions
		WHERE ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1
	`))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (s *Store) GetSession(ctx context.Context, id int64) (*domain.ReportSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, `SELECT id, started_at, ended_at FROM report_sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *Store) StartSession(ctx context.Context) (*domain.ReportSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE report_sessions SET ended_at = now() WHERE ended_at IS NULL`); err != nil {
		return nil, err
	}
	session, err := scanSession(tx.QueryRowContext(ctx, `
		INSERT INTO report_sessions (started_at) VALUES (now())
		RETURNING id, started_at, ended_at
	`))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Store) StopSession(ctx context.Context) (*domain.ReportSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, `
		UPDATE report_sessions
		SET ended_at = now()
		WHERE ended_at IS NULL
		RETURNING id, started_at, ended_at
	`))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNoActiveSession
		}
		return nil, err
	}
	return &session, nil
}

func (s *Store) SessionDailyReport(ctx context.Context, sessionID int64) ([]domain.DailyReportRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH day_orders AS (
			SELECT TO_CHAR(delivered_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS date,
			       COUNT(*) AS delivered_orders,
			       COALESCE(SUM(total_amount), 0) AS revenue
			FROM orders
			WHERE status = 'delivered' AND report_session_id = $1 AND delivered_at IS NOT NULL
			GROUP BY 1
		),
		day_profit AS (
			SELECT TO_CHAR(o.delivered_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS date,
			       COALESCE(SUM((oi.price_at_time - oi.cost_at_time) * oi.quantity), 0) AS profit
			FROM orders o
			JOIN order_items oi ON oi.order_id = o.id
			WHERE o.status = 'delivered' AND o.report_session_id = $1 AND o.delivered_at IS NOT NULL
			GROUP BY 1
		)
		SELECT d.date, d.delivered_orders, d.revenue, COALESCE(p.profit, 0)
		FROM day_orders d
		LEFT JOIN day_profit p ON p.date = d.date
		ORDER BY d.date DESC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	report := make([]domain.DailyReportRow, 0, 16)
	for rows.Next() {
		var row domain.DailyReportRow
		if err := rows.Scan(&row.Date, &row.DeliveredOrders, &row.Revenue, &row.Profit); err != nil {
			return nil, err
		}
		report = append(report, row)
	}
	return report, rows.Err()
}

func (s *Store) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	dash := domain.Dashboard{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(total_amount) FILTER (WHERE status = 'delivered'), 0),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COUNT(*) FILTER (WHERE status = 'debt'),
			COALESCE(SUM(amount_paid - total_amount) FILTER (WHERE status = 'debt'), 0),
			COUNT(*) FILTER (WHERE status = 'credit'),
			COALESCE(SUM(total_amount - amount_paid) FILTER (WHERE status = 'credit'), 0)
		FROM orders
	`).Scan(&dash.Revenue, &dash.TotalOrders, &dash.DebtCount, &dash.TotalDebt, &dash.CreditCount, &dash.TotalCredit)
	if err != nil {
		return domain.Dashboard{}, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status ORDER BY status ASC`)
	if err != nil {
		return domain.Dashboard{}, err
	}
	for rows.Next() {
		var sc domain.StatusCount
		var status string
		if err := rows.Scan(&status, &sc.Count); err != nil {
			_ = rows.Close()
			return domain.Dashboard{}, err
		}
		sc.Status = domain.OrderStatus(status)
		dash.OrdersByStatus = append(dash.OrdersByStatus, sc)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return domain.Dashboard{}, err
	}
	_ = rows.Close()

	dash.LowStockItems, err = s.ListLowStockProducts(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}
	return dash, nil
}

func expectOneRow(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == "23503"
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// translateError maps serialization failures and deadlocks to the retryable
// stock conflict. Domain errors pass through unchanged.
func translateError(err error) error {
	switch pgCode(err) {
	case "40001", "40P01":
		return fmt.Errorf("%w: %v", domain.ErrStockConflict, err)
	}
	return err
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
