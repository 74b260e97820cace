package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartseller/backend/internal/cache"
	"smartseller/backend/internal/domain"
	"smartseller/backend/internal/store/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
}

func (p *recordingPublisher) Publish(evt domain.OrderEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) types() []domain.OrderEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.OrderEventType, 0, len(p.events))
	for _, evt := range p.events {
		out = append(out, evt.Type)
	}
	return out
}

func newTestService() (*Service, *memory.Store) {
	repo := memory.New()
	return New(repo, cache.NoopSettingsCache{}, time.Minute, nil, nil), repo
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func int64Ptr(v int64) *int64 { return &v }

func mustProduct(t *testing.T, svc *Service, name string, price string, cost string, stock int) domain.Product {
	t.Helper()
	costPrice := dec(cost)
	p, err := svc.CreateProduct(context.Background(), domain.ProductCreateRequest{
		Name:      name,
		Price:     dec(price),
		CostPrice: &costPrice,
		Stock:     stock,
	})
	require.NoError(t, err)
	return p
}

func productLine(id int64, qty int) domain.OrderItemInput {
	return domain.OrderItemInput{Type: domain.LineProduct, ProductID: int64Ptr(id), Quantity: qty}
}

func comboLine(id int64, qty int) domain.OrderItemInput {
	return domain.OrderItemInput{Type: domain.LineCombo, ComboID: int64Ptr(id), Quantity: qty}
}

func stockOf(t *testing.T, svc *Service, id int64) int {
	t.Helper()
	p, err := svc.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestPendingOrderDecrementsOnceOnDeliveryAndDeleteRestores(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	chicken := mustProduct(t, svc, "Chicken", "1500", "900", 10)
	fries := mustProduct(t, svc, "Fries", "500", "200", 10)
	combo, err := svc.CreateCombo(ctx, domain.ComboCreateRequest{
		Name: "Meal",
		Ingredients: []domain.ComboIngredientInput{
			{ProductID: chicken.ID, Quantity: 1},
			{ProductID: fries.ID, Quantity: 2},
		},
	})
	require.NoError(t, err)

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Items: []domain.OrderItemInput{comboLine(combo.ID, 2), productLine(fries.ID, 1)},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, order.Status)
	assert.Equal(t, "Guest", order.CustomerName)
	assert.Nil(t, order.DeliveredAt)
	assert.Equal(t, 10, stockOf(t, svc, chicken.ID))
	assert.Equal(t, 10, stockOf(t, svc, fries.ID))

	delivered, err := svc.UpdateOrderStatus(ctx, order.ID, domain.StatusDelivered)
	require.NoError(t, err)
	require.NotNil(t, delivered.DeliveredAt)
	require.NotNil(t, delivered.ReportSessionID)
	assert.Equal(t, 8, stockOf(t, svc, chicken.ID))
	assert.Equal(t, 5, stockOf(t, svc, fries.ID))

	stamped := *delivered.DeliveredAt
	again, err := svc.UpdateOrderStatus(ctx, order.ID, domain.StatusDelivered)
	require.NoError(t, err)
	assert.True(t, again.DeliveredAt.Equal(stamped), "delivered_at must never be overwritten")
	assert.Equal(t, 8, stockOf(t, svc, chicken.ID))
	assert.Equal(t, 5, stockOf(t, svc, fries.ID))

	require.NoError(t, svc.DeleteOrder(ctx, order.ID))
	assert.Equal(t, 10, stockOf(t, svc, chicken.ID))
	assert.Equal(t, 10, stockOf(t, svc, fries.ID))

	_, err = svc.GetOrder(ctx, order.ID)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestCreateOrderComboShortfallMutatesNothing(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	bun := mustProduct(t, svc, "Bun", "100", "40", 6)
	combo, err := svc.CreateCombo(ctx, domain.ComboCreateRequest{
		Name:        "Double Bun",
		Ingredients: []domain.ComboIngredientInput{{ProductID: bun.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	_, err = svc.UpdateProduct(ctx, bun.ID, domain.ProductUpdateRequest{Stock: intPtr(5)})
	require.NoError(t, err)

	_, err = svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Status: domain.StatusDelivered,
		Items:  []domain.OrderItemInput{comboLine(combo.ID, 3)},
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	var stockErr *domain.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	require.Len(t, stockErr.Shortfalls, 1)
	assert.Equal(t, bun.ID, stockErr.Shortfalls[0].ProductID)
	assert.Equal(t, 6, stockErr.Shortfalls[0].Required)
	assert.Equal(t, 5, stockErr.Shortfalls[0].InStock)

	assert.Equal(t, 5, stockOf(t, svc, bun.ID))
	orders, err := svc.ListOrders(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func intPtr(v int) *int { return &v }

func TestCreateOrderTotalsWithDiscountAndDeliveryFee(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	tea := mustProduct(t, svc, "Tea", "10.10", "4", 20)

	_, err := svc.UpdateSettings(ctx, map[string]json.RawMessage{domain.SettingDeliveryFee: json.RawMessage(`250`)})
	require.NoError(t, err)

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName:       "  Amina ",
		Items:              []domain.OrderItemInput{productLine(tea.ID, 3)},
		Discount:           dec("5"),
		IncludeDeliveryFee: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Amina", order.CustomerName)
	assert.True(t, order.Subtotal.Equal(dec("30.30")), order.Subtotal.String())
	assert.True(t, order.DeliveryFee.Equal(dec("250")), order.DeliveryFee.String())
	assert.True(t, order.TotalAmount.Equal(dec("275.30")), order.TotalAmount.String())
	assert.True(t, order.AmountPaid.Equal(order.TotalAmount))

	withoutFee, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Items: []domain.OrderItemInput{productLine(tea.ID, 1)},
	})
	require.NoError(t, err)
	assert.True(t, withoutFee.DeliveryFee.IsZero())
	assert.True(t, withoutFee.TotalAmount.Equal(dec("10.10")))
}

func TestDeliveryFeeDefaultsTo100(t *testing.T) {
	svc, _ := newTestService()
	fee, err := svc.DeliveryFee(context.Background())
	require.NoError(t, err)
	assert.True(t, fee.Equal(dec("100")))
}

func TestCreateOrderDiscountCapReportsMax(t *testing.T) {
	svc, _ := newTestService()
	p := mustProduct(t, svc, "Plate", "100", "60", 5)

	_, err := svc.CreateOrder(context.Background(), domain.OrderCreateRequest{
		Items:    []domain.OrderItemInput{productLine(p.ID, 1)},
		Discount: dec("50.01"),
	})
	var discountErr *domain.DiscountExceededError
	require.True(t, errors.As(err, &discountErr), "got %v", err)
	assert.True(t, discountErr.Max.Equal(dec("50")))

	order, err := svc.CreateOrder(context.Background(), domain.OrderCreateRequest{
		Items:    []domain.OrderItemInput{productLine(p.ID, 1)},
		Discount: dec("50"),
	})
	require.NoError(t, err)
	assert.True(t, order.TotalAmount.Equal(dec("50")))
}

func TestCreditOrderWithDebtRejectedBeforeAnyWrite(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p := mustProduct(t, svc, "Rice", "700", "400", 5)

	_, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		PaymentType: domain.PaymentCredit,
		DebtAmount:  dec("200"),
		Items:       []domain.OrderItemInput{productLine(p.ID, 1)},
	})
	require.ErrorIs(t, err, domain.ErrIncompatibleDebtCredit)

	assert.Equal(t, 5, stockOf(t, svc, p.ID))
	session, err := svc.ActiveSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session, "no report session may be opened by a rejected order")
}

func TestEmptyOrderRejected(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.CreateOrder(context.Background(), domain.OrderCreateRequest{})
	assert.ErrorIs(t, err, domain.ErrEmptyOrder)
}

func TestUnknownComboAndProductRejected(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{Items: []domain.OrderItemInput{comboLine(99, 1)}})
	assert.ErrorIs(t, err, domain.ErrInvalidCombo)

	_, err = svc.CreateOrder(ctx, domain.OrderCreateRequest{Items: []domain.OrderItemInput{productLine(99, 1)}})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestDebtOrderSettlement(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p := mustProduct(t, svc, "Juice", "450", "200", 10)

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Items:      []domain.OrderItemInput{productLine(p.ID, 2)},
		DebtAmount: dec("100"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDebt, order.Status)
	assert.True(t, order.AmountPaid.Equal(dec("1000")), order.AmountPaid.String())
	assert.Equal(t, 8, stockOf(t, svc, p.ID))

	paid, err := svc.MarkDebtPaid(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, paid.Status)
	assert.True(t, paid.AmountPaid.Equal(dec("1000")), "debt settlement keeps amount_paid")
	assert.NotNil(t, paid.DeliveredAt)
	assert.NotNil(t, paid.ReportSessionID)
	assert.Equal(t, 8, stockOf(t, svc, p.ID))

	_, err = svc.MarkDebtPaid(ctx, order.ID)
	assert.ErrorIs(t, err, domain.ErrWrongStatus)
}

func TestCreditOrderSettlement(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p := mustProduct(t, svc, "Bread", "250", "100", 10)

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		PaymentType: domain.PaymentCredit,
		Items:       []domain.OrderItemInput{productLine(p.ID, 4)},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCredit, order.Status)
	assert.True(t, order.AmountPaid.IsZero())
	assert.Equal(t, 6, stockOf(t, svc, p.ID))

	_, err = svc.MarkDebtPaid(ctx, order.ID)
	assert.ErrorIs(t, err, domain.ErrWrongStatus)

	paid, err := svc.MarkCreditPaid(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, paid.Status)
	assert.True(t, paid.AmountPaid.Equal(paid.TotalAmount))
	assert.NotNil(t, paid.DeliveredAt)
	assert.Equal(t, 6, stockOf(t, svc, p.ID))

	_, err = svc.MarkCreditPaid(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestFulfilledOrderCannotReturnToPending(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p := mustProduct(t, svc, "Cake", "900", "300", 3)

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Status: domain.StatusDelivered,
		Items:  []domain.OrderItemInput{productLine(p.ID, 1)},
	})
	require.NoError(t, err)

	_, err = svc.UpdateOrderStatus(ctx, order.ID, domain.StatusPending)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = svc.UpdateOrderStatus(ctx, order.ID, domain.StatusCredit)
	require.NoError(t, err)
	assert.Equal(t, 2, stockOf(t, svc, p.ID), "moving between fulfilled statuses must not touch stock")
}

func TestOversizedQuantitiesRejectedWithoutTouchingStock(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p := mustProduct(t, svc, "Tea", "200", "50", 10)
	combo, err := svc.CreateCombo(ctx, domain.ComboCreateRequest{
		Name:        "Tea Pair",
		Ingredients: []domain.ComboIngredientInput{{ProductID: p.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	cases := map[string][]domain.OrderItemInput{
		"line above bound":      {productLine(p.ID, domain.MaxQuantity+1)},
		"lines sum past bound":  {productLine(p.ID, domain.MaxQuantity), productLine(p.ID, domain.MaxQuantity)},
		"combo multiply":        {comboLine(combo.ID, domain.MaxQuantity)},
		"product and combo sum": {productLine(p.ID, domain.MaxQuantity-1), comboLine(combo.ID, 1)},
	}
	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
				Status: domain.StatusDelivered,
				Items:  items,
			})
			var validation *domain.ValidationError
			require.ErrorAs(t, err, &validation)
			assert.Equal(t, 10, stockOf(t, svc, p.ID))
		})
	}

	orders, err := svc.ListOrders(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestDeliverPendingOrderRechecksStock(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p := mustProduct(t, svc, "Egg", "50", "20", 4)

	first, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{Items: []domain.OrderItemInput{productLine(p.ID, 3)}})
	require.NoError(t, err)
	_, err = svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Status: domain.StatusDelivered,
		Items:  []domain.OrderItemInput{productLine(p.ID, 2)},
	})
	require.NoError(t, err)

	_, err = svc.UpdateOrderStatus(ctx, first.ID, domain.StatusDelivered)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 2, stockOf(t, svc, p.ID))

	still, err := svc.GetOrder(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, still.Status)
}

func TestDeleteRequiresDelivered(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p := mustProduct(t, svc, "Milk", "300", "150", 4)

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{Items: []domain.OrderItemInput{productLine(p.ID, 1)}})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteOrder(ctx, order.ID), domain.ErrNotDelivered)
	assert.ErrorIs(t, svc.DeleteOrder(ctx, 404), domain.ErrOrderNotFound)
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p := mustProduct(t, svc, "Water", "100", "50", 10)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateOrder(ctx, domain.OrderCreateRequest{
				Status: domain.StatusDelivered,
				Items:  []domain.OrderItemInput{productLine(p.ID, 6)},
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, domain.ErrInsufficientStock) || errors.Is(err, domain.ErrStockConflict), "unexpected error %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 4, stockOf(t, svc, p.ID))
}

func TestLineSnapshotsSurviveCatalogEdits(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p := mustProduct(t, svc, "Pie", "800", "350", 5)

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{Items: []domain.OrderItemInput{productLine(p.ID, 1)}})
	require.NoError(t, err)

	newPrice := dec("999")
	newName := "Apple Pie"
	_, err = svc.UpdateProduct(ctx, p.ID, domain.ProductUpdateRequest{Price: &newPrice, Name: &newName})
	require.NoError(t, err)

	stored, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "Pie", stored.Items[0].NameAtTime)
	assert.True(t, stored.Items[0].UnitPriceAtTime.Equal(dec("800")))
	assert.True(t, stored.Items[0].UnitCostAtTime.Equal(dec("350")))
}

func TestComboLifecycle(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	a := mustProduct(t, svc, "A", "10.25", "5", 5)
	b := mustProduct(t, svc, "B", "3", "1.50", 6)

	combo, err := svc.CreateCombo(ctx, domain.ComboCreateRequest{
		Name: "AB",
		Ingredients: []domain.ComboIngredientInput{
			{ProductID: a.ID, Quantity: 2},
			{ProductID: b.ID, Quantity: 3},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, combo.AvailableUnits)
	assert.True(t, combo.UnitPrice.Equal(dec("29.5")), combo.UnitPrice.String())
	assert.True(t, combo.UnitCost.Equal(dec("14.5")), combo.UnitCost.String())

	_, err = svc.CreateCombo(ctx, domain.ComboCreateRequest{
		Name: "Too Big",
		Ingredients: []domain.ComboIngredientInput{
			{ProductID: a.ID, Quantity: 6},
		},
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	_, err = svc.CreateCombo(ctx, domain.ComboCreateRequest{
		Name: "Dup",
		Ingredients: []domain.ComboIngredientInput{
			{ProductID: a.ID, Quantity: 1},
			{ProductID: a.ID, Quantity: 1},
		},
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateIngredient)

	_, err = svc.CreateCombo(ctx, domain.ComboCreateRequest{
		Name:        "Ghost",
		Ingredients: []domain.ComboIngredientInput{{ProductID: 404, Quantity: 1}},
	})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	renamed := "AB Deluxe"
	updated, err := svc.UpdateCombo(ctx, combo.ID, domain.ComboUpdateRequest{Name: &renamed})
	require.NoError(t, err)
	assert.Equal(t, "AB Deluxe", updated.Name)
	assert.Len(t, updated.Ingredients, 2)

	onlyA := []domain.ComboIngredientInput{{ProductID: a.ID, Quantity: 1}}
	updated, err = svc.UpdateCombo(ctx, combo.ID, domain.ComboUpdateRequest{Ingredients: &onlyA})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.AvailableUnits)

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{Items: []domain.OrderItemInput{comboLine(combo.ID, 1)}})
	require.NoError(t, err)
	assert.Equal(t, "AB Deluxe", order.Items[0].NameAtTime)

	assert.ErrorIs(t, svc.DeleteCombo(ctx, combo.ID), domain.ErrComboInUse)
	assert.ErrorIs(t, svc.DeleteProduct(ctx, a.ID), domain.ErrProductInUse)

	_, err = svc.UpdateCombo(ctx, 404, domain.ComboUpdateRequest{Name: &renamed})
	assert.ErrorIs(t, err, domain.ErrComboNotFound)
}

func TestSessionReportAggregatesDeliveredOrders(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p := mustProduct(t, svc, "Soup", "200", "80", 10)

	_, err := svc.SessionReport(ctx, CurrentSession)
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)

	for i := 0; i < 2; i++ {
		_, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
			Status: domain.StatusDelivered,
			Items:  []domain.OrderItemInput{productLine(p.ID, 2)},
		})
		require.NoError(t, err)
	}
	_, err = svc.CreateOrder(ctx, domain.OrderCreateRequest{Items: []domain.OrderItemInput{productLine(p.ID, 1)}})
	require.NoError(t, err)

	report, err := svc.SessionReport(ctx, CurrentSession)
	require.NoError(t, err)
	require.Len(t, report.Days, 1)
	assert.Equal(t, 2, report.Totals.TotalOrders)
	assert.True(t, report.Totals.TotalRevenue.Equal(dec("800")))
	assert.True(t, report.Totals.TotalProfit.Equal(dec("480")))

	stopped, err := svc.StopSession(ctx)
	require.NoError(t, err)
	_, err = svc.StopSession(ctx)
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)

	started, err := svc.StartSession(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, stopped.ID, started.ID)

	fresh, err := svc.SessionReport(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.Totals.TotalOrders)

	_, err = svc.SessionReport(ctx, "abc")
	var validation *domain.ValidationError
	assert.True(t, errors.As(err, &validation))
}

func TestDashboardSummarizesOutstandingBalances(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p := mustProduct(t, svc, "Tart", "100", "40", 8)

	_, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Items:      []domain.OrderItemInput{productLine(p.ID, 1)},
		DebtAmount: dec("25"),
	})
	require.NoError(t, err)
	_, err = svc.CreateOrder(ctx, domain.OrderCreateRequest{
		PaymentType: domain.PaymentCredit,
		Items:       []domain.OrderItemInput{productLine(p.ID, 2)},
	})
	require.NoError(t, err)

	dash, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dash.DebtCount)
	assert.True(t, dash.TotalDebt.Equal(dec("25")))
	assert.Equal(t, 1, dash.CreditCount)
	assert.True(t, dash.TotalCredit.Equal(dec("200")))
	require.Len(t, dash.LowStockItems, 1)
	assert.Equal(t, p.ID, dash.LowStockItems[0].ID)
}

func TestSettingsCacheInvalidatedOnUpdate(t *testing.T) {
	repo := memory.New()
	settingsCache := cache.NewMemorySettingsCache()
	svc := New(repo, settingsCache, time.Hour, nil, nil)
	ctx := context.Background()

	settings, err := svc.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "XAF", settings.Currency)

	_, hit, err := settingsCache.Get(ctx)
	require.NoError(t, err)
	assert.True(t, hit)

	updated, err := svc.UpdateSettings(ctx, map[string]json.RawMessage{
		domain.SettingCurrency: json.RawMessage(`"EUR"`),
		"receiptFooter":        json.RawMessage(`{"text":"thanks"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "EUR", updated.Currency)
	assert.JSONEq(t, `{"text":"thanks"}`, string(updated.Extra["receiptFooter"]))

	_, err = svc.UpdateSettings(ctx, map[string]json.RawMessage{domain.SettingDeliveryFee: json.RawMessage(`"cheap"`)})
	var validation *domain.ValidationError
	assert.True(t, errors.As(err, &validation))
}

func TestOrderEventsPublishedAfterCommit(t *testing.T) {
	repo := memory.New()
	events := &recordingPublisher{}
	svc := New(repo, nil, time.Minute, events, nil)
	ctx := context.Background()
	p := mustProduct(t, svc, "Nut", "10", "5", 5)

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{Items: []domain.OrderItemInput{productLine(p.ID, 1)}})
	require.NoError(t, err)
	_, err = svc.UpdateOrderStatus(ctx, order.ID, domain.StatusDelivered)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteOrder(ctx, order.ID))

	_, err = svc.CreateOrder(ctx, domain.OrderCreateRequest{Items: []domain.OrderItemInput{productLine(p.ID, 50)}})
	require.Error(t, err)

	assert.Equal(t, []domain.OrderEventType{
		domain.EventOrderCreated,
		domain.EventOrderUpdated,
		domain.EventOrderDeleted,
	}, events.types())
}

func TestMarketChecklist(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	item, err := svc.CreateMarketItem(ctx, domain.MarketItemCreateRequest{Item: "Onions"})
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityMedium, item.Priority)
	assert.Equal(t, domain.MarketOpen, item.Status)
	assert.Equal(t, "1", item.Quantity)

	done := domain.MarketDone
	updated, err := svc.UpdateMarketItem(ctx, item.ID, domain.MarketItemUpdateRequest{Status: &done})
	require.NoError(t, err)
	assert.Equal(t, domain.MarketDone, updated.Status)

	bad := domain.MarketPriority("urgent")
	_, err = svc.UpdateMarketItem(ctx, item.ID, domain.MarketItemUpdateRequest{Priority: &bad})
	var validation *domain.ValidationError
	assert.True(t, errors.As(err, &validation))

	require.NoError(t, svc.DeleteMarketItem(ctx, item.ID))
	assert.ErrorIs(t, svc.DeleteMarketItem(ctx, item.ID), domain.ErrMarketItemNotFound)
}
