package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartseller/backend/internal/domain"
	"smartseller/backend/internal/store"
)

func TestWithTxRollsBackEveryWrite(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockProducts(ctx, []int64{2, 1}); err != nil {
			return err
		}
		ok, err := tx.TryDecrementStock(ctx, 1, 5)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, tx.IncrementStock(ctx, 2, 3))
		if _, err := tx.InsertOrder(ctx, domain.Order{CustomerName: "Guest", Status: domain.StatusDelivered}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	p1, err := s.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 40, p1.Stock)
	p2, err := s.GetProduct(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 60, p2.Stock)

	orders, err := s.ListOrders(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestTryDecrementStockRefusesToGoNegative(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockProducts(ctx, []int64{4}); err != nil {
			return err
		}
		ok, err := tx.TryDecrementStock(ctx, 4, 21)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	p, err := s.GetProduct(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 20, p.Stock)
}

func TestWritesRequireRowLock(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.TryDecrementStock(ctx, 1, 1)
		return err
	})
	require.Error(t, err)
}

func TestLockProductsUnknownID(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.LockProducts(ctx, []int64{1, 99})
		return err
	})
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestRowLockSerializesOverlappingUnitsOfWork(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	var wg sync.WaitGroup
	results := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithTx(ctx, func(tx store.Tx) error {
				products, err := tx.LockProducts(ctx, []int64{3, 1})
				if err != nil {
					return err
				}
				if products[3].Stock < 30 {
					results <- false
					return nil
				}
				ok, err := tx.TryDecrementStock(ctx, 3, 30)
				results <- ok
				return err
			})
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for ok := range results {
		if ok {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)

	p, err := s.GetProduct(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 18, p.Stock)
}

func TestLockWaitHonoursContext(t *testing.T) {
	s := NewSeeded()
	held := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = s.WithTx(context.Background(), func(tx store.Tx) error {
			if _, err := tx.LockProducts(context.Background(), []int64{1}); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.LockProducts(ctx, []int64{1})
		return err
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestActiveSessionIDOpensOnce(t *testing.T) {
	ctx := context.Background()
	s := New()

	var first, second int64
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		var err error
		first, err = tx.ActiveSessionID(ctx)
		return err
	}))
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		var err error
		second, err = tx.ActiveSessionID(ctx)
		return err
	}))
	assert.Equal(t, first, second)

	active, err := s.ActiveSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, first, active.ID)
}

func TestDeleteProductInUseByCombo(t *testing.T) {
	s := NewSeeded()

	err := s.DeleteProduct(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrProductInUse)

	require.NoError(t, s.DeleteProduct(context.Background(), 4))
}

func TestStockAdjustmentsRejectNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockProducts(ctx, []int64{1}); err != nil {
			return err
		}
		var validation *domain.ValidationError
		for _, amount := range []int{0, -5} {
			ok, err := tx.TryDecrementStock(ctx, 1, amount)
			require.ErrorAs(t, err, &validation)
			assert.False(t, ok)
			require.ErrorAs(t, tx.IncrementStock(ctx, 1, amount), &validation)
		}
		return nil
	})
	require.NoError(t, err)

	p, err := s.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 40, p.Stock)
}

func TestInsertOrderRefusesComboDeletedMidUnitOfWork(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	comboID := int64(1)

	err := s.WithTx(ctx, func(tx store.Tx) error {
		combos, err := tx.Combos(ctx, []int64{comboID})
		require.NoError(t, err)
		require.Contains(t, combos, comboID)
		if _, err := tx.LockProducts(ctx, []int64{1, 2, 3}); err != nil {
			return err
		}
		for _, id := range []int64{1, 2, 3} {
			ok, err := tx.TryDecrementStock(ctx, id, 1)
			require.NoError(t, err)
			require.True(t, ok)
		}

		// No order references the combo yet, so the delete goes through.
		require.NoError(t, s.DeleteCombo(ctx, comboID))

		_, err = tx.InsertOrder(ctx, domain.Order{
			CustomerName: "Guest",
			Status:       domain.StatusDelivered,
			Items: []domain.OrderLine{{
				ItemType: domain.LineCombo,
				ComboID:  &comboID,
				Quantity: 1,
			}},
		})
		return err
	})
	require.ErrorIs(t, err, domain.ErrInvalidCombo)

	orders, err := s.ListOrders(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, orders)
	for id, want := range map[int64]int{1: 40, 2: 60, 3: 48} {
		p, err := s.GetProduct(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, p.Stock, "product %d", id)
	}
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	assert.PanicsWithValue(t, "boom", func() {
		_ = s.WithTx(ctx, func(tx store.Tx) error {
			if _, err := tx.LockProducts(ctx, []int64{1}); err != nil {
				return err
			}
			ok, err := tx.TryDecrementStock(ctx, 1, 7)
			require.NoError(t, err)
			require.True(t, ok)
			panic("boom")
		})
	})

	p, err := s.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 40, p.Stock)

	// The row lock was released along with the rollback.
	lockCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, s.WithTx(lockCtx, func(tx store.Tx) error {
		_, err := tx.LockProducts(lockCtx, []int64{1})
		return err
	}))
}

func TestSessionOpenedByRolledBackUnitOfWorkStaysOpen(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	var opened int64
	err := s.WithTx(ctx, func(tx store.Tx) error {
		var err error
		opened, err = tx.ActiveSessionID(ctx)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	active, err := s.ActiveSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, opened, active.ID)
}
