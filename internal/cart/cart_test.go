package cart_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"shopbot/internal/apperr"
	"shopbot/internal/cart"
	"shopbot/internal/cart/mocks"
	"shopbot/internal/database"
	"shopbot/internal/database/dbtest"
	"shopbot/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, opts ...cart.Option) (*cart.Engine, database.Storage) {
	t.Helper()
	store := dbtest.NewSQLite(t)
	opts = append([]cart.Option{cart.WithClock(func() time.Time { return now })}, opts...)
	e := cart.New(store, 15000, opts...)
	require.NoError(t, e.Init(context.Background()))
	return e, store
}

func register(t *testing.T, store database.Storage, principal int64) *model.User {
	t.Helper()
	u, err := store.UpsertUser(context.Background(), principal, "Анна", now)
	require.NoError(t, err)
	return u
}

func TestEngine_GetOrCreateOpenCart_Concurrent(t *testing.T) {
	e, store := newEngine(t)
	register(t, store, 1)
	ctx := context.Background()

	const n = 20
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := e.GetOrCreateOpenCart(ctx, 1)
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 1)
}

func TestEngine_GetOrCreateOpenCart_Unregistered(t *testing.T) {
	e, _ := newEngine(t)
	_, err := e.GetOrCreateOpenCart(context.Background(), 404)
	assert.ErrorIs(t, err, cart.ErrUnknownPrincipal)
}

func TestEngine_EndToEnd(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	e, store := newEngine(t, cart.WithNotifier(notifier))
	u := register(t, store, 1)
	ctx := context.Background()

	a := model.Product{SKU: "a", Title: "A", PriceMinor: 5000, Available: true}
	b := model.Product{SKU: "b", Title: "B", PriceMinor: 3000, Available: true}

	_, err := e.AddProduct(ctx, 1, a)
	require.NoError(t, err)
	_, err = e.AddProduct(ctx, 1, a)
	require.NoError(t, err)
	totals, err := e.AddProduct(ctx, 1, b)
	require.NoError(t, err)
	assert.Equal(t, int64(13000), totals.SubtotalMinor)

	orderID, err := e.GetOrCreateOpenCart(ctx, 1)
	require.NoError(t, err)

	totals, err = e.ChooseDelivery(ctx, orderID, model.DeliveryCourier)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), totals.DeliveryFeeMinor)
	assert.Equal(t, int64(28000), totals.TotalMinor)

	_, err = store.SaveDefaultAddress(ctx, u.ID, model.Address{Line: "ул. Ленина, 1"})
	require.NoError(t, err)
	addr, err := store.GetDefaultAddress(ctx, u.ID)
	require.NoError(t, err)
	snap := model.SnapshotOf(addr)

	notifier.EXPECT().
		PublishOrderEvent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ev cart.Event) error {
			assert.Equal(t, cart.EventOrderConfirmed, ev.Type)
			assert.Equal(t, orderID, ev.OrderID)
			assert.Equal(t, int64(28000), ev.TotalMinor)
			assert.NotEmpty(t, ev.ID)
			return nil
		})

	order, err := e.Checkout(ctx, orderID, model.DeliveryCourier, &snap)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirming, order.Status)
	assert.Equal(t, int64(28000), order.TotalMinor)

	// Новый адрес по умолчанию не меняет оформленный заказ.
	_, err = store.SaveDefaultAddress(ctx, u.ID, model.Address{Line: "пр. Мира, 10"})
	require.NoError(t, err)

	order, err = e.Order(ctx, orderID)
	require.NoError(t, err)
	require.NotNil(t, order.AddressSnapshot)
	assert.Equal(t, "ул. Ленина, 1", order.AddressSnapshot.Line)

	_, err = e.RecomputeTotals(ctx, orderID, 0)
	assert.ErrorIs(t, err, cart.ErrNotCart)

	_, err = e.Checkout(ctx, orderID, model.DeliveryPickup, nil)
	assert.ErrorIs(t, err, cart.ErrNotCart)

	next, err := e.GetOrCreateOpenCart(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, orderID, next)
}

func TestEngine_CheckoutEmptyCart(t *testing.T) {
	e, store := newEngine(t)
	register(t, store, 1)
	ctx := context.Background()

	orderID, err := e.GetOrCreateOpenCart(ctx, 1)
	require.NoError(t, err)

	_, err = e.Checkout(ctx, orderID, model.DeliveryPickup, nil)
	assert.ErrorIs(t, err, cart.ErrEmptyCart)

	order, err := e.Order(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCart, order.Status)
}

func TestEngine_AddItemAfterCheckoutKeepsOrderFrozen(t *testing.T) {
	e, store := newEngine(t)
	register(t, store, 1)
	ctx := context.Background()

	_, err := e.AddProduct(ctx, 1, model.Product{SKU: "a", Title: "A", PriceMinor: 5000, Available: true})
	require.NoError(t, err)
	orderID, err := e.GetOrCreateOpenCart(ctx, 1)
	require.NoError(t, err)

	_, err = e.Checkout(ctx, orderID, model.DeliveryPickup, nil)
	require.NoError(t, err)

	// id корзины получен до оформления, добавление приходит после.
	err = e.AddItem(ctx, orderID, "b", "B", 3000)
	assert.ErrorIs(t, err, cart.ErrNotCart)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.ErrorIs(t, e.AddItem(ctx, orderID, "a", "A", 5000), cart.ErrNotCart)

	order, err := e.Order(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirming, order.Status)

	items, err := e.Items(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(1), items[0].Qty)
	assert.Equal(t, model.ComputeTotals(items, 0).SubtotalMinor, order.SubtotalMinor)
	assert.Equal(t, int64(5000), order.SubtotalMinor)
}

func TestEngine_CheckoutCourierNeedsAddress(t *testing.T) {
	e, store := newEngine(t)
	register(t, store, 1)
	ctx := context.Background()

	_, err := e.AddProduct(ctx, 1, model.Product{SKU: "a", Title: "A", PriceMinor: 100, Available: true})
	require.NoError(t, err)
	orderID, err := e.GetOrCreateOpenCart(ctx, 1)
	require.NoError(t, err)

	_, err = e.Checkout(ctx, orderID, model.DeliveryCourier, nil)
	assert.ErrorIs(t, err, cart.ErrMissingAddress)
	_, err = e.Checkout(ctx, orderID, model.DeliveryCourier, &model.AddressSnapshot{})
	assert.ErrorIs(t, err, cart.ErrMissingAddress)
	_, err = e.Checkout(ctx, orderID, "drone", nil)
	assert.ErrorIs(t, err, cart.ErrInvalidDelivery)

	order, err := e.Checkout(ctx, orderID, model.DeliveryPickup, &model.AddressSnapshot{Line: "игнорируется"})
	require.NoError(t, err)
	require.NotNil(t, order.AddressSnapshot)
	assert.True(t, order.AddressSnapshot.Empty(), "pickup stores an empty snapshot")
	assert.Equal(t, model.DeliveryPickup, order.DeliveryType)
}

func TestEngine_AddUnavailableProduct(t *testing.T) {
	e, store := newEngine(t)
	register(t, store, 1)

	_, err := e.AddProduct(context.Background(), 1, model.Product{SKU: "x", Available: false})
	assert.ErrorIs(t, err, cart.ErrProductUnavailable)
}

func TestEngine_ClearCart(t *testing.T) {
	e, store := newEngine(t)
	register(t, store, 1)
	ctx := context.Background()

	_, err := e.AddProduct(ctx, 1, model.Product{SKU: "a", Title: "A", PriceMinor: 700, Available: true})
	require.NoError(t, err)
	orderID, err := e.GetOrCreateOpenCart(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, e.ClearCart(ctx, orderID))
	items, err := e.Items(ctx, orderID)
	require.NoError(t, err)
	assert.Empty(t, items)

	order, err := e.Order(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCart, order.Status)
	assert.Zero(t, order.SubtotalMinor)
	assert.Zero(t, order.TotalMinor)
}

func TestEngine_SetStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	e, store := newEngine(t, cart.WithNotifier(notifier))
	register(t, store, 1)
	ctx := context.Background()

	_, err := e.AddProduct(ctx, 1, model.Product{SKU: "a", Title: "A", PriceMinor: 700, Available: true})
	require.NoError(t, err)
	orderID, err := e.GetOrCreateOpenCart(ctx, 1)
	require.NoError(t, err)

	_, err = e.SetStatus(ctx, orderID, model.StatusPreparing)
	assert.ErrorIs(t, err, cart.ErrNotCheckedOut)

	notifier.EXPECT().PublishOrderEvent(gomock.Any(), gomock.Any()).Return(nil)
	_, err = e.Checkout(ctx, orderID, model.DeliveryPickup, nil)
	require.NoError(t, err)

	_, err = e.SetStatus(ctx, orderID, model.StatusCart)
	assert.ErrorIs(t, err, cart.ErrInvalidStatus)

	_, err = e.SetStatus(ctx, 9999, model.StatusPreparing)
	assert.ErrorIs(t, err, cart.ErrOrderNotFound)

	// Ошибка публикации не отменяет смену статуса.
	notifier.EXPECT().PublishOrderEvent(gomock.Any(), gomock.Any()).Return(assert.AnError)
	order, err := e.SetStatus(ctx, orderID, model.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelivered, order.Status)

	// Переходы свободные, в том числе назад.
	notifier.EXPECT().PublishOrderEvent(gomock.Any(), gomock.Any()).Return(nil)
	order, err = e.SetStatus(ctx, orderID, model.StatusPreparing)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPreparing, order.Status)

	active, err := e.ActiveOrders(ctx, 20)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, orderID, active[0].ID)
}

func TestEngine_CourierFee(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	fee, err := e.CourierFee(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), fee)

	require.NoError(t, e.SetCourierFee(ctx, 20000))
	fee, err = e.FeeFor(ctx, model.DeliveryCourier)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), fee)

	fee, err = e.FeeFor(ctx, model.DeliveryPickup)
	require.NoError(t, err)
	assert.Zero(t, fee)

	err = e.SetCourierFee(ctx, -1)
	assert.ErrorIs(t, err, cart.ErrInvalidFee)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// Init не перезаписывает заданный администратором тариф.
	require.NoError(t, e.Init(ctx))
	fee, err = e.CourierFee(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), fee)
}

func TestEngine_SubtotalMatchesLinesForRandomSequence(t *testing.T) {
	e, store := newEngine(t)
	register(t, store, 1)
	ctx := context.Background()

	products := []model.Product{
		{SKU: "a", Title: "A", PriceMinor: 1999, Available: true},
		{SKU: "b", Title: "B", PriceMinor: 1, Available: true},
		{SKU: "c", Title: "C", PriceMinor: 45000, Available: true},
	}
	orderID, err := e.GetOrCreateOpenCart(ctx, 1)
	require.NoError(t, err)

	var want int64
	for step := 0; step < 25; step++ {
		if step == 12 {
			require.NoError(t, e.ClearCart(ctx, orderID))
			want = 0
			continue
		}
		p := products[(step*7)%len(products)]
		_, err := e.AddProduct(ctx, 1, p)
		require.NoError(t, err)
		want += p.PriceMinor

		totals, err := e.RecomputeTotals(ctx, orderID, 0)
		require.NoError(t, err)
		assert.Equal(t, want, totals.SubtotalMinor)
	}
}
