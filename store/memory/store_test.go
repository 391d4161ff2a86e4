package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tablebill"
	"github.com/xraph/tablebill/dish"
	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/payment"
	"github.com/xraph/tablebill/split"
	"github.com/xraph/tablebill/store/memory"
	"github.com/xraph/tablebill/types"
)

func addDish(t *testing.T, s *memory.Store, table, guest string, price int64) *dish.DishOrder {
	t.Helper()
	d := &dish.DishOrder{
		Entity:        types.NewEntity(),
		ID:            id.NewDishOrderID(),
		TableID:       table,
		GuestName:     guest,
		Item:          "item",
		Quantity:      1,
		TotalPrice:    types.MXN(price),
		PaymentStatus: dish.StatusNotPaid,
	}
	require.NoError(t, s.CreateDishOrder(context.Background(), d))
	return d
}

func TestDishOrders(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	a := addDish(t, s, "t1", "ana", 50_00)
	addDish(t, s, "t1", "beto", 30_00)
	addDish(t, s, "t2", "carla", 10_00)

	assert.ErrorIs(t, s.CreateDishOrder(ctx, a), tablebill.ErrAlreadyExists)

	got, err := s.GetDishOrder(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana", got.GuestName)

	_, err = s.GetDishOrder(ctx, id.NewDishOrderID())
	assert.ErrorIs(t, err, tablebill.ErrDishNotFound)

	list, err := s.ListDishOrders(ctx, "t1", dish.ListOpts{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ana", list[0].GuestName, "oldest first")

	n, err := s.CountDishOrders(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.CountDishOrders(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMarkDishOrdersPaidIdempotent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	addDish(t, s, "t1", "ana", 50_00)
	addDish(t, s, "t1", "beto", 30_00)
	addDish(t, s, "t1", "ana", 20_00)

	changed, err := s.MarkDishOrdersPaid(ctx, "t1", dish.ByGuests("ana"), time.Now())
	require.NoError(t, err)
	assert.Len(t, changed, 2)

	changed, err = s.MarkDishOrdersPaid(ctx, "t1", dish.ByGuests("ana"), time.Now())
	require.NoError(t, err)
	assert.Empty(t, changed)

	unpaid, err := s.ListDishOrders(ctx, "t1", dish.ListOpts{Status: dish.StatusNotPaid})
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	assert.Equal(t, "beto", unpaid[0].GuestName)
}

func TestMarkDishOrdersPaidConcurrent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	for i := 0; i < 50; i++ {
		addDish(t, s, "t1", "ana", 1_00)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changed, err := s.MarkDishOrdersPaid(ctx, "t1", dish.AllUnpaid(), time.Now())
			assert.NoError(t, err)
			mu.Lock()
			total += len(changed)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, total, "every dish flips exactly once")
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	d := addDish(t, s, "t1", "ana", 50_00)

	got, err := s.GetDishOrder(ctx, d.ID)
	require.NoError(t, err)
	got.PaymentStatus = dish.StatusPaid

	again, err := s.GetDishOrder(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, dish.StatusNotPaid, again.PaymentStatus)
}

func TestSplitPayments(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	entries := []*split.SplitPayment{
		{ID: id.NewSplitPaymentID(), TableID: "t1", ParticipantKey: "ana", Mode: split.ModeEqualShares, Status: split.StatusPending, ShareAmount: types.MXN(50_00)},
		{ID: id.NewSplitPaymentID(), TableID: "t1", ParticipantKey: "beto", Mode: split.ModeEqualShares, Status: split.StatusPending, ShareAmount: types.MXN(50_00)},
	}
	require.NoError(t, s.CreateSplitPayments(ctx, entries))

	ok, err := s.MarkSplitPaid(ctx, "t1", "ana", split.ModeEqualShares, types.MXN(50_00), time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkSplitPaid(ctx, "t1", "ana", split.ModeEqualShares, types.MXN(50_00), time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "second flip is a no-op")

	list, err := s.ListSplitPayments(ctx, "t1", split.ListOpts{OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, types.MXN(50_00), split.Credits("mxn", list))

	n, err := s.CancelSplitPayments(ctx, "t1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only beto was pending")

	list, err = s.ListSplitPayments(ctx, "t1", split.ListOpts{OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ana", list[0].ParticipantKey)

	n, err = s.SettleSplitPayments(ctx, "t1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err = s.ListSplitPayments(ctx, "t1", split.ListOpts{OpenOnly: true})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = s.ListSplitPayments(ctx, "t1", split.ListOpts{Mode: split.ModeEqualShares})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCreateSplitPaymentsOneOpenSession(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	pending := func(table, who string, mode split.Mode) *split.SplitPayment {
		return &split.SplitPayment{ID: id.NewSplitPaymentID(), TableID: table, ParticipantKey: who, Mode: mode, Status: split.StatusPending}
	}
	require.NoError(t, s.CreateSplitPayments(ctx, []*split.SplitPayment{pending("t1", "ana", split.ModeEqualShares)}))

	err := s.CreateSplitPayments(ctx, []*split.SplitPayment{pending("t1", "beto", split.ModeUserItems)})
	assert.ErrorIs(t, err, tablebill.ErrSplitActive)

	credit := &split.SplitPayment{ID: id.NewSplitPaymentID(), TableID: "t1", Mode: split.ModeAmount, Status: split.StatusPaid, PaidAmount: types.MXN(5_00)}
	require.NoError(t, s.CreateSplitPayments(ctx, []*split.SplitPayment{credit}), "credits do not open a session")
	require.NoError(t, s.CreateSplitPayments(ctx, []*split.SplitPayment{pending("t2", "ana", split.ModeEqualShares)}), "other tables are independent")

	_, err = s.CancelSplitPayments(ctx, "t1", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.CreateSplitPayments(ctx, []*split.SplitPayment{pending("t1", "beto", split.ModeUserItems)}))

	list, err := s.ListSplitPayments(ctx, "t1", split.ListOpts{OpenOnly: true})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestTransactions(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	now := time.Now()
	second := &payment.Transaction{ID: id.NewTransactionID(), TableID: "t1", CreatedAt: now.Add(time.Second)}
	first := &payment.Transaction{ID: id.NewTransactionID(), TableID: "t1", CreatedAt: now}
	require.NoError(t, s.AppendTransaction(ctx, second))
	require.NoError(t, s.AppendTransaction(ctx, first))
	require.NoError(t, s.AppendTransaction(ctx, &payment.Transaction{ID: id.NewTransactionID(), TableID: "t2", CreatedAt: now}))

	assert.ErrorIs(t, s.AppendTransaction(ctx, first), tablebill.ErrAlreadyExists)

	intentID := id.NewIntentID()
	require.NoError(t, s.AppendTransaction(ctx, &payment.Transaction{ID: id.NewTransactionID(), IntentID: intentID, TableID: "t2", CreatedAt: now}))
	err := s.AppendTransaction(ctx, &payment.Transaction{ID: id.NewTransactionID(), IntentID: intentID, TableID: "t2", CreatedAt: now})
	assert.ErrorIs(t, err, tablebill.ErrAlreadyExists, "one transaction per intent")

	list, err := s.ListTransactions(ctx, "t1", payment.ListOpts{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID.String(), list[0].ID.String())

	list, err = s.ListTransactions(ctx, "t2", payment.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = s.ListTransactions(ctx, "t1", payment.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID.String(), list[0].ID.String())
}

func TestIntents(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now()

	live := &payment.Intent{ID: id.NewIntentID(), TableID: "t1", ExpiresAt: now.Add(time.Minute)}
	stale := &payment.Intent{ID: id.NewIntentID(), TableID: "t1", ExpiresAt: now.Add(-time.Minute)}
	require.NoError(t, s.SaveIntent(ctx, live))
	require.NoError(t, s.SaveIntent(ctx, stale))

	live.Attempts = 2
	require.NoError(t, s.SaveIntent(ctx, live))
	got, err := s.GetIntent(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)

	purged, err := s.PurgeExpiredIntents(ctx, now)
	require.NoError(t, err)
	require.Len(t, purged, 1)
	assert.Equal(t, stale.ID.String(), purged[0].ID.String())

	_, err = s.GetIntent(ctx, stale.ID)
	assert.ErrorIs(t, err, tablebill.ErrIntentNotFound)

	require.NoError(t, s.DeleteIntent(ctx, live.ID))
	_, err = s.GetIntent(ctx, live.ID)
	assert.True(t, tablebill.IsNotFound(err))
}

func TestClose(t *testing.T) {
	s := memory.New()
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Ping(context.Background()), tablebill.ErrStoreClosed)
}
