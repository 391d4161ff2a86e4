package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audithook "github.com/xraph/tablebill/audit_hook"
	"github.com/xraph/tablebill/dish"
	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/payment"
	"github.com/xraph/tablebill/summary"
	"github.com/xraph/tablebill/types"
)

type memRecorder struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (r *memRecorder) Record(_ context.Context, ev *audithook.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Action
	}
	return out
}

func TestExtensionRecordsBillingEvents(t *testing.T) {
	ctx := context.Background()
	rec := &memRecorder{}
	ext := audithook.New(rec)

	d := &dish.DishOrder{ID: id.NewDishOrderID(), TableID: "t1", GuestName: "ana", Item: "tacos", TotalPrice: types.MXN(120_00)}
	s := summary.TableSummary{TableID: "t1", TotalAmount: types.MXN(120_00), RemainingAmount: types.MXN(120_00)}

	require.NoError(t, ext.OnDishCreated(ctx, d, s))
	require.NoError(t, ext.OnDishesPaid(ctx, "t1", []id.DishOrderID{d.ID}, s))
	require.NoError(t, ext.OnTransactionFailed(ctx, "t1", errors.New("disk full")))

	assert.Equal(t, []string{
		audithook.ActionDishCreated,
		audithook.ActionDishesPaid,
		audithook.ActionTransactionFailed,
	}, rec.actions())

	first := rec.events[0]
	assert.Equal(t, audithook.ResourceDish, first.Resource)
	assert.Equal(t, d.ID.String(), first.ResourceID)
	assert.Equal(t, "ana", first.Metadata["guest_name"])

	failed := rec.events[2]
	assert.Equal(t, audithook.OutcomeFailure, failed.Outcome)
	assert.Equal(t, "disk full", failed.Reason)
}

func TestExtensionActionFilters(t *testing.T) {
	ctx := context.Background()
	in := &payment.Intent{ID: id.NewIntentID(), TableID: "t1"}

	rec := &memRecorder{}
	ext := audithook.New(rec, audithook.WithEnabledActions(audithook.ActionIntentExpired))
	require.NoError(t, ext.OnIntentCreated(ctx, in))
	require.NoError(t, ext.OnIntentExpired(ctx, in))
	assert.Equal(t, []string{audithook.ActionIntentExpired}, rec.actions())

	rec = &memRecorder{}
	ext = audithook.New(rec, audithook.WithDisabledActions(audithook.ActionIntentCreated))
	require.NoError(t, ext.OnIntentCreated(ctx, in))
	require.NoError(t, ext.OnGatewayFailed(ctx, in, errors.New("declined")))
	assert.Equal(t, []string{audithook.ActionGatewayFailed}, rec.actions())
}

func TestExtensionSwallowsRecorderErrors(t *testing.T) {
	failing := audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	})
	ext := audithook.New(failing, audithook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	err := ext.OnIntentCreated(context.Background(), &payment.Intent{ID: id.NewIntentID()})
	assert.NoError(t, err)
}
