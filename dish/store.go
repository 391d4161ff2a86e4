package dish

import (
	"context"
	"time"

	"github.com/xraph/tablebill/id"
)

type Store interface {
	CreateDishOrder(ctx context.Context, d *DishOrder) error
	GetDishOrder(ctx context.Context, dishID id.DishOrderID) (*DishOrder, error)
	ListDishOrders(ctx context.Context, tableID string, opts ListOpts) ([]*DishOrder, error)
	CountDishOrders(ctx context.Context, tableID string) (int64, error)

	// MarkDishOrdersPaid flips every unpaid dish at the table matched by c and
	// returns the ids that actually changed in this call.
	MarkDishOrdersPaid(ctx context.Context, tableID string, c Criteria, paidAt time.Time) ([]id.DishOrderID, error)
}
