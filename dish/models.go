// Package dish models the dishes ordered at a table and their paid status.
package dish

import (
	"sort"
	"time"

	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/types"
)

type PaymentStatus string

const (
	StatusNotPaid PaymentStatus = "not_paid"
	StatusPaid    PaymentStatus = "paid"
)

// DishOrder is one dish ordered by one diner. Its status moves from
// not_paid to paid exactly once and never back.
type DishOrder struct {
	types.Entity
	ID            id.DishOrderID    `json:"id"`
	TableID       string            `json:"table_id"`
	RestaurantID  string            `json:"restaurant_id"`
	BranchID      string            `json:"branch_id,omitempty"`
	TableOrderID  id.TableOrderID   `json:"table_order_id"`
	GuestName     string            `json:"guest_name"`
	Item          string            `json:"item"`
	Quantity      int               `json:"quantity"`
	TotalPrice    types.Money       `json:"total_price"`
	PaymentStatus PaymentStatus     `json:"payment_status"`
	PaidAt        *time.Time        `json:"paid_at,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func (d *DishOrder) IsPaid() bool { return d.PaymentStatus == StatusPaid }

type ListOpts struct {
	Status PaymentStatus
	Limit  int
	Offset int
}

// UnpaidGuests returns the distinct guest names that still have unpaid
// dishes, sorted.
func UnpaidGuests(dishes []*DishOrder) []string {
	seen := make(map[string]struct{})
	for _, d := range dishes {
		if d.IsPaid() || d.GuestName == "" {
			continue
		}
		seen[d.GuestName] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Filter returns the dishes with the given status.
func Filter(dishes []*DishOrder, status PaymentStatus) []*DishOrder {
	out := make([]*DishOrder, 0, len(dishes))
	for _, d := range dishes {
		if d.PaymentStatus == status {
			out = append(out, d)
		}
	}
	return out
}
