// Package summary derives a table's totals from its dishes. Nothing here is
// stored: every TableSummary is computed from the ledger at read time.
package summary

import (
	"github.com/xraph/tablebill/dish"
	"github.com/xraph/tablebill/types"
)

// TableSummary is the derived aggregate of one table.
// RemainingAmount is always TotalAmount - PaidAmount.
type TableSummary struct {
	TableID         string      `json:"table_id"`
	TotalAmount     types.Money `json:"total_amount"`
	PaidAmount      types.Money `json:"paid_amount"`
	RemainingAmount types.Money `json:"remaining_amount"`
	DishCount       int         `json:"dish_count"`
	UnpaidCount     int         `json:"unpaid_count"`
	Participants    []string    `json:"participants"`
}

// Compute aggregates dishes into a TableSummary. credits is money already
// collected against still-unpaid dishes (choose-amount and equal-share
// payments); it counts as paid but never pushes PaidAmount past TotalAmount.
func Compute(tableID, currency string, dishes []*dish.DishOrder, credits types.Money) TableSummary {
	total := types.Zero(currency)
	paid := types.Zero(currency)
	unpaid := 0

	for _, d := range dishes {
		total = total.Add(d.TotalPrice)
		if d.IsPaid() {
			paid = paid.Add(d.TotalPrice)
		} else {
			unpaid++
		}
	}

	if credits.Currency == "" {
		credits = types.Zero(currency)
	}
	paid = paid.Add(credits).Min(total)

	return TableSummary{
		TableID:         tableID,
		TotalAmount:     total,
		PaidAmount:      paid,
		RemainingAmount: total.Subtract(paid),
		DishCount:       len(dishes),
		UnpaidCount:     unpaid,
		Participants:    dish.UnpaidGuests(dishes),
	}
}

// Settled reports whether nothing remains to be paid.
func (s TableSummary) Settled() bool {
	return !s.RemainingAmount.IsPositive()
}
