package tablebill_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/tablebill"
	"github.com/xraph/tablebill/commission"
	"github.com/xraph/tablebill/dish"
	"github.com/xraph/tablebill/gateway"
	"github.com/xraph/tablebill/payment"
	"github.com/xraph/tablebill/split"
	"github.com/xraph/tablebill/store/memory"
	"github.com/xraph/tablebill/types"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Quick Start example from README
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		eng := tablebill.New(store,
			tablebill.WithLogger(slog.Default()),
			tablebill.WithGateway(gateway.NewSandbox()),
			tablebill.WithIntentTTL(15*time.Minute),
		)

		ctx := context.Background()
		if err := eng.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer eng.Stop()

		// The POS adds dishes as they are ordered
		for _, d := range []*dish.DishOrder{
			{TableID: "table-7", RestaurantID: "rest_1", GuestName: "Ana", Item: "Tacos al pastor", TotalPrice: types.MXN(18000)},
			{TableID: "table-7", RestaurantID: "rest_1", GuestName: "Beto", Item: "Enchiladas", TotalPrice: types.MXN(15000)},
		} {
			if err := eng.AddDish(ctx, d); err != nil {
				t.Fatal(err)
			}
		}

		sess := tablebill.TableSession{TableID: "table-7", RestaurantID: "rest_1", ParticipantKey: "Ana"}

		// Price Ana's dishes with a tip
		quote, err := eng.Quote(ctx, sess, split.Params{Strategy: split.UserItems}, types.MXN(2000), commission.BrandVisa)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("Ana owes %s, charged %s\n", quote.BaseAmount, quote.Breakdown.TotalAmountCharged)

		// Charge through the gateway
		res, err := eng.Checkout(ctx, payment.CheckoutRequest{
			Session:          sess,
			Params:           split.Params{Strategy: split.UserItems},
			Tip:              types.MXN(2000),
			PaymentMethodRef: "tok_visa",
		})
		if err != nil {
			t.Fatal(err)
		}
		if res.Status != payment.CheckoutSucceeded {
			t.Fatalf("unexpected status %s", res.Status)
		}

		// Beto pays the rest
		receipt, err := eng.RecordPayment(ctx, payment.Request{
			Session:          tablebill.TableSession{TableID: "table-7", RestaurantID: "rest_1", ParticipantKey: "Beto"},
			Params:           split.Params{Strategy: split.FullBill},
			PaymentMethodRef: "cash",
		})
		if err != nil {
			t.Fatal(err)
		}
		if !receipt.Settled {
			t.Fatalf("expected table to settle, remaining %s", receipt.Summary.RemainingAmount)
		}
	})

	// Money type examples
	t.Run("MoneyExamples", func(t *testing.T) {
		// Constructors
		_ = types.MXN(18000)  // $180.00
		_ = types.USD(4900)   // $49.00
		_ = types.Zero("mxn") // $0.00

		// Arithmetic
		m1 := types.MXN(100_00)
		m2 := types.MXN(200_00)
		_ = m1.Add(m2)             // $300.00
		_ = m1.ApplyRate(250)      // $2.50
		_ = m1.DivideRound(3)      // $33.33
		_ = types.SumOf("mxn", m1) // $100.00

		// Comparison
		if m1.LessThan(m2) {
			// m1 is less than m2
		}

		// Formatting
		_ = m1.String()      // "$100.00"
		_ = m1.FormatMajor() // "100.00"
	})

	// Commission examples
	t.Run("CommissionExamples", func(t *testing.T) {
		b := commission.Compute(types.MXN(100_00), types.MXN(10_00))
		if b.Tier != "100-to-150" {
			t.Fatalf("unexpected tier %s", b.Tier)
		}
		for _, opt := range commission.InstallmentOptions(b.TotalAmountCharged, commission.BrandAmex) {
			_ = opt.MonthlyPayment
		}
	})
}
