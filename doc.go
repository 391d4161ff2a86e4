// Package tablebill is a restaurant table-billing engine for Go applications.
//
// Several diners at one table order independently and settle the shared
// bill with different split strategies. tablebill keeps track of which
// dishes are paid, works out what one diner owes right now, adds the
// platform commission and taxes, and pushes every change to the other
// diners at the table as it happens.
//
// Like any library, it is imported directly. It provides:
//
//   - A dish ledger with idempotent, race-safe "mark paid" updates
//   - Table summaries recomputed from the ledger on every read
//   - Split strategies: full bill, own items, equal shares, chosen amount, selected items
//   - Tiered commission with IVA and months-without-interest surcharges
//   - Gateway checkout with pending intents, retries and verification redirects
//   - Realtime table rooms with presence and cross-instance bridges
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/tablebill"
//	    "github.com/xraph/tablebill/store/memory"
//	)
//
//	eng := tablebill.New(memory.New(), tablebill.WithGateway(gw))
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Core Concepts
//
// Every call names the table and the diner through a TableSession:
//
//	sess := tablebill.TableSession{TableID: "t-12", RestaurantID: "r-1", ParticipantKey: "ana"}
//
// Diners add dishes to the ledger:
//
//	err := eng.AddDish(ctx, &dish.DishOrder{TableID: "t-12", GuestName: "ana", Item: "tacos", TotalPrice: tablebill.MXN(120_00)})
//
// Resolve answers how much the diner owes under a strategy, and Quote adds
// the commission breakdown and installment options:
//
//	owed, err := eng.Resolve(ctx, sess, split.Params{Strategy: split.EqualShares})
//	quote, err := eng.Quote(ctx, sess, split.Params{Strategy: split.EqualShares}, tip, "visa")
//
// Checkout charges the gateway and records the payment once it succeeds:
//
//	res, err := eng.Checkout(ctx, payment.CheckoutRequest{Session: sess, Params: params, PaymentMethodRef: "tok_visa"})
//
// # Money
//
// All monetary calculations use integer arithmetic. Money holds minor units
// (centavos for MXN) and rates are basis points, rounded half away from
// zero at each step.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	dish_01h2xcejqtf2nbrexx3vqjhp41   // Dish order ID
//	ptx_01h2xcejqtf2nbrexx3vqjhp41    // Payment transaction ID
//	pint_01h455vb4pex5vsknk084sn02q   // Pending payment intent ID
package tablebill
