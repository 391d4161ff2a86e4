package split

import (
	"slices"

	"github.com/xraph/tablebill/dish"
	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/summary"
	"github.com/xraph/tablebill/types"
)

// Strategy is the rule used to compute what one diner owes.
type Strategy string

const (
	FullBill     Strategy = "full-bill"
	UserItems    Strategy = "user-items"
	EqualShares  Strategy = "equal-shares"
	ChooseAmount Strategy = "choose-amount"
	SelectItems  Strategy = "select-items"
)

// Strategies lists every supported strategy.
var Strategies = []Strategy{FullBill, UserItems, EqualShares, ChooseAmount, SelectItems}

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	for _, known := range Strategies {
		if s == known {
			return true
		}
	}
	return false
}

// Params are the caller-supplied strategy parameters.
type Params struct {
	Strategy Strategy         `json:"strategy"`
	Amount   types.Money      `json:"amount"`
	DishIDs  []id.DishOrderID `json:"dish_ids,omitempty"`
}

// Input is everything Resolve needs. It must come from one fresh read of the
// ledger taken right before the call.
type Input struct {
	Summary        summary.TableSummary
	Dishes         []*dish.DishOrder
	Splits         []*SplitPayment
	ParticipantKey string
	Params         Params
}

// Resolve computes the base amount the participant owes under the chosen
// strategy. It is a pure function of its input.
func Resolve(in Input) (types.Money, error) {
	remaining := in.Summary.RemainingAmount
	zero := types.Zero(remaining.Currency)

	switch in.Params.Strategy {
	case FullBill:
		return remaining.Max(zero), nil

	case UserItems:
		if in.ParticipantKey == "" {
			return zero, types.Invalid("participant", "user-items requires a participant")
		}
		owed := zero
		for _, d := range in.Dishes {
			if !d.IsPaid() && d.GuestName == in.ParticipantKey {
				owed = owed.Add(d.TotalPrice)
			}
		}
		return owed, nil

	case EqualShares:
		count := ParticipantCount(in.Dishes, in.Splits)
		if mode, active := ActiveSession(in.Splits); active {
			if mode != ModeEqualShares {
				return zero, types.Invalid("strategy", "a %s session is open at this table", mode)
			}
			if !hasPendingShare(in.Splits, in.ParticipantKey) {
				return zero, types.Invalid("participant", "%q has no pending share at this table", in.ParticipantKey)
			}
		} else if in.ParticipantKey != "" && !slices.Contains(dish.UnpaidGuests(in.Dishes), in.ParticipantKey) {
			// The caller joins the session their payment opens.
			count++
		}
		if count <= 0 || !remaining.IsPositive() {
			return zero, nil
		}
		return remaining.DivideRound(int64(count)), nil

	case ChooseAmount:
		amount := in.Params.Amount
		if amount.Currency == "" {
			amount.Currency = remaining.Currency
		}
		if amount.Currency != remaining.Currency {
			return zero, types.Invalid("amount", "currency %s does not match table currency %s",
				amount.Currency, remaining.Currency)
		}
		if !amount.IsPositive() {
			return zero, types.Invalid("amount", "must be greater than zero")
		}
		if amount.GreaterThan(remaining) {
			return zero, types.Invalid("amount", "%s exceeds remaining %s", amount, remaining)
		}
		return amount, nil

	case SelectItems:
		selected := dish.ByIDs(in.Params.DishIDs...)
		owed := zero
		for _, d := range in.Dishes {
			if selected.Matches(d) {
				owed = owed.Add(d.TotalPrice)
			}
		}
		return owed, nil

	default:
		return zero, types.Invalid("strategy", "unknown strategy %q", in.Params.Strategy)
	}
}

// ParticipantCount is the divisor for equal shares: the pending entries of an
// open equal-shares session, otherwise the distinct guests with unpaid dishes.
func ParticipantCount(dishes []*dish.DishOrder, splits []*SplitPayment) int {
	if mode, ok := ActiveSession(splits); ok && mode == ModeEqualShares {
		return len(Pending(splits, ModeEqualShares))
	}
	return len(dish.UnpaidGuests(dishes))
}

func hasPendingShare(splits []*SplitPayment, participantKey string) bool {
	for _, e := range Pending(splits, ModeEqualShares) {
		if e.ParticipantKey == participantKey {
			return true
		}
	}
	return false
}
