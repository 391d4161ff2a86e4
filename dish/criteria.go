package dish

import (
	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/types"
)

// CriteriaKind selects which unpaid dishes a MarkPaid call targets.
type CriteriaKind string

const (
	CriteriaIDs       CriteriaKind = "ids"
	CriteriaGuests    CriteriaKind = "guests"
	CriteriaAllUnpaid CriteriaKind = "all_unpaid"
)

// Criteria is exactly one of: an explicit id set, a set of guest names, or
// every unpaid dish at the table. Build it with ByIDs, ByGuests or AllUnpaid.
type Criteria struct {
	Kind   CriteriaKind     `json:"kind"`
	IDs    []id.DishOrderID `json:"ids,omitempty"`
	Guests []string         `json:"guests,omitempty"`
}

func ByIDs(ids ...id.DishOrderID) Criteria {
	return Criteria{Kind: CriteriaIDs, IDs: ids}
}

func ByGuests(names ...string) Criteria {
	return Criteria{Kind: CriteriaGuests, Guests: names}
}

func AllUnpaid() Criteria {
	return Criteria{Kind: CriteriaAllUnpaid}
}

// Validate rejects unknown kinds. Empty id or guest sets are valid and
// simply match nothing.
func (c Criteria) Validate() error {
	switch c.Kind {
	case CriteriaIDs, CriteriaGuests, CriteriaAllUnpaid:
		return nil
	default:
		return types.Invalid("criteria", "unknown kind %q", c.Kind)
	}
}

// Matches reports whether an unpaid dish is targeted by c. Paid dishes never
// match, which is what makes MarkPaid idempotent.
func (c Criteria) Matches(d *DishOrder) bool {
	if d.IsPaid() {
		return false
	}
	switch c.Kind {
	case CriteriaAllUnpaid:
		return true
	case CriteriaIDs:
		for _, dishID := range c.IDs {
			if dishID.String() == d.ID.String() {
				return true
			}
		}
	case CriteriaGuests:
		for _, name := range c.Guests {
			if name == d.GuestName {
				return true
			}
		}
	}
	return false
}

// IDStrings returns the criteria ids as strings, skipping nil ids.
func (c Criteria) IDStrings() []string {
	out := make([]string, 0, len(c.IDs))
	for _, dishID := range c.IDs {
		if !dishID.IsNil() {
			out = append(out, dishID.String())
		}
	}
	return out
}
