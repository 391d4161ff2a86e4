package dish

import (
	"reflect"
	"testing"

	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/types"
)

func newDish(guest string, price int64, status PaymentStatus) *DishOrder {
	return &DishOrder{
		ID:            id.NewDishOrderID(),
		TableID:       "t1",
		GuestName:     guest,
		Item:          "taco",
		Quantity:      1,
		TotalPrice:    types.MXN(price),
		PaymentStatus: status,
	}
}

func TestCriteriaMatches(t *testing.T) {
	ana := newDish("ana", 50_00, StatusNotPaid)
	beto := newDish("beto", 30_00, StatusNotPaid)
	paid := newDish("ana", 10_00, StatusPaid)

	tests := []struct {
		name     string
		criteria Criteria
		dish     *DishOrder
		want     bool
	}{
		{"All unpaid matches unpaid", AllUnpaid(), ana, true},
		{"All unpaid skips paid", AllUnpaid(), paid, false},
		{"By id hit", ByIDs(ana.ID), ana, true},
		{"By id miss", ByIDs(ana.ID), beto, false},
		{"By id skips paid", ByIDs(paid.ID), paid, false},
		{"By guest hit", ByGuests("beto"), beto, true},
		{"By guest miss", ByGuests("beto"), ana, false},
		{"By guest skips paid", ByGuests("ana"), paid, false},
		{"Empty ids match nothing", ByIDs(), ana, false},
		{"Empty guests match nothing", ByGuests(), ana, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.criteria.Matches(tt.dish); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCriteriaValidate(t *testing.T) {
	for _, c := range []Criteria{AllUnpaid(), ByIDs(), ByGuests("x")} {
		if err := c.Validate(); err != nil {
			t.Errorf("Validate(%s) = %v, want nil", c.Kind, err)
		}
	}

	err := Criteria{Kind: "everything"}.Validate()
	if _, ok := err.(types.ValidationError); !ok {
		t.Errorf("Validate(unknown) = %v, want ValidationError", err)
	}
}

func TestCriteriaIDStrings(t *testing.T) {
	a := id.NewDishOrderID()
	got := ByIDs(a, id.Nil).IDStrings()
	if !reflect.DeepEqual(got, []string{a.String()}) {
		t.Errorf("IDStrings() = %v", got)
	}
}

func TestUnpaidGuests(t *testing.T) {
	dishes := []*DishOrder{
		newDish("carla", 1_00, StatusNotPaid),
		newDish("ana", 1_00, StatusNotPaid),
		newDish("ana", 1_00, StatusNotPaid),
		newDish("beto", 1_00, StatusPaid),
		newDish("", 1_00, StatusNotPaid),
	}

	got := UnpaidGuests(dishes)
	want := []string{"ana", "carla"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UnpaidGuests() = %v, want %v", got, want)
	}
}

func TestFilter(t *testing.T) {
	dishes := []*DishOrder{
		newDish("ana", 1_00, StatusNotPaid),
		newDish("beto", 1_00, StatusPaid),
		newDish("carla", 1_00, StatusNotPaid),
	}

	if got := len(Filter(dishes, StatusNotPaid)); got != 2 {
		t.Errorf("unpaid: got %d, want 2", got)
	}
	if got := len(Filter(dishes, StatusPaid)); got != 1 {
		t.Errorf("paid: got %d, want 1", got)
	}
}
