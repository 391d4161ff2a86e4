package commission

import (
	"testing"

	"github.com/xraph/tablebill/types"
)

func TestInstallmentStandardThreeMonths(t *testing.T) {
	opt, ok := Default.FindInstallment(types.MXN(1000_00), BrandVisa, 3)
	if !ok {
		t.Fatal("expected 3-month option for 1000.00")
	}

	tests := []struct {
		name string
		got  types.Money
		want types.Money
	}{
		{"SurchargeTotal", opt.SurchargeTotal, types.MXN(35_00)},
		{"IVAOnSurcharge", opt.IVAOnSurcharge, types.MXN(5_60)},
		{"TotalWithSurcharge", opt.TotalWithSurcharge, types.MXN(1040_60)},
		{"MonthlyPayment", opt.MonthlyPayment, types.MXN(346_87)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.got.Equal(tt.want) {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
	if opt.Rate != 3.5 {
		t.Errorf("Rate: got %v, want 3.5", opt.Rate)
	}
}

func TestInstallmentMinimumExcludes(t *testing.T) {
	tests := []struct {
		name   string
		total  types.Money
		brand  string
		months []int
	}{
		{"Standard below every minimum", types.MXN(299_99), BrandVisa, []int{}},
		{"Standard at 3-month minimum", types.MXN(300_00), BrandMastercard, []int{3}},
		{"Standard 1000", types.MXN(1000_00), BrandVisa, []int{3, 6, 9}},
		{"Standard 2000", types.MXN(2000_00), BrandVisa, []int{3, 6, 9, 12, 18}},
		{"Unknown brand uses standard", types.MXN(700_00), "carnet", []int{3, 6}},
		{"Premium has no minimum", types.MXN(10_00), BrandAmex, []int{3, 6, 9, 12, 15, 18, 21, 24}},
		{"Premium alias", types.MXN(10_00), "American Express", []int{3, 6, 9, 12, 15, 18, 21, 24}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := InstallmentOptions(tt.total, tt.brand)
			if len(opts) != len(tt.months) {
				t.Fatalf("got %d options, want %d", len(opts), len(tt.months))
			}
			for i, o := range opts {
				if o.Months != tt.months[i] {
					t.Errorf("option %d: got %d months, want %d", i, o.Months, tt.months[i])
				}
				if o.MinAmount.Amount > tt.total.Amount {
					t.Errorf("option %d: min %v above total %v", i, o.MinAmount, tt.total)
				}
			}
		})
	}
}

func TestFindInstallmentUnavailable(t *testing.T) {
	if _, ok := Default.FindInstallment(types.MXN(500_00), BrandVisa, 12); ok {
		t.Error("12 months must not be available for 500.00 on a standard brand")
	}
	if _, ok := Default.FindInstallment(types.MXN(500_00), BrandVisa, 7); ok {
		t.Error("7 months is not in any table")
	}
}

func TestIsPremium(t *testing.T) {
	c := New(WithPremiumBrands("visa"))
	if !c.IsPremium(" VISA ") {
		t.Error("visa should be premium after WithPremiumBrands")
	}
	if c.IsPremium(BrandAmex) {
		t.Error("amex should not be premium once brands are replaced")
	}
}
