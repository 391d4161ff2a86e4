package commission

import (
	"math"
	"reflect"
	"testing"

	"github.com/xraph/tablebill/types"
)

func TestComputeTierEdges(t *testing.T) {
	tests := []struct {
		name       string
		base       types.Money
		tier       string
		client     int64
		restaurant int64
	}{
		{"Just below 100", types.MXN(99_99), "under-100", 250, 150},
		{"Exactly 100", types.MXN(100_00), "100-to-150", 200, 150},
		{"Just below 150", types.MXN(149_99), "100-to-150", 300, 225},
		{"Exactly 150", types.MXN(150_00), "150-and-up", 225, 225},
		{"Small", types.MXN(80_00), "under-100", 200, 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Compute(tt.base, types.MXN(0))
			if b.Tier != tt.tier {
				t.Errorf("Tier: got %s, want %s", b.Tier, tt.tier)
			}
			if b.PlatformCommissionClientPortion.Amount != tt.client {
				t.Errorf("Client portion: got %d, want %d", b.PlatformCommissionClientPortion.Amount, tt.client)
			}
			if b.PlatformCommissionRestaurantPortion.Amount != tt.restaurant {
				t.Errorf("Restaurant portion: got %d, want %d", b.PlatformCommissionRestaurantPortion.Amount, tt.restaurant)
			}
		})
	}
}

func TestComputeTipCountsTowardTier(t *testing.T) {
	b := Compute(types.MXN(90_00), types.MXN(10_00))
	if b.Tier != "100-to-150" {
		t.Errorf("Tier: got %s, want 100-to-150", b.Tier)
	}
}

func TestComputeBreakdown(t *testing.T) {
	b := Compute(types.MXN(100_00), types.MXN(10_00))

	want := map[string]int64{
		"TipIVA":           1_60,
		"Client":           2_20, // 2.00% of 110.00
		"Restaurant":       1_65, // 1.50% of 110.00
		"Total":            3_85,
		"IVAClient":        35, // 16% of 2.20
		"IVARestaurant":    26, // 16% of 1.65 = 0.264
		"ClientCharge":     2_55,
		"RestaurantCharge": 1_91,
		"Charged":          112_55,
	}
	got := map[string]int64{
		"TipIVA":           b.TipIVA.Amount,
		"Client":           b.PlatformCommissionClientPortion.Amount,
		"Restaurant":       b.PlatformCommissionRestaurantPortion.Amount,
		"Total":            b.PlatformCommissionTotal.Amount,
		"IVAClient":        b.IVAOnClientPortion.Amount,
		"IVARestaurant":    b.IVAOnRestaurantPortion.Amount,
		"ClientCharge":     b.ClientCharge.Amount,
		"RestaurantCharge": b.RestaurantCharge.Amount,
		"Charged":          b.TotalAmountCharged.Amount,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s: got %d, want %d", k, got[k], v)
		}
	}
	if math.Abs(b.EffectiveRate-3.5) > 1e-9 {
		t.Errorf("EffectiveRate: got %v, want 3.5", b.EffectiveRate)
	}
}

func TestComputeInvariants(t *testing.T) {
	for _, base := range []int64{0, 1, 50_00, 99_99, 100_00, 123_45, 149_99, 150_00, 1000_00} {
		for _, tip := range []int64{0, 5_00, 17_33} {
			b := Compute(types.MXN(base), types.MXN(tip))

			if got := b.PlatformCommissionClientPortion.Add(b.PlatformCommissionRestaurantPortion); !got.Equal(b.PlatformCommissionTotal) {
				t.Errorf("base=%d tip=%d: portions %v != total %v", base, tip, got, b.PlatformCommissionTotal)
			}
			if got := b.PlatformCommissionClientPortion.Add(b.IVAOnClientPortion); !got.Equal(b.ClientCharge) {
				t.Errorf("base=%d tip=%d: client charge %v != %v", base, tip, b.ClientCharge, got)
			}
			if got := types.MXN(base + tip).Add(b.ClientCharge); !got.Equal(b.TotalAmountCharged) {
				t.Errorf("base=%d tip=%d: total charged %v != %v", base, tip, b.TotalAmountCharged, got)
			}
		}
	}
}

func TestComputeZeroDenominator(t *testing.T) {
	b := Compute(types.MXN(0), types.MXN(0))
	if b.EffectiveRate != 0 {
		t.Errorf("EffectiveRate: got %v, want 0", b.EffectiveRate)
	}
	if !b.TotalAmountCharged.IsZero() {
		t.Errorf("TotalAmountCharged: got %v, want 0", b.TotalAmountCharged)
	}
}

func TestComputeDeterministic(t *testing.T) {
	a := Compute(types.MXN(123_45), types.MXN(12_34))
	b := Compute(types.MXN(123_45), types.MXN(12_34))
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Compute is not deterministic: %+v != %+v", a, b)
	}
}

func TestComputeTipCurrencyDefaultsToBase(t *testing.T) {
	b := Compute(types.MXN(10_00), types.Money{})
	if b.TipAmount.Currency != "mxn" {
		t.Errorf("Tip currency: got %q, want mxn", b.TipAmount.Currency)
	}
}

func TestCustomTiers(t *testing.T) {
	c := New(
		WithTiers(
			Tier{Name: "flat", MinAmount: 0, ClientBps: 100, RestaurantBps: 100},
		),
		WithIVA(0),
	)
	b := c.Compute(types.MXN(200_00), types.MXN(0))
	if b.PlatformCommissionTotal.Amount != 4_00 {
		t.Errorf("Total: got %d, want 400", b.PlatformCommissionTotal.Amount)
	}
	if !b.IVAOnClientPortion.IsZero() {
		t.Errorf("IVA: got %v, want 0", b.IVAOnClientPortion)
	}
}

func TestEmptyTiersKeepDefaults(t *testing.T) {
	c := New(WithTiers())
	if got := len(c.Tiers()); got != len(DefaultTiers) {
		t.Fatalf("Tiers: got %d, want %d", got, len(DefaultTiers))
	}
	if got, want := c.Compute(types.MXN(80_00), types.MXN(0)), Compute(types.MXN(80_00), types.MXN(0)); !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestComputeMismatchedTipCurrency(t *testing.T) {
	b := Compute(types.MXN(100_00), types.Money{Amount: 10_00, Currency: "usd"})
	if b.BaseAmount.Currency != "mxn" {
		t.Errorf("Base currency: got %q, want mxn", b.BaseAmount.Currency)
	}
	if !b.TotalAmountCharged.IsZero() || !b.PlatformCommissionTotal.IsZero() {
		t.Errorf("got %+v, want a zero breakdown", b)
	}
}

func BenchmarkCompute(b *testing.B) {
	base := types.MXN(123_45)
	tip := types.MXN(12_34)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Compute(base, tip)
	}
}
