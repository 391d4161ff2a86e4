// Package commission computes the platform commission, taxes and installment
// surcharges charged on top of a table payment.
//
// Every function here is pure and deterministic: identical inputs always
// yield identical breakdowns. Amounts are integer minor units and rates are
// basis points, rounded half away from zero at each step.
package commission

import (
	"sort"

	"github.com/xraph/tablebill/types"
)

// IVABasisPoints is the flat value-added tax rate (16%).
const IVABasisPoints int64 = 1600

// Tier is one commission bracket. A tier applies when base+tip is at least
// MinAmount minor units and below the next tier's MinAmount.
type Tier struct {
	Name          string `json:"name"`
	MinAmount     int64  `json:"min_amount"`
	ClientBps     int64  `json:"client_bps"`
	RestaurantBps int64  `json:"restaurant_bps"`
}

// TotalBps is the full commission rate of the tier.
func (t Tier) TotalBps() int64 { return t.ClientBps + t.RestaurantBps }

// DefaultTiers are the brackets with edges at $100 and $150.
var DefaultTiers = []Tier{
	{Name: "under-100", MinAmount: 0, ClientBps: 250, RestaurantBps: 150},
	{Name: "100-to-150", MinAmount: 100_00, ClientBps: 200, RestaurantBps: 150},
	{Name: "150-and-up", MinAmount: 150_00, ClientBps: 150, RestaurantBps: 150},
}

// Breakdown is the full derived charge for one payment.
type Breakdown struct {
	BaseAmount                          types.Money `json:"base_amount"`
	TipAmount                           types.Money `json:"tip_amount"`
	TipIVA                              types.Money `json:"tip_iva"`
	PlatformCommissionTotal             types.Money `json:"platform_commission_total"`
	PlatformCommissionClientPortion     types.Money `json:"platform_commission_client_portion"`
	PlatformCommissionRestaurantPortion types.Money `json:"platform_commission_restaurant_portion"`
	IVAOnClientPortion                  types.Money `json:"iva_on_client_portion"`
	IVAOnRestaurantPortion              types.Money `json:"iva_on_restaurant_portion"`
	ClientCharge                        types.Money `json:"client_charge"`
	RestaurantCharge                    types.Money `json:"restaurant_charge"`
	TotalAmountCharged                  types.Money `json:"total_amount_charged"`
	EffectiveRate                       float64     `json:"effective_rate"`
	Tier                                string      `json:"tier"`
}

// Calculator holds the rate tables. The zero value is not usable; build one
// with New. The package-level functions use Default.
type Calculator struct {
	tiers         []Tier
	ivaBps        int64
	premiumBrands map[string]bool
	premiumRates  []InstallmentRate
	standardRates []InstallmentRate
	brandAliases  map[string]string
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithTiers replaces the commission brackets. An empty list keeps the
// current ones.
func WithTiers(tiers ...Tier) Option {
	return func(c *Calculator) {
		if len(tiers) == 0 {
			return
		}
		c.tiers = append([]Tier(nil), tiers...)
	}
}

// WithIVA overrides the tax rate in basis points.
func WithIVA(bps int64) Option {
	return func(c *Calculator) { c.ivaBps = bps }
}

// WithInstallmentRates replaces the premium and standard installment tables.
func WithInstallmentRates(premium, standard []InstallmentRate) Option {
	return func(c *Calculator) {
		c.premiumRates = append([]InstallmentRate(nil), premium...)
		c.standardRates = append([]InstallmentRate(nil), standard...)
	}
}

// WithPremiumBrands sets which card brands use the premium table.
func WithPremiumBrands(brands ...string) Option {
	return func(c *Calculator) {
		c.premiumBrands = make(map[string]bool, len(brands))
		for _, b := range brands {
			c.premiumBrands[normalizeBrand(b, nil)] = true
		}
	}
}

// New creates a Calculator with the default tables, then applies opts.
func New(opts ...Option) *Calculator {
	c := &Calculator{
		tiers:         append([]Tier(nil), DefaultTiers...),
		ivaBps:        IVABasisPoints,
		premiumBrands: map[string]bool{BrandAmex: true},
		premiumRates:  append([]InstallmentRate(nil), PremiumRates...),
		standardRates: append([]InstallmentRate(nil), StandardRates...),
		brandAliases: map[string]string{
			"american express": BrandAmex,
			"american_express": BrandAmex,
			"americanexpress":  BrandAmex,
			"master card":      BrandMastercard,
			"mc":               BrandMastercard,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	sort.Slice(c.tiers, func(i, j int) bool { return c.tiers[i].MinAmount < c.tiers[j].MinAmount })
	return c
}

// Default is the calculator behind the package-level functions.
var Default = New()

// Compute returns the breakdown for a base amount and tip using Default.
func Compute(base, tip types.Money) Breakdown { return Default.Compute(base, tip) }

// Tiers returns a copy of the configured brackets.
func (c *Calculator) Tiers() []Tier { return append([]Tier(nil), c.tiers...) }

// TierFor returns the bracket that applies to an amount in minor units.
func (c *Calculator) TierFor(amount int64) Tier {
	selected := c.tiers[0]
	for _, t := range c.tiers {
		if amount >= t.MinAmount {
			selected = t
		}
	}
	return selected
}

// Compute returns the breakdown for a base amount and tip. The commission is
// taken on base+tip; IVA applies separately to the tip and to each
// commission portion.
//
// A tip in a different currency than the base cannot be priced; the result
// is then an all-zero breakdown in the base currency.
func (c *Calculator) Compute(base, tip types.Money) Breakdown {
	if tip.Currency == "" {
		tip.Currency = base.Currency
	}
	if base.Currency == "" {
		base.Currency = tip.Currency
	}
	if tip.Currency != base.Currency {
		return zeroBreakdown(base.Currency)
	}

	subtotal := base.Add(tip)
	tier := c.TierFor(subtotal.Amount)

	client := subtotal.ApplyRate(tier.ClientBps)
	restaurant := subtotal.ApplyRate(tier.RestaurantBps)
	commission := client.Add(restaurant)

	ivaClient := client.ApplyRate(c.ivaBps)
	ivaRestaurant := restaurant.ApplyRate(c.ivaBps)
	clientCharge := client.Add(ivaClient)

	return Breakdown{
		BaseAmount:                          base,
		TipAmount:                           tip,
		TipIVA:                              tip.ApplyRate(c.ivaBps),
		PlatformCommissionTotal:             commission,
		PlatformCommissionClientPortion:     client,
		PlatformCommissionRestaurantPortion: restaurant,
		IVAOnClientPortion:                  ivaClient,
		IVAOnRestaurantPortion:              ivaRestaurant,
		ClientCharge:                        clientCharge,
		RestaurantCharge:                    restaurant.Add(ivaRestaurant),
		TotalAmountCharged:                  subtotal.Add(clientCharge),
		EffectiveRate:                       commission.Ratio(subtotal) * 100,
		Tier:                                tier.Name,
	}
}

func zeroBreakdown(currency string) Breakdown {
	zero := types.Zero(currency)
	return Breakdown{
		BaseAmount:                          zero,
		TipAmount:                           zero,
		TipIVA:                              zero,
		PlatformCommissionTotal:             zero,
		PlatformCommissionClientPortion:     zero,
		PlatformCommissionRestaurantPortion: zero,
		IVAOnClientPortion:                  zero,
		IVAOnRestaurantPortion:              zero,
		ClientCharge:                        zero,
		RestaurantCharge:                    zero,
		TotalAmountCharged:                  zero,
	}
}
