package commission

import (
	"strings"

	"github.com/xraph/tablebill/types"
)

// Card brands known to the installment tables.
const (
	BrandAmex       = "amex"
	BrandVisa       = "visa"
	BrandMastercard = "mastercard"
)

// InstallmentRate is one row of a brand rate table. MinAmount is in minor
// units; zero means no minimum.
type InstallmentRate struct {
	Months    int   `json:"months"`
	RateBps   int64 `json:"rate_bps"`
	MinAmount int64 `json:"min_amount"`
}

// PremiumRates apply to premium brands. No minimum amount.
var PremiumRates = []InstallmentRate{
	{Months: 3, RateBps: 425},
	{Months: 6, RateBps: 675},
	{Months: 9, RateBps: 925},
	{Months: 12, RateBps: 1175},
	{Months: 15, RateBps: 1425},
	{Months: 18, RateBps: 1675},
	{Months: 21, RateBps: 1925},
	{Months: 24, RateBps: 2175},
}

// StandardRates apply to every other brand, each gated by a minimum amount.
var StandardRates = []InstallmentRate{
	{Months: 3, RateBps: 350, MinAmount: 300_00},
	{Months: 6, RateBps: 575, MinAmount: 600_00},
	{Months: 9, RateBps: 825, MinAmount: 900_00},
	{Months: 12, RateBps: 1075, MinAmount: 1200_00},
	{Months: 18, RateBps: 1575, MinAmount: 1800_00},
}

// Installment is one available months-without-interest plan for a charge.
type Installment struct {
	Months             int         `json:"months"`
	Rate               float64     `json:"rate"`
	RateBps            int64       `json:"rate_bps"`
	MinAmount          types.Money `json:"min_amount"`
	SurchargeTotal     types.Money `json:"surcharge_total"`
	IVAOnSurcharge     types.Money `json:"iva_on_surcharge"`
	TotalWithSurcharge types.Money `json:"total_with_surcharge"`
	MonthlyPayment     types.Money `json:"monthly_payment"`
}

// InstallmentOptions lists the plans available for total using Default.
func InstallmentOptions(total types.Money, brand string) []Installment {
	return Default.InstallmentOptions(total, brand)
}

// IsPremium reports whether brand uses the premium table.
func (c *Calculator) IsPremium(brand string) bool {
	return c.premiumBrands[normalizeBrand(brand, c.brandAliases)]
}

// InstallmentOptions lists the plans available for the total amount charged.
// Plans whose minimum exceeds total are left out entirely.
func (c *Calculator) InstallmentOptions(total types.Money, brand string) []Installment {
	table := c.standardRates
	if c.IsPremium(brand) {
		table = c.premiumRates
	}

	out := make([]Installment, 0, len(table))
	for _, r := range table {
		if r.Months <= 0 || r.MinAmount > total.Amount {
			continue
		}
		surcharge := total.ApplyRate(r.RateBps)
		iva := surcharge.ApplyRate(c.ivaBps)
		withSurcharge := total.Add(surcharge).Add(iva)

		out = append(out, Installment{
			Months:             r.Months,
			Rate:               float64(r.RateBps) / 100,
			RateBps:            r.RateBps,
			MinAmount:          types.Money{Amount: r.MinAmount, Currency: total.Currency},
			SurchargeTotal:     surcharge,
			IVAOnSurcharge:     iva,
			TotalWithSurcharge: withSurcharge,
			MonthlyPayment:     withSurcharge.DivideRound(int64(r.Months)),
		})
	}
	return out
}

// FindInstallment returns the plan for the given months, if it is available
// for total.
func (c *Calculator) FindInstallment(total types.Money, brand string, months int) (Installment, bool) {
	for _, opt := range c.InstallmentOptions(total, brand) {
		if opt.Months == months {
			return opt, true
		}
	}
	return Installment{}, false
}

func normalizeBrand(brand string, aliases map[string]string) string {
	b := strings.ToLower(strings.TrimSpace(brand))
	if alias, ok := aliases[b]; ok {
		return alias
	}
	return b
}
