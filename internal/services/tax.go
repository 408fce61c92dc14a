package services

import "github.com/shopspring/decimal"

var (
	incomeTaxRate   = decimal.RequireFromString("0.15315") // 15% + 0.315% reconstruction surtax
	residentTaxRate = decimal.RequireFromString("0.05")
	specialTaxRate  = decimal.RequireFromString("0.00315")
)

// TaxBreakdown is the capital gains tax on a realized profit.
// SpecialTax is the reconstruction surtax already contained in IncomeTax; it
// is reported separately and not added to Total.
type TaxBreakdown struct {
	IncomeTax      decimal.Decimal `json:"incomeTax"`
	ResidentTax    decimal.Decimal `json:"residentTax"`
	SpecialTax     decimal.Decimal `json:"specialTax"`
	Total          decimal.Decimal `json:"total"`
	ProfitAfterTax decimal.Decimal `json:"profitAfterTax"`
}

// CalculateJapaneseTax computes income and resident tax on a profit. Profits
// inside a NISA account and non-positive profits are not taxed.
func CalculateJapaneseTax(profit decimal.Decimal, isNISA bool) TaxBreakdown {
	if isNISA || !profit.IsPositive() {
		return TaxBreakdown{
			IncomeTax:      decimal.Zero,
			ResidentTax:    decimal.Zero,
			SpecialTax:     decimal.Zero,
			Total:          decimal.Zero,
			ProfitAfterTax: profit,
		}
	}

	incomeTax := profit.Mul(incomeTaxRate)
	residentTax := profit.Mul(residentTaxRate)
	total := incomeTax.Add(residentTax)

	return TaxBreakdown{
		IncomeTax:      incomeTax,
		ResidentTax:    residentTax,
		SpecialTax:     profit.Mul(specialTaxRate),
		Total:          total,
		ProfitAfterTax: profit.Sub(total),
	}
}
