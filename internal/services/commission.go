package services

import "github.com/shopspring/decimal"

const (
	BrokerStandard = "standard"
	BrokerDiscount = "discount"
	BrokerApp      = "app"
)

// feeTier applies to notional amounts up to and including upTo. A zero upTo
// marks the open-ended last tier. Either fixed or rate is set.
type feeTier struct {
	upTo  decimal.Decimal
	fixed decimal.Decimal
	rate  decimal.Decimal
}

func fixedTier(upTo, fee int64) feeTier {
	return feeTier{upTo: decimal.NewFromInt(upTo), fixed: decimal.NewFromInt(fee)}
}

func rateTier(upTo int64, rate string) feeTier {
	return feeTier{upTo: decimal.NewFromInt(upTo), rate: decimal.RequireFromString(rate)}
}

// discountTiers follows the flat per-trade schedule of online brokers.
var discountTiers = []feeTier{
	fixedTier(50000, 55),
	fixedTier(100000, 99),
	fixedTier(200000, 115),
	fixedTier(500000, 275),
	fixedTier(1000000, 535),
	fixedTier(1500000, 640),
	fixedTier(30000000, 1013),
	fixedTier(0, 1070),
}

var standardTiers = []feeTier{
	rateTier(100000, "0.01"),
	rateTier(1000000, "0.0075"),
	rateTier(5000000, "0.005"),
	rateTier(10000000, "0.0025"),
	rateTier(0, "0.001"),
}

// ValidBroker reports whether b names a known fee schedule.
func ValidBroker(b string) bool {
	switch b {
	case BrokerStandard, BrokerDiscount, BrokerApp:
		return true
	}
	return false
}

// CalculateCommission returns the fee charged for a trade of the given
// notional amount. Unknown brokers use the standard schedule.
func CalculateCommission(amount decimal.Decimal, broker string) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}

	switch broker {
	case BrokerApp:
		return decimal.Zero
	case BrokerDiscount:
		return lookupTier(discountTiers, amount)
	default:
		return lookupTier(standardTiers, amount)
	}
}

// lookupTier finds the tier for amount. Percentage tiers never charge less
// than the highest fee of the tier below, which keeps the schedule
// non-decreasing across tier boundaries.
func lookupTier(tiers []feeTier, amount decimal.Decimal) decimal.Decimal {
	floor := decimal.Zero
	for _, t := range tiers {
		if !t.upTo.IsZero() && amount.GreaterThan(t.upTo) {
			floor = t.fee(t.upTo)
			continue
		}
		return decimal.Max(t.fee(amount), floor)
	}
	return floor
}

func (t feeTier) fee(amount decimal.Decimal) decimal.Decimal {
	if !t.rate.IsZero() {
		return amount.Mul(t.rate)
	}
	return t.fixed
}
