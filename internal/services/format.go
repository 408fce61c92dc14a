package services

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatYen renders an amount as yen, e.g. "¥1,000,000". Fractions are
// rounded to the currency's minor unit, which for JPY is none.
func FormatYen(amount decimal.Decimal) string {
	cur := money.GetCurrency(money.JPY)
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return money.New(minor.IntPart(), money.JPY).Display()
}
