package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got),
		append([]interface{}{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func TestCalculateCommission(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		broker string
		want   string
	}{
		{"discount smallest tier", 50000, BrokerDiscount, "55"},
		{"discount tier boundary", 50001, BrokerDiscount, "99"},
		{"discount 200k", 200000, BrokerDiscount, "115"},
		{"discount 1m", 1000000, BrokerDiscount, "535"},
		{"discount 30m", 30000000, BrokerDiscount, "1013"},
		{"discount above 30m", 30000001, BrokerDiscount, "1070"},
		{"standard 1%", 100000, BrokerStandard, "1000"},
		{"standard floored at tier below", 100001, BrokerStandard, "1000"},
		{"standard 0.75%", 1000000, BrokerStandard, "7500"},
		{"standard 0.5%", 5000000, BrokerStandard, "25000"},
		{"standard open tier", 200000000, BrokerStandard, "200000"},
		{"app is free", 5000000, BrokerApp, "0"},
		{"unknown broker uses standard", 50000, "mystery", "500"},
		{"zero amount", 0, BrokerDiscount, "0"},
		{"negative amount", -10, BrokerStandard, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertDecimal(t, tt.want, CalculateCommission(decimal.NewFromInt(tt.amount), tt.broker))
		})
	}
}

func TestCommissionNeverDecreasesWithAmount(t *testing.T) {
	for _, broker := range []string{BrokerStandard, BrokerDiscount, BrokerApp} {
		prev := decimal.Zero
		for amount := int64(1000); amount <= 60000000; amount += 997 * 13 {
			fee := CalculateCommission(decimal.NewFromInt(amount), broker)
			assert.False(t, fee.LessThan(prev), "%s: fee fell at %d (%s < %s)", broker, amount, fee, prev)
			prev = fee
		}
	}
}

func TestValidBroker(t *testing.T) {
	assert.True(t, ValidBroker(BrokerStandard))
	assert.True(t, ValidBroker(BrokerDiscount))
	assert.True(t, ValidBroker(BrokerApp))
	assert.False(t, ValidBroker(""))
	assert.False(t, ValidBroker("Discount"))
}

func TestCalculateJapaneseTax(t *testing.T) {
	tax := CalculateJapaneseTax(decimal.NewFromInt(100000), false)
	assertDecimal(t, "15315", tax.IncomeTax)
	assertDecimal(t, "5000", tax.ResidentTax)
	assertDecimal(t, "315", tax.SpecialTax)
	assertDecimal(t, "20315", tax.Total)
	assertDecimal(t, "79685", tax.ProfitAfterTax)
}

func TestCalculateJapaneseTaxExemptions(t *testing.T) {
	nisa := CalculateJapaneseTax(decimal.NewFromInt(100000), true)
	assertDecimal(t, "0", nisa.Total)
	assertDecimal(t, "100000", nisa.ProfitAfterTax)

	loss := CalculateJapaneseTax(decimal.NewFromInt(-5000), false)
	assertDecimal(t, "0", loss.Total)
	assertDecimal(t, "-5000", loss.ProfitAfterTax)
}

func TestFormatYen(t *testing.T) {
	assert.Equal(t, "¥1,000,000", FormatYen(decimal.NewFromInt(1000000)))
	assert.Equal(t, "¥0", FormatYen(decimal.Zero))
	assert.Equal(t, "¥1,001", FormatYen(decimal.RequireFromString("1000.6")))
}
