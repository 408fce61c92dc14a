package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/souta-pqr/money-suppli/internal/models"
)

func historyOf(start time.Time, step time.Duration, values ...int64) []models.HistoryPoint {
	points := make([]models.HistoryPoint, len(values))
	for i, v := range values {
		points[i] = models.HistoryPoint{Date: start.Add(time.Duration(i) * step), Value: decimal.NewFromInt(v)}
	}
	return points
}

func TestCalculateReturn(t *testing.T) {
	assert.InDelta(t, 10.0, CalculateReturn(decimal.NewFromInt(100), decimal.NewFromInt(110)), 1e-9)
	assert.InDelta(t, -25.0, CalculateReturn(decimal.NewFromInt(200), decimal.NewFromInt(150)), 1e-9)
	assert.Equal(t, 0.0, CalculateReturn(decimal.Zero, decimal.NewFromInt(150)))
}

func TestCalculateAnnualizedReturn(t *testing.T) {
	assert.InDelta(t, 10.0, CalculateAnnualizedReturn(decimal.NewFromInt(100), decimal.NewFromInt(110), 365), 1e-9)
	assert.InDelta(t, 10.0, CalculateAnnualizedReturn(decimal.NewFromInt(100), decimal.NewFromInt(121), 730), 1e-9)
	assert.Equal(t, 0.0, CalculateAnnualizedReturn(decimal.NewFromInt(100), decimal.NewFromInt(121), 0))
}

func TestStatistics(t *testing.T) {
	assert.InDelta(t, 2.5, AverageReturn([]float64{1, 2, 3, 4}), 1e-9)
	assert.Equal(t, 0.0, AverageReturn(nil))
	assert.InDelta(t, 1.2909944, StandardDeviation([]float64{1, 2, 3, 4}), 1e-6)
	assert.Equal(t, 0.0, StandardDeviation([]float64{5}))
	assert.InDelta(t, 2.375, SharpeRatio(10, 0.5, 4), 1e-9)
	assert.Equal(t, 0.0, SharpeRatio(10, 0.5, 0))
}

func TestCalculateAssetAllocation(t *testing.T) {
	p := models.Portfolio{
		Cash: decimal.NewFromInt(500),
		Positions: []models.Position{
			{InstrumentID: "a", Category: models.CategoryStock, Quantity: 3, Price: decimal.NewFromInt(100)},
			{InstrumentID: "b", Category: models.CategoryETF, Quantity: 2, Price: decimal.NewFromInt(100)},
		},
	}

	a := CalculateAssetAllocation(p)
	assert.InDelta(t, 50.0, a.Cash.Percentage, 1e-9)
	assert.InDelta(t, 30.0, a.Stocks.Percentage, 1e-9)
	assert.InDelta(t, 20.0, a.ETFs.Percentage, 1e-9)
	assert.Equal(t, 0.0, a.Funds.Percentage)
	assertDecimal(t, "300", a.Stocks.Amount)
}

func TestCalculateSectorAllocation(t *testing.T) {
	positions := []models.Position{
		{Sector: "金融", Quantity: 1, Price: decimal.NewFromInt(100)},
		{Sector: "テクノロジー", Quantity: 3, Price: decimal.NewFromInt(100)},
		{Sector: "金融", Quantity: 1, Price: decimal.NewFromInt(100)},
		{Quantity: 1, Price: decimal.NewFromInt(100)},
	}

	got := CalculateSectorAllocation(positions)
	require.Len(t, got, 3)
	assert.Equal(t, "テクノロジー", got[0].Sector)
	assert.InDelta(t, 50.0, got[0].Percentage, 1e-9)
	assert.Equal(t, "金融", got[1].Sector)
	assert.Equal(t, "その他", got[2].Sector)

	assert.Empty(t, CalculateSectorAllocation(nil))
}

func TestCalculateRealizedProfitLoss(t *testing.T) {
	p := newTestPortfolio(1000000)
	_, err := Buy(&p, Order{Instrument: testInstrument("7203", 1000), Quantity: 100}, testNow)
	require.NoError(t, err)
	_, err = Sell(&p, Order{Instrument: testInstrument("7203", 1300), Quantity: 50}, testNow)
	require.NoError(t, err)
	_, err = Buy(&p, Order{Instrument: testInstrument("6758", 500), Quantity: 10}, testNow)
	require.NoError(t, err)
	_, err = Sell(&p, Order{Instrument: testInstrument("6758", 400), Quantity: 10}, testNow)
	require.NoError(t, err)

	pl := CalculateRealizedProfitLoss(p.Transactions)
	// 64901 - 100099/2
	assertDecimal(t, "14851.5", pl.Gains)
	// 4000-55 - (5000+55)
	assertDecimal(t, "1110", pl.Losses)
	assertDecimal(t, "13741.5", pl.Net)
}

func TestCalculateUnrealizedProfitLoss(t *testing.T) {
	positions := []models.Position{
		{Quantity: 10, AveragePrice: decimal.NewFromInt(100), Price: decimal.NewFromInt(120)},
		{Quantity: 5, AveragePrice: decimal.NewFromInt(100), Price: decimal.NewFromInt(90)},
	}
	pl := CalculateUnrealizedProfitLoss(positions)
	assertDecimal(t, "200", pl.Gains)
	assertDecimal(t, "50", pl.Losses)
	assertDecimal(t, "150", pl.Net)
}

func TestCalculateCompoundInterest(t *testing.T) {
	r := CalculateCompoundInterest(decimal.NewFromInt(1000000), 5, 10, 1)
	assertDecimal(t, "1628894.63", r.FinalAmount)
	assertDecimal(t, "628894.63", r.Interest)

	zero := CalculateCompoundInterest(decimal.NewFromInt(1000), 0, 10, 0)
	assertDecimal(t, "1000", zero.FinalAmount)
	assertDecimal(t, "0", zero.Interest)
}

func TestRecommendedAllocationFor(t *testing.T) {
	for _, profile := range []string{RiskConservative, RiskModerate, RiskAggressive, "unknown"} {
		a := RecommendedAllocationFor(profile)
		assert.Equal(t, 100, a.Cash+a.Bonds+a.Stocks+a.Alternatives, profile)
	}
	assert.Equal(t, RecommendedAllocationFor(RiskModerate), RecommendedAllocationFor("unknown"))
	assert.Greater(t, RecommendedAllocationFor(RiskAggressive).Stocks, RecommendedAllocationFor(RiskConservative).Stocks)
}

func TestCalculatePerformance(t *testing.T) {
	assert.Equal(t, 0.0, CalculatePerformance(nil, decimal.NewFromInt(100)).DailyChange)

	h := historyOf(testNow, 24*time.Hour, 100, 101, 102, 103, 104, 105, 106, 107, 108)
	perf := CalculatePerformance(h, decimal.NewFromInt(110))

	assert.InDelta(t, CalculateReturn(decimal.NewFromInt(107), decimal.NewFromInt(110)), perf.DailyChange, 1e-9)
	assert.InDelta(t, CalculateReturn(decimal.NewFromInt(101), decimal.NewFromInt(110)), perf.WeeklyChange, 1e-9)
	assert.Equal(t, 0.0, perf.MonthlyChange)
	assertDecimal(t, "10", perf.TotalGain)
	assert.InDelta(t, 10.0, perf.TotalGainPercent, 1e-9)
}

func TestMaxDrawdown(t *testing.T) {
	h := historyOf(testNow, time.Hour, 100, 120, 90, 130, 110)
	assert.InDelta(t, 25.0, MaxDrawdown(h), 1e-9)
	assert.Equal(t, 0.0, MaxDrawdown(nil))
	assert.Equal(t, 0.0, MaxDrawdown(historyOf(testNow, time.Hour, 100, 110, 120)))
}

func TestCalculateRiskMetrics(t *testing.T) {
	assert.Equal(t, RiskMetrics{}, CalculateRiskMetrics(historyOf(testNow, time.Hour, 100), decimal.NewFromInt(100)))

	start := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	h := historyOf(start, 10*24*time.Hour, 100, 105, 110, 99, 120, 125, 130)
	m := CalculateRiskMetrics(h, decimal.NewFromInt(130))

	assert.InDelta(t, 30.0, m.TotalReturn, 1e-9)
	assert.Greater(t, m.AnnualizedReturn, m.TotalReturn)
	assert.InDelta(t, 10.0, m.MaxDrawdown, 1e-9)
	assert.Greater(t, m.StdDev, 0.0)
	assert.InDelta(t, SharpeRatio(m.AnnualizedReturn, RiskFreeRate, m.StdDev), m.SharpeRatio, 1e-9)
}
