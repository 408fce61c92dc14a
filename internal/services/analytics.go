package services

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/souta-pqr/money-suppli/internal/models"
)

// RiskFreeRate is the annual risk-free return in percent used for Sharpe ratios.
const RiskFreeRate = 0.5

const (
	RiskConservative = "conservative"
	RiskModerate     = "moderate"
	RiskAggressive   = "aggressive"
)

var hundred = decimal.NewFromInt(100)

// CalculateReturn returns the percentage return from initial to current.
func CalculateReturn(initial, current decimal.Decimal) float64 {
	if initial.IsZero() {
		return 0
	}
	return current.Div(initial).Sub(decimal.NewFromInt(1)).Mul(hundred).InexactFloat64()
}

// CalculateAnnualizedReturn scales the return over daysHeld to a 365-day year.
func CalculateAnnualizedReturn(initial, current decimal.Decimal, daysHeld int) float64 {
	if initial.IsZero() || daysHeld <= 0 {
		return 0
	}
	raw := current.Div(initial).InexactFloat64()
	return (math.Pow(raw, 365/float64(daysHeld)) - 1) * 100
}

func AverageReturn(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	return stat.Mean(returns, nil)
}

// StandardDeviation is the sample standard deviation; fewer than two
// observations give 0.
func StandardDeviation(returns []float64) float64 {
	if len(returns) <= 1 {
		return 0
	}
	return stat.StdDev(returns, nil)
}

func SharpeRatio(portfolioReturn, riskFreeRate, stdDev float64) float64 {
	if stdDev == 0 {
		return 0
	}
	return (portfolioReturn - riskFreeRate) / stdDev
}

type AllocationSlice struct {
	Amount     decimal.Decimal `json:"amount"`
	Percentage float64         `json:"percentage"`
}

type AssetAllocation struct {
	Cash   AllocationSlice `json:"cash"`
	Stocks AllocationSlice `json:"stocks"`
	ETFs   AllocationSlice `json:"etfs"`
	Funds  AllocationSlice `json:"funds"`
}

// CalculateAssetAllocation splits the portfolio's value by category.
func CalculateAssetAllocation(p models.Portfolio) AssetAllocation {
	a := AssetAllocation{
		Cash:   AllocationSlice{Amount: p.Cash},
		Stocks: AllocationSlice{Amount: decimal.Zero},
		ETFs:   AllocationSlice{Amount: decimal.Zero},
		Funds:  AllocationSlice{Amount: decimal.Zero},
	}
	for _, pos := range p.Positions {
		v := pos.MarketValue()
		switch pos.Category {
		case models.CategoryETF:
			a.ETFs.Amount = a.ETFs.Amount.Add(v)
		case models.CategoryFund:
			a.Funds.Amount = a.Funds.Amount.Add(v)
		default:
			a.Stocks.Amount = a.Stocks.Amount.Add(v)
		}
	}

	total := a.Cash.Amount.Add(a.Stocks.Amount).Add(a.ETFs.Amount).Add(a.Funds.Amount)
	if total.IsPositive() {
		for _, s := range []*AllocationSlice{&a.Cash, &a.Stocks, &a.ETFs, &a.Funds} {
			s.Percentage = percentOf(s.Amount, total)
		}
	}
	return a
}

type SectorSlice struct {
	Sector     string          `json:"sector"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage float64         `json:"percentage"`
}

// CalculateSectorAllocation groups position values by sector, largest first.
func CalculateSectorAllocation(positions []models.Position) []SectorSlice {
	if len(positions) == 0 {
		return []SectorSlice{}
	}

	bySector := make(map[string]decimal.Decimal)
	total := decimal.Zero
	for _, pos := range positions {
		sector := pos.Sector
		if sector == "" {
			sector = "その他"
		}
		v := pos.MarketValue()
		bySector[sector] = bySector[sector].Add(v)
		total = total.Add(v)
	}

	result := make([]SectorSlice, 0, len(bySector))
	for sector, amount := range bySector {
		s := SectorSlice{Sector: sector, Amount: amount}
		if total.IsPositive() {
			s.Percentage = percentOf(amount, total)
		}
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		if c := result[i].Amount.Cmp(result[j].Amount); c != 0 {
			return c > 0
		}
		return result[i].Sector < result[j].Sector
	})
	return result
}

type ProfitLoss struct {
	Gains  decimal.Decimal `json:"gains"`
	Losses decimal.Decimal `json:"losses"`
	Net    decimal.Decimal `json:"net"`
}

func newProfitLoss() ProfitLoss {
	return ProfitLoss{Gains: decimal.Zero, Losses: decimal.Zero, Net: decimal.Zero}
}

func (pl *ProfitLoss) add(amount decimal.Decimal) {
	if amount.IsNegative() {
		pl.Losses = pl.Losses.Add(amount.Abs())
	} else {
		pl.Gains = pl.Gains.Add(amount)
	}
	pl.Net = pl.Gains.Sub(pl.Losses)
}

// CalculateRealizedProfitLoss replays the transaction log with the average
// cost method. Costs include buy commissions and proceeds are net of sell
// commissions. Sells larger than the replayed holding are ignored.
func CalculateRealizedProfitLoss(transactions []models.Transaction) ProfitLoss {
	type lot struct {
		quantity int64
		cost     decimal.Decimal
	}
	pl := newProfitLoss()
	holdings := make(map[string]*lot)

	for _, tx := range transactions {
		switch tx.Type {
		case models.TransactionBuy:
			h, ok := holdings[tx.InstrumentID]
			if !ok {
				h = &lot{cost: decimal.Zero}
				holdings[tx.InstrumentID] = h
			}
			h.quantity += tx.Quantity
			h.cost = h.cost.Add(tx.Total)
		case models.TransactionSell:
			h, ok := holdings[tx.InstrumentID]
			if !ok || h.quantity < tx.Quantity || h.quantity == 0 {
				continue
			}
			basis := h.cost.Div(decimal.NewFromInt(h.quantity)).Mul(decimal.NewFromInt(tx.Quantity))
			pl.add(tx.Total.Sub(basis))
			h.quantity -= tx.Quantity
			h.cost = h.cost.Sub(basis)
		}
	}
	return pl
}

// CalculateUnrealizedProfitLoss compares market value with average cost.
func CalculateUnrealizedProfitLoss(positions []models.Position) ProfitLoss {
	pl := newProfitLoss()
	for _, pos := range positions {
		qty := decimal.NewFromInt(pos.Quantity)
		pl.add(pos.Price.Mul(qty).Sub(pos.AveragePrice.Mul(qty)))
	}
	return pl
}

type CompoundResult struct {
	Principal   decimal.Decimal `json:"principal"`
	FinalAmount decimal.Decimal `json:"finalAmount"`
	Interest    decimal.Decimal `json:"interest"`
	Years       float64         `json:"years"`
	RatePercent float64         `json:"ratePercent"`
}

// CalculateCompoundInterest grows principal at ratePercent a year, compounded
// frequency times a year. A non-positive frequency means yearly.
func CalculateCompoundInterest(principal decimal.Decimal, ratePercent, years float64, frequency int) CompoundResult {
	if frequency <= 0 {
		frequency = 1
	}
	periodRate := ratePercent / 100 / float64(frequency)
	factor := math.Pow(1+periodRate, years*float64(frequency))
	final := principal.Mul(decimal.NewFromFloat(factor)).Round(2)

	return CompoundResult{
		Principal:   principal,
		FinalAmount: final,
		Interest:    final.Sub(principal),
		Years:       years,
		RatePercent: ratePercent,
	}
}

// RecommendedAllocation is a target mix in percent.
type RecommendedAllocation struct {
	Cash         int `json:"cash"`
	Bonds        int `json:"bonds"`
	Stocks       int `json:"stocks"`
	Alternatives int `json:"alternatives"`
}

// RecommendedAllocationFor maps a risk profile to a target mix. Unknown
// profiles get the moderate mix.
func RecommendedAllocationFor(profile string) RecommendedAllocation {
	switch profile {
	case RiskConservative:
		return RecommendedAllocation{Cash: 15, Bonds: 40, Stocks: 35, Alternatives: 10}
	case RiskAggressive:
		return RecommendedAllocation{Cash: 5, Bonds: 15, Stocks: 70, Alternatives: 10}
	default:
		return RecommendedAllocation{Cash: 10, Bonds: 30, Stocks: 50, Alternatives: 10}
	}
}

type Performance struct {
	DailyChange      float64         `json:"dailyChange"`
	WeeklyChange     float64         `json:"weeklyChange"`
	MonthlyChange    float64         `json:"monthlyChange"`
	TotalGain        decimal.Decimal `json:"totalGain"`
	TotalGainPercent float64         `json:"totalGainPercent"`
}

// CalculatePerformance compares current against earlier history points:
// the previous point for daily, 7 points back for weekly and 30 back for
// monthly. Changes that need more history than exists are 0.
func CalculatePerformance(history []models.HistoryPoint, current decimal.Decimal) Performance {
	perf := Performance{TotalGain: decimal.Zero}
	n := len(history)
	if n <= 1 {
		return perf
	}

	if n > 2 {
		perf.DailyChange = CalculateReturn(history[n-2].Value, current)
	} else {
		perf.DailyChange = CalculateReturn(history[n-1].Value, current)
	}
	if n > 7 {
		perf.WeeklyChange = CalculateReturn(history[n-8].Value, current)
	}
	if n > 30 {
		perf.MonthlyChange = CalculateReturn(history[n-31].Value, current)
	}

	initial := history[0].Value
	perf.TotalGain = current.Sub(initial)
	perf.TotalGainPercent = CalculateReturn(initial, current)
	return perf
}

type RiskMetrics struct {
	TotalReturn      float64 `json:"totalReturn"`
	AnnualizedReturn float64 `json:"annualizedReturn"`
	StdDev           float64 `json:"standardDeviation"`
	SharpeRatio      float64 `json:"sharpeRatio"`
	MaxDrawdown      float64 `json:"maxDrawdown"`
}

// CalculateRiskMetrics derives return and risk figures from a valuation
// history. Period returns are taken at each calendar-month change and at
// the last point.
func CalculateRiskMetrics(history []models.HistoryPoint, current decimal.Decimal) RiskMetrics {
	if len(history) < 2 {
		return RiskMetrics{}
	}

	first, last := history[0], history[len(history)-1]
	days := int(math.Round(last.Date.Sub(first.Date).Hours() / 24))
	if days < 1 {
		days = 1
	}

	m := RiskMetrics{
		TotalReturn:      CalculateReturn(first.Value, current),
		AnnualizedReturn: CalculateAnnualizedReturn(first.Value, current, days),
		MaxDrawdown:      MaxDrawdown(history),
	}

	var returns []float64
	prevValue, prevMonth := first.Value, monthOf(first.Date)
	for i := 1; i < len(history); i++ {
		h := history[i]
		if monthOf(h.Date) != prevMonth || i == len(history)-1 {
			returns = append(returns, CalculateReturn(prevValue, h.Value))
			prevValue, prevMonth = h.Value, monthOf(h.Date)
		}
	}
	m.StdDev = StandardDeviation(returns)
	m.SharpeRatio = SharpeRatio(m.AnnualizedReturn, RiskFreeRate, m.StdDev)
	return m
}

// MaxDrawdown is the largest peak-to-trough fall in percent.
func MaxDrawdown(history []models.HistoryPoint) float64 {
	if len(history) == 0 {
		return 0
	}
	peak := history[0].Value
	var worst float64
	for _, h := range history {
		if h.Value.GreaterThan(peak) {
			peak = h.Value
			continue
		}
		if peak.IsPositive() {
			if dd := peak.Sub(h.Value).Div(peak).Mul(hundred).InexactFloat64(); dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

func monthOf(t time.Time) int {
	return t.Year()*12 + int(t.Month())
}

func percentOf(part, total decimal.Decimal) float64 {
	return part.Div(total).Mul(hundred).InexactFloat64()
}
