package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/souta-pqr/money-suppli/internal/services"
)

// ToolsHandler serves the stateless calculators. Every input comes from the
// query string.
type ToolsHandler struct{}

func NewToolsHandler() *ToolsHandler {
	return &ToolsHandler{}
}

// GET /api/tools/commission?amount=500000&broker=discount
func (h *ToolsHandler) Commission(c *gin.Context) {
	amount, err := queryDecimal(c, "amount")
	if err != nil {
		badRequest(c, err)
		return
	}
	broker := c.DefaultQuery("broker", services.BrokerStandard)
	if !services.ValidBroker(broker) {
		badRequest(c, fmt.Errorf("unknown broker %q", broker))
		return
	}

	fee := services.CalculateCommission(amount, broker)
	c.JSON(http.StatusOK, gin.H{
		"amount":           amount,
		"broker":           broker,
		"commission":       fee,
		"formatted":        services.FormatYen(fee),
		"formattedAmount":  services.FormatYen(amount),
		"totalWithFee":     amount.Add(fee),
		"formattedWithFee": services.FormatYen(amount.Add(fee)),
	})
}

// GET /api/tools/tax?profit=100000&nisa=true
func (h *ToolsHandler) Tax(c *gin.Context) {
	profit, err := queryDecimal(c, "profit")
	if err != nil {
		badRequest(c, err)
		return
	}
	nisa, _ := strconv.ParseBool(c.Query("nisa"))

	tax := services.CalculateJapaneseTax(profit, nisa)
	c.JSON(http.StatusOK, gin.H{
		"profit":         profit,
		"nisa":           nisa,
		"tax":            tax,
		"formattedTotal": services.FormatYen(tax.Total),
		"formattedAfter": services.FormatYen(tax.ProfitAfterTax),
	})
}

// GET /api/tools/compound?principal=1000000&rate=5&years=10&frequency=12
func (h *ToolsHandler) Compound(c *gin.Context) {
	principal, err := queryDecimal(c, "principal")
	if err != nil {
		badRequest(c, err)
		return
	}
	rate, err := strconv.ParseFloat(c.Query("rate"), 64)
	if err != nil {
		badRequest(c, fmt.Errorf("rate: %w", err))
		return
	}
	years, err := strconv.ParseFloat(c.Query("years"), 64)
	if err != nil || years < 0 {
		badRequest(c, fmt.Errorf("years must be a non-negative number"))
		return
	}
	frequency, err := strconv.Atoi(c.DefaultQuery("frequency", "1"))
	if err != nil {
		badRequest(c, fmt.Errorf("frequency: %w", err))
		return
	}

	result := services.CalculateCompoundInterest(principal, rate, years, frequency)
	c.JSON(http.StatusOK, gin.H{
		"result":         result,
		"formattedFinal": services.FormatYen(result.FinalAmount),
		"formattedGain":  services.FormatYen(result.Interest),
	})
}

// GET /api/tools/allocation?profile=aggressive
func (h *ToolsHandler) Allocation(c *gin.Context) {
	profile := c.DefaultQuery("profile", services.RiskModerate)
	c.JSON(http.StatusOK, gin.H{
		"profile":    profile,
		"allocation": services.RecommendedAllocationFor(profile),
	})
}

func queryDecimal(c *gin.Context, key string) (decimal.Decimal, error) {
	raw := c.Query(key)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%s is required", key)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}
