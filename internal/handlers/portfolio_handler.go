package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/souta-pqr/money-suppli/internal/models"
	"github.com/souta-pqr/money-suppli/internal/services"
)

type PortfolioHandler struct {
	portfolio *services.PortfolioService
	log       *logrus.Logger
}

func NewPortfolioHandler(portfolio *services.PortfolioService, log *logrus.Logger) *PortfolioHandler {
	return &PortfolioHandler{portfolio: portfolio, log: log}
}

// TradeRequest is the body of buy and sell. LimitPrice is read for limit
// orders only; Rest keeps an unfilled limit order waiting.
type TradeRequest struct {
	InstrumentID string          `json:"instrumentId" binding:"required"`
	Quantity     int64           `json:"quantity" binding:"required,min=1"`
	OrderType    string          `json:"orderType"`
	LimitPrice   decimal.Decimal `json:"limitPrice"`
	Rest         bool            `json:"rest"`
}

type DividendRequest struct {
	InstrumentID string `json:"instrumentId" binding:"required"`
}

type BrokerRequest struct {
	BrokerType string `json:"brokerType" binding:"required"`
}

func (h *PortfolioHandler) GetPortfolio(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	view, err := h.portfolio.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *PortfolioHandler) Buy(c *gin.Context) {
	h.trade(c, models.TransactionBuy)
}

func (h *PortfolioHandler) Sell(c *gin.Context) {
	h.trade(c, models.TransactionSell)
}

func (h *PortfolioHandler) trade(c *gin.Context, side models.TransactionType) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	tr := services.TradeRequest{
		InstrumentID: req.InstrumentID,
		Quantity:     req.Quantity,
		OrderType:    models.OrderType(req.OrderType),
		LimitPrice:   req.LimitPrice,
		Rest:         req.Rest,
	}

	var (
		result services.TradeResult
		err    error
	)
	if side == models.TransactionSell {
		result, err = h.portfolio.Sell(c.Request.Context(), userID, tr)
	} else {
		result, err = h.portfolio.Buy(c.Request.Context(), userID, tr)
	}
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	status := http.StatusOK
	if result.Pending != nil {
		status = http.StatusAccepted
	}
	c.JSON(status, result)
}

func (h *PortfolioHandler) Dividend(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req DividendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.portfolio.Dividend(c.Request.Context(), userID, req.InstrumentID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *PortfolioHandler) Reset(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	view, err := h.portfolio.Reset(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *PortfolioHandler) ChangeBroker(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req BrokerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, err := h.portfolio.ChangeBroker(c.Request.Context(), userID, req.BrokerType)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *PortfolioHandler) Transactions(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	txs, err := h.portfolio.Transactions(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

// Analytics accepts ?nisa=true to value realized gains as tax free.
func (h *PortfolioHandler) Analytics(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	nisa, _ := strconv.ParseBool(c.Query("nisa"))
	a, err := h.portfolio.Analytics(c.Request.Context(), userID, nisa)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
