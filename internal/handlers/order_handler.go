package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Resting limit orders are placed through Buy and Sell with "rest": true.

func (h *PortfolioHandler) PendingOrders(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	orders, err := h.portfolio.PendingOrders(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *PortfolioHandler) CancelOrder(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	order, err := h.portfolio.CancelOrder(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "注文を取り消しました",
		"order":   order,
	})
}
