package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/souta-pqr/money-suppli/internal/content"
	"github.com/souta-pqr/money-suppli/internal/services"
)

const featuredCourses = 3

type UserHandler struct {
	users     *services.UserService
	portfolio *services.PortfolioService
	learning  *services.LearningService
	market    *services.MarketSimulator
	log       *logrus.Logger
}

func NewUserHandler(users *services.UserService, portfolio *services.PortfolioService, learning *services.LearningService, market *services.MarketSimulator, log *logrus.Logger) *UserHandler {
	return &UserHandler{users: users, portfolio: portfolio, learning: learning, market: market, log: log}
}

type NameRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *UserHandler) Profile(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	user, err := h.users.Load(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *UserHandler) UpdateName(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.users.UpdateName(c.Request.Context(), userID, req.Name)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *UserHandler) Settings(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	user, err := h.users.Load(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": user.Settings})
}

func (h *UserHandler) UpdateSettings(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var patch services.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}

	settings, err := h.users.UpdateSettings(c.Request.Context(), userID, patch)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

type homeSummary struct {
	Name             string          `json:"name"`
	Guest            bool            `json:"guest"`
	TotalValue       decimal.Decimal `json:"totalValue"`
	TotalGainPercent float64         `json:"totalGainPercent"`
	CompletedLessons int             `json:"completedLessons"`
}

// Home returns featured courses and a market snapshot, plus the caller's
// summary when signed in.
func (h *UserHandler) Home(c *gin.Context) {
	resp := gin.H{}

	userID, authed := currentUserID(c)
	if !authed {
		courses := h.learning.Courses(nil)
		resp["courses"] = courses[:min(featuredCourses, len(courses))]
		resp["market"] = content.Instruments()
		c.JSON(http.StatusOK, resp)
		return
	}

	user, err := h.users.Load(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	view, err := h.portfolio.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	courses := h.learning.Courses(&user.Learning)
	resp["courses"] = courses[:min(featuredCourses, len(courses))]
	resp["market"] = h.market.Instruments(userID)
	resp["user"] = homeSummary{
		Name:             user.Name,
		Guest:            user.Guest,
		TotalValue:       view.TotalValue,
		TotalGainPercent: view.Performance.TotalGainPercent,
		CompletedLessons: len(user.Learning.CompletedLessons),
	}
	c.JSON(http.StatusOK, resp)
}
