package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/souta-pqr/money-suppli/internal/services"
)

type SimulatorHandler struct {
	market   *services.MarketSimulator
	hub      *services.WebSocketHub
	auth     *services.AuthService
	upgrader websocket.Upgrader
	log      *logrus.Logger
}

func NewSimulatorHandler(market *services.MarketSimulator, hub *services.WebSocketHub, auth *services.AuthService, log *logrus.Logger) *SimulatorHandler {
	return &SimulatorHandler{
		market: market,
		hub:    hub,
		auth:   auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		log: log,
	}
}

type SpeedRequest struct {
	Speed string `json:"speed" binding:"required"`
}

func (h *SimulatorHandler) Instruments(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"instruments": h.market.Instruments(userID)})
}

func (h *SimulatorHandler) Start(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var settings services.SimulationSettings
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&settings); err != nil {
			badRequest(c, err)
			return
		}
	}

	state, err := h.market.Start(c.Request.Context(), userID, settings)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *SimulatorHandler) Stop(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.market.Stop(userID))
}

func (h *SimulatorHandler) SetSpeed(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req SpeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	state, err := h.market.SetSpeed(userID, req.Speed)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *SimulatorHandler) State(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.market.State(userID))
}

// Step advances the user's market by one tick immediately.
func (h *SimulatorHandler) Step(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	tick, err := h.market.Step(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, tick)
}

func (h *SimulatorHandler) MarkEventRead(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := h.market.MarkEventRead(userID, index); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "event marked as read"})
}

// ServeWS upgrades to a websocket that receives the user's ticks. Browsers
// cannot set headers on websocket requests, so the token comes in ?token=.
func (h *SimulatorHandler) ServeWS(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		tokenString = bearerToken(c)
	}
	claims, err := h.auth.ParseToken(tokenString)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	client := h.hub.RegisterClient(conn, claims.UserID)
	h.log.WithField("user_id", claims.UserID).Info("WebSocket connection established")

	go client.WritePump()
	go client.ReadPump()
}
