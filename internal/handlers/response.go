package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/souta-pqr/money-suppli/internal/services"
	"github.com/souta-pqr/money-suppli/internal/store"
)

var authStatus = map[string]int{
	services.CodeUserNotFound:      http.StatusUnauthorized,
	services.CodeWrongPassword:     http.StatusUnauthorized,
	services.CodeInvalidToken:      http.StatusUnauthorized,
	services.CodeEmailInUse:        http.StatusConflict,
	services.CodeTooManyRequests:   http.StatusTooManyRequests,
	services.CodeWeakPassword:      http.StatusBadRequest,
	services.CodeInvalidEmail:      http.StatusBadRequest,
	services.CodeInvalidResetToken: http.StatusBadRequest,
}

type errorKind struct {
	err    error
	code   string
	status int
}

// errorKinds maps service sentinels to a response code and status. The first
// match wins.
var errorKinds = []errorKind{
	{store.ErrNotFound, "user-not-found", http.StatusNotFound},
	{services.ErrUnknownInstrument, "unknown-instrument", http.StatusNotFound},
	{services.ErrOrderNotFound, "order-not-found", http.StatusNotFound},
	{services.ErrCourseNotFound, "course-not-found", http.StatusNotFound},
	{services.ErrLessonNotFound, "lesson-not-found", http.StatusNotFound},
	{services.ErrEventNotFound, "event-not-found", http.StatusNotFound},
	{services.ErrInsufficientFunds, "insufficient-funds", http.StatusUnprocessableEntity},
	{services.ErrInsufficientShares, "insufficient-shares", http.StatusUnprocessableEntity},
	{services.ErrLimitNotMet, "limit-not-met", http.StatusUnprocessableEntity},
	{services.ErrPositionNotFound, "position-not-found", http.StatusUnprocessableEntity},
	{services.ErrNoDividend, "no-dividend", http.StatusUnprocessableEntity},
	{services.ErrInvalidQuantity, "invalid-quantity", http.StatusBadRequest},
	{services.ErrInvalidOrderType, "invalid-order-type", http.StatusBadRequest},
	{services.ErrInvalidLimitPrice, "invalid-limit-price", http.StatusBadRequest},
	{services.ErrInvalidBroker, "invalid-broker", http.StatusBadRequest},
	{services.ErrNoQuiz, "no-quiz", http.StatusBadRequest},
	{services.ErrAnswerCount, "answer-count", http.StatusBadRequest},
	{services.ErrInvalidName, "invalid-name", http.StatusBadRequest},
	{services.ErrInvalidTheme, "invalid-theme", http.StatusBadRequest},
	{services.ErrUnknownCondition, "unknown-condition", http.StatusBadRequest},
	{services.ErrUnknownDifficulty, "unknown-difficulty", http.StatusBadRequest},
	{services.ErrUnknownSpeed, "unknown-speed", http.StatusBadRequest},
	{services.ErrUnknownPeriod, "unknown-period", http.StatusBadRequest},
}

// respondError writes err as {"error": message, "code": code}. Errors the
// services do not name are logged and answered with 500.
func respondError(c *gin.Context, log *logrus.Logger, err error) {
	var ae *services.AuthError
	if errors.As(err, &ae) {
		status, ok := authStatus[ae.Code]
		if !ok {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": ae.Message(), "code": ae.Code})
		return
	}

	for _, k := range errorKinds {
		if !errors.Is(err, k.err) {
			continue
		}
		message := k.err.Error()
		var te *services.TradeError
		if errors.As(err, &te) {
			message = te.Message
		}
		c.JSON(k.status, gin.H{"error": message, "code": k.code})
		return
	}

	log.WithError(err).WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.FullPath(),
	}).Error("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": "internal"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error(), "code": "invalid-request"})
}

// currentUserID returns the id AuthMiddleware or OptionalAuth stored.
func currentUserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// requireUser aborts with 401 when the request is not authenticated.
func requireUser(c *gin.Context) (string, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated", "code": services.CodeInvalidToken})
		return "", false
	}
	return userID, true
}
