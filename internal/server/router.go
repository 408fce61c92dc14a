package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/souta-pqr/money-suppli/internal/handlers"
	"github.com/souta-pqr/money-suppli/internal/services"
)

const version = "1.0.0"

// Deps are the services the HTTP layer is built on.
type Deps struct {
	Users     *services.UserService
	Auth      *services.AuthService
	Portfolio *services.PortfolioService
	Learning  *services.LearningService
	Market    *services.MarketSimulator
	Hub       *services.WebSocketHub
	Log       *logrus.Logger
}

var endpoints = []string{
	"GET /health",
	"GET /api/home",
	"GET /api/courses",
	"GET /api/courses/:courseId",
	"GET /api/courses/:courseId/lessons/:lessonId",
	"POST /api/courses/:courseId/lessons/:lessonId/view",
	"POST /api/courses/:courseId/lessons/:lessonId/quiz",
	"GET /api/simulator/instruments",
	"GET /api/simulator/state",
	"POST /api/simulator/start",
	"POST /api/simulator/stop",
	"POST /api/simulator/speed",
	"POST /api/simulator/step",
	"POST /api/simulator/events/:index/read",
	"GET /api/portfolio",
	"POST /api/portfolio/buy",
	"POST /api/portfolio/sell",
	"POST /api/portfolio/dividend",
	"POST /api/portfolio/reset",
	"POST /api/portfolio/broker",
	"GET /api/portfolio/orders",
	"POST /api/portfolio/orders/:id/cancel",
	"GET /api/portfolio/transactions",
	"GET /api/portfolio/analytics",
	"GET /api/tools/commission",
	"GET /api/tools/tax",
	"GET /api/tools/compound",
	"GET /api/tools/allocation",
	"GET /api/profile",
	"PUT /api/profile/name",
	"GET /api/profile/settings",
	"PUT /api/profile/settings",
	"POST /api/auth/signup",
	"POST /api/auth/login",
	"POST /api/auth/guest",
	"POST /api/auth/logout",
	"POST /api/auth/password-reset",
	"POST /api/auth/password-reset/confirm",
	"GET /api/auth/me",
	"GET /ws",
}

// NewRouter builds the gin engine with every API route registered.
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(d.Log), cors())

	authHandler := handlers.NewAuthHandler(d.Auth, d.Users, d.Log)
	portfolioHandler := handlers.NewPortfolioHandler(d.Portfolio, d.Log)
	simulatorHandler := handlers.NewSimulatorHandler(d.Market, d.Hub, d.Auth, d.Log)
	learningHandler := handlers.NewLearningHandler(d.Learning, d.Users, d.Log)
	userHandler := handlers.NewUserHandler(d.Users, d.Portfolio, d.Learning, d.Market, d.Log)
	toolsHandler := handlers.NewToolsHandler()

	authMiddleware := authHandler.AuthMiddleware()
	optionalAuth := authHandler.OptionalAuth()

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "OK",
			"message":   "Money Suppli API",
			"version":   version,
			"endpoints": endpoints,
		})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "OK",
			"message": "Money Suppli API is running",
		})
	})

	router.GET("/ws", simulatorHandler.ServeWS)

	api := router.Group("/api")

	api.GET("/home", optionalAuth, userHandler.Home)

	// Learning routes
	courses := api.Group("/courses")
	courses.GET("", optionalAuth, learningHandler.Courses)
	courses.GET("/:courseId", optionalAuth, learningHandler.Course)
	courses.GET("/:courseId/lessons/:lessonId", optionalAuth, learningHandler.Lesson)
	courses.POST("/:courseId/lessons/:lessonId/view", authMiddleware, learningHandler.ViewLesson)
	courses.POST("/:courseId/lessons/:lessonId/quiz", authMiddleware, learningHandler.SubmitQuiz)

	// Simulator routes
	simulator := api.Group("/simulator", authMiddleware)
	simulator.GET("/instruments", simulatorHandler.Instruments)
	simulator.GET("/state", simulatorHandler.State)
	simulator.POST("/start", simulatorHandler.Start)
	simulator.POST("/stop", simulatorHandler.Stop)
	simulator.POST("/speed", simulatorHandler.SetSpeed)
	simulator.POST("/step", simulatorHandler.Step)
	simulator.POST("/events/:index/read", simulatorHandler.MarkEventRead)

	// Portfolio routes
	portfolio := api.Group("/portfolio", authMiddleware)
	portfolio.GET("", portfolioHandler.GetPortfolio)
	portfolio.POST("/buy", portfolioHandler.Buy)
	portfolio.POST("/sell", portfolioHandler.Sell)
	portfolio.POST("/dividend", portfolioHandler.Dividend)
	portfolio.POST("/reset", portfolioHandler.Reset)
	portfolio.POST("/broker", portfolioHandler.ChangeBroker)
	portfolio.GET("/orders", portfolioHandler.PendingOrders)
	portfolio.POST("/orders/:id/cancel", portfolioHandler.CancelOrder)
	portfolio.GET("/transactions", portfolioHandler.Transactions)
	portfolio.GET("/analytics", portfolioHandler.Analytics)

	tools := api.Group("/tools")
	tools.GET("/commission", toolsHandler.Commission)
	tools.GET("/tax", toolsHandler.Tax)
	tools.GET("/compound", toolsHandler.Compound)
	tools.GET("/allocation", toolsHandler.Allocation)

	profile := api.Group("/profile", authMiddleware)
	profile.GET("", userHandler.Profile)
	profile.PUT("/name", userHandler.UpdateName)
	profile.GET("/settings", userHandler.Settings)
	profile.PUT("/settings", userHandler.UpdateSettings)

	// Auth routes
	auth := api.Group("/auth")
	auth.POST("/signup", authHandler.Signup)
	auth.POST("/login", authHandler.Login)
	auth.POST("/guest", authHandler.Guest)
	auth.POST("/logout", authMiddleware, authHandler.Logout)
	auth.POST("/password-reset", authHandler.PasswordReset)
	auth.POST("/password-reset/confirm", authHandler.ConfirmPasswordReset)
	auth.GET("/me", authMiddleware, authHandler.Me)

	return router
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func requestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("Request completed")
			return
		}
		entry.Debug("Request completed")
	}
}
