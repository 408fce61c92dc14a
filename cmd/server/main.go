package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/souta-pqr/money-suppli/config"
	"github.com/souta-pqr/money-suppli/internal/logger"
	"github.com/souta-pqr/money-suppli/internal/scheduler"
	"github.com/souta-pqr/money-suppli/internal/server"
	"github.com/souta-pqr/money-suppli/internal/services"
	"github.com/souta-pqr/money-suppli/internal/store"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Server exited")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Initialize services
	users := services.NewUserService(st, cfg.InitialCash, cfg.DefaultBroker, log)
	hub := services.NewWebSocketHub(log)
	market := services.NewMarketSimulator(ctx, hub, log)
	portfolio := services.NewPortfolioService(users, st, market, log)
	market.SetObserver(portfolio)
	learning := services.NewLearningService(users, st, log)
	auth := services.NewAuthService(st, users, services.LogMailer{Log: log}, services.AuthConfig{
		JWTSecret:    cfg.JWTSecret,
		ResetURLBase: cfg.ResetURLBase,
	}, log)

	go hub.Run(ctx)

	sched := scheduler.New(log, 5*time.Minute)
	if err := sched.AddJob(cfg.ValuationSchedule, scheduler.ValuationSnapshotJob{Portfolios: portfolio, Log: log}); err != nil {
		return fmt.Errorf("valuation schedule: %w", err)
	}
	if err := sched.AddJob(cfg.TokenCleanup, scheduler.TokenCleanupJob{Auth: auth, Log: log}); err != nil {
		return fmt.Errorf("token cleanup schedule: %w", err)
	}
	if err := sched.AddJob(cfg.SessionEviction, scheduler.SessionEvictionJob{Sessions: market, MaxIdle: cfg.SessionMaxIdle, Log: log}); err != nil {
		return fmt.Errorf("session eviction schedule: %w", err)
	}
	sched.Start()

	if log.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := server.NewRouter(server.Deps{
		Users:     users,
		Auth:      auth,
		Portfolio: portfolio,
		Learning:  learning,
		Market:    market,
		Hub:       hub,
		Log:       log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"port":    cfg.Port,
			"storage": cfg.StorageBackend,
		}).Info("Money Suppli backend running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown incomplete")
	}
	market.StopAll()
	sched.Stop()
	return nil
}

// openStore connects the configured backend. A MongoDB backend that cannot
// be reached falls back to the local database.
func openStore(ctx context.Context, cfg *config.Config, log *logrus.Logger) (store.UserStore, func(), error) {
	if cfg.StorageBackend == config.BackendMongo {
		client, err := config.ConnectDB(cfg.MongoURI, store.NewRegistry())
		if err == nil {
			ms := store.NewMongoStore(config.GetCollection(client, cfg.DatabaseName, "users"))
			if err = ms.EnsureIndexes(ctx); err == nil {
				log.WithField("database", cfg.DatabaseName).Info("Connected to MongoDB")
				return ms, func() { disconnect(client, log) }, nil
			}
			disconnect(client, log)
		}
		log.WithError(err).Warn("MongoDB unavailable, using local database")
	}

	db, err := config.OpenLocalDB(cfg.LocalDBPath)
	if err != nil {
		return nil, nil, err
	}
	ls, err := store.NewLocalStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	log.WithField("path", cfg.LocalDBPath).Info("Using local database")
	return ls, func() { db.Close() }, nil
}

func disconnect(client *mongo.Client, log *logrus.Logger) {
	if err := config.DisconnectDB(client); err != nil {
		log.WithError(err).Warn("MongoDB disconnect failed")
	}
}
