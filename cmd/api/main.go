package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ridehub/accounts/internal/auth"
	"github.com/ridehub/accounts/internal/config"
	"github.com/ridehub/accounts/internal/db"
	httphandler "github.com/ridehub/accounts/internal/http"
	"github.com/ridehub/accounts/internal/logging"
	"github.com/ridehub/accounts/internal/notify"
	"github.com/ridehub/accounts/internal/repo"
)

type stores struct {
	users repo.UserRepo
	roles repo.RoleRepo
	close func()
}

func main() {
	// Env vars override values from .env
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer st.close()

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.TokenTTL)
	service := auth.NewService(
		st.users,
		st.roles,
		auth.NewBcryptHasher(cfg.BcryptCost),
		jwtService,
		notify.FromConfig(cfg, logger),
		logger,
		auth.Options{OTPEnabled: cfg.OTPEnabled, OTPTTL: cfg.OTPTTL, OTPSalt: cfg.OTPSalt},
	)

	go auth.NewSweeper(st.users, cfg.SweepInterval, logger).Run(ctx)

	router := httphandler.NewRouter(service, jwtService, st.users, st.roles, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.NotifyTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port), zap.String("store", cfg.StoreDriver), zap.Bool("otp_enabled", cfg.OTPEnabled))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("server exited")
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, database, err := db.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDB, logger)
		if err != nil {
			return nil, err
		}
		store, err := repo.NewMongoStore(ctx, database)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return &stores{
			users: store,
			roles: store.Roles(),
			close: func() { _ = client.Disconnect(context.Background()) },
		}, nil

	case config.StoreMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		store := repo.NewMemoryStore()
		return &stores{users: store, roles: store.Roles(), close: func() {}}, nil

	default:
		database, err := db.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, database); err != nil {
			database.Close()
			return nil, err
		}
		logger.Info("migrations applied", zap.String("database", cfg.RedactedDatabaseURL()))
		return &stores{
			users: repo.NewUserRepo(database),
			roles: repo.NewRoleRepo(database),
			close: func() { database.Close() },
		}, nil
	}
}
