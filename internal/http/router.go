package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ridehub/accounts/internal/auth"
	"github.com/ridehub/accounts/internal/http/handlers"
	"github.com/ridehub/accounts/internal/middleware"
	"github.com/ridehub/accounts/internal/repo"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(
	service *auth.Service,
	jwtService *auth.JWTService,
	userRepo repo.UserRepo,
	roleRepo repo.RoleRepo,
	logger *zap.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)

	authHandler := handlers.NewAuthHandler(service, logger)
	userHandler := handlers.NewUserHandler(service, logger)
	roleHandler := handlers.NewRoleHandler(roleRepo, logger)

	r.Get("/health", handlers.NewHealthHandler().ServeHTTP)
	r.Get("/roles", roleHandler.HandleList)

	r.Post("/register", authHandler.HandleRegister)
	r.Post("/verify", authHandler.HandleVerify)
	r.Post("/resendOtp", authHandler.HandleResendOTP)
	r.Post("/login", authHandler.HandleLogin)
	r.Post("/forgot-password", authHandler.HandleForgotPassword)
	r.Post("/reset-password", authHandler.HandleResetPassword)

	// Protected routes (require valid JWT)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(jwtService, userRepo))
		r.Put("/update", userHandler.HandleUpdateSelf)
	})

	r.Get("/", userHandler.HandleList)
	r.Get("/{id}", userHandler.HandleGet)
	r.Put("/{id}", userHandler.HandleUpdate)
	r.Delete("/{id}", userHandler.HandleDelete)

	return r
}
