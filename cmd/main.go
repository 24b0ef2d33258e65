package main

import (
	"competition-service/internal/authz"
	"competition-service/internal/handler"
	"competition-service/internal/middleware"
	"competition-service/internal/model"
	"competition-service/internal/store"
	"competition-service/pkg/config"
	"competition-service/pkg/database"
	"competition-service/pkg/jwtutil"
	"competition-service/pkg/logger"
	"competition-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting competition service...", zap.String("environment", cfg.Server.Env))

	// Initialize database
	if err := database.InitDB(cfg); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	// Initialize JWT utility
	jwtutil.Initialize(&cfg.JWT)
	log.Info("JWT utility initialized")

	// Wire the decision engine and handlers to the store
	s := store.New(database.GetDB())
	authz.Initialize(s)
	handler.Initialize(s)
	log.Info("Access control engine initialized")

	// Seed the bootstrap superuser if none exists yet
	if err := seedSuperuser(cfg, log); err != nil {
		log.Fatal("Failed to seed superuser", zap.Error(err))
	}

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Authentication routes
	auth := e.Group("/auth")
	auth.POST("/login", handler.Login)

	// API routes - all require authentication
	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware)

	// Tenant management
	tenants := api.Group("/tenants")
	tenants.POST("", handler.CreateTenant)
	tenants.GET("", handler.ListTenants)
	tenants.GET("/:id", handler.GetTenant)
	tenants.PATCH("/:id", handler.UpdateTenant)
	tenants.DELETE("/:id", handler.DeleteTenant)
	tenants.GET("/:id/competitions", handler.ListTenantCompetitions)

	// User management
	users := api.Group("/users")
	users.GET("/profile", handler.GetProfile)
	users.POST("", handler.CreateUser)
	users.GET("", handler.ListUsers)
	users.GET("/:id", handler.GetUser)
	users.PATCH("/:id", handler.UpdateUser)
	users.DELETE("/:id", handler.DeleteUser)

	// Competition management
	competitions := api.Group("/competitions")
	competitions.POST("", handler.CreateCompetition)
	competitions.GET("", handler.ListCompetitions)
	competitions.GET("/:id", handler.GetCompetition)
	competitions.PATCH("/:id", handler.UpdateCompetition)
	competitions.DELETE("/:id", handler.DeleteCompetition)

	// Allowed-school grants
	competitions.GET("/:id/allowed-schools", handler.ListAllowedSchools)
	competitions.POST("/:id/allowed-schools", handler.CreateAllowedSchool)
	competitions.DELETE("/:id/allowed-schools/:tenant_id", handler.DeleteAllowedSchool)

	// Get server port from configuration
	port := cfg.Server.Port

	// Start server
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}

// seedSuperuser creates the initial platform administrator from the
// ADMIN_EMAIL/ADMIN_PASSWORD configuration. It only runs when no
// superuser exists; further superusers must be created by one.
func seedSuperuser(cfg *config.Config, log *zap.Logger) error {
	if cfg.Admin.Email == "" || cfg.Admin.Password == "" {
		log.Warn("No admin credentials configured, skipping superuser seed")
		return nil
	}

	var count int64
	if err := database.GetDB().Model(&model.User{}).
		Where("role = ?", model.RoleSuperuser).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.Admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := model.User{
		Email:    cfg.Admin.Email,
		Password: string(hashed),
		Role:     model.RoleSuperuser,
	}
	if err := database.GetDB().Create(&admin).Error; err != nil {
		return err
	}

	log.Info("Seeded superuser", zap.String("email", admin.Email))
	return nil
}
