package router

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"

	"github.com/anonto42/nano-midea/memberhub/internal/handlers"
	"github.com/anonto42/nano-midea/memberhub/internal/middleware"
	"github.com/anonto42/nano-midea/memberhub/internal/models"
	"github.com/anonto42/nano-midea/memberhub/internal/push"
	"github.com/anonto42/nano-midea/memberhub/internal/repositories"
)

// Deps are the resources the routes are built from
type Deps struct {
	Postgres  *gorm.DB
	Mongo     *mongo.Database
	Hub       *push.Hub
	JWTSecret string
	// Firebase, when set, replaces JWT verification on /api/v1
	Firebase middleware.TokenVerifier
}

// SetupMiddleware configures global Echo middleware
func SetupMiddleware(e *echo.Echo) {
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.CORS())
	glog.Infof("Global middleware configured.\n")
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, deps Deps) error {
	// AutoMigrate PostgreSQL models
	err := deps.Postgres.AutoMigrate(
		&models.Reply{},
		&models.Like{},
		&models.ReplyLike{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto migrate models: %w", err)
	}
	glog.Infof("PostgreSQL auto-migrations completed for all models.\n")

	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck)

	// --- Initialize Repositories ---
	itemRepo := repositories.NewMongoItemRepository(deps.Mongo)
	replyRepo := repositories.NewPostgresReplyRepository(deps.Postgres)
	likeRepo := repositories.NewPostgresLikeRepository(deps.Postgres)
	replyLikeRepo := repositories.NewPostgresReplyLikeRepository(deps.Postgres)

	// --- Protected routes ---
	api := e.Group("/api/v1")
	if deps.Firebase != nil {
		api.Use(middleware.FirebaseAuthMiddleware(deps.Firebase))
		glog.Infof("Firebase authentication middleware applied to /api/v1 group.\n")
	} else {
		api.Use(middleware.JWTAuthMiddleware(deps.JWTSecret))
		glog.Infof("JWT authentication middleware applied to /api/v1 group.\n")
	}

	itemHandler := handlers.NewItemHandler(itemRepo, replyRepo, likeRepo, replyLikeRepo, deps.Hub)
	itemHandler.RegisterItemRoutes(api)
	glog.Infof("Item routes configured.\n")

	replyHandler := handlers.NewReplyHandler(replyRepo, itemRepo, deps.Hub)
	replyHandler.RegisterReplyRoutes(api)
	glog.Infof("Reply routes configured.\n")

	likeHandler := handlers.NewLikeHandler(likeRepo, replyLikeRepo, itemRepo, replyRepo, deps.Hub)
	likeHandler.RegisterLikeRoutes(api)
	glog.Infof("Like routes configured.\n")

	pushHandler := handlers.NewPushHandler(deps.Hub)
	pushHandler.RegisterPushRoutes(api)
	glog.Infof("Push routes configured.\n")

	glog.Infof("All routes configured.\n")
	return nil
}
