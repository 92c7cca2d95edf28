package main

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/craftbase/content-api/internal/handler"
	"github.com/craftbase/content-api/internal/middleware"
	"github.com/craftbase/content-api/internal/models"
	"github.com/craftbase/content-api/internal/repository"
	"github.com/craftbase/content-api/internal/schema"
	"github.com/craftbase/content-api/internal/service"
	"github.com/craftbase/content-api/pkg/cache"
	"github.com/craftbase/content-api/pkg/config"
	"github.com/craftbase/content-api/pkg/database"
	"github.com/craftbase/content-api/pkg/logger"
	corsmiddleware "github.com/craftbase/content-api/pkg/middleware/cors"
	reqidmiddleware "github.com/craftbase/content-api/pkg/middleware/requestid"
	"github.com/craftbase/content-api/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	registry, err := schema.LoadDir(cfg.Schema.Dir)
	if err != nil {
		logr.Fatal("failed to load collection schemas", zap.Error(err))
	}
	logr.Info("collection schemas loaded", zap.Strings("collections", registry.Names()))

	files, err := storage.NewLocalStorage(cfg.Uploads.StorageDir, cfg.Uploads.PublicBase)
	if err != nil {
		logr.Fatal("failed to prepare upload storage", zap.Error(err))
	}

	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, document cache disabled", zap.Error(err))
		} else {
			repo := repository.NewCacheRepository(redisClient, logr)
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled && cacheRepo != nil)

	documentRepo := repository.NewDocumentRepository(db)
	documentSvc := service.NewDocumentService(registry, documentRepo, cacheSvc, metrics, files, nil, logr)

	documentHandler := handler.NewDocumentHandler(documentSvc)
	collectionHandler := handler.NewCollectionHandler(registry)
	mediaHandler := handler.NewMediaHandler(files)
	metricsHandler := handler.NewMetricsHandler(metrics)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)

	api.GET("/collections", collectionHandler.List)
	api.GET("/collections/:collection", collectionHandler.Get)
	api.GET("/collections/:collection/documents", documentHandler.List)
	api.GET("/documents/:id", documentHandler.Get)
	api.GET("/documents/:id/versions", documentHandler.History)
	api.GET("/documents/:id/transitions", documentHandler.Transitions)

	r.GET(strings.TrimRight(cfg.Uploads.PublicBase, "/")+"/*filepath", mediaHandler.Serve)

	editors := api.Group("")
	editors.Use(middleware.JWT(cfg.JWT.Secret))
	editors.Use(middleware.RequireRole(models.RoleAdmin, models.RoleEditor))
	editors.POST("/collections/:collection/documents",
		middleware.Audit(logr, "create", "document"), documentHandler.Create)
	editors.PUT("/documents/:id",
		middleware.Audit(logr, "update", "document"), documentHandler.Update)
	editors.PATCH("/documents/:id",
		middleware.Audit(logr, "patch", "document"), documentHandler.Patch)
	editors.POST("/documents/:id/status",
		middleware.Audit(logr, "status", "document"), documentHandler.ChangeStatus)
	editors.POST("/documents/:id/unpublish",
		middleware.Audit(logr, "unpublish", "document"), documentHandler.Unpublish)
	editors.POST("/media",
		middleware.Audit(logr, "upload", "media"), mediaHandler.Upload)

	admins := api.Group("")
	admins.Use(middleware.JWT(cfg.JWT.Secret))
	admins.Use(middleware.RequireRole(models.RoleAdmin))
	admins.DELETE("/documents/:id",
		middleware.Audit(logr, "delete", "document"), documentHandler.Delete)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil && err != http.ErrServerClosed {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
