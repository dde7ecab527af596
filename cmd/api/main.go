package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/auth"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/cache"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/config"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/database"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/domain"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/handler"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/logger"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/middleware"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/repository"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/service"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/storage"
)

// backends opens each remote backend at most once.
type backends struct {
	cfg   *config.Config
	db    *gorm.DB
	mongo *mongo.Database
	http  *http.Client
	blobs storage.Blobs
}

func (b *backends) openDB() (*gorm.DB, error) {
	if b.db != nil {
		return b.db, nil
	}
	db, err := database.Connect(b.cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	b.db = db
	return db, nil
}

func (b *backends) mongoDB(ctx context.Context) (*mongo.Database, error) {
	if b.mongo != nil {
		return b.mongo, nil
	}
	db, err := repository.ConnectMongo(ctx, repository.MongoConfig{
		URI:            b.cfg.Mongo.URI,
		Database:       b.cfg.Mongo.Database,
		User:           b.cfg.Mongo.User,
		Password:       b.cfg.Mongo.Password,
		ConnectTimeout: b.cfg.Mongo.ConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	b.mongo = db
	return db, nil
}

func openStore[T repository.Record](ctx context.Context, b *backends, kind, collection, localKey string) (repository.Store[T], error) {
	switch kind {
	case "memory":
		return repository.NewMemoryStore[T](), nil
	case "gorm":
		db, err := b.openDB()
		if err != nil {
			return nil, err
		}
		return repository.NewGormStore[T](db), nil
	case "mongo":
		db, err := b.mongoDB(ctx)
		if err != nil {
			return nil, err
		}
		return repository.NewMongoStore[T](db, collection), nil
	case "http":
		return repository.NewHTTPStore[T](b.http, b.cfg.Store.FacadeURL, collection, b.cfg.Store.FacadeAPIKey), nil
	case "local":
		return repository.NewLocalStore[T](b.blobs, localKey, repository.LayoutList), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", kind)
}

func openBlobs(ctx context.Context, cfg *config.Config) (storage.Blobs, error) {
	switch cfg.Local.Backend {
	case "file":
		return storage.NewFileBlobs(cfg.Local.Dir, cfg.Local.QuotaBytes)
	case "minio":
		return storage.NewMinIOBlobs(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown local backend %q", cfg.Local.Backend)
}

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Local copy of QR codes and the pending sync list
	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to open local storage: %v", err)
	}

	// Remote stores
	b := &backends{cfg: cfg, http: &http.Client{}, blobs: blobs}
	qrRemote, err := openStore[domain.QRCode](ctx, b, cfg.Store.QRCodeBackend, repository.QRCodesCollection, repository.QRCodesKey)
	if err != nil {
		logger.Fatalf("Failed to open QR code store: %v", err)
	}
	fbRemote, err := openStore[domain.Feedback](ctx, b, cfg.Store.FeedbackBackend, repository.FeedbackCollection, repository.FeedbackKey)
	if err != nil {
		logger.Fatalf("Failed to open feedback store: %v", err)
	}

	policy := repository.RetryPolicy{
		Attempts:  cfg.Sync.RetryAttempts,
		BaseDelay: cfg.Sync.RetryBase,
		Factor:    cfg.Sync.RetryFactor,
		Timeout:   cfg.Sync.OpTimeout,
	}
	qrStore := repository.NewResilient[domain.QRCode](repository.QRCodesCollection, qrRemote, policy)
	fbStore := repository.NewResilient[domain.Feedback](repository.FeedbackCollection, fbRemote, policy)
	local := repository.NewLocalStore[domain.QRCode](blobs, repository.QRCodesKey, repository.LayoutMap)

	// Services
	qrCache := cache.New[domain.QRCode](cfg.Sync.CacheTTL)
	monitor := service.NewConnectivityMonitor(qrStore, cfg.Sync.PingInterval)
	syncService, err := service.NewSyncService(ctx, local, qrStore, blobs, qrCache, monitor, service.SyncConfig{
		Interval: cfg.Sync.Interval,
	})
	if err != nil {
		logger.Fatalf("Failed to load sync state: %v", err)
	}
	qrService := service.NewQRCodeService(qrStore, local, fbStore, syncService, qrCache, cfg.App.URL)
	feedbackService := service.NewFeedbackService(fbStore, qrService, nil)

	// Initialize JWT service
	jwtService := auth.NewJWTService(cfg)

	wsHandler := handler.NewWebSocketHandler(syncService)
	routes := &handler.Routes{
		Auth:           handler.NewAuthHandler(auth.NewAdmin(cfg.Admin), jwtService),
		QRCode:         handler.NewQRCodeHandler(qrService),
		Feedback:       handler.NewFeedbackHandler(feedbackService),
		Sync:           handler.NewSyncHandler(syncService),
		WebSocket:      wsHandler,
		Public:         handler.NewPublicHandler(syncService),
		AuthMiddleware: middleware.NewAuthMiddleware(jwtService),
		StoreAPIKey:    cfg.Store.FacadeAPIKey,
	}

	// Database façade for HTTPStore clients
	if cfg.Store.FacadeEnabled {
		db, err := b.openDB()
		if err != nil {
			logger.Fatalf("Failed to open store facade database: %v", err)
		}
		facadeQR := repository.NewGormStore[domain.QRCode](db)
		routes.Store = handler.NewStoreHandler(facadeQR, map[string]repository.FacadeCollection{
			repository.QRCodesCollection:  repository.NewFacadeCollection[domain.QRCode](facadeQR),
			repository.FeedbackCollection: repository.NewFacadeCollection[domain.Feedback](repository.NewGormStore[domain.Feedback](db)),
		})
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"error": fiber.Map{
					"code":    "INTERNAL_ERROR",
					"message": err.Error(),
				},
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.CORS.Origins, ","),
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-API-Key",
		AllowCredentials: true,
	}))

	routes.Mount(app)

	// Background synchronization and the status stream
	go syncService.Run(ctx)
	go wsHandler.Run(ctx)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Infof("Gracefully shutting down...")
		cancel()
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	// Start server
	port := cfg.App.Port
	if port == "" {
		port = "8080"
	}
	logger.WithFields(logger.Fields{
		"qr_backend":       cfg.Store.QRCodeBackend,
		"feedback_backend": cfg.Store.FeedbackBackend,
		"local_backend":    cfg.Local.Backend,
	}).Infof("Server starting on port %s", port)
	if err := app.Listen(":" + port); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}

	if b.mongo != nil {
		disconnectCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = b.mongo.Client().Disconnect(disconnectCtx)
	}
}
