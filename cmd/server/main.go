package main

import (
	"alcyxob/session-booking/internal/api"
	"alcyxob/session-booking/internal/config"
	"alcyxob/session-booking/internal/logging"
	"alcyxob/session-booking/internal/repository"
	"alcyxob/session-booking/internal/repository/memory"
	"alcyxob/session-booking/internal/repository/mongo"
	"alcyxob/session-booking/internal/repository/sqlite"
	"alcyxob/session-booking/internal/service"
	"alcyxob/session-booking/internal/storage"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// @title Session Booking API
// @version 1.0
// @description Trainer and client session requests, reschedules and conflict checks.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		// Logging is not configured yet; the default zerolog writer is stderr.
		log.Fatal().Err(err).Msg("Could not load config")
	}
	logging.Setup(logging.Options{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	log.Info().Str("driver", cfg.Database.Driver).Msg("Configuration loaded")

	ctx := context.Background()

	// --- Storage backends ---
	stores, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not open the database")
	}
	defer stores.close()

	var fileStorage storage.FileStorage
	if cfg.S3.Enabled() {
		fileStorage, err = storage.NewS3Storage(ctx, cfg.S3)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 storage")
		}
	} else {
		log.Warn().Msg("s3.bucket_name is empty, request attachments are disabled")
	}

	// --- Initialize Services ---
	policy, err := service.ParseDeclinePolicy(cfg.Booking.RescheduleDeclinePolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid booking configuration")
	}
	owners := service.NewPlanOwnerCache(stores.plans, cfg.Booking.PlanOwnerCacheSize, cfg.Booking.PlanOwnerCacheTTL)
	authService := service.NewAuthService(stores.users, cfg.JWT.Secret, cfg.JWT.Expiration)
	bookingService := service.NewBookingService(
		stores.requests,
		stores.sessions,
		stores.users,
		stores.locker,
		service.NewConflictDetector(stores.sessions, stores.requests),
		service.NewSessionMaterializer(stores.sessions, cfg.Booking.DefaultDurationMinutes),
		owners,
		service.BookingOptions{GraceWindow: cfg.Booking.GraceWindow, DeclinePolicy: policy},
	)
	attachmentService := service.NewAttachmentService(stores.requests, fileStorage, cfg.S3.URLExpiry)
	planService := service.NewPlanService(stores.plans, stores.users, owners)

	adminCtx, cancelAdmin := context.WithTimeout(ctx, 10*time.Second)
	if err := authService.EnsureAdmin(adminCtx, cfg.Admin.Name, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		log.Error().Err(err).Msg("Failed to create bootstrap admin")
	}
	cancelAdmin()

	// --- Initialize Gin Engine ---
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), logging.RequestLogger())

	api.SetupRoutes(router, cfg.JWT.Secret, cfg.Booking.StoreTimeout, api.Services{
		Auth:        authService,
		Booking:     bookingService,
		Attachments: attachmentService,
		Plans:       planService,
	})

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exiting")
}

// stores is the set of repositories for the configured driver.
type stores struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	requests repository.SessionRequestRepository
	plans    repository.TrainingPlanRepository
	locker   repository.BookingLocker
	close    func()
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	switch cfg.Database.Driver {
	case config.DriverMongo:
		client, err := mongo.ConnectDB(cfg.Database.URI)
		if err != nil {
			return nil, fmt.Errorf("connect to MongoDB: %w", err)
		}
		db := client.Database(cfg.Database.Name)

		indexCtx, cancel := context.WithTimeout(ctx, time.Minute)
		mongo.EnsureIndexes(indexCtx, db)
		cancel()

		return &stores{
			users:    mongo.NewMongoUserRepository(db),
			sessions: mongo.NewMongoSessionRepository(db),
			requests: mongo.NewMongoSessionRequestRepository(db),
			plans:    mongo.NewMongoTrainingPlanRepository(db),
			locker:   mongo.NewMongoBookingLocker(db, cfg.Booking.LockTTL, cfg.Booking.LockPollInterval),
			close: func() {
				log.Info().Msg("Disconnecting MongoDB...")
				if err := mongo.DisconnectDB(client); err != nil {
					log.Error().Err(err).Msg("Failed to disconnect MongoDB")
				}
			},
		}, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		// A single process owns the file, so an in-process lock is enough.
		return &stores{
			users:    sqlite.NewUserRepository(db),
			sessions: sqlite.NewSessionRepository(db),
			requests: sqlite.NewSessionRequestRepository(db),
			plans:    sqlite.NewTrainingPlanRepository(db),
			locker:   memory.NewBookingLocker(),
			close: func() {
				if err := db.Close(); err != nil {
					log.Error().Err(err).Msg("Failed to close SQLite database")
				}
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
