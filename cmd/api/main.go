package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"imagehost/internal/blob"
	"imagehost/internal/config"
	"imagehost/internal/database"
	"imagehost/internal/events"
	"imagehost/internal/expiry"
	"imagehost/internal/logger"
	"imagehost/internal/middleware"
	"imagehost/internal/modules/image"
	jwtsvc "imagehost/internal/pkg/jwt"
	"imagehost/internal/repository"
)

const (
	shutdownTimeout = 10 * time.Second
	rearmLimit      = 10000
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "json")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	blobs, err := blob.Open(ctx, cfg)
	if err != nil {
		return err
	}

	images := repository.NewImageRepository(db)
	albums := repository.NewAlbumRepository(db)

	hub := events.NewHub(events.Options{
		KeepAlive: cfg.KeepAliveInterval,
		Buffer:    cfg.SubscriberBuffer,
	}, log)
	scheduler := expiry.NewScheduler(hub, log)
	opener := expiry.NewOpener(images, scheduler, hub, expiry.OpenerConfig{
		Windows: expiry.Windows{Owner: cfg.OpenWindow, Guest: cfg.GuestOpenWindow},
	}, log)
	sweeper := expiry.NewSweeper(images, blobs, hub, scheduler, expiry.SweeperConfig{
		Interval:      cfg.CleanupInterval,
		BatchSize:     cfg.SweepBatchSize,
		BlobBatchSize: cfg.BlobDeleteBatchSize,
	}, log)

	n, err := expiry.Rearm(ctx, images, scheduler, time.Now(), rearmLimit)
	if err != nil {
		return err
	}
	log.Info().Int("timers", n).Msg("expiry timers re-armed")

	j := jwtsvc.New(cfg.JWTSecret, 24*time.Hour)

	imageService := image.NewService(images, albums, blobs, scheduler, hub, image.Config{
		MaxFileSize:   cfg.MaxUploadBytes,
		BlobBatchSize: cfg.BlobDeleteBatchSize,
	}, log)
	imageHandler := image.NewHandler(imageService, opener, sweeper, hub, log)

	if cfg.IsProdLike() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.RequestLogger(log), middleware.CORS(cfg.CORSAllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if local, ok := blobs.(*blob.LocalStore); ok {
		r.Static("/uploads", local.Root())
	}

	api := r.Group("/api")
	imageHandler.RegisterRoutes(api, image.Guards{
		Optional: middleware.OptionalAuth(j),
		Required: middleware.JWTAuth(j),
		Internal: middleware.InternalTokenAuth(cfg.CleanupToken, log),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	hub.Start(ctx)
	sweeper.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Str("blob_backend", cfg.BlobBackend).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		// streams never finish on their own
		hub.Close()
		sweeper.Stop()
		scheduler.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
