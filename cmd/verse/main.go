// Command verse runs the Verse API server: REST endpoints, the websocket
// gateway and the metrics listener on one port.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	app "github.com/verse-social/verse/internal/app"
	"github.com/verse-social/verse/internal/app/auth"
	"github.com/verse-social/verse/internal/app/httpapi"
	"github.com/verse-social/verse/internal/app/metrics"
	"github.com/verse-social/verse/internal/app/storage/mongodb"
	"github.com/verse-social/verse/internal/config"
	"github.com/verse-social/verse/internal/middleware"
	"github.com/verse-social/verse/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.NewDefault("main").WithError(err).Error("failed to load config")
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}).
		WithField("component", "main")

	secret := cfg.Auth.Secret
	if secret == "" {
		log.Warn("JWT_SECRET not set; using an insecure development secret")
		secret = "verse-dev-secret"
	}
	tokens, err := auth.NewManager(secret, cfg.Auth.TokenTTL)
	if err != nil {
		log.WithError(err).Error("failed to initialise auth")
		os.Exit(1)
	}

	stores := app.Stores{}
	var mongoStore *mongodb.Store
	if cfg.Mongo.URI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		mongoStore, err = mongodb.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		cancel()
		if err != nil {
			log.WithError(err).Error("failed to connect to mongodb")
			os.Exit(1)
		}
		stores = app.Stores{
			Users:      mongoStore,
			Posts:      mongoStore,
			Messages:   mongoStore,
			Challenges: mongoStore,
		}
		log.WithField("database", cfg.Mongo.Database).Info("using mongodb storage")
	} else {
		log.Warn("MONGO_URI not set; using in-memory storage")
	}

	application, err := app.New(stores, tokens, log)
	if err != nil {
		log.WithError(err).Error("failed to build application")
		os.Exit(1)
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = application.Start(startCtx)
	startCancel()
	if err != nil {
		log.WithError(err).Error("failed to start application")
		os.Exit(1)
	}

	cors := middleware.NewCORSMiddleware(cfg.HTTP.AllowedOrigins)
	limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst, log)
	limiter.StartCleanup(time.Minute)

	handler := httpapi.NewHandler(application, httpapi.Options{UploadDir: cfg.UploadDir})
	handler = metrics.InstrumentHandler(handler)
	handler = limiter.Handler(handler)
	handler = cors.Handler(handler)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("server listening")
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		log.WithError(err).Error("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application shutdown")
	}
	if mongoStore != nil {
		if err := mongoStore.Close(shutdownCtx); err != nil {
			log.WithError(err).Warn("mongodb disconnect")
		}
	}
	log.Info("shutdown complete")
}
