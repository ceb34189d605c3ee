// Command server runs the complaint triage HTTP API.
//
//	@title			Complaint Triage API
//	@version		1.0
//	@description	Classifies customer complaints with an LLM, stores them, and streams changes to live dashboards.
//	@BasePath		/api/v1
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
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-complaint-triage/docs"
	"github.com/tbourn/go-complaint-triage/internal/classifier"
	"github.com/tbourn/go-complaint-triage/internal/config"
	httpapi "github.com/tbourn/go-complaint-triage/internal/http"
	"github.com/tbourn/go-complaint-triage/internal/notify"
	"github.com/tbourn/go-complaint-triage/internal/observability"
	"github.com/tbourn/go-complaint-triage/internal/repo"
	"github.com/tbourn/go-complaint-triage/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: reading .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	sysutil.ConfigureLogging(cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName, os.Stderr)
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, ver, observability.ServiceAttributes(cfg)...)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup failed")
	}

	db, err := repo.Open(repo.Options{
		Driver: cfg.DB.Driver,
		Path:   cfg.DB.Path,
		DSN:    cfg.DB.URL,
		Trace:  cfg.OTEL.Enabled,
	})
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	clf, err := buildClassifier(cfg.Classifier)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.Classifier.Provider).Msg("classifier")
	}

	// The server, the notifier relay and the shutdown watcher share one
	// group; a failing server cancels gctx and triggers shutdown.
	g, gctx := errgroup.WithContext(ctx)

	hub := notify.NewHub()
	pub, closeNotifier, err := startNotifier(gctx, g, cfg, db, hub)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Notify.Backend).Msg("notifier")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, clf, pub, hub, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g.Go(func() error {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", ver).
			Str("db", cfg.DB.Driver).
			Str("classifier", cfg.Classifier.Provider).
			Str("notify", cfg.Notify.Backend).
			Msg("complaint triage listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		// Closing the hub ends open streams, which lets Shutdown drain them.
		_ = hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
		closeNotifier()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server failed")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	tracingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(tracingCtx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown")
	}
	log.Info().Msg("complaint triage stopped")
}

func buildClassifier(cc config.ClassifierConfig) (classifier.Classifier, error) {
	switch cc.Provider {
	case config.ProviderRules:
		if cc.RulesPath != "" {
			return classifier.NewRulesFromMarkdown(cc.RulesPath)
		}
		return classifier.NewDefaultRules(), nil
	default:
		return classifier.NewOpenAI(classifier.OpenAIConfig{
			APIKey:      cc.APIKey,
			BaseURL:     cc.BaseURL,
			Model:       cc.Model,
			Temperature: float32(cc.Temperature),
			MaxTokens:   cc.MaxTokens,
			JSONMode:    cc.JSONMode,
			Timeout:     cc.Timeout,
			MaxRetries:  cc.MaxRetries,
			RetryBase:   cc.RetryBase,
			RetryMax:    cc.RetryMax,
		})
	}
}

// startNotifier wires the configured backend to hub and returns the
// publisher the service announces inserts through, plus its cleanup. Relay
// loops run in g until ctx ends; a relay that stops is logged, not fatal.
func startNotifier(ctx context.Context, g *errgroup.Group, cfg config.Config, db *gorm.DB, hub *notify.Hub) (notify.Publisher, func(), error) {
	switch cfg.Notify.Backend {
	case config.NotifyRedis:
		rdb, err := notify.NewRedisClient(cfg.Notify.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		broker := notify.NewRedisBroker(rdb, cfg.Notify.Channel, hub)
		g.Go(func() error {
			if err := broker.Run(ctx); err != nil {
				log.Error().Err(err).Msg("redis notifier stopped")
			}
			return nil
		})
		return broker, func() { _ = broker.Close() }, nil

	case config.NotifyPostgres:
		if err := repo.InstallChangeTrigger(db, cfg.Notify.Channel); err != nil {
			return nil, nil, err
		}
		ln := notify.NewPGListener(cfg.DB.URL, cfg.Notify.Channel, hub)
		g.Go(func() error {
			if err := ln.Run(ctx); err != nil {
				log.Error().Err(err).Msg("postgres notifier stopped")
			}
			return nil
		})
		return ln, func() {}, nil

	default:
		return hub, func() {}, nil
	}
}
