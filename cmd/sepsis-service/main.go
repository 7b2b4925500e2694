package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sepsiswatch/platform/pkg/alert"
	"github.com/sepsiswatch/platform/pkg/common/config"
	"github.com/sepsiswatch/platform/pkg/common/database"
	"github.com/sepsiswatch/platform/pkg/common/kafka"
	"github.com/sepsiswatch/platform/pkg/common/logger"
	"github.com/sepsiswatch/platform/pkg/common/middleware"
	"github.com/sepsiswatch/platform/pkg/feedback"
	"github.com/sepsiswatch/platform/pkg/notify"
	"github.com/sepsiswatch/platform/pkg/observability/metrics"
	"github.com/sepsiswatch/platform/pkg/patient"
	"github.com/sepsiswatch/platform/pkg/prediction"
	"github.com/sepsiswatch/platform/pkg/scoring"
	"github.com/sepsiswatch/platform/pkg/summary"
)

func main() {
	logger.Init("sepsis-service")
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	patientRepo := patient.NewRepository(db)
	predictionRepo := prediction.NewRepository(db)
	alertRepo := alert.NewRepository(db)
	feedbackRepo := feedback.NewRepository(db)

	for name, migrate := range map[string]func() error{
		"patients":    patientRepo.AutoMigrate,
		"predictions": predictionRepo.AutoMigrate,
		"alerts":      alertRepo.AutoMigrate,
		"feedback":    feedbackRepo.AutoMigrate,
	} {
		if err := migrate(); err != nil {
			logger.Log.WithError(err).WithField("tables", name).Fatal("failed to migrate")
		}
	}

	policy, err := alert.LoadSeverityPolicy(cfg.SeverityPolicyPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load severity policy")
	}

	engine := alert.NewEngine(alertRepo, policy)
	scorer := scoring.NewScorer(cfg.ModelArtifactDir, cfg.ModelName, cfg.RiskThreshold)
	patientSvc := patient.NewService(patientRepo)

	producer := kafka.NewProducer(cfg.AlertEventTopic)
	defer producer.Close()

	predictionSvc := prediction.NewService(db, predictionRepo, patientSvc, scorer, engine, producer)
	feedbackSvc := feedback.NewService(feedbackRepo, predictionRepo)
	summarySvc := summary.NewService(patientSvc, predictionRepo, engine, cfg.SummaryRecentVitals, cfg.SummaryRecentPredictions)
	dispatcher := notify.NewDispatcher(database.GetRedis(), cfg.NotifyRecipients)

	router := mux.NewRouter()
	router.Use(middleware.Logging, middleware.Recovery, middleware.Actor)
	router.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := database.PingPostgres(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not ready","reason":"database unreachable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	patient.NewHTTPHandler(patientSvc, cfg.MaxRequestBody).Register(api)
	prediction.NewHTTPHandler(predictionSvc).Register(api)
	feedback.NewHTTPHandler(feedbackSvc, cfg.MaxRequestBody).Register(api)
	alert.NewHTTPHandler(engine, dispatcher, cfg.MaxRequestBody).Register(api)
	summary.NewHTTPHandler(summarySvc).Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Sepsis Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Sepsis Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	database.CloseRedis()
	database.ClosePostgres()

	logger.Log.Info("Sepsis Service stopped")
}
