package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sepsiswatch/platform/pkg/common/config"
	"github.com/sepsiswatch/platform/pkg/common/database"
	"github.com/sepsiswatch/platform/pkg/common/kafka"
	"github.com/sepsiswatch/platform/pkg/common/logger"
	"github.com/sepsiswatch/platform/pkg/common/models"
	"github.com/sepsiswatch/platform/pkg/notify"
)

func main() {
	logger.Init("alert-notifier")
	cfg := config.Load()

	dispatcher := notify.NewDispatcher(database.GetRedis(), cfg.NotifyRecipients)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := database.PingRedis(pingCtx); err != nil {
		logger.Log.WithError(err).Warn("Redis unreachable, pub/sub fan-out degraded until it recovers")
	}
	pingCancel()

	consumer := kafka.NewConsumer(cfg.AlertEventTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.Log.WithField("topic", cfg.AlertEventTopic).Info("Alert Notifier started")
		err := consumer.Consume(ctx, func(ctx context.Context, event models.Event) error {
			if event.Type != "alert.created" {
				return nil
			}
			return dispatcher.Dispatch(ctx, alertFromEvent(event))
		})
		if err != nil && err != context.Canceled {
			logger.Log.WithError(err).Error("consumer stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Alert Notifier...")
	cancel()

	database.CloseRedis()
	logger.Log.Info("Alert Notifier stopped")
}

func alertFromEvent(event models.Event) models.Alert {
	a := models.Alert{
		ID:           stringField(event.Data, "alert_id"),
		PatientID:    stringField(event.Data, "patient_id"),
		PredictionID: stringField(event.Data, "prediction_id"),
		AlertType:    stringField(event.Data, "alert_type"),
		Status:       stringField(event.Data, "status"),
		Message:      stringField(event.Data, "message"),
		CreatedAt:    event.Timestamp,
	}
	if severity, ok := event.Data["severity"].(float64); ok {
		a.Severity = int(severity)
	}
	if raw, ok := event.Data["created_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			a.CreatedAt = ts
		}
	}
	return a
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
