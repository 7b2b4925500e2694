package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	predictionsScored       atomic.Int64
	highRiskPredictions     atomic.Int64
	alertsOpened            atomic.Int64
	alertsMerged            atomic.Int64
	alertsAcknowledged      atomic.Int64
	alertsActioned          atomic.Int64
	alertsDismissed         atomic.Int64
	feedbackRecorded        atomic.Int64
	notificationsDispatched atomic.Int64
)

func PredictionScored(highRisk bool) {
	predictionsScored.Add(1)
	if highRisk {
		highRiskPredictions.Add(1)
	}
}

func AlertOpened()            { alertsOpened.Add(1) }
func AlertMerged()            { alertsMerged.Add(1) }
func AlertAcknowledged()      { alertsAcknowledged.Add(1) }
func AlertActioned()          { alertsActioned.Add(1) }
func AlertDismissed()         { alertsDismissed.Add(1) }
func FeedbackRecorded()       { feedbackRecorded.Add(1) }
func NotificationDispatched() { notificationsDispatched.Add(1) }

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP sepsiswatch_predictions_scored_total Number of risk predictions computed since process start.\n")
	fmt.Fprintf(w, "# TYPE sepsiswatch_predictions_scored_total counter\n")
	fmt.Fprintf(w, "sepsiswatch_predictions_scored_total %d\n", predictionsScored.Load())

	fmt.Fprintf(w, "# HELP sepsiswatch_high_risk_predictions_total Number of predictions flagged as sepsis risk.\n")
	fmt.Fprintf(w, "# TYPE sepsiswatch_high_risk_predictions_total counter\n")
	fmt.Fprintf(w, "sepsiswatch_high_risk_predictions_total %d\n", highRiskPredictions.Load())

	fmt.Fprintf(w, "# HELP sepsiswatch_alerts_opened_total Number of sepsis alerts opened.\n")
	fmt.Fprintf(w, "# TYPE sepsiswatch_alerts_opened_total counter\n")
	fmt.Fprintf(w, "sepsiswatch_alerts_opened_total %d\n", alertsOpened.Load())

	fmt.Fprintf(w, "# HELP sepsiswatch_alerts_merged_total Number of high-risk predictions merged into an already open alert.\n")
	fmt.Fprintf(w, "# TYPE sepsiswatch_alerts_merged_total counter\n")
	fmt.Fprintf(w, "sepsiswatch_alerts_merged_total %d\n", alertsMerged.Load())

	fmt.Fprintf(w, "# HELP sepsiswatch_alerts_acknowledged_total Number of alerts acknowledged by clinicians.\n")
	fmt.Fprintf(w, "# TYPE sepsiswatch_alerts_acknowledged_total counter\n")
	fmt.Fprintf(w, "sepsiswatch_alerts_acknowledged_total %d\n", alertsAcknowledged.Load())

	fmt.Fprintf(w, "# HELP sepsiswatch_alerts_actioned_total Number of alerts resolved as action_taken.\n")
	fmt.Fprintf(w, "# TYPE sepsiswatch_alerts_actioned_total counter\n")
	fmt.Fprintf(w, "sepsiswatch_alerts_actioned_total %d\n", alertsActioned.Load())

	fmt.Fprintf(w, "# HELP sepsiswatch_alerts_dismissed_total Number of alerts dismissed.\n")
	fmt.Fprintf(w, "# TYPE sepsiswatch_alerts_dismissed_total counter\n")
	fmt.Fprintf(w, "sepsiswatch_alerts_dismissed_total %d\n", alertsDismissed.Load())

	fmt.Fprintf(w, "# HELP sepsiswatch_feedback_recorded_total Number of clinician feedback entries recorded.\n")
	fmt.Fprintf(w, "# TYPE sepsiswatch_feedback_recorded_total counter\n")
	fmt.Fprintf(w, "sepsiswatch_feedback_recorded_total %d\n", feedbackRecorded.Load())

	fmt.Fprintf(w, "# HELP sepsiswatch_notifications_dispatched_total Number of alert notifications dispatched.\n")
	fmt.Fprintf(w, "# TYPE sepsiswatch_notifications_dispatched_total counter\n")
	fmt.Fprintf(w, "sepsiswatch_notifications_dispatched_total %d\n", notificationsDispatched.Load())
}
