package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sepsiswatch/platform/pkg/common/logger"
	"github.com/sepsiswatch/platform/pkg/common/models"
	"github.com/sepsiswatch/platform/pkg/observability/metrics"
	"gorm.io/gorm"
)

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// transitions is the full status machine. An alert that has been
// acknowledged must resolve to action_taken; it can no longer be dismissed.
var transitions = map[string][]string{
	models.AlertPending:      {models.AlertAcknowledged, models.AlertDismissed},
	models.AlertAcknowledged: {models.AlertActionTaken},
	models.AlertActionTaken:  {},
	models.AlertDismissed:    {},
}

func transitionAllowed(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func validStatus(status string) bool {
	_, ok := transitions[status]
	return ok
}

// Engine owns the alert lifecycle: it decides whether a prediction opens an
// alert and enforces the status machine on updates.
type Engine struct {
	repo   *Repository
	policy SeverityPolicy

	// patientLocks serializes Evaluate per patient so the check-and-create
	// sequence cannot race within this process. The partial unique index in
	// the repository covers concurrent replicas.
	patientLocks sync.Map // patientID -> *sync.Mutex
}

func NewEngine(repo *Repository, policy SeverityPolicy) *Engine {
	return &Engine{repo: repo, policy: policy}
}

func (e *Engine) lockPatient(patientID string) func() {
	v, _ := e.patientLocks.LoadOrStore(patientID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Evaluate converts a qualifying prediction into an alert. It returns the
// open alert for the patient's risk episode and whether this call created
// it. A non-risk prediction yields (nil, false, nil). A second high-risk
// prediction while an alert is open merges into the existing alert as
// supporting evidence rather than spawning a duplicate.
//
// tx may carry the caller's transaction so the alert write commits or rolls
// back together with the prediction that triggered it.
func (e *Engine) Evaluate(ctx context.Context, tx *gorm.DB, pred models.Prediction) (*models.Alert, bool, error) {
	if !pred.IsSepsisRisk {
		return nil, false, nil
	}

	unlock := e.lockPatient(pred.PatientID)
	defer unlock()

	severity := e.policy.Severity(pred.Probability)

	open, err := e.repo.FindOpenByPatient(ctx, tx, pred.PatientID)
	if err == nil {
		at := pred.Timestamp
		if at.IsZero() {
			at = time.Now().UTC()
		}
		if err := e.repo.MergeEvidence(ctx, tx, open.ID, severity, at); err != nil {
			return nil, false, fmt.Errorf("merging alert evidence: %w", err)
		}
		merged, err := e.repo.FindOpenByPatient(ctx, tx, pred.PatientID)
		if err != nil {
			return nil, false, err
		}
		metrics.AlertMerged()
		logger.Log.WithFields(map[string]interface{}{
			"alert_id":      merged.ID,
			"patient_id":    pred.PatientID,
			"prediction_id": pred.ID,
			"severity":      merged.Severity,
		}).Info("Merged prediction into open alert")
		return &merged, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	m := &AlertModel{
		ID:            uuid.New().String(),
		PatientID:     pred.PatientID,
		PredictionID:  pred.ID,
		AlertType:     models.AlertTypeSepsisRisk,
		Severity:      severity,
		Status:        models.AlertPending,
		Message:       alertMessage(pred),
		EvidenceCount: 1,
	}
	if err := e.repo.Create(ctx, tx, m); err != nil {
		return nil, false, err
	}

	metrics.AlertOpened()
	logger.Log.WithFields(map[string]interface{}{
		"alert_id":      m.ID,
		"patient_id":    pred.PatientID,
		"prediction_id": pred.ID,
		"severity":      severity,
	}).Info("Opened sepsis alert")

	created := m.toDomain()
	return &created, true, nil
}

func alertMessage(pred models.Prediction) string {
	return fmt.Sprintf(
		"Sepsis risk detected for patient %s: probability %.1f%% (model %s). Review patient status and update this alert.",
		pred.PatientID, pred.Probability*100, pred.ModelVersion,
	)
}

// UpdateStatus applies one clinician-triggered transition. Concurrent
// attempts on the same alert produce exactly one winner; losers get
// ErrConflict and must re-read before retrying.
func (e *Engine) UpdateStatus(ctx context.Context, alertID, newStatus, actorID string) (models.Alert, error) {
	if !validStatus(newStatus) {
		return models.Alert{}, ValidationError{reason: fmt.Errorf("unknown alert status %q", newStatus)}
	}
	if actorID == "" {
		return models.Alert{}, ValidationError{reason: errors.New("acting user is required for status updates")}
	}

	current, err := e.repo.Get(ctx, alertID)
	if err != nil {
		return models.Alert{}, err
	}
	if !transitionAllowed(current.Status, newStatus) {
		return models.Alert{}, fmt.Errorf("%s -> %s: %w", current.Status, newStatus, ErrInvalidTransition)
	}

	rows, err := e.repo.Transition(ctx, alertID, current.Status, newStatus, actorID, time.Now().UTC())
	if err != nil {
		return models.Alert{}, err
	}
	if rows == 0 {
		if _, err := e.repo.Get(ctx, alertID); errors.Is(err, ErrNotFound) {
			return models.Alert{}, ErrNotFound
		}
		return models.Alert{}, ErrConflict
	}

	switch newStatus {
	case models.AlertAcknowledged:
		metrics.AlertAcknowledged()
	case models.AlertActionTaken:
		metrics.AlertActioned()
	case models.AlertDismissed:
		metrics.AlertDismissed()
	}

	logger.Log.WithFields(map[string]interface{}{
		"alert_id": alertID,
		"from":     current.Status,
		"to":       newStatus,
		"actor":    actorID,
	}).Info("Alert status updated")

	return e.repo.Get(ctx, alertID)
}

func (e *Engine) Get(ctx context.Context, id string) (models.Alert, error) {
	return e.repo.Get(ctx, id)
}

func (e *Engine) ListPending(ctx context.Context, skip, limit int) ([]models.Alert, error) {
	return e.repo.ListPending(ctx, skip, limit)
}

func (e *Engine) ListForPatient(ctx context.Context, patientID string, skip, limit int) ([]models.Alert, error) {
	return e.repo.ListForPatient(ctx, patientID, skip, limit)
}

func (e *Engine) ListOpenForPatient(ctx context.Context, patientID string) ([]models.Alert, error) {
	return e.repo.ListOpenForPatient(ctx, patientID)
}
