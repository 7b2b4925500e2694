package prediction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sepsiswatch/platform/pkg/alert"
	"github.com/sepsiswatch/platform/pkg/common/kafka"
	"github.com/sepsiswatch/platform/pkg/common/logger"
	"github.com/sepsiswatch/platform/pkg/common/models"
	"github.com/sepsiswatch/platform/pkg/observability/metrics"
	"github.com/sepsiswatch/platform/pkg/patient"
	"github.com/sepsiswatch/platform/pkg/scoring"
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

// RecordInput is a fully scored prediction ready to persist.
type RecordInput struct {
	PatientID    string
	Probability  float64
	IsSepsisRisk bool
	FeaturesUsed map[string]float64
	ModelVersion string
	Explanation  *models.Explanation
}

func (in RecordInput) validate() error {
	if in.PatientID == "" {
		return ValidationError{reason: errors.New("patient_id is required")}
	}
	if in.Probability < 0 || in.Probability > 1 {
		return ValidationError{reason: fmt.Errorf("probability %v outside [0,1]", in.Probability)}
	}
	if in.ModelVersion == "" {
		return ValidationError{reason: errors.New("model_version is required")}
	}
	if in.Explanation != nil && len(in.Explanation.Features) != len(in.Explanation.ShapValues) {
		return ValidationError{reason: fmt.Errorf(
			"explanation misaligned: %d features vs %d shap values",
			len(in.Explanation.Features), len(in.Explanation.ShapValues),
		)}
	}
	return nil
}

// ScoreOutcome is what one scoring pass produces: the stored prediction plus
// the alert the engine opened or extended, if any.
type ScoreOutcome struct {
	Prediction   models.Prediction `json:"prediction"`
	Alert        *models.Alert     `json:"alert,omitempty"`
	AlertCreated bool              `json:"alert_created"`
}

type Service struct {
	db       *gorm.DB
	repo     *Repository
	patients *patient.Service
	scorer   *scoring.Scorer
	engine   *alert.Engine
	events   *kafka.Producer
}

// NewService wires the scoring pipeline. events may be nil when no broker is
// configured; alert creation then goes unannounced but is still stored.
func NewService(db *gorm.DB, repo *Repository, patients *patient.Service, scorer *scoring.Scorer, engine *alert.Engine, events *kafka.Producer) *Service {
	return &Service{db: db, repo: repo, patients: patients, scorer: scorer, engine: engine, events: events}
}

// Record validates and persists a prediction, assigning its identifier and
// server timestamp. Used directly by tests and by ScoreAndRecord.
func (s *Service) Record(ctx context.Context, tx *gorm.DB, in RecordInput) (models.Prediction, error) {
	if err := in.validate(); err != nil {
		return models.Prediction{}, err
	}

	expJSON, err := explanationToJSON(in.Explanation)
	if err != nil {
		return models.Prediction{}, fmt.Errorf("encoding explanation: %w", err)
	}

	m := &PredictionModel{
		ID:           uuid.New().String(),
		PatientID:    in.PatientID,
		Probability:  in.Probability,
		IsSepsisRisk: in.IsSepsisRisk,
		FeaturesUsed: featuresToJSONMap(in.FeaturesUsed),
		ModelVersion: in.ModelVersion,
		Timestamp:    time.Now().UTC(),
		Explanation:  expJSON,
	}
	if err := s.repo.Create(ctx, tx, m); err != nil {
		return models.Prediction{}, fmt.Errorf("persisting prediction: %w", err)
	}
	return m.toDomain(), nil
}

// ScoreAndRecord runs the whole pipeline for a patient: gather the latest
// feature vector, invoke the risk scorer, persist the prediction, and let
// the alert engine evaluate it. Persist and evaluate share one transaction,
// so a failure in either leaves neither behind; a scoring failure writes
// nothing at all.
func (s *Service) ScoreAndRecord(ctx context.Context, patientID string) (ScoreOutcome, error) {
	features, err := s.patients.LatestFeatures(ctx, patientID)
	if err != nil {
		if errors.Is(err, patient.ErrNotFound) {
			return ScoreOutcome{}, patient.ErrNotFound
		}
		return ScoreOutcome{}, fmt.Errorf("loading features: %w", err)
	}

	result, err := s.scorer.Score(features)
	if err != nil {
		return ScoreOutcome{}, fmt.Errorf("scoring patient %s: %w", patientID, err)
	}

	var outcome ScoreOutcome
	err = s.db.Transaction(func(tx *gorm.DB) error {
		pred, err := s.Record(ctx, tx, RecordInput{
			PatientID:    patientID,
			Probability:  result.Probability,
			IsSepsisRisk: result.IsSepsisRisk,
			FeaturesUsed: result.FeaturesUsed,
			ModelVersion: result.ModelVersion,
			Explanation:  result.Explanation,
		})
		if err != nil {
			return err
		}

		a, created, err := s.engine.Evaluate(ctx, tx, pred)
		if err != nil {
			return err
		}

		outcome = ScoreOutcome{Prediction: pred, Alert: a, AlertCreated: created}
		return nil
	})
	if err != nil {
		return ScoreOutcome{}, err
	}

	metrics.PredictionScored(outcome.Prediction.IsSepsisRisk)

	logger.Log.WithFields(map[string]interface{}{
		"patient_id":    patientID,
		"prediction_id": outcome.Prediction.ID,
		"probability":   outcome.Prediction.Probability,
		"is_risk":       outcome.Prediction.IsSepsisRisk,
	}).Info("Recorded sepsis prediction")

	// Announce after commit so the notifier never sees a rolled-back alert,
	// and only on creation so one episode produces one dispatch.
	if outcome.AlertCreated && s.events != nil {
		if err := s.events.PublishEvent(ctx, "alert.created", "alert-engine", alertEventPayload(*outcome.Alert)); err != nil {
			logger.Log.WithError(err).WithField("alert_id", outcome.Alert.ID).Error("failed to announce alert")
		}
	}

	return outcome, nil
}

func alertEventPayload(a models.Alert) map[string]interface{} {
	return map[string]interface{}{
		"alert_id":      a.ID,
		"patient_id":    a.PatientID,
		"prediction_id": a.PredictionID,
		"alert_type":    a.AlertType,
		"severity":      a.Severity,
		"status":        a.Status,
		"message":       a.Message,
		"created_at":    a.CreatedAt,
	}
}

func (s *Service) Get(ctx context.Context, id string) (models.Prediction, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) History(ctx context.Context, patientID string, skip, limit int) ([]models.Prediction, error) {
	if _, err := s.patients.Get(ctx, patientID); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, patientID, skip, limit)
}
