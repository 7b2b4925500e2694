package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sepsiswatch/platform/pkg/common/logger"
	"github.com/sepsiswatch/platform/pkg/common/models"
	"github.com/sepsiswatch/platform/pkg/observability/metrics"
	"github.com/sepsiswatch/platform/pkg/prediction"
)

var ErrPredictionNotFound = errors.New("prediction not found")

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

var validTypes = map[string]struct{}{
	models.FeedbackCorrect:       {},
	models.FeedbackFalsePositive: {},
	models.FeedbackFalseNegative: {},
	models.FeedbackUnsure:        {},
}

type Service struct {
	repo        *Repository
	predictions *prediction.Repository
}

func NewService(repo *Repository, predictions *prediction.Repository) *Service {
	return &Service{repo: repo, predictions: predictions}
}

// Submit appends one feedback entry against a prediction. There is no
// uniqueness constraint across (prediction, user): a clinician who
// reconsiders submits again and both entries are kept.
func (s *Service) Submit(ctx context.Context, predictionID, userID, feedbackType, comments string) (models.Feedback, error) {
	feedbackType = strings.TrimSpace(strings.ToLower(feedbackType))
	if _, ok := validTypes[feedbackType]; !ok {
		return models.Feedback{}, ValidationError{reason: fmt.Errorf("unknown feedback type %q", feedbackType)}
	}
	if userID == "" {
		return models.Feedback{}, ValidationError{reason: errors.New("acting user is required")}
	}

	exists, err := s.predictions.Exists(ctx, predictionID)
	if err != nil {
		return models.Feedback{}, err
	}
	if !exists {
		return models.Feedback{}, ErrPredictionNotFound
	}

	m := &FeedbackModel{
		ID:           uuid.New().String(),
		PredictionID: predictionID,
		UserID:       userID,
		FeedbackType: feedbackType,
		Comments:     comments,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return models.Feedback{}, fmt.Errorf("persisting feedback: %w", err)
	}

	metrics.FeedbackRecorded()
	logger.Log.WithFields(map[string]interface{}{
		"feedback_id":   m.ID,
		"prediction_id": predictionID,
		"user_id":       userID,
		"feedback_type": feedbackType,
	}).Info("Recorded prediction feedback")

	return m.toDomain(), nil
}

func (s *Service) ListForPrediction(ctx context.Context, predictionID string) ([]models.Feedback, error) {
	exists, err := s.predictions.Exists(ctx, predictionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrPredictionNotFound
	}
	return s.repo.ListForPrediction(ctx, predictionID)
}

func (s *Service) ListForUser(ctx context.Context, userID string, skip, limit int) ([]models.Feedback, error) {
	return s.repo.ListForUser(ctx, userID, skip, limit)
}
