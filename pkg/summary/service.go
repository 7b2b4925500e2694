package summary

import (
	"context"
	"fmt"

	"github.com/sepsiswatch/platform/pkg/alert"
	"github.com/sepsiswatch/platform/pkg/common/models"
	"github.com/sepsiswatch/platform/pkg/patient"
	"github.com/sepsiswatch/platform/pkg/prediction"
)

// Service composes the consolidated patient read view. It is a pure join
// with no side effects: every source may be empty and the summary still
// renders.
type Service struct {
	patients    *patient.Service
	predictions *prediction.Repository
	alerts      *alert.Engine

	recentVitals      int
	recentPredictions int
}

func NewService(patients *patient.Service, predictions *prediction.Repository, alerts *alert.Engine, recentVitals, recentPredictions int) *Service {
	if recentVitals <= 0 {
		recentVitals = 10
	}
	if recentPredictions <= 0 {
		recentPredictions = 10
	}
	return &Service{
		patients:          patients,
		predictions:       predictions,
		alerts:            alerts,
		recentVitals:      recentVitals,
		recentPredictions: recentPredictions,
	}
}

func (s *Service) Summarize(ctx context.Context, patientID string) (models.PatientSummary, error) {
	p, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return models.PatientSummary{}, err
	}

	// Vitals extraction scans a wider window than the view shows, so a lab
	// value reported days ago still surfaces in latest_vitals.
	clinicalWindow, err := s.patients.RecentClinicalData(ctx, patientID, 0, 50)
	if err != nil {
		return models.PatientSummary{}, fmt.Errorf("loading clinical data: %w", err)
	}

	recent := clinicalWindow
	if len(recent) > s.recentVitals {
		recent = recent[:s.recentVitals]
	}

	preds, err := s.predictions.History(ctx, patientID, 0, s.recentPredictions)
	if err != nil {
		return models.PatientSummary{}, fmt.Errorf("loading predictions: %w", err)
	}

	var latest *models.Prediction
	if len(preds) > 0 {
		latest = &preds[0]
	}

	open, err := s.alerts.ListOpenForPatient(ctx, patientID)
	if err != nil {
		return models.PatientSummary{}, fmt.Errorf("loading alerts: %w", err)
	}

	return models.PatientSummary{
		Patient:            p,
		LatestVitals:       patient.LatestVitals(clinicalWindow),
		RecentClinicalData: recent,
		SepsisPredictions:  preds,
		LatestPrediction:   latest,
		ActiveAlerts:       open,
		AlertCount:         len(open),
	}, nil
}
