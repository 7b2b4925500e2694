package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sepsiswatch/platform/pkg/common/models"
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

type CreatePatientInput struct {
	ID          string     `json:"id,omitempty"`
	MRN         string     `json:"mrn,omitempty"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Gender      string     `json:"gender,omitempty"`
}

type ClinicalDataInput struct {
	Timestamp        *time.Time `json:"timestamp,omitempty"`
	HeartRate        *float64   `json:"heart_rate,omitempty"`
	RespiratoryRate  *float64   `json:"respiratory_rate,omitempty"`
	Temperature      *float64   `json:"temperature,omitempty"`
	SystolicBP       *float64   `json:"systolic_bp,omitempty"`
	DiastolicBP      *float64   `json:"diastolic_bp,omitempty"`
	OxygenSaturation *float64   `json:"oxygen_saturation,omitempty"`
	BloodGlucose     *float64   `json:"blood_glucose,omitempty"`
	WBCCount         *float64   `json:"wbc_count,omitempty"`
	PlateletCount    *float64   `json:"platelet_count,omitempty"`
	Lactate          *float64   `json:"lactate,omitempty"`
	Creatinine       *float64   `json:"creatinine,omitempty"`
	Bilirubin        *float64   `json:"bilirubin,omitempty"`
}

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, input CreatePatientInput) (models.Patient, error) {
	if strings.TrimSpace(input.FirstName) == "" || strings.TrimSpace(input.LastName) == "" {
		return models.Patient{}, ValidationError{reason: errors.New("first_name and last_name are required")}
	}

	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = uuid.New().String()
	}

	m := &PatientModel{
		ID:          id,
		MRN:         strings.TrimSpace(input.MRN),
		FirstName:   strings.TrimSpace(input.FirstName),
		LastName:    strings.TrimSpace(input.LastName),
		DateOfBirth: input.DateOfBirth,
		Gender:      strings.TrimSpace(input.Gender),
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return models.Patient{}, fmt.Errorf("persisting patient: %w", err)
	}
	return m.toDomain(), nil
}

func (s *Service) Get(ctx context.Context, id string) (models.Patient, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) AddClinicalData(ctx context.Context, patientID string, input ClinicalDataInput) (models.ClinicalData, error) {
	exists, err := s.repo.Exists(ctx, patientID)
	if err != nil {
		return models.ClinicalData{}, err
	}
	if !exists {
		return models.ClinicalData{}, ErrNotFound
	}

	if !input.hasMeasurement() {
		return models.ClinicalData{}, ValidationError{reason: errors.New("at least one measurement is required")}
	}

	ts := time.Now().UTC()
	if input.Timestamp != nil {
		ts = input.Timestamp.UTC()
	}

	m := &ClinicalDataModel{
		ID:               uuid.New().String(),
		PatientID:        patientID,
		Timestamp:        ts,
		HeartRate:        input.HeartRate,
		RespiratoryRate:  input.RespiratoryRate,
		Temperature:      input.Temperature,
		SystolicBP:       input.SystolicBP,
		DiastolicBP:      input.DiastolicBP,
		OxygenSaturation: input.OxygenSaturation,
		BloodGlucose:     input.BloodGlucose,
		WBCCount:         input.WBCCount,
		PlateletCount:    input.PlateletCount,
		Lactate:          input.Lactate,
		Creatinine:       input.Creatinine,
		Bilirubin:        input.Bilirubin,
	}
	if err := s.repo.AddClinicalData(ctx, m); err != nil {
		return models.ClinicalData{}, fmt.Errorf("persisting clinical data: %w", err)
	}
	return m.toDomain(), nil
}

func (s *Service) RecentClinicalData(ctx context.Context, patientID string, skip, limit int) ([]models.ClinicalData, error) {
	exists, err := s.repo.Exists(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	return s.repo.RecentClinicalData(ctx, patientID, skip, limit)
}

// LatestFeatures builds the scoring feature vector from the patient's most
// recent clinical data.
func (s *Service) LatestFeatures(ctx context.Context, patientID string) (map[string]float64, error) {
	points, err := s.RecentClinicalData(ctx, patientID, 0, 50)
	if err != nil {
		return nil, err
	}
	return FeatureVector(points), nil
}

func (i ClinicalDataInput) hasMeasurement() bool {
	for _, v := range []*float64{
		i.HeartRate, i.RespiratoryRate, i.Temperature,
		i.SystolicBP, i.DiastolicBP, i.OxygenSaturation,
		i.BloodGlucose, i.WBCCount, i.PlateletCount,
		i.Lactate, i.Creatinine, i.Bilirubin,
	} {
		if v != nil {
			return true
		}
	}
	return false
}
