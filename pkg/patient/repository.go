package patient

import (
	"context"
	"errors"
	"time"

	"github.com/sepsiswatch/platform/pkg/common/models"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("patient not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&PatientModel{}, &ClinicalDataModel{})
}

func (r *Repository) Create(ctx context.Context, m *PatientModel) error {
	m.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *Repository) Get(ctx context.Context, id string) (models.Patient, error) {
	var m PatientModel
	result := r.db.WithContext(ctx).First(&m, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return models.Patient{}, ErrNotFound
	}
	if result.Error != nil {
		return models.Patient{}, result.Error
	}
	return m.toDomain(), nil
}

// Exists is a lightweight presence check used before writes that reference a
// patient.
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&PatientModel{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (r *Repository) AddClinicalData(ctx context.Context, m *ClinicalDataModel) error {
	m.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(m).Error
}

// RecentClinicalData returns up to limit points for the patient, newest
// first.
func (r *Repository) RecentClinicalData(ctx context.Context, patientID string, skip, limit int) ([]models.ClinicalData, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []ClinicalDataModel
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("timestamp DESC").
		Offset(skip).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.ClinicalData, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}
