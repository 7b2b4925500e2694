package prediction

import (
	"context"
	"errors"

	"github.com/sepsiswatch/platform/pkg/common/models"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("prediction not found")

// Repository stores predictions. Records are immutable: there are no update
// or delete paths, by contract.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&PredictionModel{})
}

func (r *Repository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *Repository) Create(ctx context.Context, tx *gorm.DB, m *PredictionModel) error {
	return r.conn(tx).WithContext(ctx).Create(m).Error
}

func (r *Repository) Get(ctx context.Context, id string) (models.Prediction, error) {
	var m PredictionModel
	result := r.db.WithContext(ctx).First(&m, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return models.Prediction{}, ErrNotFound
	}
	if result.Error != nil {
		return models.Prediction{}, result.Error
	}
	return m.toDomain(), nil
}

func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&PredictionModel{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// History returns the patient's predictions newest first.
func (r *Repository) History(ctx context.Context, patientID string, skip, limit int) ([]models.Prediction, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []PredictionModel
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("timestamp DESC").
		Offset(skip).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.Prediction, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}
