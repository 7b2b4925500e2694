package feedback

import (
	"context"
	"time"

	"github.com/sepsiswatch/platform/pkg/common/models"
	"gorm.io/gorm"
)

// Repository appends feedback entries. The ledger is append-only: no update
// or delete path exists, entries are permanent audit records.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&FeedbackModel{})
}

func (r *Repository) Create(ctx context.Context, m *FeedbackModel) error {
	m.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(m).Error
}

// ListForPrediction returns entries oldest first, audit trail order.
func (r *Repository) ListForPrediction(ctx context.Context, predictionID string) ([]models.Feedback, error) {
	var rows []FeedbackModel
	err := r.db.WithContext(ctx).
		Where("prediction_id = ?", predictionID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.Feedback, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (r *Repository) ListForUser(ctx context.Context, userID string, skip, limit int) ([]models.Feedback, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []FeedbackModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(skip).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.Feedback, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}
