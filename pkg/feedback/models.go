package feedback

import (
	"time"

	"github.com/sepsiswatch/platform/pkg/common/models"
)

type FeedbackModel struct {
	ID           string    `gorm:"primaryKey;column:id"`
	PredictionID string    `gorm:"column:prediction_id;index"`
	UserID       string    `gorm:"column:user_id;index"`
	FeedbackType string    `gorm:"column:feedback_type"`
	Comments     string    `gorm:"column:comments;type:text"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (FeedbackModel) TableName() string { return "feedback" }

func (m *FeedbackModel) toDomain() models.Feedback {
	return models.Feedback{
		ID:           m.ID,
		PredictionID: m.PredictionID,
		UserID:       m.UserID,
		FeedbackType: m.FeedbackType,
		Comments:     m.Comments,
		CreatedAt:    m.CreatedAt,
	}
}
