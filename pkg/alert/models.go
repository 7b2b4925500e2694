package alert

import (
	"time"

	"github.com/sepsiswatch/platform/pkg/common/models"
)

type AlertModel struct {
	ID             string     `gorm:"primaryKey;column:id"`
	PatientID      string     `gorm:"column:patient_id;index"`
	PredictionID   string     `gorm:"column:prediction_id;index"`
	AlertType      string     `gorm:"column:alert_type"`
	Severity       int        `gorm:"column:severity"`
	Status         string     `gorm:"column:status;index"`
	Message        string     `gorm:"column:message;type:text"`
	EvidenceCount  int        `gorm:"column:evidence_count"`
	LastEvidenceAt *time.Time `gorm:"column:last_evidence_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;index"`
	AcknowledgedAt *time.Time `gorm:"column:acknowledged_at"`
	AcknowledgedBy string     `gorm:"column:acknowledged_by"`
}

func (AlertModel) TableName() string { return "alerts" }

func (m *AlertModel) toDomain() models.Alert {
	return models.Alert{
		ID:             m.ID,
		PatientID:      m.PatientID,
		PredictionID:   m.PredictionID,
		AlertType:      m.AlertType,
		Severity:       m.Severity,
		Status:         m.Status,
		Message:        m.Message,
		EvidenceCount:  m.EvidenceCount,
		LastEvidenceAt: m.LastEvidenceAt,
		CreatedAt:      m.CreatedAt,
		AcknowledgedAt: m.AcknowledgedAt,
		AcknowledgedBy: m.AcknowledgedBy,
	}
}

func toDomainSlice(rows []AlertModel) []models.Alert {
	out := make([]models.Alert, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out
}
