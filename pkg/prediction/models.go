package prediction

import (
	"encoding/json"
	"time"

	"github.com/sepsiswatch/platform/pkg/common/models"
	"gorm.io/datatypes"
)

type PredictionModel struct {
	ID           string            `gorm:"primaryKey;column:id"`
	PatientID    string            `gorm:"column:patient_id;index"`
	Probability  float64           `gorm:"column:probability"`
	IsSepsisRisk bool              `gorm:"column:is_sepsis_risk"`
	FeaturesUsed datatypes.JSONMap `gorm:"column:features_used"`
	ModelVersion string            `gorm:"column:model_version"`
	Timestamp    time.Time         `gorm:"column:timestamp;index"`
	Explanation  datatypes.JSON    `gorm:"column:explanation"`
}

func (PredictionModel) TableName() string { return "sepsis_predictions" }

func (m *PredictionModel) toDomain() models.Prediction {
	p := models.Prediction{
		ID:           m.ID,
		PatientID:    m.PatientID,
		Probability:  m.Probability,
		IsSepsisRisk: m.IsSepsisRisk,
		ModelVersion: m.ModelVersion,
		Timestamp:    m.Timestamp,
	}
	if len(m.FeaturesUsed) > 0 {
		p.FeaturesUsed = make(map[string]float64, len(m.FeaturesUsed))
		for name, value := range m.FeaturesUsed {
			if f, ok := value.(float64); ok {
				p.FeaturesUsed[name] = f
			}
		}
	}
	if len(m.Explanation) > 0 {
		var exp models.Explanation
		if err := json.Unmarshal(m.Explanation, &exp); err == nil && len(exp.Features) > 0 {
			p.Explanation = &exp
		}
	}
	return p
}

func featuresToJSONMap(features map[string]float64) datatypes.JSONMap {
	if len(features) == 0 {
		return nil
	}
	out := make(datatypes.JSONMap, len(features))
	for name, value := range features {
		out[name] = value
	}
	return out
}

func explanationToJSON(exp *models.Explanation) (datatypes.JSON, error) {
	if exp == nil {
		return nil, nil
	}
	raw, err := json.Marshal(exp)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
