package patient

import (
	"time"

	"github.com/sepsiswatch/platform/pkg/common/models"
)

type PatientModel struct {
	ID          string     `gorm:"primaryKey;column:id"`
	MRN         string     `gorm:"column:mrn;index"`
	FirstName   string     `gorm:"column:first_name"`
	LastName    string     `gorm:"column:last_name"`
	DateOfBirth *time.Time `gorm:"column:date_of_birth"`
	Gender      string     `gorm:"column:gender"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
}

func (PatientModel) TableName() string { return "patients" }

type ClinicalDataModel struct {
	ID               string    `gorm:"primaryKey;column:id"`
	PatientID        string    `gorm:"column:patient_id;index"`
	Timestamp        time.Time `gorm:"column:timestamp;index"`
	HeartRate        *float64  `gorm:"column:heart_rate"`
	RespiratoryRate  *float64  `gorm:"column:respiratory_rate"`
	Temperature      *float64  `gorm:"column:temperature"`
	SystolicBP       *float64  `gorm:"column:systolic_bp"`
	DiastolicBP      *float64  `gorm:"column:diastolic_bp"`
	OxygenSaturation *float64  `gorm:"column:oxygen_saturation"`
	BloodGlucose     *float64  `gorm:"column:blood_glucose"`
	WBCCount         *float64  `gorm:"column:wbc_count"`
	PlateletCount    *float64  `gorm:"column:platelet_count"`
	Lactate          *float64  `gorm:"column:lactate"`
	Creatinine       *float64  `gorm:"column:creatinine"`
	Bilirubin        *float64  `gorm:"column:bilirubin"`
	CreatedAt        time.Time `gorm:"column:created_at"`
}

func (ClinicalDataModel) TableName() string { return "clinical_data" }

func (m *PatientModel) toDomain() models.Patient {
	return models.Patient{
		ID:          m.ID,
		MRN:         m.MRN,
		FirstName:   m.FirstName,
		LastName:    m.LastName,
		DateOfBirth: m.DateOfBirth,
		Gender:      m.Gender,
		CreatedAt:   m.CreatedAt,
	}
}

func (m *ClinicalDataModel) toDomain() models.ClinicalData {
	return models.ClinicalData{
		ID:               m.ID,
		PatientID:        m.PatientID,
		Timestamp:        m.Timestamp,
		HeartRate:        m.HeartRate,
		RespiratoryRate:  m.RespiratoryRate,
		Temperature:      m.Temperature,
		SystolicBP:       m.SystolicBP,
		DiastolicBP:      m.DiastolicBP,
		OxygenSaturation: m.OxygenSaturation,
		BloodGlucose:     m.BloodGlucose,
		WBCCount:         m.WBCCount,
		PlateletCount:    m.PlateletCount,
		Lactate:          m.Lactate,
		Creatinine:       m.Creatinine,
		Bilirubin:        m.Bilirubin,
		CreatedAt:        m.CreatedAt,
	}
}

// vitalFields maps feature names to accessors on a clinical data point. The
// ordering matches the model's standard sepsis panel.
var vitalFields = []struct {
	Name string
	Get  func(models.ClinicalData) *float64
}{
	{"heart_rate", func(c models.ClinicalData) *float64 { return c.HeartRate }},
	{"respiratory_rate", func(c models.ClinicalData) *float64 { return c.RespiratoryRate }},
	{"temperature", func(c models.ClinicalData) *float64 { return c.Temperature }},
	{"systolic_bp", func(c models.ClinicalData) *float64 { return c.SystolicBP }},
	{"diastolic_bp", func(c models.ClinicalData) *float64 { return c.DiastolicBP }},
	{"oxygen_saturation", func(c models.ClinicalData) *float64 { return c.OxygenSaturation }},
	{"blood_glucose", func(c models.ClinicalData) *float64 { return c.BloodGlucose }},
	{"wbc_count", func(c models.ClinicalData) *float64 { return c.WBCCount }},
	{"platelet_count", func(c models.ClinicalData) *float64 { return c.PlateletCount }},
	{"lactate", func(c models.ClinicalData) *float64 { return c.Lactate }},
	{"creatinine", func(c models.ClinicalData) *float64 { return c.Creatinine }},
	{"bilirubin", func(c models.ClinicalData) *float64 { return c.Bilirubin }},
}

// LatestVitals walks clinical data points (any order) and keeps, per vital,
// the most recently observed non-null value together with its timestamp.
func LatestVitals(points []models.ClinicalData) map[string]models.VitalReading {
	latest := make(map[string]models.VitalReading)
	for _, point := range points {
		for _, field := range vitalFields {
			value := field.Get(point)
			if value == nil {
				continue
			}
			current, seen := latest[field.Name]
			if !seen || point.Timestamp.After(current.ObservedAt) {
				latest[field.Name] = models.VitalReading{Value: *value, ObservedAt: point.Timestamp}
			}
		}
	}
	return latest
}

// FeatureVector flattens the latest vitals into the map the risk scorer
// consumes.
func FeatureVector(points []models.ClinicalData) map[string]float64 {
	features := make(map[string]float64)
	for name, reading := range LatestVitals(points) {
		features[name] = reading.Value
	}
	return features
}
