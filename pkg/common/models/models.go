package models

import "time"

// Patient is the demographic record consumed by the summary view. Identity
// management and FHIR synchronization live outside this service; patients are
// registered here with whatever identifier the upstream system assigned.
type Patient struct {
	ID          string     `json:"id"`
	MRN         string     `json:"mrn,omitempty"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ClinicalData is one timestamped observation point. All measurements are
// optional; a point carries whichever vitals and labs arrived together.
type ClinicalData struct {
	ID               string    `json:"id"`
	PatientID        string    `json:"patient_id"`
	Timestamp        time.Time `json:"timestamp"`
	HeartRate        *float64  `json:"heart_rate,omitempty"`
	RespiratoryRate  *float64  `json:"respiratory_rate,omitempty"`
	Temperature      *float64  `json:"temperature,omitempty"`
	SystolicBP       *float64  `json:"systolic_bp,omitempty"`
	DiastolicBP      *float64  `json:"diastolic_bp,omitempty"`
	OxygenSaturation *float64  `json:"oxygen_saturation,omitempty"`
	BloodGlucose     *float64  `json:"blood_glucose,omitempty"`
	WBCCount         *float64  `json:"wbc_count,omitempty"`
	PlateletCount    *float64  `json:"platelet_count,omitempty"`
	Lactate          *float64  `json:"lactate,omitempty"`
	Creatinine       *float64  `json:"creatinine,omitempty"`
	Bilirubin        *float64  `json:"bilirubin,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Explanation is a per-feature attribution of a risk score relative to a
// baseline. Features and ShapValues are index-aligned and must have equal
// length.
type Explanation struct {
	Features   []string  `json:"features"`
	ShapValues []float64 `json:"shap_values"`
	BaseValue  float64   `json:"base_value"`
}

// Prediction is an immutable scoring result. Once recorded it is never
// updated or deleted; alerts and feedback reference it by ID.
type Prediction struct {
	ID           string             `json:"id"`
	PatientID    string             `json:"patient_id"`
	Probability  float64            `json:"probability"`
	IsSepsisRisk bool               `json:"is_sepsis_risk"`
	FeaturesUsed map[string]float64 `json:"features_used,omitempty"`
	ModelVersion string             `json:"model_version"`
	Timestamp    time.Time          `json:"timestamp"`
	Explanation  *Explanation       `json:"explanation,omitempty"`
}

// Alert statuses. Pending and acknowledged are the open states; action_taken
// and dismissed are terminal.
const (
	AlertPending      = "pending"
	AlertAcknowledged = "acknowledged"
	AlertActionTaken  = "action_taken"
	AlertDismissed    = "dismissed"
)

const AlertTypeSepsisRisk = "sepsis_risk"

type Alert struct {
	ID             string     `json:"id"`
	PatientID      string     `json:"patient_id"`
	PredictionID   string     `json:"prediction_id"`
	AlertType      string     `json:"alert_type"`
	Severity       int        `json:"severity"`
	Status         string     `json:"status"`
	Message        string     `json:"message"`
	EvidenceCount  int        `json:"evidence_count"`
	LastEvidenceAt *time.Time `json:"last_evidence_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
}

// IsOpen reports whether the alert still represents an unresolved risk
// episode.
func (a Alert) IsOpen() bool {
	return a.Status == AlertPending || a.Status == AlertAcknowledged
}

// Feedback types clinicians can attach to a prediction.
const (
	FeedbackCorrect       = "correct"
	FeedbackFalsePositive = "false_positive"
	FeedbackFalseNegative = "false_negative"
	FeedbackUnsure        = "unsure"
)

// Feedback is an append-only audit record. Entries are never updated or
// deleted, and a clinician may submit more than one for the same prediction.
type Feedback struct {
	ID           string    `json:"id"`
	PredictionID string    `json:"prediction_id"`
	UserID       string    `json:"user_id"`
	FeedbackType string    `json:"feedback_type"`
	Comments     string    `json:"comments,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// VitalReading pairs a latest observed value with the time it was observed.
type VitalReading struct {
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

// PatientSummary is a derived read view. It is recomputed on every request
// and never persisted.
type PatientSummary struct {
	Patient            Patient                 `json:"patient"`
	LatestVitals       map[string]VitalReading `json:"latest_vitals"`
	RecentClinicalData []ClinicalData          `json:"recent_clinical_data"`
	SepsisPredictions  []Prediction            `json:"sepsis_predictions"`
	LatestPrediction   *Prediction             `json:"latest_prediction"`
	ActiveAlerts       []Alert                 `json:"active_alerts"`
	AlertCount         int                     `json:"alert_count"`
}

// Event is the wire envelope for messages on the alert topic.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // alert.created, alert.notify
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}
