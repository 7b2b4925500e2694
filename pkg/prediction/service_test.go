package prediction

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sepsiswatch/platform/pkg/alert"
	"github.com/sepsiswatch/platform/pkg/common/logger"
	"github.com/sepsiswatch/platform/pkg/common/models"
	"github.com/sepsiswatch/platform/pkg/patient"
	"github.com/sepsiswatch/platform/pkg/scoring"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	logger.Init("test")
	os.Exit(m.Run())
}

type testStack struct {
	db       *gorm.DB
	patients *patient.Service
	alerts   *alert.Engine
	repo     *Repository
	svc      *Service
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrapping test database: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	patientRepo := patient.NewRepository(db)
	alertRepo := alert.NewRepository(db)
	predRepo := NewRepository(db)
	for _, migrate := range []func() error{patientRepo.AutoMigrate, alertRepo.AutoMigrate, predRepo.AutoMigrate} {
		if err := migrate(); err != nil {
			t.Fatalf("migrating: %v", err)
		}
	}

	patients := patient.NewService(patientRepo)
	engine := alert.NewEngine(alertRepo, alert.DefaultSeverityPolicy())
	scorer := scoring.NewScorer(t.TempDir(), "sepsis", 0.7)
	svc := NewService(db, predRepo, patients, scorer, engine, nil)

	return &testStack{db: db, patients: patients, alerts: engine, repo: predRepo, svc: svc}
}

func (s *testStack) admitPatient(t *testing.T, vitals patient.ClinicalDataInput) string {
	t.Helper()
	ctx := context.Background()
	p, err := s.patients.Create(ctx, patient.CreatePatientInput{FirstName: "Ada", LastName: "Nwosu"})
	if err != nil {
		t.Fatalf("creating patient: %v", err)
	}
	if _, err := s.patients.AddClinicalData(ctx, p.ID, vitals); err != nil {
		t.Fatalf("adding vitals: %v", err)
	}
	return p.ID
}

func f(v float64) *float64 { return &v }

func healthyPanel() patient.ClinicalDataInput {
	return patient.ClinicalDataInput{
		HeartRate: f(70), RespiratoryRate: f(14), Temperature: f(37.0),
		SystolicBP: f(120), DiastolicBP: f(80), OxygenSaturation: f(98),
		BloodGlucose: f(90), WBCCount: f(7), PlateletCount: f(250),
		Lactate: f(1.0), Creatinine: f(0.9), Bilirubin: f(0.8),
	}
}

func septicPanel() patient.ClinicalDataInput {
	return patient.ClinicalDataInput{
		HeartRate: f(135), RespiratoryRate: f(32), Temperature: f(39.5),
		SystolicBP: f(85), DiastolicBP: f(50), OxygenSaturation: f(88),
		BloodGlucose: f(180), WBCCount: f(22), PlateletCount: f(90),
		Lactate: f(6.0), Creatinine: f(2.8), Bilirubin: f(3.2),
	}
}

func TestRecordValidation(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	cases := map[string]RecordInput{
		"missing patient": {Probability: 0.5, ModelVersion: "v1"},
		"probability above one": {PatientID: "p1", Probability: 1.2, ModelVersion: "v1"},
		"negative probability":  {PatientID: "p1", Probability: -0.1, ModelVersion: "v1"},
		"missing model version": {PatientID: "p1", Probability: 0.5},
		"misaligned explanation": {
			PatientID: "p1", Probability: 0.5, ModelVersion: "v1",
			Explanation: &models.Explanation{Features: []string{"a", "b"}, ShapValues: []float64{0.1}},
		},
	}
	for name, in := range cases {
		if _, err := stack.svc.Record(ctx, nil, in); !IsValidationError(err) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestRecordPersistsExplanation(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	in := RecordInput{
		PatientID:    "p1",
		Probability:  0.42,
		IsSepsisRisk: false,
		FeaturesUsed: map[string]float64{"heart_rate": 88, "lactate": 2.1},
		ModelVersion: "v1",
		Explanation: &models.Explanation{
			Features:   []string{"heart_rate", "lactate"},
			ShapValues: []float64{0.8, 1.1},
			BaseValue:  -3.0,
		},
	}
	stored, err := stack.svc.Record(ctx, nil, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.ID == "" || stored.Timestamp.IsZero() {
		t.Fatalf("expected assigned ID and timestamp: %+v", stored)
	}

	got, err := stack.svc.Get(ctx, stored.ID)
	if err != nil {
		t.Fatalf("fetching prediction: %v", err)
	}
	if got.Probability != 0.42 || got.ModelVersion != "v1" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Explanation == nil {
		t.Fatal("explanation lost on round trip")
	}
	if got.Explanation.BaseValue != -3.0 || len(got.Explanation.Features) != 2 {
		t.Fatalf("explanation mismatch: %+v", got.Explanation)
	}
	if got.FeaturesUsed["lactate"] != 2.1 {
		t.Fatalf("features_used mismatch: %v", got.FeaturesUsed)
	}
}

func TestScoreAndRecordLowRisk(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()
	patientID := stack.admitPatient(t, healthyPanel())

	outcome, err := stack.svc.ScoreAndRecord(ctx, patientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Prediction.IsSepsisRisk {
		t.Fatalf("healthy vitals flagged as risk at %v", outcome.Prediction.Probability)
	}
	if outcome.Alert != nil || outcome.AlertCreated {
		t.Fatalf("expected no alert for low-risk outcome: %+v", outcome.Alert)
	}

	history, err := stack.svc.History(ctx, patientID, 0, 10)
	if err != nil {
		t.Fatalf("fetching history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one stored prediction, got %d", len(history))
	}
}

func TestScoreAndRecordOpensAlert(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()
	patientID := stack.admitPatient(t, septicPanel())

	outcome, err := stack.svc.ScoreAndRecord(ctx, patientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Prediction.IsSepsisRisk {
		t.Fatalf("septic vitals not flagged, probability %v", outcome.Prediction.Probability)
	}
	if !outcome.AlertCreated || outcome.Alert == nil {
		t.Fatal("expected an alert for high-risk outcome")
	}
	if outcome.Alert.PredictionID != outcome.Prediction.ID {
		t.Fatalf("alert references wrong prediction: %s vs %s", outcome.Alert.PredictionID, outcome.Prediction.ID)
	}
	if outcome.Alert.Status != models.AlertPending {
		t.Fatalf("expected pending alert, got %s", outcome.Alert.Status)
	}

	// A second high-risk score merges instead of opening a duplicate.
	second, err := stack.svc.ScoreAndRecord(ctx, patientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.AlertCreated {
		t.Fatal("second score must merge into the open alert")
	}
	if second.Alert == nil || second.Alert.ID != outcome.Alert.ID {
		t.Fatalf("merge landed on wrong alert: %+v", second.Alert)
	}

	open, err := stack.alerts.ListOpenForPatient(ctx, patientID)
	if err != nil {
		t.Fatalf("listing open alerts: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected one open alert, got %d", len(open))
	}
}

func TestScoreAndRecordUnknownPatient(t *testing.T) {
	stack := newTestStack(t)
	if _, err := stack.svc.ScoreAndRecord(context.Background(), "ghost"); !errors.Is(err, patient.ErrNotFound) {
		t.Fatalf("expected patient.ErrNotFound, got %v", err)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()
	patientID := stack.admitPatient(t, healthyPanel())

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		m := &PredictionModel{
			ID:           "pred-" + string(rune('a'+i)),
			PatientID:    patientID,
			Probability:  0.1 * float64(i+1),
			ModelVersion: "v1",
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
		}
		if err := stack.repo.Create(ctx, nil, m); err != nil {
			t.Fatalf("inserting prediction %d: %v", i, err)
		}
	}

	history, err := stack.svc.History(ctx, patientID, 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 predictions, got %d", len(history))
	}
	if history[0].ID != "pred-c" {
		t.Fatalf("expected newest first, got %s", history[0].ID)
	}

	if _, err := stack.svc.History(ctx, "ghost", 0, 10); !errors.Is(err, patient.ErrNotFound) {
		t.Fatalf("history for unknown patient must fail, got %v", err)
	}
}

func TestGetUnknownPrediction(t *testing.T) {
	stack := newTestStack(t)
	if _, err := stack.svc.Get(context.Background(), "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
